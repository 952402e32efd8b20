package embedding

import (
	"errors"
	"fmt"
)

// ErrBatchSize is returned when a provider answers a batch with the wrong number of vectors.
var ErrBatchSize = errors.New("embedding count does not match input count")

func batchSizeError(want, got int) error {
	return fmt.Errorf("%w: sent %d texts, got %d vectors", ErrBatchSize, want, got)
}
