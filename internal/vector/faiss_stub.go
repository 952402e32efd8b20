//go:build !faiss || !cgo
// +build !faiss !cgo

package vector

import (
	"context"
	"errors"
)

var errFAISSUnavailable = errors.New("FAISS not available: build with -tags=faiss and install the FAISS C library")

// FAISSIndex is a stub that returns an error when FAISS is not available.
// Build with -tags=faiss to enable FAISS support.
type FAISSIndex struct{}

// NewFAISSIndex returns an error because FAISS is not available.
func NewFAISSIndex(dimensions int) (*FAISSIndex, error) {
	return nil, errFAISSUnavailable
}

func (f *FAISSIndex) Add(context.Context, [][]float32) error { return errFAISSUnavailable }

func (f *FAISSIndex) Search(context.Context, []float32, int) ([]Result, error) {
	return nil, errFAISSUnavailable
}

func (f *FAISSIndex) Save(string) error { return errFAISSUnavailable }
func (f *FAISSIndex) Load(string) error { return errFAISSUnavailable }
func (f *FAISSIndex) Size() int         { return 0 }
func (f *FAISSIndex) Dimensions() int   { return 0 }
func (f *FAISSIndex) Close() error      { return nil }

// Type returns the index type identifier.
func (f *FAISSIndex) Type() string {
	return string(IndexTypeFAISS)
}
