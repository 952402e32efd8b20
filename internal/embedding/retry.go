package embedding

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v5"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// RetryConfig configures retry behavior for embedding calls.
type RetryConfig struct {
	MaxRetries      int           // retries after the first attempt (0 = no retries)
	InitialInterval time.Duration // first backoff delay
	MaxInterval     time.Duration // cap for exponential backoff
	Timeout         time.Duration // per-attempt timeout (0 = none)
}

// DefaultRetryConfig returns the default retry policy.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      5,
		InitialInterval: time.Second,
		MaxInterval:     30 * time.Second,
		Timeout:         2 * time.Minute,
	}
}

// RetryEmbedder wraps an Embedder with per-attempt timeouts and exponential backoff.
type RetryEmbedder struct {
	inner  Embedder
	config RetryConfig
	logger *zap.Logger
}

// NewRetryEmbedder wraps inner with the given policy. A nil logger discards retry warnings.
func NewRetryEmbedder(inner Embedder, config RetryConfig, logger *zap.Logger) *RetryEmbedder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetryEmbedder{inner: inner, config: config, logger: logger}
}

// Embed returns the embedding for a single text.
func (r *RetryEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return embedOne(ctx, r, text)
}

// EmbedBatch calls the wrapped embedder until it succeeds, the error is permanent,
// or the retry budget is spent.
func (r *RetryEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	attempt := 0
	op := func() ([][]float32, error) {
		attempt++
		attemptCtx := ctx
		if r.config.Timeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, r.config.Timeout)
			defer cancel()
		}
		vecs, err := r.inner.EmbedBatch(attemptCtx, texts)
		if err == nil {
			return vecs, nil
		}
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		if !isRetryable(err) {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	vecs, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(r.newBackOff()),
		backoff.WithMaxTries(uint(r.config.MaxRetries)+1),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			r.logger.Warn("embedding request failed, retrying",
				zap.Int("attempt", attempt),
				zap.Int("texts", len(texts)),
				zap.Duration("backoff", next),
				zap.Error(err))
		}),
	)
	if err != nil {
		if attempt > r.config.MaxRetries && isRetryable(err) {
			return nil, fmt.Errorf("max retries (%d) exceeded: %w", r.config.MaxRetries, err)
		}
		return nil, err
	}
	return vecs, nil
}

func (r *RetryEmbedder) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	if r.config.InitialInterval > 0 {
		b.InitialInterval = r.config.InitialInterval
	}
	if r.config.MaxInterval > 0 {
		b.MaxInterval = r.config.MaxInterval
	}
	return b
}

// Dimensions returns the wrapped embedder's dimensions.
func (r *RetryEmbedder) Dimensions() int { return r.inner.Dimensions() }

// Model returns the wrapped embedder's model.
func (r *RetryEmbedder) Model() string { return r.inner.Model() }

// Close closes the wrapped embedder.
func (r *RetryEmbedder) Close() error { return r.inner.Close() }

// isRetryable reports whether err is worth another attempt. Errors that carry
// no HTTP status and are not a known transient network failure are permanent.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrBatchSize) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	status := httpStatus(err)
	if status == 0 {
		status = statusFromText(err.Error())
	}
	switch {
	case status == http.StatusTooManyRequests:
		return !isDailyLimit(err.Error())
	case status >= 500:
		return true
	case status >= 400:
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, io.ErrUnexpectedEOF)
}

// statusLine matches an HTTP status line fragment such as "503 Service Unavailable",
// the shape providers without typed errors put into their messages.
var statusLine = regexp.MustCompile(`\b([45]\d\d) ([A-Z][A-Za-z -]*)`)

// statusFromText returns the first 4xx/5xx status whose code is followed by its
// standard reason phrase, or 0.
func statusFromText(msg string) int {
	for _, m := range statusLine.FindAllStringSubmatch(msg, -1) {
		code, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if text := http.StatusText(code); text != "" && strings.HasPrefix(m[2], text) {
			return code
		}
	}
	return 0
}

// isDailyLimit matches 429s caused by a daily token cap, which retries cannot clear.
func isDailyLimit(msg string) bool {
	return strings.Contains(msg, "tokens per day") || strings.Contains(msg, "TPD")
}

// httpStatus extracts the HTTP status from OpenAI client errors, or 0.
func httpStatus(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}
