package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// timeoutError implements net.Error with Timeout() == true.
type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestClassifyError_Retryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"rate limit status", errors.New("API returned unexpected status code: 429 too many requests")},
		{"server error", errors.New("API returned unexpected status code: 503 service unavailable")},
		{"gateway timeout", errors.New("status code: 504")},
		{"network timeout", timeoutError{}},
		{"wrapped timeout", fmt.Errorf("embedding call: %w", timeoutError{})},
		{"connection reset", fmt.Errorf("post: %w", syscall.ECONNRESET)},
		{"connection refused", fmt.Errorf("dial: %w", syscall.ECONNREFUSED)},
		{"unexpected eof", io.ErrUnexpectedEOF},
		{"rate limit text", errors.New("rate limit exceeded, retry later")},
		{"unrecognized error", errors.New("something odd happened")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, ErrorClassRetryable, ClassifyError(tt.err))
		})
	}
}

func TestClassifyError_Fatal(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"bad request", errors.New("API returned unexpected status code: 400 bad request")},
		{"unauthorized", errors.New("API returned unexpected status code: 401")},
		{"not found", errors.New("status code: 404")},
		{"vector count mismatch", fmt.Errorf("%w: expected 5, got 3", ErrVectorCountMismatch)},
		{"missing vector", fmt.Errorf("%w: index 2", ErrMissingVector)},
		{"context canceled", context.Canceled},
		{"deadline exceeded", context.DeadlineExceeded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, ErrorClassFatal, ClassifyError(tt.err))
		})
	}
}

func TestClassifyError_WrappedContextError(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	err := fmt.Errorf("embed: %w", ctx.Err())
	assert.Equal(t, ErrorClassFatal, ClassifyError(err))
}
