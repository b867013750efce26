package backfill

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/scriptorium/archivist/core"
)

// ProgressFunc receives progress updates during a backfill run. It is
// treated as best-effort: callbacks run synchronously with processing,
// and a panic inside one is logged and swallowed rather than aborting
// the run.
type ProgressFunc func(completed, total int, message string)

// ErrorFunc receives (document id, error) for every failed document.
// Best-effort, same as ProgressFunc.
type ErrorFunc func(docID core.ID, err error)

// notifyProgress invokes the callback, absorbing panics.
func notifyProgress(logger *slog.Logger, fn ProgressFunc, completed, total int, message string) {
	if fn == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("progress callback panicked", "reason", r)
		}
	}()
	fn(completed, total, message)
}

// notifyError invokes the callback, absorbing panics.
func notifyError(logger *slog.Logger, fn ErrorFunc, docID core.ID, err error) {
	if fn == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("error callback panicked", "reason", r)
		}
	}()
	fn(docID, err)
}

// ProgressTracker renders progress updates to a writer. Its Callback
// method adapts it to ProgressFunc for use with a Backfiller.
type ProgressTracker struct {
	writer    io.Writer
	startTime time.Time
	mu        sync.Mutex
}

// NewProgressTracker creates a progress tracker.
// writer: where to write progress output (typically os.Stderr)
func NewProgressTracker(writer io.Writer) *ProgressTracker {
	return &ProgressTracker{
		writer:    writer,
		startTime: time.Now(),
	}
}

// Callback returns a ProgressFunc that renders updates to the writer.
func (p *ProgressTracker) Callback() ProgressFunc {
	return func(completed, total int, message string) {
		p.mu.Lock()
		defer p.mu.Unlock()

		percentage := 0.0
		if total > 0 {
			percentage = float64(completed) / float64(total) * 100.0
		}
		fmt.Fprintf(p.writer, "[%d/%d] (%.1f%%) %s\n", completed, total, percentage, message)
	}
}

// Elapsed returns the time elapsed since the tracker was created.
func (p *ProgressTracker) Elapsed() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return time.Since(p.startTime)
}
