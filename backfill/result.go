package backfill

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/scriptorium/archivist/core"
)

// DocumentError records a failed document within a run.
type DocumentError struct {
	DocumentId core.ID
	Err        error
}

// Result aggregates the outcome of one backfill run. It is ephemeral:
// nothing about a run is persisted beyond the chunk rows it wrote.
type Result struct {
	// RunID identifies the run in logs.
	RunID uuid.UUID

	TotalDocuments int
	Processed      int
	Skipped        int
	Failed         int
	TotalChunks    int

	// Errors holds one entry per failed document.
	Errors []DocumentError
}

// Summary renders a one-line human-readable summary of the run.
func (r *Result) Summary() string {
	return fmt.Sprintf("processed=%d skipped=%d failed=%d chunks=%d (of %d documents)",
		r.Processed, r.Skipped, r.Failed, r.TotalChunks, r.TotalDocuments)
}
