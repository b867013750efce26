package storage

import (
	"context"

	"github.com/scriptorium/archivist/core"
)

// SearchFilter narrows a nearest-neighbor search.
// The zero value matches every row.
type SearchFilter struct {
	// DocumentId scopes results to one owner. Zero means corpus-wide.
	DocumentId core.ID

	// Metadata requires containment: every key/value pair listed here must
	// be present on a row's metadata for the row to match.
	Metadata map[string]string
}

// ChunkRepository provides operations for stored chunk rows.
// Implementations must be thread-safe; backfill workers write rows for
// different documents concurrently. Rows are unique on
// (DocumentId, Chunk.Index).
type ChunkRepository interface {
	// AddChunkRecords inserts a batch of rows as one atomic write: either
	// every row is persisted or none are. Sets InsertedAt/UpdatedAt.
	// Returns ErrDuplicateKey if a row for (DocumentId, Index) exists.
	AddChunkRecords(ctx context.Context, records ...*core.ChunkRecord) error

	// DeleteChunksForDocument removes all rows for a document and returns
	// the number removed. Deleting a document with no rows is not an error.
	DeleteChunksForDocument(ctx context.Context, docID core.ID) (int, error)

	// HasChunksForDocument reports whether any row exists for the document.
	// Cheap: does not load row contents.
	HasChunksForDocument(ctx context.Context, docID core.ID) (bool, error)

	// GetChunkRecords retrieves all rows for a document, ordered by chunk index.
	GetChunkRecords(ctx context.Context, docID core.ID) ([]*core.ChunkRecord, error)

	// CountChunks returns the total number of stored rows across the corpus.
	CountChunks(ctx context.Context) (int, error)

	// NearestNeighbors finds rows by cosine similarity to the query vector.
	// Returns rows with similarity strictly greater than minSimilarity, up
	// to limit results, ordered by similarity descending. A nil filter
	// searches the whole corpus.
	NearestNeighbors(ctx context.Context, vector []float32, minSimilarity float32, limit int, filter *SearchFilter) ([]*core.ScoredChunk, error)

	// Close closes the repository and releases resources.
	Close() error
}

// DocumentSource provides read access to the archived document corpus.
// Listing is deliberately lightweight: bodies are only loaded one at a
// time through GetDocument, so iterating a large corpus stays memory-bounded.
type DocumentSource interface {
	// ListDocuments returns refs (id, title, url) for every known document,
	// without loading bodies.
	ListDocuments(ctx context.Context) ([]core.DocumentRef, error)

	// GetDocument retrieves one full document including its body.
	// Returns ErrNotFound if the document doesn't exist.
	GetDocument(ctx context.Context, id core.ID) (*core.Document, error)

	// Close closes the source and releases resources.
	Close() error
}
