package core

//go:generate go run ../cmd/musgen

import (
	"encoding/binary"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier for domain entities.
// Document IDs are content-based hashes of the source URL, so the same
// article always maps to the same ID across database rebuilds.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// DocumentRef is a lightweight handle for corpus iteration.
// It carries no body so whole corpora can be listed without loading content.
type DocumentRef struct {
	Id    ID
	Title string
	URL   string
}

// Document is an archived article owned by the document source.
// Documents are immutable once archived; the pipeline only reads them.
type Document struct {
	Id         ID
	URL        string
	Title      string
	Body       string
	SourceDate string            // Publication date as reported by the source, if known
	ArchivedAt time.Time         // When the article was archived
	EssaySlug  string            // Essay the article was collected for
	Query      string            // Search query that surfaced the article
	Metadata   map[string]string
}

// Chunk is a bounded, contiguous substring of a document produced by the
// chunker. Chunks are created once and never mutated.
type Chunk struct {
	Content       string
	Index         int    // 0-based sequence index within the document
	TokenCount    int    // Estimated token count (~4 chars per token)
	StartOffset   int    // Byte offset of the chunk start in the document
	EndOffset     int    // Byte offset one past the chunk end
	Heading       string // Nearest preceding markdown heading, if any
	HasCode       bool
	HasBlockquote bool
	HasList       bool
	HasCitation   bool
	Paragraphs    int
}

// ChunkRecord is a stored chunk row: the chunk, its embedding vector, and
// the owning document. Rows are unique on (DocumentId, Chunk.Index).
// Reprocessing a document deletes all of its rows and reinserts; vectors
// are never patched in place.
type ChunkRecord struct {
	DocumentId ID
	Chunk      Chunk
	Vector     []float32 // Normalized embedding (populated by the batch processor)
	Metadata   map[string]string
	InsertedAt time.Time
	UpdatedAt  time.Time
}

// ScoredChunk is a chunk record paired with a relevance score.
type ScoredChunk struct {
	Record *ChunkRecord
	Score  float32
}
