package backfill

import "errors"

var (
	// ErrInvalidMaxRetries is returned when the retry budget is <= 0
	ErrInvalidMaxRetries = errors.New("maxRetries must be greater than 0")

	// ErrDocumentSourceRequired is returned when no document source is provided
	ErrDocumentSourceRequired = errors.New("document source is required")

	// ErrChunkRepositoryRequired is returned when no chunk repository is provided
	ErrChunkRepositoryRequired = errors.New("chunk repository is required")

	// ErrEmbedderRequired is returned when no embedder is provided
	ErrEmbedderRequired = errors.New("embedder is required")
)
