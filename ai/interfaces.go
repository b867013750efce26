package ai

import "context"

// Embedder generates vector embeddings from text for semantic similarity search.
// Implementations must be thread-safe for concurrent use.
//
// The two methods correspond to the provider's input types: documents are
// embedded for storage, queries for retrieval. Some models encode the two
// differently, so the distinction must be preserved end to end.
type Embedder interface {
	// EmbedDocuments generates vector embeddings for multiple texts in a batch.
	// The returned slice contains exactly one embedding per input, in input
	// order. Implementations must fail if the provider returns fewer vectors
	// than inputs or omits a vector, rather than producing sparse output.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery generates a vector embedding for a single search query.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}
