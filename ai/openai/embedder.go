package openai

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/scriptorium/archivist/ai"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// Embedder implements ai.Embedder using OpenAI-compatible embedding APIs.
type Embedder struct {
	embedder      embeddings.Embedder
	truncate      bool
	maxInputChars int
	logger        *slog.Logger
}

var _ ai.Embedder = (*Embedder)(nil)

// NewEmbedder creates a new embedder using the provided configuration.
//
// Returns ai.Embedder interface to enforce abstraction.
func NewEmbedder(config *ai.Config) (ai.Embedder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client, err := openai.New(
		openai.WithBaseURL(config.Host),
		openai.WithToken(config.Token),
		openai.WithEmbeddingModel(config.Model),
	)
	if err != nil {
		return nil, err
	}

	embedder, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, err
	}

	return &Embedder{
		embedder:      embedder,
		truncate:      config.Truncate,
		maxInputChars: config.MaxInputChars,
		logger:        slog.Default().With("component", "openai-embedder"),
	}, nil
}

// EmbedDocuments generates vector embeddings for multiple texts in a batch.
// The provider response is validated: a count mismatch or a missing vector
// is an error, never silently sparse output.
func (e *Embedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	e.logger.Debug("generating embeddings for documents", "count", len(texts))

	inputs := texts
	if e.truncate {
		inputs = e.truncateAll(texts)
	}

	vectors, err := e.embedder.EmbedDocuments(ctx, inputs)
	if err != nil {
		e.logger.Error("failed to generate embeddings", "count", len(texts), "err", err)
		return nil, err
	}

	if err := validateVectors(vectors, len(texts)); err != nil {
		e.logger.Error("provider returned malformed embedding response", "err", err)
		return nil, err
	}

	return vectors, nil
}

// EmbedQuery generates a vector embedding for a single search query.
func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	e.logger.Debug("generating embedding for query", "length", len(text))

	if e.truncate && len(text) > e.maxInputChars {
		text = text[:e.maxInputChars]
	}

	vector, err := e.embedder.EmbedQuery(ctx, text)
	if err != nil {
		e.logger.Error("failed to generate query embedding", "err", err)
		return nil, err
	}

	if len(vector) == 0 {
		return nil, ai.ErrMissingVector
	}

	return vector, nil
}

// truncateAll caps each text at maxInputChars. Only allocates when at least
// one input needs trimming.
func (e *Embedder) truncateAll(texts []string) []string {
	trimmed := texts
	copied := false
	for i, text := range texts {
		if len(text) <= e.maxInputChars {
			continue
		}
		if !copied {
			trimmed = make([]string, len(texts))
			copy(trimmed, texts)
			copied = true
		}
		trimmed[i] = text[:e.maxInputChars]
	}
	return trimmed
}

// validateVectors rejects responses with the wrong vector count or an empty
// vector at any index.
func validateVectors(vectors [][]float32, want int) error {
	if len(vectors) != want {
		return fmt.Errorf("%w: expected %d, got %d", ai.ErrVectorCountMismatch, want, len(vectors))
	}
	for i, vector := range vectors {
		if len(vector) == 0 {
			return fmt.Errorf("%w: index %d", ai.ErrMissingVector, i)
		}
	}
	return nil
}
