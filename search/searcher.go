// Copyright 2025 Scriptorium Labs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package search

import (
	"context"
	"log/slog"
	"slices"

	"github.com/scriptorium/archivist/ai"
	"github.com/scriptorium/archivist/core"
	"github.com/scriptorium/archivist/storage"
)

const (
	// DefaultLimit is the default maximum number of results.
	DefaultLimit = 10

	// DefaultThreshold is the default similarity floor. Results must
	// score strictly above it.
	DefaultThreshold float32 = 0.7

	// DefaultRerankBoost is the default per-term lexical boost. Small on
	// purpose: it can break near-ties but never override a strong
	// semantic mismatch.
	DefaultRerankBoost float32 = 0.05
)

// Options controls a single search.
type Options struct {
	// ScopeId restricts results to one document. Zero searches the corpus.
	ScopeId core.ID

	// Limit caps the number of results. Defaults to DefaultLimit.
	Limit int

	// Threshold is the minimum similarity, exclusive. Defaults to
	// DefaultThreshold. Note that 0 means "use the default"; pass a
	// small negative value to disable the floor entirely.
	Threshold *float32

	// Rerank enables the lexical reranking pass.
	Rerank bool

	// RerankBoost is the score added per matching query term during
	// reranking. Defaults to DefaultRerankBoost.
	RerankBoost float32

	// MetadataFilter requires containment: rows must carry every listed
	// key/value pair.
	MetadataFilter map[string]string
}

func (o *Options) withDefaults() Options {
	opts := Options{}
	if o != nil {
		opts = *o
	}
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}
	if opts.Threshold == nil {
		threshold := DefaultThreshold
		opts.Threshold = &threshold
	}
	if opts.RerankBoost == 0 {
		opts.RerankBoost = DefaultRerankBoost
	}
	return opts
}

// Searcher provides similarity search over the chunk store with optional
// lexical reranking.
type Searcher struct {
	chunks   storage.ChunkRepository
	embedder ai.Embedder
	logger   *slog.Logger
}

// Option configures a Searcher.
type Option func(*Searcher) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// NewSearcher creates a new searcher.
func NewSearcher(chunks storage.ChunkRepository, embedder ai.Embedder, opts ...Option) (*Searcher, error) {
	if chunks == nil {
		return nil, ErrChunkRepositoryRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	s := &Searcher{
		chunks:   chunks,
		embedder: embedder,
		logger:   slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Search embeds the query and returns similar chunks, ordered by score
// descending. Every result scores strictly above the threshold and at most
// Limit results are returned. Errors are raised, never swallowed: an empty
// result due to a failure is indistinguishable from no matches otherwise.
func (s *Searcher) Search(ctx context.Context, query string, opts *Options) ([]*core.ScoredChunk, error) {
	return s.SearchWithMonitor(ctx, query, opts, nil)
}

// SearchWithMonitor is Search with observation hooks for each stage.
func (s *Searcher) SearchWithMonitor(ctx context.Context, query string, opts *Options, monitor Monitor) ([]*core.ScoredChunk, error) {
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	options := opts.withDefaults()

	monitor.Start(query)

	terms := QueryTerms(query)
	if len(terms) == 0 {
		return nil, ErrEmptyQuery
	}
	normalized := NormalizeQuery(query)
	monitor.AfterNormalization(normalized, terms)

	embedding, err := s.embedder.EmbedQuery(ctx, normalized)
	if err != nil {
		s.logger.Error("error generating embedding for query", "query", query, "err", err)
		return nil, err
	}
	monitor.AfterEmbedding(len(embedding))

	var filter *storage.SearchFilter
	if options.ScopeId != 0 || len(options.MetadataFilter) > 0 {
		filter = &storage.SearchFilter{
			DocumentId: options.ScopeId,
			Metadata:   options.MetadataFilter,
		}
	}

	matches, err := s.chunks.NearestNeighbors(ctx, embedding, *options.Threshold, options.Limit, filter)
	if err != nil {
		s.logger.Error("error querying for similar chunks", "err", err)
		return nil, err
	}
	monitor.AfterVectorSearch(matches)

	if options.Rerank {
		matches = rerank(matches, terms, options.RerankBoost)
		monitor.AfterRerank(matches)
	}

	s.logger.Debug("search complete", "query", normalized, "results", len(matches))
	monitor.Finish(matches)
	return matches, nil
}

// rerank adds a small lexical boost per query term found verbatim in the
// chunk content, then resorts descending.
func rerank(matches []*core.ScoredChunk, terms []string, boost float32) []*core.ScoredChunk {
	for _, match := range matches {
		hits := countTermMatches(match.Record.Chunk.Content, terms)
		match.Score += boost * float32(hits)
	}

	slices.SortFunc(matches, func(a, b *core.ScoredChunk) int {
		if a.Score > b.Score {
			return -1
		}
		if a.Score < b.Score {
			return 1
		}
		return 0
	})

	return matches
}
