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


package archivist

import (
	"errors"
	"log/slog"

	"github.com/scriptorium/archivist/ai"
	"github.com/scriptorium/archivist/ai/openai"
	"github.com/scriptorium/archivist/backfill"
	"github.com/scriptorium/archivist/search"
	"github.com/scriptorium/archivist/storage"
	"github.com/scriptorium/archivist/storage/badger"
	"github.com/scriptorium/archivist/storage/sqlite"
)

// Archive bundles the article source, the chunk store, and the embedding
// client behind one handle. It is the assembly point for the pipeline:
// open an Archive, then create backfillers and searchers from it.
type Archive struct {
	backend  *badger.Backend
	chunks   storage.ChunkRepository
	articles *sqlite.ArticleSource
	embedder ai.Embedder
	logger   *slog.Logger
}

// ArchiveOption configures an Archive.
type ArchiveOption func(*archiveOptions)

type archiveOptions struct {
	aiConfig    *ai.Config
	articleOpts []sqlite.Option
}

// WithAIConfig overrides the embedding provider configuration.
func WithAIConfig(config *ai.Config) ArchiveOption {
	return func(o *archiveOptions) {
		if config != nil {
			o.aiConfig = config
		}
	}
}

// WithArticleOptions passes options through to the article source.
func WithArticleOptions(opts ...sqlite.Option) ArchiveOption {
	return func(o *archiveOptions) {
		o.articleOpts = append(o.articleOpts, opts...)
	}
}

// OpenArchive opens the chunk store at chunkPath (a BadgerDB directory)
// and the article archive at articlePath (a SQLite file).
func OpenArchive(chunkPath, articlePath string, opts ...ArchiveOption) (*Archive, error) {
	options := &archiveOptions{
		aiConfig: ai.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(options)
	}

	backend, err := badger.OpenBackend(chunkPath, false)
	if err != nil {
		return nil, err
	}

	chunks, err := badger.NewChunkRepository(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}

	articles, err := sqlite.OpenArticleSource(articlePath, options.articleOpts...)
	if err != nil {
		backend.Close()
		return nil, err
	}

	embedder, err := openai.NewEmbedder(options.aiConfig)
	if err != nil {
		articles.Close()
		backend.Close()
		return nil, err
	}

	return &Archive{
		backend:  backend,
		chunks:   chunks,
		articles: articles,
		embedder: embedder,
		logger:   slog.Default(),
	}, nil
}

// Close closes the article archive and the chunk store. Both stores are
// always closed; a failure on one never leaks the other.
func (a *Archive) Close() error {
	var errs []error
	if err := a.articles.Close(); err != nil {
		a.logger.Error("error closing article source", "err", err)
		errs = append(errs, err)
	}
	if err := a.backend.Close(); err != nil {
		a.logger.Error("error closing chunk store", "err", err)
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ChunkRepository returns the chunk store.
func (a *Archive) ChunkRepository() storage.ChunkRepository {
	return a.chunks
}

// Articles returns the article source.
func (a *Archive) Articles() *sqlite.ArticleSource {
	return a.articles
}

// Embedder returns the embedding client.
func (a *Archive) Embedder() ai.Embedder {
	return a.embedder
}

// NewBackfiller creates a backfiller over the archive's corpus.
func (a *Archive) NewBackfiller(config *backfill.Config, opts ...backfill.Option) (*backfill.Backfiller, error) {
	return backfill.NewBackfiller(a.articles, a.chunks, a.embedder, config, opts...)
}

// NewSearcher creates a searcher over the archive's chunk store.
func (a *Archive) NewSearcher(opts ...search.Option) (*search.Searcher, error) {
	return search.NewSearcher(a.chunks, a.embedder, opts...)
}
