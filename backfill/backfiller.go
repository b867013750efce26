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


package backfill

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/scriptorium/archivist/ai"
	"github.com/scriptorium/archivist/chunker"
	"github.com/scriptorium/archivist/core"
	"github.com/scriptorium/archivist/storage"
)

// Config holds configuration for a backfill run.
type Config struct {
	// BatchSize is the number of chunks embedded per provider call.
	BatchSize int

	// MaxRetries is the total number of attempts per embedding call.
	MaxRetries int

	// InitialDelay is the base delay for exponential backoff.
	InitialDelay time.Duration

	// MaxDelay caps the backoff sleep.
	MaxDelay time.Duration

	// BackoffMultiplier scales the delay after each retry.
	BackoffMultiplier float64

	// Workers bounds the number of documents in flight. The default is
	// deliberately low: the provider's shared rate limit, not local CPU,
	// is the binding constraint.
	Workers int

	// SkipExisting skips documents that already have stored chunk rows.
	// When false, existing rows are deleted and the document is
	// reprocessed from scratch.
	SkipExisting bool

	// Chunking holds the chunker parameters. The zero value uses the
	// chunker defaults.
	Chunking chunker.Params

	// Classify overrides the retryable/fatal decision for embedding
	// errors. Nil uses ai.ClassifyError.
	Classify ai.ErrorClassifier
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:         5,
		MaxRetries:        3,
		InitialDelay:      1 * time.Second,
		MaxDelay:          30 * time.Second,
		BackoffMultiplier: 2,
		Workers:           2,
		SkipExisting:      true,
	}
}

// retryPolicy derives the retry policy from the config.
func (c *Config) retryPolicy() RetryPolicy {
	policy := DefaultRetryPolicy()
	if c.MaxRetries > 0 {
		policy.MaxRetries = c.MaxRetries
	}
	if c.InitialDelay > 0 {
		policy.InitialDelay = c.InitialDelay
	}
	if c.MaxDelay > 0 {
		policy.MaxDelay = c.MaxDelay
	}
	if c.BackoffMultiplier > 0 {
		policy.Multiplier = c.BackoffMultiplier
	}
	if c.Classify != nil {
		policy.Classify = c.Classify
	}
	return policy
}

// Backfiller runs the chunk-and-embed pipeline over the whole document
// corpus. Documents are processed under a bounded worker pool; batches
// within one document stay strictly sequential inside the BatchProcessor.
type Backfiller struct {
	source     storage.DocumentSource
	chunks     storage.ChunkRepository
	embedder   ai.Embedder
	config     *Config
	processor  *BatchProcessor
	logger     *slog.Logger
	onProgress ProgressFunc
	onError    ErrorFunc
}

// Option configures a Backfiller.
type Option func(*Backfiller) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(b *Backfiller) error {
		if logger == nil {
			logger = slog.Default()
		}
		b.logger = logger
		return nil
	}
}

// WithProgress sets the progress callback, invoked after each document
// reaches a terminal state. Best-effort: a panicking callback is logged
// and ignored.
func WithProgress(fn ProgressFunc) Option {
	return func(b *Backfiller) error {
		b.onProgress = fn
		return nil
	}
}

// WithErrorCallback sets the per-document failure callback.
func WithErrorCallback(fn ErrorFunc) Option {
	return func(b *Backfiller) error {
		b.onError = fn
		return nil
	}
}

// NewBackfiller creates a new backfiller.
func NewBackfiller(
	source storage.DocumentSource,
	chunks storage.ChunkRepository,
	embedder ai.Embedder,
	config *Config,
	opts ...Option,
) (*Backfiller, error) {
	if source == nil {
		return nil, ErrDocumentSourceRequired
	}
	if chunks == nil {
		return nil, ErrChunkRepositoryRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if config == nil {
		config = DefaultConfig()
	}

	b := &Backfiller{
		source:    source,
		chunks:    chunks,
		embedder:  embedder,
		config:    config,
		processor: NewBatchProcessor(chunks, embedder, config.BatchSize, config.retryPolicy()),
		logger:    slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(b); err != nil {
			return nil, err
		}
	}

	return b, nil
}

// documentOutcome is the terminal state of one document.
type documentOutcome int

const (
	outcomeProcessed documentOutcome = iota + 1
	outcomeSkipped
	outcomeFailed
)

// Run executes the backfill over every document the source knows about.
// Failures are isolated per document: one document exhausting its retry
// budget doesn't stop the run. Cancellation is cooperative; once the
// context is done no new document starts, in-flight documents run to
// completion, and Run returns the partial result alongside ctx.Err().
func (b *Backfiller) Run(ctx context.Context) (*Result, error) {
	refs, err := b.source.ListDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}

	result := &Result{
		RunID:          uuid.New(),
		TotalDocuments: len(refs),
	}

	logger := b.logger.With("run_id", result.RunID)
	logger.Info("starting backfill",
		"documents", len(refs),
		"workers", b.config.Workers,
		"batch_size", b.config.BatchSize,
		"skip_existing", b.config.SkipExisting)

	if len(refs) == 0 {
		return result, nil
	}

	workers := b.config.Workers
	if workers < 1 {
		workers = 1
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, err
	}
	defer pool.Release()

	var (
		mu        sync.Mutex
		wg        sync.WaitGroup
		completed int
	)
	total := len(refs)

	for _, ref := range refs {
		// Don't start new documents once the caller has given up.
		// Documents never started are not counted in the result.
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()

			// Intermediate state transitions report the running completed
			// count; only the terminal transition advances it.
			report := func(message string) {
				mu.Lock()
				done := completed
				mu.Unlock()
				notifyProgress(logger, b.onProgress, done, total, message)
			}

			outcome, chunkCount, message, docErr := b.processDocument(ctx, ref, report)

			mu.Lock()
			switch outcome {
			case outcomeProcessed:
				result.Processed++
				result.TotalChunks += chunkCount
			case outcomeSkipped:
				result.Skipped++
			case outcomeFailed:
				result.Failed++
				result.Errors = append(result.Errors, DocumentError{DocumentId: ref.Id, Err: docErr})
			}
			completed++
			done := completed
			mu.Unlock()

			notifyProgress(logger, b.onProgress, done, total, message)
			if outcome == outcomeFailed {
				notifyError(logger, b.onError, ref.Id, docErr)
			}
		})
		if submitErr != nil {
			wg.Done()
			mu.Lock()
			result.Failed++
			result.Errors = append(result.Errors, DocumentError{DocumentId: ref.Id, Err: submitErr})
			completed++
			mu.Unlock()
		}
	}

	wg.Wait()

	logger.Info("backfill complete",
		"processed", result.Processed,
		"skipped", result.Skipped,
		"failed", result.Failed,
		"chunks", result.TotalChunks)

	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

// processDocument walks one document through the pipeline:
// check existing rows, load the body, then chunk and embed. Any error
// fails the document without aborting the run. report is invoked at
// each stage transition; the terminal message is reported by the caller
// once the document has been counted.
func (b *Backfiller) processDocument(ctx context.Context, ref core.DocumentRef, report func(message string)) (documentOutcome, int, string, error) {
	name := ref.Title
	if name == "" {
		name = ref.URL
	}

	report(fmt.Sprintf("checking %s", name))
	if b.config.SkipExisting {
		has, err := b.chunks.HasChunksForDocument(ctx, ref.Id)
		if err != nil {
			return outcomeFailed, 0, fmt.Sprintf("failed %s", name), err
		}
		if has {
			return outcomeSkipped, 0, fmt.Sprintf("skipped %s: already indexed", name), nil
		}
	} else {
		// Reprocessing regenerates vectors wholesale: delete every
		// existing row first, never patch in place.
		if _, err := b.chunks.DeleteChunksForDocument(ctx, ref.Id); err != nil {
			return outcomeFailed, 0, fmt.Sprintf("failed %s", name), err
		}
	}

	// Bodies are loaded one at a time and released as soon as the
	// document completes, keeping memory bounded for large corpora.
	report(fmt.Sprintf("loading %s", name))
	doc, err := b.source.GetDocument(ctx, ref.Id)
	if err != nil {
		return outcomeFailed, 0, fmt.Sprintf("failed %s", name), err
	}

	if strings.TrimSpace(doc.Body) == "" {
		return outcomeSkipped, 0, fmt.Sprintf("skipped %s: no content", name), nil
	}

	report(fmt.Sprintf("embedding %s", name))
	metadata := chunkMetadata(doc)
	count, err := b.processor.ProcessStream(ctx, ref.Id, chunker.Stream(doc.Body, b.config.Chunking), metadata)
	if err != nil {
		// A document is abandoned, not partially salvaged: rows from
		// batches that committed before the failure are removed so the
		// retrieval surface never holds a partial document.
		if _, cleanupErr := b.chunks.DeleteChunksForDocument(context.WithoutCancel(ctx), ref.Id); cleanupErr != nil {
			b.logger.Warn("failed to clean up partial chunks", "document_id", ref.Id, "err", cleanupErr)
		}
		return outcomeFailed, 0, fmt.Sprintf("failed %s", name), err
	}

	if count == 0 {
		return outcomeSkipped, 0, fmt.Sprintf("skipped %s: no extractable content", name), nil
	}

	return outcomeProcessed, count, fmt.Sprintf("processed %s (%d chunks)", name, count), nil
}

// chunkMetadata builds the metadata attached to every chunk row of a
// document. Document metadata is copied through, with the owning essay
// and source URL added for filtered search.
func chunkMetadata(doc *core.Document) map[string]string {
	metadata := make(map[string]string, len(doc.Metadata)+2)
	for k, v := range doc.Metadata {
		metadata[k] = v
	}
	if doc.EssaySlug != "" {
		metadata["essay_slug"] = doc.EssaySlug
	}
	if doc.URL != "" {
		metadata["url"] = doc.URL
	}
	return metadata
}
