package backfill

import (
	"context"
	"fmt"
	"iter"

	"github.com/scriptorium/archivist/ai"
	"github.com/scriptorium/archivist/core"
	"github.com/scriptorium/archivist/storage"
)

// BatchProcessor handles embedding generation and persistence for the
// chunks of a single document. Batches are embedded and inserted strictly
// sequentially: the provider's shared rate limit is the binding constraint,
// so intra-document parallelism would only burst it.
type BatchProcessor struct {
	chunks    storage.ChunkRepository
	embedder  ai.Embedder
	batchSize int
	retry     RetryPolicy
}

// NewBatchProcessor creates a new batch processor.
// batchSize: number of chunks embedded per provider call
func NewBatchProcessor(chunks storage.ChunkRepository, embedder ai.Embedder, batchSize int, retry RetryPolicy) *BatchProcessor {
	if batchSize <= 0 {
		batchSize = 5
	}
	return &BatchProcessor{
		chunks:    chunks,
		embedder:  embedder,
		batchSize: batchSize,
		retry:     retry,
	}
}

// ProcessAll embeds and persists a materialized chunk list in batches.
// Returns the number of chunks persisted.
func (bp *BatchProcessor) ProcessAll(ctx context.Context, docID core.ID, chunks []core.Chunk, metadata map[string]string) (int, error) {
	processed := 0
	for start := 0; start < len(chunks); start += bp.batchSize {
		end := min(start+bp.batchSize, len(chunks))
		if err := bp.processBatch(ctx, docID, chunks[start:end], metadata); err != nil {
			return processed, err
		}
		processed += end - start
	}
	return processed, nil
}

// ProcessStream embeds and persists a lazy chunk stream. Chunks accumulate
// into a buffer that is flushed at batchSize, with a final partial flush at
// stream end, so only one batch is resident at a time regardless of
// document size. Per-batch semantics are identical to ProcessAll.
func (bp *BatchProcessor) ProcessStream(ctx context.Context, docID core.ID, chunks iter.Seq[core.Chunk], metadata map[string]string) (int, error) {
	processed := 0
	buffer := make([]core.Chunk, 0, bp.batchSize)

	for chunk := range chunks {
		buffer = append(buffer, chunk)
		if len(buffer) < bp.batchSize {
			continue
		}
		if err := bp.processBatch(ctx, docID, buffer, metadata); err != nil {
			return processed, err
		}
		processed += len(buffer)
		buffer = buffer[:0]
	}

	// Final partial flush
	if len(buffer) > 0 {
		if err := bp.processBatch(ctx, docID, buffer, metadata); err != nil {
			return processed, err
		}
		processed += len(buffer)
	}

	return processed, nil
}

// processBatch embeds one batch in a single provider call and persists it
// as one atomic bulk insert. The embed call is retried per the policy;
// store errors are fatal for the batch. A batch is never partially
// committed, so a retried batch restarts from scratch.
func (bp *BatchProcessor) processBatch(ctx context.Context, docID core.ID, batch []core.Chunk, metadata map[string]string) error {
	if len(batch) == 0 {
		return nil
	}

	// Cancellation is cooperative: don't start a new batch once the
	// caller has given up, but never abandon one mid-commit.
	if err := ctx.Err(); err != nil {
		return err
	}

	texts := make([]string, len(batch))
	for i, chunk := range batch {
		texts[i] = chunk.Content
	}

	var embeddings [][]float32
	err := RetryWithBackoff(ctx, func() error {
		var err error
		embeddings, err = bp.embedder.EmbedDocuments(ctx, texts)
		return err
	}, bp.retry)

	if err != nil {
		return fmt.Errorf("failed to generate embeddings: %w", err)
	}

	if len(embeddings) != len(batch) {
		return fmt.Errorf("%w: expected %d, got %d", ai.ErrVectorCountMismatch, len(batch), len(embeddings))
	}

	records := make([]*core.ChunkRecord, len(batch))
	for i := range batch {
		records[i] = &core.ChunkRecord{
			DocumentId: docID,
			Chunk:      batch[i],
			Vector:     NormalizeVector(embeddings[i]),
			Metadata:   metadata,
		}
	}

	if err := bp.chunks.AddChunkRecords(ctx, records...); err != nil {
		return fmt.Errorf("failed to insert chunk records: %w", err)
	}

	return nil
}
