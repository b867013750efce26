package backfill

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/scriptorium/archivist/ai"
	"github.com/scriptorium/archivist/ai/mock"
	"github.com/scriptorium/archivist/chunker"
	"github.com/scriptorium/archivist/core"
	"github.com/scriptorium/archivist/storage"
	"github.com/scriptorium/archivist/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestChunkRepo(t *testing.T) storage.ChunkRepository {
	t.Helper()
	repo, err := badger.NewMemoryChunkRepository()
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func makeChunks(n int) []core.Chunk {
	chunks := make([]core.Chunk, n)
	for i := range chunks {
		chunks[i] = core.Chunk{
			Content:     "chunk content number " + string(rune('a'+i)),
			Index:       i,
			TokenCount:  5,
			StartOffset: i * 20,
			EndOffset:   i*20 + 20,
		}
	}
	return chunks
}

func chunkSeq(chunks []core.Chunk) func(yield func(core.Chunk) bool) {
	return func(yield func(core.Chunk) bool) {
		for _, c := range chunks {
			if !yield(c) {
				return
			}
		}
	}
}

func fastRetry(maxRetries int) RetryPolicy {
	return testPolicy(maxRetries, time.Millisecond)
}

func TestBatchProcessor_ProcessAll(t *testing.T) {
	repo := newTestChunkRepo(t)
	embedder := mock.NewEmbedder()
	bp := NewBatchProcessor(repo, embedder, 2, fastRetry(3))

	count, err := bp.ProcessAll(context.Background(), 1, makeChunks(5), nil)
	require.NoError(t, err)
	assert.Equal(t, 5, count)
	// 5 chunks at batch size 2: three provider calls.
	assert.Equal(t, 3, embedder.CallCount())

	records, err := repo.GetChunkRecords(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, records, 5)
	for i, record := range records {
		assert.Equal(t, i, record.Chunk.Index)
		assert.NotEmpty(t, record.Vector)
	}
}

func TestBatchProcessor_ProcessStream_FlushesAtBatchSize(t *testing.T) {
	repo := newTestChunkRepo(t)

	var batchSizes []int
	embedder := mock.NewEmbedder()
	embedder.EmbedDocumentsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		batchSizes = append(batchSizes, len(texts))
		vectors := make([][]float32, len(texts))
		for i, text := range texts {
			vectors[i] = mock.DeterministicVector(text, 8)
		}
		return vectors, nil
	}

	bp := NewBatchProcessor(repo, embedder, 3, fastRetry(3))
	count, err := bp.ProcessStream(context.Background(), 1, chunkSeq(makeChunks(7)), nil)
	require.NoError(t, err)
	assert.Equal(t, 7, count)
	// Two full flushes plus a final partial flush.
	assert.Equal(t, []int{3, 3, 1}, batchSizes)
}

func TestBatchProcessor_ProcessStream_EmptyStream(t *testing.T) {
	repo := newTestChunkRepo(t)
	embedder := mock.NewEmbedder()
	bp := NewBatchProcessor(repo, embedder, 3, fastRetry(3))

	count, err := bp.ProcessStream(context.Background(), 1, chunkSeq(nil), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.Equal(t, 0, embedder.CallCount())
}

func TestBatchProcessor_VectorsAreNormalized(t *testing.T) {
	repo := newTestChunkRepo(t)
	embedder := mock.NewEmbedder()
	embedder.EmbedDocumentsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		vectors := make([][]float32, len(texts))
		for i := range texts {
			vectors[i] = []float32{3, 4} // magnitude 5
		}
		return vectors, nil
	}

	bp := NewBatchProcessor(repo, embedder, 5, fastRetry(3))
	_, err := bp.ProcessAll(context.Background(), 1, makeChunks(1), nil)
	require.NoError(t, err)

	records, err := repo.GetChunkRecords(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.InDelta(t, 0.6, records[0].Vector[0], 1e-6)
	assert.InDelta(t, 0.8, records[0].Vector[1], 1e-6)
}

func TestBatchProcessor_RetriesRateLimits(t *testing.T) {
	repo := newTestChunkRepo(t)

	calls := 0
	embedder := mock.NewEmbedder()
	embedder.EmbedDocumentsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		calls++
		if calls <= 2 {
			return nil, errors.New("status code: 429 too many requests")
		}
		vectors := make([][]float32, len(texts))
		for i, text := range texts {
			vectors[i] = mock.DeterministicVector(text, 8)
		}
		return vectors, nil
	}

	bp := NewBatchProcessor(repo, embedder, 5, fastRetry(3))
	count, err := bp.ProcessAll(context.Background(), 1, makeChunks(2), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Equal(t, 3, calls)
}

func TestBatchProcessor_ExhaustedRetriesRaise(t *testing.T) {
	repo := newTestChunkRepo(t)

	calls := 0
	embedder := mock.NewEmbedder()
	embedder.EmbedDocumentsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		calls++
		return nil, errors.New("status code: 503 unavailable")
	}

	bp := NewBatchProcessor(repo, embedder, 5, fastRetry(3))
	count, err := bp.ProcessAll(context.Background(), 1, makeChunks(2), nil)
	require.Error(t, err)
	assert.ErrorContains(t, err, "all 3 attempts failed")
	assert.Equal(t, 0, count)
	assert.Equal(t, 3, calls, "retry budget is the total attempt count")

	// Nothing persisted for the failed batch.
	records, err := repo.GetChunkRecords(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestBatchProcessor_FatalErrorNotRetried(t *testing.T) {
	repo := newTestChunkRepo(t)

	calls := 0
	embedder := mock.NewEmbedder()
	embedder.EmbedDocumentsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		calls++
		return nil, errors.New("status code: 401 unauthorized")
	}

	bp := NewBatchProcessor(repo, embedder, 5, fastRetry(5))
	_, err := bp.ProcessAll(context.Background(), 1, makeChunks(1), nil)
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "attempts", "a fatal first attempt must not claim the retry budget was spent")
	assert.Equal(t, 1, calls)
}

func TestBatchProcessor_VectorCountMismatch(t *testing.T) {
	repo := newTestChunkRepo(t)

	embedder := mock.NewEmbedder()
	embedder.EmbedDocumentsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return [][]float32{{1, 0}}, nil // always one vector, whatever was asked
	}

	bp := NewBatchProcessor(repo, embedder, 5, fastRetry(3))
	_, err := bp.ProcessAll(context.Background(), 1, makeChunks(3), nil)
	assert.ErrorIs(t, err, ai.ErrVectorCountMismatch)
}

func TestBatchProcessor_MetadataAttachedToRows(t *testing.T) {
	repo := newTestChunkRepo(t)
	embedder := mock.NewEmbedder()
	bp := NewBatchProcessor(repo, embedder, 5, fastRetry(3))

	metadata := map[string]string{"essay_slug": "attention"}
	_, err := bp.ProcessAll(context.Background(), 1, makeChunks(2), metadata)
	require.NoError(t, err)

	records, err := repo.GetChunkRecords(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, records, 2)
	for _, record := range records {
		assert.Equal(t, "attention", record.Metadata["essay_slug"])
	}
}

func TestBatchProcessor_StreamFromChunker(t *testing.T) {
	repo := newTestChunkRepo(t)
	embedder := mock.NewEmbedder()
	bp := NewBatchProcessor(repo, embedder, 4, fastRetry(3))

	text := ""
	for i := 0; i < 100; i++ {
		text += "A sentence of filler prose for the chunker to split apart. "
	}
	params := chunker.Params{TargetTokens: 64, OverlapRatio: 0.1}

	count, err := bp.ProcessStream(context.Background(), 9, chunker.Stream(text, params), nil)
	require.NoError(t, err)
	require.Greater(t, count, 1)

	records, err := repo.GetChunkRecords(context.Background(), 9)
	require.NoError(t, err)
	require.Len(t, records, count)
	for i, record := range records {
		assert.Equal(t, i, record.Chunk.Index, "indices are contiguous from 0")
	}
}
