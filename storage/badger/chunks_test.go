package badger

import (
	"context"
	"testing"

	"github.com/scriptorium/archivist/core"
	"github.com/scriptorium/archivist/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) storage.ChunkRepository {
	t.Helper()
	repo, err := NewMemoryChunkRepository()
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func makeRecord(docID core.ID, index int, content string, vector []float32) *core.ChunkRecord {
	return &core.ChunkRecord{
		DocumentId: docID,
		Chunk: core.Chunk{
			Content:     content,
			Index:       index,
			TokenCount:  len(content) / 4,
			StartOffset: index * 100,
			EndOffset:   index*100 + len(content),
		},
		Vector: vector,
	}
}

func TestAddChunkRecords_SetsTimestamps(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	record := makeRecord(1, 0, "first chunk", []float32{1, 0, 0})
	err := repo.AddChunkRecords(ctx, record)
	require.NoError(t, err)

	assert.False(t, record.InsertedAt.IsZero())
	assert.Equal(t, record.InsertedAt, record.UpdatedAt)
}

func TestAddChunkRecords_DuplicateKey(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	err := repo.AddChunkRecords(ctx, makeRecord(1, 0, "original", []float32{1, 0, 0}))
	require.NoError(t, err)

	err = repo.AddChunkRecords(ctx, makeRecord(1, 0, "duplicate", []float32{0, 1, 0}))
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestAddChunkRecords_AtomicOnDuplicate(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	err := repo.AddChunkRecords(ctx, makeRecord(1, 1, "already there", []float32{1, 0, 0}))
	require.NoError(t, err)

	// Batch with a duplicate in the middle must not persist anything.
	err = repo.AddChunkRecords(ctx,
		makeRecord(1, 0, "new", []float32{1, 0, 0}),
		makeRecord(1, 1, "collides", []float32{0, 1, 0}),
		makeRecord(1, 2, "new", []float32{0, 0, 1}),
	)
	require.ErrorIs(t, err, storage.ErrDuplicateKey)

	records, err := repo.GetChunkRecords(ctx, 1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "already there", records[0].Chunk.Content)
}

func TestAddChunkRecords_RejectsInvalid(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	// Missing document owner.
	err := repo.AddChunkRecords(ctx, makeRecord(0, 0, "orphan", []float32{1}))
	assert.ErrorIs(t, err, core.ErrMissingOwner)
}

func TestGetChunkRecords_OrderedByIndex(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	// Insert out of order; keys encode the index, so reads come back sorted.
	err := repo.AddChunkRecords(ctx,
		makeRecord(7, 2, "third", []float32{1}),
		makeRecord(7, 0, "first", []float32{1}),
		makeRecord(7, 1, "second", []float32{1}),
	)
	require.NoError(t, err)

	records, err := repo.GetChunkRecords(ctx, 7)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, 0, records[0].Chunk.Index)
	assert.Equal(t, 1, records[1].Chunk.Index)
	assert.Equal(t, 2, records[2].Chunk.Index)
}

func TestGetChunkRecords_ScopedToDocument(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	err := repo.AddChunkRecords(ctx,
		makeRecord(1, 0, "doc one", []float32{1}),
		makeRecord(2, 0, "doc two", []float32{1}),
	)
	require.NoError(t, err)

	records, err := repo.GetChunkRecords(ctx, 1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, core.ID(1), records[0].DocumentId)
}

func TestHasChunksForDocument(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	has, err := repo.HasChunksForDocument(ctx, 5)
	require.NoError(t, err)
	assert.False(t, has)

	err = repo.AddChunkRecords(ctx, makeRecord(5, 0, "content", []float32{1}))
	require.NoError(t, err)

	has, err = repo.HasChunksForDocument(ctx, 5)
	require.NoError(t, err)
	assert.True(t, has)

	// A neighboring document stays untouched.
	has, err = repo.HasChunksForDocument(ctx, 6)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestDeleteChunksForDocument(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	err := repo.AddChunkRecords(ctx,
		makeRecord(3, 0, "a", []float32{1}),
		makeRecord(3, 1, "b", []float32{1}),
		makeRecord(4, 0, "other doc", []float32{1}),
	)
	require.NoError(t, err)

	deleted, err := repo.DeleteChunksForDocument(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	has, err := repo.HasChunksForDocument(ctx, 3)
	require.NoError(t, err)
	assert.False(t, has)

	// Other document survives.
	has, err = repo.HasChunksForDocument(ctx, 4)
	require.NoError(t, err)
	assert.True(t, has)
}

func TestDeleteChunksForDocument_NoRows(t *testing.T) {
	repo := newTestRepo(t)

	deleted, err := repo.DeleteChunksForDocument(context.Background(), 99)
	require.NoError(t, err)
	assert.Equal(t, 0, deleted)
}

func TestCountChunks(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	count, err := repo.CountChunks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	require.NoError(t, repo.AddChunkRecords(ctx,
		makeRecord(1, 0, "doc one a", []float32{1, 0, 0}),
		makeRecord(1, 1, "doc one b", []float32{0, 1, 0}),
		makeRecord(2, 0, "doc two a", []float32{0, 0, 1}),
	))

	count, err = repo.CountChunks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	_, err = repo.DeleteChunksForDocument(ctx, 1)
	require.NoError(t, err)

	count, err = repo.CountChunks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestNearestNeighbors_Empty(t *testing.T) {
	repo := newTestRepo(t)

	results, err := repo.NearestNeighbors(context.Background(), []float32{1, 0, 0}, 0.5, 10, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestNearestNeighbors_SortedAndLimited(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	err := repo.AddChunkRecords(ctx,
		makeRecord(1, 0, "exact", []float32{1, 0, 0}),
		makeRecord(1, 1, "close", []float32{0.9, 0.435889894, 0}),
		makeRecord(1, 2, "orthogonal", []float32{0, 0, 1}),
	)
	require.NoError(t, err)

	results, err := repo.NearestNeighbors(ctx, []float32{1, 0, 0}, 0.5, 10, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "exact", results[0].Record.Chunk.Content)
	assert.Equal(t, "close", results[1].Record.Chunk.Content)
	assert.Greater(t, results[0].Score, results[1].Score)

	limited, err := repo.NearestNeighbors(ctx, []float32{1, 0, 0}, 0.5, 1, nil)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "exact", limited[0].Record.Chunk.Content)
}

func TestNearestNeighbors_ThresholdIsExclusive(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	err := repo.AddChunkRecords(ctx, makeRecord(1, 0, "borderline", []float32{1, 0, 0}))
	require.NoError(t, err)

	// Similarity equals the threshold exactly; the row must not match.
	results, err := repo.NearestNeighbors(ctx, []float32{1, 0, 0}, 1.0, 10, nil)
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = repo.NearestNeighbors(ctx, []float32{1, 0, 0}, 0.999, 10, nil)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestNearestNeighbors_SkipsRowsWithoutVectors(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	err := repo.AddChunkRecords(ctx,
		makeRecord(1, 0, "has vector", []float32{1, 0, 0}),
		makeRecord(1, 1, "no vector", nil),
	)
	require.NoError(t, err)

	results, err := repo.NearestNeighbors(ctx, []float32{1, 0, 0}, 0.5, 10, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "has vector", results[0].Record.Chunk.Content)
}

func TestNearestNeighbors_DocumentScope(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	err := repo.AddChunkRecords(ctx,
		makeRecord(1, 0, "in scope", []float32{1, 0, 0}),
		makeRecord(2, 0, "out of scope", []float32{1, 0, 0}),
	)
	require.NoError(t, err)

	filter := &storage.SearchFilter{DocumentId: 1}
	results, err := repo.NearestNeighbors(ctx, []float32{1, 0, 0}, 0.5, 10, filter)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, core.ID(1), results[0].Record.DocumentId)
}

func TestNearestNeighbors_MetadataFilter(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	tagged := makeRecord(1, 0, "tagged", []float32{1, 0, 0})
	tagged.Metadata = map[string]string{"essay": "attention", "lang": "en"}
	plain := makeRecord(1, 1, "plain", []float32{1, 0, 0})

	err := repo.AddChunkRecords(ctx, tagged, plain)
	require.NoError(t, err)

	filter := &storage.SearchFilter{Metadata: map[string]string{"essay": "attention"}}
	results, err := repo.NearestNeighbors(ctx, []float32{1, 0, 0}, 0.5, 10, filter)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "tagged", results[0].Record.Chunk.Content)

	// All required pairs must be present.
	filter = &storage.SearchFilter{Metadata: map[string]string{"essay": "attention", "lang": "de"}}
	results, err = repo.NearestNeighbors(ctx, []float32{1, 0, 0}, 0.5, 10, filter)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestOpenBackend_FileSystem(t *testing.T) {
	tmpDir := t.TempDir()
	backend, err := OpenBackend(tmpDir, false)
	require.NoError(t, err)
	require.NotNil(t, backend)
	defer backend.Close()

	assert.False(t, backend.IsClosed())
}

func TestBackendClose(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)

	assert.False(t, backend.IsClosed())
	require.NoError(t, backend.Close())
	assert.True(t, backend.IsClosed())
}
