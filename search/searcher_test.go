package search

import (
	"context"
	"errors"
	"testing"

	"github.com/scriptorium/archivist/ai/mock"
	"github.com/scriptorium/archivist/core"
	"github.com/scriptorium/archivist/storage"
	"github.com/scriptorium/archivist/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) storage.ChunkRepository {
	t.Helper()
	repo, err := badger.NewMemoryChunkRepository()
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

// queryEmbedder returns a fixed vector for every query.
func queryEmbedder(vector []float32) *mock.Embedder {
	e := mock.NewEmbedder()
	e.EmbedQueryFunc = func(ctx context.Context, text string) ([]float32, error) {
		return vector, nil
	}
	return e
}

func storeChunk(t *testing.T, repo storage.ChunkRepository, docID core.ID, index int, content string, vector []float32) {
	t.Helper()
	err := repo.AddChunkRecords(context.Background(), &core.ChunkRecord{
		DocumentId: docID,
		Chunk: core.Chunk{
			Content:     content,
			Index:       index,
			TokenCount:  len(content) / 4,
			StartOffset: index * 100,
			EndOffset:   index*100 + len(content),
		},
		Vector: vector,
	})
	require.NoError(t, err)
}

func threshold(v float32) *float32 { return &v }

func TestNewSearcher_RequiresDependencies(t *testing.T) {
	repo := newTestRepo(t)

	_, err := NewSearcher(nil, mock.NewEmbedder())
	assert.ErrorIs(t, err, ErrChunkRepositoryRequired)

	_, err = NewSearcher(repo, nil)
	assert.ErrorIs(t, err, ErrEmbedderRequired)
}

func TestSearch_OrderedAboveThreshold(t *testing.T) {
	repo := newTestRepo(t)
	storeChunk(t, repo, 1, 0, "exact match", []float32{1, 0, 0})
	storeChunk(t, repo, 1, 1, "close match", []float32{0.9, 0.435889894, 0})
	storeChunk(t, repo, 1, 2, "unrelated", []float32{0, 1, 0})

	s, err := NewSearcher(repo, queryEmbedder([]float32{1, 0, 0}))
	require.NoError(t, err)

	results, err := s.Search(context.Background(), "transformer attention", nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "exact match", results[0].Record.Chunk.Content)
	assert.Equal(t, "close match", results[1].Record.Chunk.Content)
	for _, r := range results {
		assert.Greater(t, r.Score, DefaultThreshold)
	}
}

func TestSearch_ThresholdIsStrictlyGreater(t *testing.T) {
	repo := newTestRepo(t)
	storeChunk(t, repo, 1, 0, "borderline", []float32{1, 0, 0})

	s, err := NewSearcher(repo, queryEmbedder([]float32{1, 0, 0}))
	require.NoError(t, err)

	// Similarity is exactly 1.0; a threshold of 1.0 must exclude it.
	results, err := s.Search(context.Background(), "query", &Options{Threshold: threshold(1.0)})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearch_LimitCapsResults(t *testing.T) {
	repo := newTestRepo(t)
	for i := 0; i < 5; i++ {
		storeChunk(t, repo, 1, i, "chunk", []float32{1, 0, 0})
	}

	s, err := NewSearcher(repo, queryEmbedder([]float32{1, 0, 0}))
	require.NoError(t, err)

	results, err := s.Search(context.Background(), "query", &Options{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestSearch_ScopeRestrictsToDocument(t *testing.T) {
	repo := newTestRepo(t)
	storeChunk(t, repo, 1, 0, "in scope", []float32{1, 0, 0})
	storeChunk(t, repo, 2, 0, "out of scope", []float32{1, 0, 0})

	s, err := NewSearcher(repo, queryEmbedder([]float32{1, 0, 0}))
	require.NoError(t, err)

	results, err := s.Search(context.Background(), "query", &Options{ScopeId: 1})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, core.ID(1), results[0].Record.DocumentId)
}

func TestSearch_MetadataFilter(t *testing.T) {
	repo := newTestRepo(t)

	tagged := &core.ChunkRecord{
		DocumentId: 1,
		Chunk:      core.Chunk{Content: "tagged", Index: 0, StartOffset: 0, EndOffset: 6},
		Vector:     []float32{1, 0, 0},
		Metadata:   map[string]string{"essay_slug": "attention"},
	}
	require.NoError(t, repo.AddChunkRecords(context.Background(), tagged))
	storeChunk(t, repo, 2, 0, "untagged", []float32{1, 0, 0})

	s, err := NewSearcher(repo, queryEmbedder([]float32{1, 0, 0}))
	require.NoError(t, err)

	results, err := s.Search(context.Background(), "query",
		&Options{MetadataFilter: map[string]string{"essay_slug": "attention"}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "tagged", results[0].Record.Chunk.Content)
}

func TestSearch_RerankBreaksNearTie(t *testing.T) {
	repo := newTestRepo(t)
	// Two nearly identical similarities; only one contains a query term.
	storeChunk(t, repo, 1, 0, "an essay about gardening", []float32{0.999, 0.0447101778, 0})
	storeChunk(t, repo, 1, 1, "the transformer architecture", []float32{1, 0, 0})

	s, err := NewSearcher(repo, queryEmbedder([]float32{0.9999, 0.0141417822, 0}))
	require.NoError(t, err)

	// Without reranking the gardening chunk can edge ahead on cosine
	// similarity alone; the lexical boost flips the order.
	results, err := s.Search(context.Background(), "transformer", &Options{Rerank: true})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "the transformer architecture", results[0].Record.Chunk.Content)
}

func TestSearch_RerankBoostCannotOverrideStrongMismatch(t *testing.T) {
	repo := newTestRepo(t)
	storeChunk(t, repo, 1, 0, "nothing lexical here", []float32{1, 0, 0})
	storeChunk(t, repo, 1, 1, "transformer transformer", []float32{0.75, 0.661437828, 0})

	s, err := NewSearcher(repo, queryEmbedder([]float32{1, 0, 0}))
	require.NoError(t, err)

	results, err := s.Search(context.Background(), "transformer", &Options{Rerank: true})
	require.NoError(t, err)
	require.Len(t, results, 2)
	// 0.75 + 0.05 boost stays well under 1.0.
	assert.Equal(t, "nothing lexical here", results[0].Record.Chunk.Content)
}

func TestSearch_EmptyQuery(t *testing.T) {
	repo := newTestRepo(t)
	s, err := NewSearcher(repo, mock.NewEmbedder())
	require.NoError(t, err)

	_, err = s.Search(context.Background(), "  ?! ", nil)
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestSearch_EmbedderErrorIsRaised(t *testing.T) {
	repo := newTestRepo(t)
	embedder := mock.NewEmbedder()
	embedder.EmbedQueryFunc = func(ctx context.Context, text string) ([]float32, error) {
		return nil, errors.New("provider down")
	}

	s, err := NewSearcher(repo, embedder)
	require.NoError(t, err)

	_, err = s.Search(context.Background(), "query", nil)
	assert.ErrorContains(t, err, "provider down")
}

// recordingMonitor captures stage callbacks.
type recordingMonitor struct {
	stages []string
}

var _ Monitor = (*recordingMonitor)(nil)

func (m *recordingMonitor) Start(_ string) { m.stages = append(m.stages, "start") }

func (m *recordingMonitor) AfterNormalization(_ string, _ []string) {
	m.stages = append(m.stages, "normalize")
}

func (m *recordingMonitor) AfterEmbedding(_ int) { m.stages = append(m.stages, "embed") }

func (m *recordingMonitor) AfterVectorSearch(_ []*core.ScoredChunk) {
	m.stages = append(m.stages, "vector")
}

func (m *recordingMonitor) AfterRerank(_ []*core.ScoredChunk) { m.stages = append(m.stages, "rerank") }

func (m *recordingMonitor) Finish(_ []*core.ScoredChunk) { m.stages = append(m.stages, "finish") }

func TestSearchWithMonitor_Stages(t *testing.T) {
	repo := newTestRepo(t)
	storeChunk(t, repo, 1, 0, "content", []float32{1, 0, 0})

	s, err := NewSearcher(repo, queryEmbedder([]float32{1, 0, 0}))
	require.NoError(t, err)

	monitor := &recordingMonitor{}
	_, err = s.SearchWithMonitor(context.Background(), "query", &Options{Rerank: true}, monitor)
	require.NoError(t, err)
	assert.Equal(t, []string{"start", "normalize", "embed", "vector", "rerank", "finish"}, monitor.stages)
}
