package search

import "github.com/scriptorium/archivist/core"

// Monitor provides hooks to observe the retrieval process.
// Implement this interface to track intermediate steps during a search.
type Monitor interface {
	Start(query string)
	AfterNormalization(normalized string, terms []string)
	AfterEmbedding(dimension int)
	AfterVectorSearch(matches []*core.ScoredChunk)
	AfterRerank(results []*core.ScoredChunk)
	Finish(results []*core.ScoredChunk)
}

// noopMonitor is a no-op implementation of Monitor
type noopMonitor struct{}

var _ Monitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string)                          {}
func (n *noopMonitor) AfterNormalization(_ string, _ []string) {}
func (n *noopMonitor) AfterEmbedding(_ int)                    {}
func (n *noopMonitor) AfterVectorSearch(_ []*core.ScoredChunk) {}
func (n *noopMonitor) AfterRerank(_ []*core.ScoredChunk)       {}
func (n *noopMonitor) Finish(_ []*core.ScoredChunk)            {}
