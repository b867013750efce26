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


package chunker

import (
	"iter"
	"strings"
	"unicode/utf8"

	"github.com/scriptorium/archivist/core"
)

const (
	// DefaultTargetTokens is the default chunk size in estimated tokens.
	DefaultTargetTokens = 512

	// DefaultOverlapRatio is the default overlap between consecutive chunks
	// as a fraction of the character budget.
	DefaultOverlapRatio = 0.15

	// charsPerToken approximates the character budget from the token target.
	charsPerToken = 4

	// minBoundaryFraction is how far into the budget a split candidate must
	// lie to be accepted. Prevents degenerate tiny chunks.
	minBoundaryFraction = 0.8

	// headingLookahead is how far into a chunk a markdown heading may appear
	// and still be attached as that chunk's heading context.
	headingLookahead = 160
)

// boundarySeparators, in priority order: paragraph break, line break,
// sentence end, comma, space. The first class with a match in the search
// window wins; within a class the last occurrence wins.
var boundarySeparators = []string{"\n\n", "\n", ". ", "! ", "? ", ", ", " "}

// Params controls chunk sizing. The zero value means defaults.
type Params struct {
	// TargetTokens is the desired chunk size in estimated tokens.
	TargetTokens int

	// OverlapRatio is the fraction of the character budget repeated at the
	// start of the next chunk. Zero means DefaultOverlapRatio; a negative
	// value disables overlap entirely.
	OverlapRatio float64
}

// withDefaults fills zero fields with package defaults.
func (p Params) withDefaults() Params {
	if p.TargetTokens <= 0 {
		p.TargetTokens = DefaultTargetTokens
	}
	if p.OverlapRatio == 0 {
		p.OverlapRatio = DefaultOverlapRatio
	} else if p.OverlapRatio < 0 {
		p.OverlapRatio = 0
	}
	return p
}

// budget returns the character budget for one chunk.
func (p Params) budget() int {
	return p.TargetTokens * charsPerToken
}

// Split chunks text into overlapping, bounded chunks. It materializes the
// full sequence; use Stream for large documents.
//
// Splitting is deterministic: the same text and parameters always produce
// identical boundaries. An empty document yields zero chunks; a document
// within the character budget yields exactly one.
func Split(text string, params Params) []core.Chunk {
	var chunks []core.Chunk
	for chunk := range Stream(text, params) {
		chunks = append(chunks, chunk)
	}
	return chunks
}

// Stream lazily yields chunks one at a time without materializing the whole
// sequence, bounding memory for arbitrarily large documents.
func Stream(text string, params Params) iter.Seq[core.Chunk] {
	params = params.withDefaults()

	return func(yield func(core.Chunk) bool) {
		if len(strings.TrimSpace(text)) == 0 {
			return
		}

		budget := params.budget()
		overlap := int(float64(budget) * params.OverlapRatio)

		pos := 0
		index := 0
		heading := ""

		for pos < len(text) {
			remaining := len(text) - pos

			var end int
			if remaining <= budget {
				end = len(text)
			} else {
				end = findBoundary(text, pos, budget)
			}

			content := text[pos:end]
			chunk := buildChunk(content, index, pos, end, chunkHeading(heading, content))
			if !yield(chunk) {
				return
			}
			index++
			heading = lastHeading(content, heading)

			if end == len(text) {
				return
			}

			// Rewind by the overlap, but always make forward progress so
			// the walk terminates even when overlap >= remaining budget.
			next := end - overlap
			for next > pos && !utf8.RuneStart(text[next]) {
				next--
			}
			if next <= pos {
				next = end
			}
			pos = next
		}
	}
}

// findBoundary picks the split point for the window starting at pos.
// It searches backward from the tentative boundary for the best separator,
// accepting only candidates at or after minBoundaryFraction of the budget.
// Falls back to a hard cut at the budget (aligned to a rune start).
func findBoundary(text string, pos, budget int) int {
	end := pos + budget
	minEnd := pos + int(float64(budget)*minBoundaryFraction)
	window := text[minEnd:end]

	for _, sep := range boundarySeparators {
		if i := strings.LastIndex(window, sep); i >= 0 {
			return minEnd + i + len(sep)
		}
	}

	// Hard cut: never split a multi-byte rune.
	for end > minEnd && !utf8.RuneStart(text[end]) {
		end--
	}
	return end
}

// chunkHeading resolves the heading context for a chunk: the most recent
// heading from preceding text, unless a heading appears within the lookahead
// window at the start of the chunk itself.
func chunkHeading(preceding, content string) string {
	window := content
	if len(window) > headingLookahead {
		window = window[:headingLookahead]
	}
	if h := firstHeading(window); h != "" {
		return h
	}
	return preceding
}
