package chunker

import (
	"regexp"
	"strings"

	"github.com/scriptorium/archivist/core"
)

var (
	headingRe    = regexp.MustCompile(`(?m)^#{1,6}[ \t]+(.+)$`)
	codeRe       = regexp.MustCompile("(?m)^(```|~~~|\\t|    \\S)")
	blockquoteRe = regexp.MustCompile(`(?m)^[ \t]*>`)
	listRe       = regexp.MustCompile(`(?m)^[ \t]*([-*+]|\d+\.)[ \t]`)
	citationRe   = regexp.MustCompile(`\[\d+\]|\([A-Z][A-Za-z.\- ]+,? \d{4}\)`)
	paragraphRe  = regexp.MustCompile(`\n[ \t]*\n`)
)

// buildChunk assembles a chunk with its token estimate and structural flags.
func buildChunk(content string, index, start, end int, heading string) core.Chunk {
	return core.Chunk{
		Content:       content,
		Index:         index,
		TokenCount:    estimateTokens(content),
		StartOffset:   start,
		EndOffset:     end,
		Heading:       heading,
		HasCode:       codeRe.MatchString(content),
		HasBlockquote: blockquoteRe.MatchString(content),
		HasList:       listRe.MatchString(content),
		HasCitation:   citationRe.MatchString(content),
		Paragraphs:    countParagraphs(content),
	}
}

// estimateTokens approximates the token count at ~4 characters per token,
// rounding up so no non-empty chunk reports zero tokens.
func estimateTokens(content string) int {
	return (len(content) + charsPerToken - 1) / charsPerToken
}

// countParagraphs counts non-empty blocks separated by blank lines.
func countParagraphs(content string) int {
	count := 0
	for _, block := range paragraphRe.Split(content, -1) {
		if strings.TrimSpace(block) != "" {
			count++
		}
	}
	return count
}

// firstHeading returns the title of the first markdown heading in text,
// or "" when none is present.
func firstHeading(text string) string {
	if m := headingRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

// lastHeading returns the title of the last markdown heading in text,
// falling back to the current heading when none is present.
func lastHeading(text, current string) string {
	matches := headingRe.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return current
	}
	return strings.TrimSpace(matches[len(matches)-1][1])
}
