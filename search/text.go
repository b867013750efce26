package search

import "strings"

// Stop words dropped from long queries before embedding. The filter is
// deliberately soft: it only applies to queries longer than five tokens,
// and stop words longer than two characters are kept anyway.
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "be": true, "is": true, "are": true,
	"was": true, "to": true, "of": true, "and": true, "in": true, "that": true,
	"have": true, "it": true, "for": true, "not": true, "on": true, "with": true,
	"as": true, "you": true, "do": true, "at": true, "this": true, "but": true,
	"by": true, "from": true,
}

// stopWordFilterMinTokens is the query length above which stop words are dropped.
const stopWordFilterMinTokens = 5

// maxDroppedStopWordLen: stop words longer than this survive the filter.
const maxDroppedStopWordLen = 2

// NormalizeQuery preprocesses a search query: lowercase, strip punctuation
// except hyphen and apostrophe, and for queries longer than five tokens
// drop short stop words. Returns the rebuilt query string.
func NormalizeQuery(query string) string {
	return strings.Join(QueryTerms(query), " ")
}

// QueryTerms returns the normalized tokens of a query, in order.
func QueryTerms(query string) []string {
	words := strings.Fields(strings.ToLower(query))

	terms := make([]string, 0, len(words))
	for _, word := range words {
		cleaned := stripPunctuation(word)
		if cleaned != "" {
			terms = append(terms, cleaned)
		}
	}

	if len(terms) <= stopWordFilterMinTokens {
		return terms
	}

	filtered := make([]string, 0, len(terms))
	for _, term := range terms {
		if stopWords[term] && len(term) <= maxDroppedStopWordLen {
			continue
		}
		filtered = append(filtered, term)
	}
	return filtered
}

// stripPunctuation removes punctuation from a token, keeping hyphens and
// apostrophes so contractions and compound terms stay intact.
func stripPunctuation(word string) string {
	var sb strings.Builder
	for _, r := range word {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '\'':
			sb.WriteRune(r)
		case r > 127:
			// Non-ASCII letters pass through untouched
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// countTermMatches counts how many query terms appear as a literal
// substring of the content. Substring matching, not fuzzy: the lexical
// signal should only break near-ties.
func countTermMatches(content string, terms []string) int {
	lowered := strings.ToLower(content)
	matches := 0
	for _, term := range terms {
		if strings.Contains(lowered, term) {
			matches++
		}
	}
	return matches
}
