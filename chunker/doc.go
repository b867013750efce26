// Package chunker splits document text into overlapping, bounded chunks for
// embedding. It is pure: no I/O, and the same input and parameters always
// produce identical boundaries.
//
// The character budget derives from the target token size at roughly four
// characters per token. Boundaries snap backward to the best split among
// paragraph breaks, line breaks, sentence ends, commas, and spaces, accepted
// only past 80% of the budget. Consecutive chunks overlap by a configurable
// ratio, with forward progress guaranteed so the walk always terminates.
package chunker
