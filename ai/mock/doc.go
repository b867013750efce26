// Package mock provides test doubles for the ai package interfaces.
//
// The mock Embedder produces deterministic, normalized vectors derived from
// an FNV hash of the input text, so tests get stable similarity orderings
// without any external service. Behavior can be overridden per test via the
// exported function fields.
package mock
