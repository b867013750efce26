// Package backfill turns the archived document corpus into searchable
// vector data: each document is chunked, embedded in batches, and
// persisted to the chunk store.
//
// This package supports bounded cross-document concurrency, skip-existing
// runs, progress and failure callbacks, retry logic with exponential
// backoff, and vector normalization to ensure compatibility with cosine
// similarity search.
package backfill
