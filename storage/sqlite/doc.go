// Package sqlite provides the SQLite-backed article archive.
//
// Articles collected during essay research are archived in a single
// SQLite database. The package exposes them as a storage.DocumentSource
// for the indexing pipeline and offers StoreArticle for the archiving
// path. It uses the pure-Go modernc.org/sqlite driver, so no cgo is
// required.
package sqlite
