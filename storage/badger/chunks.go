package badger

import (
	"context"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/scriptorium/archivist/core"
	"github.com/scriptorium/archivist/storage"
)

// ChunkRepository implements storage.ChunkRepository for BadgerDB.
type ChunkRepository struct {
	backend *Backend
}

var _ storage.ChunkRepository = (*ChunkRepository)(nil)

// NewChunkRepository creates a ChunkRepository on top of an open backend.
// Closing the repository closes the backend.
func NewChunkRepository(backend *Backend) (storage.ChunkRepository, error) {
	return &ChunkRepository{backend: backend}, nil
}

// Close closes the underlying backend.
func (r *ChunkRepository) Close() error {
	return r.backend.Close()
}

// NearestNeighbors delegates to the backend.
func (r *ChunkRepository) NearestNeighbors(ctx context.Context, vector []float32, minSimilarity float32, limit int, filter *storage.SearchFilter) ([]*core.ScoredChunk, error) {
	return r.backend.NearestNeighbors(ctx, vector, minSimilarity, limit, filter)
}

// AddChunkRecords inserts a batch of chunk records in one transaction.
// Either every record lands or none do. Returns storage.ErrDuplicateKey
// if a row already exists for any (DocumentId, Index) pair.
func (r *ChunkRepository) AddChunkRecords(ctx context.Context, records ...*core.ChunkRecord) error {
	if len(records) == 0 {
		return nil
	}

	return r.backend.WithTx(func(tx *badger.Txn) error {
		now := time.Now().UTC()
		for _, record := range records {
			if err := core.ValidateChunkRecord(record); err != nil {
				return err
			}

			key := makeChunkKey(record.DocumentId, record.Chunk.Index)
			if _, err := tx.Get(key); err == nil {
				return storage.ErrDuplicateKey
			} else if err != badger.ErrKeyNotFound {
				return err
			}

			record.InsertedAt = now
			record.UpdatedAt = now

			value := storage.MarshalChunkRecord(record)
			if err := tx.Set(key, value); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}

// DeleteChunksForDocument removes every chunk row for a document and
// returns the number removed. Documents with no rows delete zero rows
// without error.
func (r *ChunkRepository) DeleteChunksForDocument(ctx context.Context, docID core.ID) (int, error) {
	var deleted int
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeDocumentPrefix(docID)
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)

		var keys [][]byte
		for iter.Rewind(); iter.Valid(); iter.Next() {
			keys = append(keys, iter.Item().KeyCopy(nil))
		}
		iter.Close()

		for _, key := range keys {
			if err := tx.Delete(key); err != nil {
				return err
			}
		}
		deleted = len(keys)
		return tx.Commit()
	}, true)

	if err != nil {
		return 0, err
	}
	return deleted, nil
}

// HasChunksForDocument reports whether any chunk row exists for the
// document without loading row contents.
func (r *ChunkRepository) HasChunksForDocument(ctx context.Context, docID core.ID) (bool, error) {
	var found bool
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeDocumentPrefix(docID)
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		iter.Rewind()
		found = iter.Valid()
		return nil
	}, false)
	return found, err
}

// CountChunks returns the total number of chunk rows across all documents.
func (r *ChunkRepository) CountChunks(ctx context.Context) (int, error) {
	var count int
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(chunkRecordPrefix + ":")
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			count++
		}
		return nil
	}, false)
	return count, err
}

// GetChunkRecords retrieves all chunk rows for a document. Keys encode the
// chunk index in BigEndian order, so iteration order is index order.
func (r *ChunkRepository) GetChunkRecords(ctx context.Context, docID core.ID) ([]*core.ChunkRecord, error) {
	var results []*core.ChunkRecord
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeDocumentPrefix(docID)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			var record *core.ChunkRecord
			err := iter.Item().Value(func(val []byte) error {
				var err error
				record, err = storage.UnmarshalChunkRecord(val)
				return err
			})
			if err != nil {
				return err
			}
			if record != nil {
				results = append(results, record)
			}
		}
		return nil
	}, false)

	return results, err
}
