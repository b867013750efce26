package badger

import (
	"encoding/binary"

	"github.com/scriptorium/archivist/core"
)

// Key prefixes for different data types
const (
	chunkRecordPrefix = "chkrec"
)

// makeChunkKey generates a composite key for a chunk record.
// Format: prefix:documentID:index
// Both numeric parts are written in BigEndian order so that iterating
// the prefix yields chunks grouped by document and ordered by index.
func makeChunkKey(docID core.ID, index int) []byte {
	prefix := chunkRecordPrefix + ":"
	prefixBytes := []byte(prefix)
	prefixSize := len(prefixBytes)
	totalSize := prefixSize + 12 // 8 bytes for documentID + 4 bytes for index
	buf := make([]byte, totalSize)
	offset := copy(buf, prefixBytes)
	binary.BigEndian.PutUint64(buf[offset:], uint64(docID))
	offset += 8
	binary.BigEndian.PutUint32(buf[offset:], uint32(index))
	return buf
}

// makeDocumentPrefix generates the key prefix covering every chunk of a document.
// Format: prefix:documentID
func makeDocumentPrefix(docID core.ID) []byte {
	prefix := chunkRecordPrefix + ":"
	prefixBytes := []byte(prefix)
	prefixSize := len(prefixBytes)
	totalSize := prefixSize + 8 // 8 bytes for documentID
	buf := make([]byte, totalSize)
	offset := copy(buf, prefixBytes)
	binary.BigEndian.PutUint64(buf[offset:], uint64(docID))
	return buf
}
