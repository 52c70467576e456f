// Package docid derives deterministic document and chunk identifiers from
// document content.
package docid

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

const prefix = "doc:"

// ContentHash returns the hex-encoded SHA-256 of the raw document bytes.
// Byte-identical files always hash the same, whatever their file name.
func ContentHash(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// DocID returns the document ID for a content hash.
func DocID(contentHash string) string {
	return prefix + contentHash
}

// FromBytes returns the content hash and document ID for raw document bytes.
func FromBytes(data []byte) (hash, id string) {
	hash = ContentHash(data)
	return hash, DocID(hash)
}

// ChunkID returns the ID of the chunk at the given zero-based ordinal.
// Re-chunking the same document reproduces the same IDs, which is what makes
// duplicate detection in the vector index work. Zero-padding keeps lexical
// order equal to ordinal order for documents under 10000 chunks.
func ChunkID(docID string, ordinal int) string {
	return fmt.Sprintf("%s:%04d", docID, ordinal)
}
