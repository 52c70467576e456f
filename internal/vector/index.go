// Package vector provides a persistent flat vector index over chunk embeddings.
package vector

import (
	"context"
	"errors"
)

// Sentinel errors for index operations. Match with errors.Is.
var (
	// ErrDuplicateChunk is returned by Insert when the chunk ID is already
	// present. Batch ingestion treats it as "already done" and moves on.
	ErrDuplicateChunk = errors.New("chunk already indexed")

	// ErrDimensionMismatch is returned when a vector's dimension does not
	// match the index, or when a persisted file was built with different
	// dimensions or a different embedding model.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrIndexCorrupt is returned when a persisted index file cannot be
	// decoded. The document store remains authoritative; rebuilding the
	// index from it recovers.
	ErrIndexCorrupt = errors.New("index file corrupt")
)

// Entry is one indexed chunk: identity, display payload, and embedding.
// The payload travels with the vector so query results can be shown without
// a store lookup.
type Entry struct {
	ChunkID    string
	DocumentID string
	Ordinal    int
	Content    string
	Title      string
	SourcePath string
	Vector     []float32
}

// Result is a single query hit. Score is cosine similarity in [-1, 1].
type Result struct {
	ChunkID    string
	DocumentID string
	Ordinal    int
	Content    string
	Title      string
	SourcePath string
	Score      float64
}

// Index stores chunk embeddings and serves top-k cosine similarity queries.
// Implementations must keep insertion order as the tie-break for equal
// scores and must reject vectors of the wrong dimension.
type Index interface {
	Insert(ctx context.Context, entry *Entry) error
	InsertBatch(ctx context.Context, entries []*Entry) (int, error)
	Query(ctx context.Context, query []float32, k int) ([]*Result, error)
	RemoveDocument(ctx context.Context, documentID string) (int, error)
	Contains(chunkID string) bool
	ChunkIDs() []string
	// Clear removes every entry, leaving dimensions and model unchanged.
	Clear()
	Size() int
	Dimensions() int
	ModelID() string
	Save(path string) error
	Load(path string) error
	Close() error
}
