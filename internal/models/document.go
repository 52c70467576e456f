// Package models defines core data structures for documents, chunks, and
// retrieval results.
package models

import "time"

// Document represents one piece of literature registered in the library.
// ID is derived from the content hash, so the same bytes always map to the
// same document regardless of file name.
type Document struct {
	ID          string    `json:"id" db:"id"`
	ContentHash string    `json:"content_hash" db:"content_hash"`
	SourcePath  string    `json:"source_path" db:"source_path"`
	Title       string    `json:"title" db:"title"`
	Format      string    `json:"format" db:"format"`
	Content     string    `json:"content,omitempty" db:"content"`
	IngestedAt  time.Time `json:"ingested_at" db:"ingested_at"`
	ChunkCount  int       `json:"chunk_count,omitempty" db:"-"`
}

// Chunk is a contiguous span of a document's text, embedded and indexed as a
// retrieval unit. Ordinal is the zero-based position within the document.
type Chunk struct {
	ID         string    `json:"id" db:"id"`
	DocumentID string    `json:"document_id" db:"document_id"`
	Ordinal    int       `json:"ordinal" db:"ordinal"`
	Content    string    `json:"content" db:"content"`
	Embedding  []float32 `json:"-" db:"-"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// DocumentInput is an inline document submitted through the API, without a
// backing file on disk.
type DocumentInput struct {
	Title   string `json:"title,omitempty"`
	Content string `json:"content"`
}
