// Package library persists the literature registry: which documents are
// known, their content hashes, and their chunk texts. The registry is the
// source of truth; the vector index can always be rebuilt from it.
package library

import (
	"context"
	"errors"

	"github.com/hyperjump/bunken/internal/models"
)

// ErrNotFound is returned when a document or chunk does not exist.
// Match with errors.Is.
var ErrNotFound = errors.New("not found")

// Store defines document and chunk persistence operations.
type Store interface {
	// RegisterDocument inserts a document and its chunks in one transaction.
	RegisterDocument(ctx context.Context, doc *models.Document, chunks []*models.Chunk) error

	// Document lookups
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	GetDocumentByHash(ctx context.Context, contentHash string) (*models.Document, error)
	GetDocumentBySourcePath(ctx context.Context, sourcePath string) (*models.Document, error)
	ListDocuments(ctx context.Context, offset, limit int) ([]*models.Document, error)

	// DeleteDocument removes a document and all its chunks in one transaction.
	DeleteDocument(ctx context.Context, id string) error

	// Chunk lookups
	GetChunk(ctx context.Context, id string) (*models.Chunk, error)
	GetChunksByDocumentID(ctx context.Context, documentID string) ([]*models.Chunk, error)
	AllChunkIDs(ctx context.Context) ([]string, error)

	// Meta is a small key/value table for registry state such as the last
	// ingestion timestamp.
	GetMeta(ctx context.Context, key string) (string, error)
	SetMeta(ctx context.Context, key, value string) error

	// Stats
	CountDocuments(ctx context.Context) (int64, error)
	CountChunks(ctx context.Context) (int64, error)

	// Clear removes every document, chunk, and meta entry.
	Clear(ctx context.Context) error

	Close() error
}

// MetaLastBuildTime is the meta key holding the RFC 3339 time of the last
// successful ingestion.
const MetaLastBuildTime = "last_build_time"
