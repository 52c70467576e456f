// Package keyword provides the Bleve-backed keyword index used when the
// embedding endpoint is unavailable. It indexes chunk text so degraded
// retrieval returns the same chunk IDs the vector index would.
package keyword

import (
	"context"

	"github.com/hyperjump/bunken/internal/models"
)

// KeywordIndex defines keyword search over chunks.
type KeywordIndex interface {
	// IndexChunks indexes all chunks of one document in a single batch.
	IndexChunks(ctx context.Context, doc *models.Document, chunks []*models.Chunk) error
	// Search runs a match query and returns up to limit chunk hits.
	Search(ctx context.Context, query string, limit int) ([]*KeywordResult, error)
	// DeleteChunks removes the given chunk IDs from the index.
	DeleteChunks(ctx context.Context, ids []string) error
	// DocCount returns the number of indexed chunks.
	DocCount() (uint64, error)
	Close() error
}

// KeywordResult is a single keyword search hit. ID is a chunk ID.
type KeywordResult struct {
	ID    string
	Score float64
}
