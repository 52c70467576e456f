package keyword

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"

	"github.com/hyperjump/bunken/internal/models"
)

// chunkEntry is what Bleve stores per chunk.
type chunkEntry struct {
	Content string `json:"content"`
	Title   string `json:"title"`
}

// BleveIndex implements KeywordIndex using Bleve.
type BleveIndex struct {
	index bleve.Index
}

// NewBleveIndex creates or opens a Bleve index at path.
// An existing index is opened and reused so unchanged documents do not need
// re-indexing. If you change the mapping in code, remove the index directory
// to force a rebuild.
func NewBleveIndex(path string) (*BleveIndex, error) {
	im := bleve.NewIndexMapping()

	chunkMapping := bleve.NewDocumentMapping()
	textFieldMapping := bleve.NewTextFieldMapping()
	// Standard analyzer (lowercase + tokenize, no stemming) so queries like "bayes"
	// match the exact word; the English analyzer stems "Bayesian" -> "bayesi" and
	// "bayes" -> "bay", so they would not match each other.
	textFieldMapping.Analyzer = standard.Name
	chunkMapping.AddFieldMappingsAt("content", textFieldMapping)
	chunkMapping.AddFieldMappingsAt("title", textFieldMapping)
	im.AddDocumentMapping("chunk", chunkMapping)
	im.DefaultType = "chunk"
	im.DefaultMapping = chunkMapping

	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		return &BleveIndex{index: index}, nil
	}

	index, err := bleve.New(path, im)
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

// IndexChunks indexes all chunks of one document in a single Bleve batch.
func (b *BleveIndex) IndexChunks(ctx context.Context, doc *models.Document, chunks []*models.Chunk) error {
	title := normalizeTitle(doc.Title)
	batch := b.index.NewBatch()
	for _, chunk := range chunks {
		if err := batch.Index(chunk.ID, chunkEntry{Content: chunk.Content, Title: title}); err != nil {
			return fmt.Errorf("batch chunk %s: %w", chunk.ID, err)
		}
	}
	return b.index.Batch(batch)
}

// normalizeTitle replaces underscores with spaces so Bleve's standard analyzer
// can match multi-word queries (e.g. "kakenhi proposal") against filenames like
// "kakenhi_proposal_2025.pdf" (the analyzer does not split on underscore).
func normalizeTitle(title string) string {
	return strings.ReplaceAll(title, "_", " ")
}

// Search runs a match query over chunk content and titles.
func (b *BleveIndex) Search(ctx context.Context, query string, limit int) ([]*KeywordResult, error) {
	if limit <= 0 {
		return nil, nil
	}
	search := bleve.NewSearchRequest(bleve.NewMatchQuery(query))
	search.Size = limit
	results, err := b.index.Search(search)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	out := make([]*KeywordResult, len(results.Hits))
	for i, hit := range results.Hits {
		out[i] = &KeywordResult{ID: hit.ID, Score: hit.Score}
	}
	return out, nil
}

// DeleteChunks removes the given chunk IDs in a single batch.
func (b *BleveIndex) DeleteChunks(ctx context.Context, ids []string) error {
	batch := b.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	return b.index.Batch(batch)
}

// DocCount returns the number of indexed chunks.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}

// Close closes the Bleve index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}
