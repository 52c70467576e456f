// Package retrieval serves topic queries against the vector index, falling
// back to keyword search when the embedding backend is unavailable.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/bunken/internal/config"
	"github.com/hyperjump/bunken/internal/embedding"
	"github.com/hyperjump/bunken/internal/keyword"
	"github.com/hyperjump/bunken/internal/library"
	"github.com/hyperjump/bunken/internal/models"
	"github.com/hyperjump/bunken/internal/vector"
)

// Retriever answers retrieval queries. The semantic path embeds the query
// and scans the vector index; when the embedder reports ErrUnavailable and
// the fallback is enabled, a keyword search stands in so callers still get
// citations, marked as degraded.
type Retriever struct {
	store    library.Store
	embedder embedding.Embedder
	index    vector.Index
	keywords keyword.KeywordIndex // optional, may be nil
	config   *config.RetrievalConfig
	logger   *zap.Logger
}

// RetrieverOption configures a Retriever.
type RetrieverOption func(*Retriever)

// WithLogger sets a logger for fallback warnings.
func WithLogger(l *zap.Logger) RetrieverOption {
	return func(r *Retriever) { r.logger = l }
}

// NewRetriever creates a retriever with the given dependencies. keywords may
// be nil, which disables the fallback.
func NewRetriever(
	store library.Store,
	embedder embedding.Embedder,
	index vector.Index,
	keywords keyword.KeywordIndex,
	cfg *config.RetrievalConfig,
	opts ...RetrieverOption,
) *Retriever {
	r := &Retriever{
		store:    store,
		embedder: embedder,
		index:    index,
		keywords: keywords,
		config:   cfg,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Retrieve returns the chunks most similar to the query text, best first.
// A blank query yields an empty response without touching the embedder.
// TopK and MinScore of zero take the configured defaults; a negative TopK
// yields an empty response.
func (r *Retriever) Retrieve(ctx context.Context, query *models.RetrievalQuery) (*models.RetrievalResponse, error) {
	startTime := time.Now()
	response := &models.RetrievalResponse{
		Results: make([]*models.RetrievalResult, 0),
		Query:   query.Query,
	}

	if strings.TrimSpace(query.Query) == "" {
		response.QueryTime = time.Since(startTime).Milliseconds()
		return response, nil
	}
	k := query.TopK
	if k == 0 {
		k = r.config.TopK
	}
	if k <= 0 {
		response.QueryTime = time.Since(startTime).Milliseconds()
		return response, nil
	}
	minScore := query.MinScore
	if minScore == 0 {
		minScore = r.config.MinScore
	}

	if ed, id := r.embedder.Dimensions(), r.index.Dimensions(); ed != id {
		return nil, fmt.Errorf("embedder produces %d-dimensional vectors but the index stores %d: %w",
			ed, id, vector.ErrDimensionMismatch)
	}

	queryVec, err := r.embedder.Embed(ctx, query.Query)
	if err != nil {
		if errors.Is(err, embedding.ErrUnavailable) {
			return r.fallback(ctx, query, k, startTime, err)
		}
		return nil, err
	}

	hits, err := r.index.Query(ctx, queryVec, k)
	if err != nil {
		return nil, err
	}
	for _, hit := range hits {
		if hit.Score < minScore {
			continue
		}
		response.Results = append(response.Results, &models.RetrievalResult{
			ChunkID:    hit.ChunkID,
			DocumentID: hit.DocumentID,
			Ordinal:    hit.Ordinal,
			Content:    hit.Content,
			Score:      hit.Score,
			Title:      hit.Title,
			SourcePath: hit.SourcePath,
		})
	}
	response.Total = len(response.Results)
	response.QueryTime = time.Since(startTime).Milliseconds()
	return response, nil
}

// fallback runs a keyword search in place of the semantic one. Keyword
// scores are relative, so they are normalized by the batch maximum and the
// MinScore threshold is not applied. Any fallback failure propagates the
// original embedding error.
func (r *Retriever) fallback(ctx context.Context, query *models.RetrievalQuery, k int, startTime time.Time, embedErr error) (*models.RetrievalResponse, error) {
	if r.keywords == nil || !r.config.KeywordFallbackOrDefault() {
		return nil, embedErr
	}
	if r.logger != nil {
		r.logger.Warn("embedder unavailable, using keyword retrieval", zap.Error(embedErr))
	}

	hits, err := r.keywords.Search(ctx, query.Query, k)
	if err != nil {
		if r.logger != nil {
			r.logger.Warn("keyword fallback failed", zap.Error(err))
		}
		return nil, embedErr
	}

	scores := normalizeKeywordScores(hits)
	response := &models.RetrievalResponse{
		Results:  make([]*models.RetrievalResult, 0, len(hits)),
		Degraded: true,
		Query:    query.Query,
	}
	for _, hit := range hits {
		chunk, err := r.store.GetChunk(ctx, hit.ID)
		if err != nil {
			// The keyword index can briefly run ahead of the store; an
			// unhydratable hit is dropped rather than surfaced half-empty.
			continue
		}
		result := &models.RetrievalResult{
			ChunkID:    chunk.ID,
			DocumentID: chunk.DocumentID,
			Ordinal:    chunk.Ordinal,
			Content:    chunk.Content,
			Score:      scores[hit.ID],
			Keyword:    true,
		}
		if doc, err := r.store.GetDocument(ctx, chunk.DocumentID); err == nil {
			result.Title = doc.Title
			result.SourcePath = doc.SourcePath
		}
		response.Results = append(response.Results, result)
	}
	response.Total = len(response.Results)
	response.QueryTime = time.Since(startTime).Milliseconds()
	return response, nil
}

// normalizeKeywordScores maps raw keyword scores to (0, 1] by dividing by
// the batch maximum, so the best keyword hit always scores 1.
func normalizeKeywordScores(hits []*keyword.KeywordResult) map[string]float64 {
	normalized := make(map[string]float64, len(hits))
	if len(hits) == 0 {
		return normalized
	}
	maxScore := hits[0].Score
	for _, h := range hits {
		if h.Score > maxScore {
			maxScore = h.Score
		}
	}
	for _, h := range hits {
		if maxScore > 0 {
			normalized[h.ID] = h.Score / maxScore
		}
	}
	return normalized
}
