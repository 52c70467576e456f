package models

import "fmt"

// RetrievalQuery represents a semantic retrieval request.
// TopK and MinScore of zero mean "use the configured defaults" at the API
// layer; a negative TopK reaching the retriever yields an empty result.
type RetrievalQuery struct {
	Query    string  `json:"query"`
	TopK     int     `json:"top_k,omitempty"`
	MinScore float64 `json:"min_score,omitempty"`
}

// Validate checks the query text. Limits are left alone so callers can
// distinguish "unset" from explicit values.
func (q *RetrievalQuery) Validate() error {
	if q.Query == "" {
		return fmt.Errorf("query cannot be empty")
	}
	return nil
}

// RetrievalResult is a single retrieved chunk with its similarity score.
// Score is cosine similarity in [-1, 1] for semantic hits; keyword fallback
// hits carry a normalized relevance score and set Keyword.
type RetrievalResult struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	Ordinal    int     `json:"ordinal"`
	Content    string  `json:"content"`
	Score      float64 `json:"score"`
	Title      string  `json:"title,omitempty"`
	SourcePath string  `json:"source_path,omitempty"`
	Keyword    bool    `json:"keyword,omitempty"`
}

// RetrievalResponse is the response for a retrieval request.
type RetrievalResponse struct {
	Results []*RetrievalResult `json:"results"`
	Total   int                `json:"total"`
	// Degraded indicates the embedder was unavailable and results came from
	// the keyword fallback (or are empty).
	Degraded  bool   `json:"degraded,omitempty"`
	QueryTime int64  `json:"query_time_ms"`
	Query     string `json:"query"`
}
