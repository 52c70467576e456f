// Package embedding provides text embedding via Ollama or ONNX, with caching.
package embedding

import (
	"context"
	"errors"
)

// ErrUnavailable indicates the embedding backend cannot be reached right now.
// It covers connection failures, timeouts, and server-side errors; callers may
// retry later or degrade to keyword retrieval. Match with errors.Is.
var ErrUnavailable = errors.New("embedding backend unavailable")

// Embedder produces vector embeddings for text. ModelID names the model so
// the vector index can refuse to mix embeddings from different models.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	ModelID() string
	Close() error
}
