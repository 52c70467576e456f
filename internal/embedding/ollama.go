package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ollamaMaxRetries is the number of attempts per embedding request.
const ollamaMaxRetries = 3

// ollamaRetryBackoff is the initial wait between attempts; it doubles each retry.
const ollamaRetryBackoff = 500 * time.Millisecond

// OllamaEmbedder produces embeddings through a local Ollama server's
// /api/embeddings endpoint.
type OllamaEmbedder struct {
	endpoint   string
	model      string
	dimensions int
	client     *http.Client
}

// NewOllamaEmbedder returns an embedder talking to the Ollama server at
// endpoint (e.g. "http://localhost:11434"). Every request is bounded by
// timeout on top of whatever deadline the caller's context carries.
func NewOllamaEmbedder(endpoint, model string, dimensions int, timeout time.Duration) *OllamaEmbedder {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &OllamaEmbedder{
		endpoint:   endpoint,
		model:      model,
		dimensions: dimensions,
		client:     &http.Client{Timeout: timeout},
	}
}

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed returns the embedding for text. Connection failures, timeouts, and
// 5xx responses wrap ErrUnavailable after retries are exhausted; anything
// else (unknown model, malformed response) is a plain error.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	var lastErr error
	backoff := ollamaRetryBackoff
	for attempt := 0; attempt < ollamaMaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
			case <-time.After(backoff):
			}
			backoff *= 2
		}
		emb, retryable, err := e.embedOnce(ctx, text)
		if err == nil {
			return emb, nil
		}
		if !retryable {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

// embedOnce performs a single request. retryable reports whether the failure
// is transient.
func (e *OllamaEmbedder) embedOnce(ctx context.Context, text string) (emb []float32, retryable bool, err error) {
	body, err := json.Marshal(ollamaEmbedRequest{Model: e.model, Prompt: text})
	if err != nil {
		return nil, false, fmt.Errorf("marshal embed request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("build embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, true, fmt.Errorf("%w: server returned %d", ErrUnavailable, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, false, fmt.Errorf("embeddings request failed: status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var parsed ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, false, fmt.Errorf("decode embed response: %w", err)
	}
	if len(parsed.Embedding) == 0 {
		return nil, false, fmt.Errorf("embed response contained no embedding")
	}
	if e.dimensions > 0 && len(parsed.Embedding) != e.dimensions {
		return nil, false, fmt.Errorf("model %q returned %d dimensions, configured %d",
			e.model, len(parsed.Embedding), e.dimensions)
	}
	return parsed.Embedding, false, nil
}

// EmbedBatch calls Embed for each text. The endpoint takes one prompt per
// request, so a batch is a sequence of calls; the first failure aborts.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := e.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed batch item %d: %w", i, err)
		}
		embeddings[i] = emb
	}
	return embeddings, nil
}

// Dimensions returns the configured embedding dimension.
func (e *OllamaEmbedder) Dimensions() int {
	return e.dimensions
}

// ModelID returns the Ollama model name.
func (e *OllamaEmbedder) ModelID() string {
	return e.model
}

// Close releases idle connections.
func (e *OllamaEmbedder) Close() error {
	e.client.CloseIdleConnections()
	return nil
}
