package ingest

import (
	"strings"
	"unicode"

	"github.com/hyperjump/bunken/internal/docid"
	"github.com/hyperjump/bunken/internal/models"
)

// Chunker splits normalized text into overlapping passages. Sizes are in
// runes so CJK text is measured the same as Latin text.
type Chunker struct {
	chunkSize    int
	chunkOverlap int
	minChunkSize int
}

// NewChunker creates a chunker with the given window size, overlap, and
// minimum emitted size, all in runes. Out-of-range values are clamped.
func NewChunker(chunkSize, chunkOverlap, minChunkSize int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = 500
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = chunkSize / 5
	}
	if minChunkSize < 0 {
		minChunkSize = 0
	}
	return &Chunker{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		minChunkSize: minChunkSize,
	}
}

// Chunk splits text into chunks of at most chunkSize runes, each overlapping
// the previous by chunkOverlap runes. Within a window the split prefers a
// paragraph break, then a line break, then a sentence end; boundaries in the
// first half of the window are ignored so chunks stay reasonably full, and
// when no boundary qualifies the window is cut hard at chunkSize. The same
// input and config always yield the same chunks, which is what makes
// re-ingestion checks idempotent. Chunks whose trimmed text is shorter than
// minChunkSize are dropped. Empty input yields nil.
func (c *Chunker) Chunk(docID, text string) []*models.Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	runes := []rune(text)

	var chunks []*models.Chunk
	ordinal := 0
	start := 0
	for start < len(runes) {
		end := start + c.chunkSize
		if end >= len(runes) {
			end = len(runes)
		} else {
			end = c.splitPoint(runes, start, end)
		}

		content := string(runes[start:end])
		if len([]rune(strings.TrimSpace(content))) >= c.minChunkSize {
			chunks = append(chunks, &models.Chunk{
				ID:         docid.ChunkID(docID, ordinal),
				DocumentID: docID,
				Ordinal:    ordinal,
				Content:    content,
			})
			ordinal++
		}

		if end >= len(runes) {
			break
		}
		next := end - c.chunkOverlap
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks
}

// splitPoint returns the exclusive end index for the window [start, hardEnd).
// It scans backwards for the best boundary in the second half of the window:
// a blank line, then any newline, then a sentence-ending punctuation mark.
// ASCII enders only count when followed by whitespace, so "3.14" and "e.g."
// do not split; fullwidth enders are always sentence-final.
func (c *Chunker) splitPoint(runes []rune, start, hardEnd int) int {
	mid := start + c.chunkSize/2

	for i := hardEnd - 1; i > mid; i-- {
		if runes[i] == '\n' && runes[i-1] == '\n' {
			return i + 1
		}
	}
	for i := hardEnd - 1; i > mid; i-- {
		if runes[i] == '\n' {
			return i + 1
		}
	}
	for i := hardEnd - 1; i > mid; i-- {
		switch runes[i] {
		case '。', '！', '？':
			return i + 1
		case '.', '!', '?':
			if i+1 >= len(runes) || unicode.IsSpace(runes[i+1]) {
				return i + 1
			}
		}
	}
	return hardEnd
}
