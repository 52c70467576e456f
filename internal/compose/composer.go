// Package compose assembles retrieved passages into a citation-annotated
// context block bounded by a rune budget, plus the reference list that
// resolves its markers.
package compose

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hyperjump/bunken/internal/config"
	"github.com/hyperjump/bunken/internal/models"
	"github.com/hyperjump/bunken/pkg/utils"
)

const separator = "------------------------------"

// Composer formats retrieval results for prompt injection. Passages are
// taken in descending score order until the next block would push the
// context past the budget. All chunks of one document share a single [n]
// marker and one reference entry.
type Composer struct {
	maxContextChars int
	snippetChars    int
}

// NewComposer creates a composer from the compose settings. Zero or
// negative limits fall back to the standard budget.
func NewComposer(cfg *config.ComposeConfig) *Composer {
	c := &Composer{
		maxContextChars: cfg.MaxContextChars,
		snippetChars:    cfg.SnippetChars,
	}
	if c.maxContextChars <= 0 {
		c.maxContextChars = 3000
	}
	if c.snippetChars <= 0 {
		c.snippetChars = 500
	}
	return c
}

// Compose builds the context block and reference list. The input slice is
// not modified; ties keep their incoming order. Markers are 1-based and
// numbered by each document's first appearance in the composed block, so
// the reference list never repeats a document.
func (c *Composer) Compose(results []*models.RetrievalResult) *models.ContextResult {
	out := &models.ContextResult{
		References: make([]*models.Reference, 0),
	}
	if len(results) == 0 {
		return out
	}

	sorted := make([]*models.RetrievalResult, len(results))
	copy(sorted, results)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})

	var blocks []string
	used := 0
	markers := make(map[string]int)

	for _, r := range sorted {
		marker, known := markers[r.DocumentID]
		if !known {
			marker = len(out.References) + 1
		}

		snippet := utils.TruncateRunes(r.Content, c.snippetChars)
		block := fmt.Sprintf("[%d] %s\n%s\n%s", marker, passageLabel(r), snippet, separator)

		cost := len([]rune(block))
		if used > 0 {
			cost++ // joining newline
		}
		if used+cost > c.maxContextChars {
			break
		}

		blocks = append(blocks, block)
		used += cost
		if !known {
			markers[r.DocumentID] = marker
			out.References = append(out.References, &models.Reference{
				Marker:     marker,
				DocumentID: r.DocumentID,
				Title:      r.Title,
				SourcePath: r.SourcePath,
			})
		}
	}

	out.Context = strings.Join(blocks, "\n")
	return out
}

// passageLabel names a passage by document title, falling back to the
// source file name and finally the document id.
func passageLabel(r *models.RetrievalResult) string {
	if r.Title != "" {
		return r.Title
	}
	if r.SourcePath != "" {
		return filepath.Base(r.SourcePath)
	}
	return r.DocumentID
}
