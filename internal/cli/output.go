// Package cli renders command output for Bunken in text or JSON form.
package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/hyperjump/bunken/internal/models"
	"github.com/hyperjump/bunken/pkg/utils"
)

// OutputFormat selects how command results are rendered.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

const resultSeparator = "─────────────────────────────────────────────────────────"

func writeJSON(w io.Writer, data interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

// WriteRetrievalResults writes retrieval results to w in the given format.
func WriteRetrievalResults(w io.Writer, response *models.RetrievalResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, response)
	}

	fmt.Fprintf(w, "\nFound %d chunks in %dms\n", response.Total, response.QueryTime)
	if response.Degraded {
		fmt.Fprintln(w, "(embedder unavailable, showing keyword matches)")
	}
	fmt.Fprintln(w)
	for i, result := range response.Results {
		fmt.Fprintln(w, resultSeparator)
		fmt.Fprintf(w, "[%d] Score: %.4f", i+1, result.Score)
		if result.Keyword {
			fmt.Fprint(w, " (keyword)")
		}
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Chunk: %s\n", result.ChunkID)
		if result.Title != "" {
			fmt.Fprintf(w, "Title: %s\n", result.Title)
		}
		if result.SourcePath != "" {
			fmt.Fprintf(w, "Source: %s\n", result.SourcePath)
		}
		fmt.Fprintf(w, "\n%s\n\n", utils.TruncateRunes(result.Content, 200))
	}
	return nil
}

// WriteContext writes a composed context block and its references.
func WriteContext(w io.Writer, result *models.ContextResult, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, result)
	}

	if result.Degraded {
		fmt.Fprintln(w, "(retrieval degraded, citations may be missing)")
	}
	if result.Context == "" {
		fmt.Fprintln(w, "No context available.")
		return nil
	}
	fmt.Fprintln(w, result.Context)
	if len(result.References) > 0 {
		fmt.Fprintln(w, "\nReferences:")
		for _, ref := range result.References {
			if ref.SourcePath != "" {
				fmt.Fprintf(w, "  [%d] %s (%s)\n", ref.Marker, ref.Title, ref.SourcePath)
			} else {
				fmt.Fprintf(w, "  [%d] %s\n", ref.Marker, ref.Title)
			}
		}
	}
	return nil
}

// WriteStatus writes library health for the status command.
func WriteStatus(w io.Writer, status *models.LibraryStatus, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, status)
	}

	lastBuild := status.LastBuildTime
	if lastBuild == "" {
		lastBuild = "never"
	}
	fmt.Fprintln(w, "Library status:")
	fmt.Fprintf(w, "  Documents:       %d\n", status.Documents)
	fmt.Fprintf(w, "  Chunks:          %d\n", status.Chunks)
	fmt.Fprintf(w, "  Index entries:   %d\n", status.IndexEntries)
	if status.KeywordEntries > 0 {
		fmt.Fprintf(w, "  Keyword entries: %d\n", status.KeywordEntries)
	}
	fmt.Fprintf(w, "  Model:           %s\n", status.EmbeddingModel)
	fmt.Fprintf(w, "  Dimensions:      %d\n", status.Dimensions)
	fmt.Fprintf(w, "  Last build:      %s\n", lastBuild)
	fmt.Fprintf(w, "  Disk usage:      %s\n", formatBytes(status.DiskUsageBytes))
	if status.MissingFromIndex > 0 || status.OrphanedInIndex > 0 {
		fmt.Fprintf(w, "  WARNING: %d chunks missing from index, %d orphaned in index\n",
			status.MissingFromIndex, status.OrphanedInIndex)
	}
	return nil
}

// WriteReport writes a batch ingestion report.
func WriteReport(w io.Writer, report *models.IngestReport, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, report)
	}

	fmt.Fprintf(w, "Batch %s: %d ingested, %d skipped, %d superseded, %d failed in %dms\n",
		report.BatchID, report.Ingested, report.Skipped, report.Superseded, report.Failed, report.ElapsedMS)
	for _, e := range report.Errors {
		fmt.Fprintf(w, "  %s: %s\n", e.Path, e.Reason)
	}
	return nil
}

// WriteDocuments writes the registry listing.
func WriteDocuments(w io.Writer, docs []*models.Document, total int64, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, map[string]interface{}{"documents": docs, "total": total})
	}

	fmt.Fprintf(w, "%d documents (showing %d):\n", total, len(docs))
	for _, doc := range docs {
		fmt.Fprintf(w, "  %s  %-40s  %d chunks  %s\n",
			doc.ID, utils.TruncateRunes(doc.Title, 40), doc.ChunkCount,
			doc.IngestedAt.Format("2006-01-02"))
	}
	return nil
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
