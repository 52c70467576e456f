package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/hyperjump/bunken/internal/models"
)

func TestWriteRetrievalResults_JSON(t *testing.T) {
	response := &models.RetrievalResponse{
		Query:     "transfer learning",
		QueryTime: 42,
		Total:     1,
		Results: []*models.RetrievalResult{
			{
				ChunkID:    "doc:abc:0000",
				DocumentID: "doc:abc",
				Ordinal:    0,
				Content:    "Transfer learning reuses a trained model.",
				Score:      0.91,
				Title:      "Survey",
				SourcePath: "/library/survey.pdf",
			},
		},
	}
	var buf bytes.Buffer
	if err := WriteRetrievalResults(&buf, response, OutputJSON); err != nil {
		t.Fatalf("WriteRetrievalResults(json): %v", err)
	}
	var decoded models.RetrievalResponse
	if err := json.NewDecoder(&buf).Decode(&decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded.Query != response.Query || decoded.QueryTime != response.QueryTime {
		t.Errorf("decoded query=%q query_time=%d, want query=%q query_time=%d",
			decoded.Query, decoded.QueryTime, response.Query, response.QueryTime)
	}
	if len(decoded.Results) != 1 || decoded.Results[0].ChunkID != "doc:abc:0000" {
		t.Errorf("decoded results: want one result with chunk id doc:abc:0000, got %+v", decoded.Results)
	}
}

func TestWriteRetrievalResults_text(t *testing.T) {
	response := &models.RetrievalResponse{
		Query:     "bayesian",
		QueryTime: 10,
		Total:     2,
		Results: []*models.RetrievalResult{
			{
				ChunkID:    "doc:a:0000",
				DocumentID: "doc:a",
				Content:    "Bayesian optimization tunes hyperparameters.",
				Score:      0.8123,
				Title:      "Bayesian Methods",
				SourcePath: "/library/bayes.pdf",
			},
			{
				ChunkID:    "doc:b:0003",
				DocumentID: "doc:b",
				Content:    "Priors encode belief before data.",
				Score:      0.61,
				Keyword:    true,
			},
		},
	}
	var buf bytes.Buffer
	if err := WriteRetrievalResults(&buf, response, OutputText); err != nil {
		t.Fatalf("WriteRetrievalResults(text): %v", err)
	}
	out := buf.String()
	for _, sub := range []string{
		"Found 2 chunks", "10ms",
		"[1] Score: 0.8123", "Chunk: doc:a:0000", "Title: Bayesian Methods", "Source: /library/bayes.pdf",
		"[2] Score: 0.6100 (keyword)", "Priors encode belief",
	} {
		if !strings.Contains(out, sub) {
			t.Errorf("text output missing %q:\n%s", sub, out)
		}
	}
	if strings.Contains(out, "keyword matches") {
		t.Errorf("degraded note should not appear for a healthy response:\n%s", out)
	}
}

func TestWriteRetrievalResults_text_degraded(t *testing.T) {
	response := &models.RetrievalResponse{Query: "q", Degraded: true, Results: []*models.RetrievalResult{}}
	var buf bytes.Buffer
	if err := WriteRetrievalResults(&buf, response, OutputText); err != nil {
		t.Fatalf("WriteRetrievalResults(text): %v", err)
	}
	if !strings.Contains(buf.String(), "embedder unavailable") {
		t.Errorf("expected degraded note in output:\n%s", buf.String())
	}
}

func TestWriteRetrievalResults_text_truncatesLongContent(t *testing.T) {
	long := strings.Repeat("x", 300)
	response := &models.RetrievalResponse{
		Query: "q",
		Total: 1,
		Results: []*models.RetrievalResult{
			{ChunkID: "doc:a:0000", Content: long, Score: 0.5},
		},
	}
	var buf bytes.Buffer
	if err := WriteRetrievalResults(&buf, response, OutputText); err != nil {
		t.Fatalf("WriteRetrievalResults(text): %v", err)
	}
	out := buf.String()
	if strings.Contains(out, long) {
		t.Error("content should be truncated for text output")
	}
	if !strings.Contains(out, strings.Repeat("x", 200)+"...") {
		t.Errorf("expected 200-rune snippet with ellipsis:\n%s", out)
	}
}

func TestWriteRetrievalResults_unknownFormatTreatedAsText(t *testing.T) {
	response := &models.RetrievalResponse{Query: "x", Results: []*models.RetrievalResult{}}
	var buf bytes.Buffer
	if err := WriteRetrievalResults(&buf, response, OutputFormat("unknown")); err != nil {
		t.Fatalf("WriteRetrievalResults(unknown): %v", err)
	}
	if !strings.Contains(buf.String(), "Found") {
		t.Errorf("unknown format should fall back to text; got %q", buf.String())
	}
}

func TestWriteContext_JSON(t *testing.T) {
	result := &models.ContextResult{
		Context: "[1] Survey\nsnippet\n------------------------------",
		References: []*models.Reference{
			{Marker: 1, DocumentID: "doc:a", Title: "Survey", SourcePath: "/library/survey.pdf"},
		},
	}
	var buf bytes.Buffer
	if err := WriteContext(&buf, result, OutputJSON); err != nil {
		t.Fatalf("WriteContext(json): %v", err)
	}
	var decoded models.ContextResult
	if err := json.NewDecoder(&buf).Decode(&decoded); err != nil {
		t.Fatalf("context JSON decode: %v", err)
	}
	if decoded.Context != result.Context || len(decoded.References) != 1 {
		t.Errorf("decoded context mismatch: %+v", decoded)
	}
}

func TestWriteContext_text(t *testing.T) {
	result := &models.ContextResult{
		Context: "[1] Survey\nsnippet text\n------------------------------",
		References: []*models.Reference{
			{Marker: 1, DocumentID: "doc:a", Title: "Survey", SourcePath: "/library/survey.pdf"},
			{Marker: 2, DocumentID: "doc:b", Title: "Notes"},
		},
	}
	var buf bytes.Buffer
	if err := WriteContext(&buf, result, OutputText); err != nil {
		t.Fatalf("WriteContext(text): %v", err)
	}
	out := buf.String()
	for _, sub := range []string{
		"snippet text",
		"References:",
		"[1] Survey (/library/survey.pdf)",
		"[2] Notes",
	} {
		if !strings.Contains(out, sub) {
			t.Errorf("text output missing %q:\n%s", sub, out)
		}
	}
	if strings.Contains(out, "[2] Notes (") {
		t.Errorf("reference without a source path should not print parentheses:\n%s", out)
	}
}

func TestWriteContext_text_empty(t *testing.T) {
	result := &models.ContextResult{References: []*models.Reference{}}
	var buf bytes.Buffer
	if err := WriteContext(&buf, result, OutputText); err != nil {
		t.Fatalf("WriteContext(text): %v", err)
	}
	if !strings.Contains(buf.String(), "No context available.") {
		t.Errorf("expected empty-context message, got %q", buf.String())
	}
}

func TestWriteContext_text_degraded(t *testing.T) {
	result := &models.ContextResult{Degraded: true, References: []*models.Reference{}}
	var buf bytes.Buffer
	if err := WriteContext(&buf, result, OutputText); err != nil {
		t.Fatalf("WriteContext(text): %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "retrieval degraded") || !strings.Contains(out, "No context available.") {
		t.Errorf("expected degraded note and empty-context message:\n%s", out)
	}
}

func TestWriteStatus_text(t *testing.T) {
	status := &models.LibraryStatus{
		Documents:      3,
		Chunks:         42,
		IndexEntries:   42,
		KeywordEntries: 42,
		EmbeddingModel: "nomic-embed-text",
		Dimensions:     768,
		LastBuildTime:  "2025-06-01T10:00:00Z",
		DiskUsageBytes: 1536,
	}
	var buf bytes.Buffer
	if err := WriteStatus(&buf, status, OutputText); err != nil {
		t.Fatalf("WriteStatus(text): %v", err)
	}
	out := buf.String()
	for _, sub := range []string{
		"Documents:       3",
		"Chunks:          42",
		"Index entries:   42",
		"Keyword entries: 42",
		"Model:           nomic-embed-text",
		"Dimensions:      768",
		"Last build:      2025-06-01T10:00:00Z",
		"Disk usage:      1.5 KiB",
	} {
		if !strings.Contains(out, sub) {
			t.Errorf("status output missing %q:\n%s", sub, out)
		}
	}
	if strings.Contains(out, "WARNING") {
		t.Errorf("consistent library should not warn:\n%s", out)
	}
}

func TestWriteStatus_text_neverBuilt(t *testing.T) {
	status := &models.LibraryStatus{EmbeddingModel: "mock", Dimensions: 4}
	var buf bytes.Buffer
	if err := WriteStatus(&buf, status, OutputText); err != nil {
		t.Fatalf("WriteStatus(text): %v", err)
	}
	if !strings.Contains(buf.String(), "Last build:      never") {
		t.Errorf("empty build time should print never:\n%s", buf.String())
	}
}

func TestWriteStatus_text_inconsistencyWarning(t *testing.T) {
	status := &models.LibraryStatus{
		Documents:        1,
		Chunks:           5,
		IndexEntries:     3,
		EmbeddingModel:   "mock",
		Dimensions:       4,
		MissingFromIndex: 2,
		OrphanedInIndex:  0,
	}
	var buf bytes.Buffer
	if err := WriteStatus(&buf, status, OutputText); err != nil {
		t.Fatalf("WriteStatus(text): %v", err)
	}
	if !strings.Contains(buf.String(), "WARNING: 2 chunks missing from index") {
		t.Errorf("expected consistency warning:\n%s", buf.String())
	}
}

func TestWriteStatus_JSON(t *testing.T) {
	status := &models.LibraryStatus{Documents: 1, Chunks: 2, EmbeddingModel: "mock", Dimensions: 4}
	var buf bytes.Buffer
	if err := WriteStatus(&buf, status, OutputJSON); err != nil {
		t.Fatalf("WriteStatus(json): %v", err)
	}
	var decoded models.LibraryStatus
	if err := json.NewDecoder(&buf).Decode(&decoded); err != nil {
		t.Fatalf("status JSON decode: %v", err)
	}
	if decoded.Documents != 1 || decoded.Chunks != 2 {
		t.Errorf("decoded status mismatch: %+v", decoded)
	}
}

func TestWriteReport_text(t *testing.T) {
	report := &models.IngestReport{
		BatchID:    "batch-1",
		Ingested:   3,
		Skipped:    1,
		Superseded: 1,
		Failed:     1,
		ElapsedMS:  120,
		Errors: []models.IngestError{
			{Path: "/library/broken.pdf", Reason: "unsupported file format"},
		},
	}
	var buf bytes.Buffer
	if err := WriteReport(&buf, report, OutputText); err != nil {
		t.Fatalf("WriteReport(text): %v", err)
	}
	out := buf.String()
	for _, sub := range []string{
		"Batch batch-1: 3 ingested, 1 skipped, 1 superseded, 1 failed in 120ms",
		"/library/broken.pdf: unsupported file format",
	} {
		if !strings.Contains(out, sub) {
			t.Errorf("report output missing %q:\n%s", sub, out)
		}
	}
}

func TestWriteReport_JSON(t *testing.T) {
	report := &models.IngestReport{BatchID: "b", Ingested: 2}
	var buf bytes.Buffer
	if err := WriteReport(&buf, report, OutputJSON); err != nil {
		t.Fatalf("WriteReport(json): %v", err)
	}
	var decoded models.IngestReport
	if err := json.NewDecoder(&buf).Decode(&decoded); err != nil {
		t.Fatalf("report JSON decode: %v", err)
	}
	if decoded.BatchID != "b" || decoded.Ingested != 2 {
		t.Errorf("decoded report mismatch: %+v", decoded)
	}
}

func TestWriteDocuments_text(t *testing.T) {
	docs := []*models.Document{
		{
			ID:         "doc:aaa",
			Title:      "Transfer Learning Survey",
			ChunkCount: 7,
			IngestedAt: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
		},
	}
	var buf bytes.Buffer
	if err := WriteDocuments(&buf, docs, 12, OutputText); err != nil {
		t.Fatalf("WriteDocuments(text): %v", err)
	}
	out := buf.String()
	for _, sub := range []string{"12 documents (showing 1):", "doc:aaa", "Transfer Learning Survey", "7 chunks", "2025-06-01"} {
		if !strings.Contains(out, sub) {
			t.Errorf("documents output missing %q:\n%s", sub, out)
		}
	}
}

func TestWriteDocuments_JSON(t *testing.T) {
	docs := []*models.Document{{ID: "doc:aaa", Title: "T"}}
	var buf bytes.Buffer
	if err := WriteDocuments(&buf, docs, 1, OutputJSON); err != nil {
		t.Fatalf("WriteDocuments(json): %v", err)
	}
	var decoded struct {
		Documents []*models.Document `json:"documents"`
		Total     int64              `json:"total"`
	}
	if err := json.NewDecoder(&buf).Decode(&decoded); err != nil {
		t.Fatalf("documents JSON decode: %v", err)
	}
	if decoded.Total != 1 || len(decoded.Documents) != 1 || decoded.Documents[0].ID != "doc:aaa" {
		t.Errorf("decoded documents mismatch: %+v", decoded)
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		name string
		n    int64
		want string
	}{
		{"zero", 0, "0 B"},
		{"bytes", 512, "512 B"},
		{"one KiB", 1024, "1.0 KiB"},
		{"fractional KiB", 1536, "1.5 KiB"},
		{"one MiB", 1 << 20, "1.0 MiB"},
		{"gigabytes", 5 << 30, "5.0 GiB"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := formatBytes(tt.n)
			if got != tt.want {
				t.Errorf("formatBytes(%d) = %q, want %q", tt.n, got, tt.want)
			}
		})
	}
}
