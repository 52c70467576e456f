package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hyperjump/bunken/internal/config"
	"github.com/hyperjump/bunken/internal/docid"
	"github.com/hyperjump/bunken/internal/embedding"
	"github.com/hyperjump/bunken/internal/extract"
	"github.com/hyperjump/bunken/internal/keyword"
	"github.com/hyperjump/bunken/internal/library"
	"github.com/hyperjump/bunken/internal/models"
	"github.com/hyperjump/bunken/internal/vector"
)

func TestExtensionAllowed(t *testing.T) {
	tests := []struct {
		ext     string
		allowed []string
		want    bool
	}{
		{".txt", []string{".txt", ".md"}, true},
		{".TXT", []string{".txt"}, true},
		{".md", []string{".txt", ".md"}, true},
		{".go", []string{".txt"}, false},
		{"", []string{".txt"}, false},
		{".rst", []string{".txt", ".md", ".rst"}, true},
	}
	for _, tt := range tests {
		got := extensionAllowed(tt.ext, tt.allowed)
		if got != tt.want {
			t.Errorf("extensionAllowed(%q, %v) = %v, want %v", tt.ext, tt.allowed, got, tt.want)
		}
	}
}

func testIngestConfig(dir string) *config.Config {
	cfg := &config.Config{}
	cfg.Chunking.ChunkSize = 60
	cfg.Chunking.ChunkOverlap = 12
	cfg.Chunking.MinChunkSize = 3
	cfg.Ingest.Workers = 2
	cfg.Ingest.Extensions = []string{".txt", ".md", ".pdf"}
	cfg.Storage.DatabasePath = filepath.Join(dir, "library.db")
	cfg.Storage.IndexPath = filepath.Join(dir, "vectors.idx")
	cfg.Storage.KeywordIndexPath = filepath.Join(dir, "bleve")
	return cfg
}

func newTestIngestor(t *testing.T, dir string, embedder embedding.Embedder) (*Ingestor, library.Store, vector.Index) {
	t.Helper()
	cfg := testIngestConfig(dir)
	store, err := library.NewSQLiteStore(cfg.Storage.DatabasePath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	index, err := vector.NewFlatIndex(embedder.Dimensions(), embedder.ModelID())
	if err != nil {
		t.Fatal(err)
	}
	kw, err := keyword.NewBleveIndex(cfg.Storage.KeywordIndexPath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = kw.Close() })
	ing := NewIngestor(store, embedder, index, kw, cfg, extract.NewExtractor())
	return ing, store, index
}

func writeTestFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
}

const paperText = `Transfer learning reuses a model trained on one task for another.

Fine-tuning adapts the pretrained weights with a small labeled set.
It usually outperforms training from scratch on limited data.`

func TestIngestFile_registersDocument(t *testing.T) {
	dir := t.TempDir()
	ing, store, index := newTestIngestor(t, dir, embedding.NewMockEmbedder(4))
	ctx := context.Background()

	path := filepath.Join(dir, "paper.txt")
	writeTestFile(t, path, paperText)

	outcome, err := ing.IngestFile(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	if outcome != models.IngestOutcomeIngested {
		t.Errorf("outcome = %v, want ingested", outcome)
	}

	hash, documentID := docid.FromBytes([]byte(paperText))
	doc, err := store.GetDocument(ctx, documentID)
	if err != nil {
		t.Fatal(err)
	}
	if doc.ContentHash != hash || doc.Title != "paper.txt" || doc.Format != ".txt" {
		t.Errorf("unexpected doc: %+v", doc)
	}

	chunks, err := store.GetChunksByDocumentID(ctx, documentID)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	if index.Size() != len(chunks) {
		t.Errorf("index has %d entries, store has %d chunks", index.Size(), len(chunks))
	}
	for _, ch := range chunks {
		if !index.Contains(ch.ID) {
			t.Errorf("chunk %s missing from index", ch.ID)
		}
	}
}

func TestIngestFile_skipsIdenticalContent(t *testing.T) {
	dir := t.TempDir()
	ing, store, index := newTestIngestor(t, dir, embedding.NewMockEmbedder(4))
	ctx := context.Background()

	path := filepath.Join(dir, "paper.txt")
	writeTestFile(t, path, paperText)
	if _, err := ing.IngestFile(ctx, path); err != nil {
		t.Fatal(err)
	}
	sizeBefore := index.Size()

	outcome, err := ing.IngestFile(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	if outcome != models.IngestOutcomeSkipped {
		t.Errorf("re-ingest outcome = %v, want skipped", outcome)
	}

	// Same bytes under a different name are still a skip.
	renamed := filepath.Join(dir, "copy-of-paper.txt")
	writeTestFile(t, renamed, paperText)
	outcome, err = ing.IngestFile(ctx, renamed)
	if err != nil {
		t.Fatal(err)
	}
	if outcome != models.IngestOutcomeSkipped {
		t.Errorf("renamed copy outcome = %v, want skipped", outcome)
	}

	n, _ := store.CountDocuments(ctx)
	if n != 1 {
		t.Errorf("expected 1 document, got %d", n)
	}
	if index.Size() != sizeBefore {
		t.Errorf("index grew from %d to %d on skip", sizeBefore, index.Size())
	}
}

func TestIngestFile_supersedesChangedFile(t *testing.T) {
	dir := t.TempDir()
	ing, store, index := newTestIngestor(t, dir, embedding.NewMockEmbedder(4))
	ctx := context.Background()

	path := filepath.Join(dir, "draft.txt")
	oldContent := "The first draft discusses convolutional networks in detail."
	writeTestFile(t, path, oldContent)
	if _, err := ing.IngestFile(ctx, path); err != nil {
		t.Fatal(err)
	}
	_, oldID := docid.FromBytes([]byte(oldContent))
	oldChunks, err := store.GetChunksByDocumentID(ctx, oldID)
	if err != nil || len(oldChunks) == 0 {
		t.Fatalf("old chunks: %v, %d", err, len(oldChunks))
	}

	newContent := "The revised draft pivots to transformer architectures instead."
	writeTestFile(t, path, newContent)
	outcome, err := ing.IngestFile(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	if outcome != models.IngestOutcomeSuperseded {
		t.Errorf("outcome = %v, want superseded", outcome)
	}

	if _, err := store.GetDocument(ctx, oldID); !errors.Is(err, library.ErrNotFound) {
		t.Errorf("old document should be gone, got %v", err)
	}
	for _, ch := range oldChunks {
		if index.Contains(ch.ID) {
			t.Errorf("old chunk %s still retrievable", ch.ID)
		}
	}
	_, newID := docid.FromBytes([]byte(newContent))
	if _, err := store.GetDocument(ctx, newID); err != nil {
		t.Errorf("new document missing: %v", err)
	}
	n, _ := store.CountDocuments(ctx)
	if n != 1 {
		t.Errorf("expected 1 document after supersede, got %d", n)
	}
}

type failingEmbedder struct{}

func (f *failingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, fmt.Errorf("%w: connection refused", embedding.ErrUnavailable)
}

func (f *failingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, fmt.Errorf("%w: connection refused", embedding.ErrUnavailable)
}

func (f *failingEmbedder) Dimensions() int { return 4 }
func (f *failingEmbedder) ModelID() string { return "mock" }
func (f *failingEmbedder) Close() error    { return nil }

func TestIngestFile_embedderFailureLeavesNoState(t *testing.T) {
	dir := t.TempDir()
	ing, store, index := newTestIngestor(t, dir, &failingEmbedder{})
	ctx := context.Background()

	path := filepath.Join(dir, "paper.txt")
	writeTestFile(t, path, paperText)

	outcome, err := ing.IngestFile(ctx, path)
	if outcome != models.IngestOutcomeFailed {
		t.Errorf("outcome = %v, want failed", outcome)
	}
	if !errors.Is(err, embedding.ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}

	n, _ := store.CountDocuments(ctx)
	if n != 0 {
		t.Errorf("no document should be registered, got %d", n)
	}
	if index.Size() != 0 {
		t.Errorf("no vectors should be indexed, got %d", index.Size())
	}
}

func TestIngestFile_extensionFiltered(t *testing.T) {
	dir := t.TempDir()
	ing, _, _ := newTestIngestor(t, dir, embedding.NewMockEmbedder(4))

	path := filepath.Join(dir, "script.sh")
	writeTestFile(t, path, "#!/bin/bash")

	outcome, err := ing.IngestFile(context.Background(), path)
	if outcome != models.IngestOutcomeFailed || err == nil {
		t.Errorf("expected failure for disallowed extension, got %v, %v", outcome, err)
	}
	if !errors.Is(err, extract.ErrUnsupportedFormat) {
		t.Errorf("expected unsupported format error, got %v", err)
	}
}

func TestIngestDirectory(t *testing.T) {
	dir := t.TempDir()
	docs := filepath.Join(dir, "docs")
	if err := os.MkdirAll(filepath.Join(docs, "sub"), 0755); err != nil {
		t.Fatal(err)
	}
	ing, store, _ := newTestIngestor(t, dir, embedding.NewMockEmbedder(4))
	ctx := context.Background()

	writeTestFile(t, filepath.Join(docs, "a.txt"), "Document about graph neural networks and their uses.")
	writeTestFile(t, filepath.Join(docs, "b.md"), "Notes on variational inference for topic models.")
	writeTestFile(t, filepath.Join(docs, "sub", "c.txt"), "A survey of retrieval augmented generation methods.")
	writeTestFile(t, filepath.Join(docs, "skip.xyz"), "not picked up")

	report, err := ing.IngestDirectory(ctx, docs)
	if err != nil {
		t.Fatal(err)
	}
	if report.BatchID == "" {
		t.Error("report should carry a batch id")
	}
	if report.Ingested != 3 || report.Failed != 0 || report.Skipped != 0 {
		t.Errorf("report: %+v", report)
	}
	n, _ := store.CountDocuments(ctx)
	if n != 3 {
		t.Errorf("expected 3 documents, got %d", n)
	}

	// The batch flush persisted the index and stamped the build time.
	if _, err := os.Stat(filepath.Join(dir, "vectors.idx")); err != nil {
		t.Errorf("index file should exist after batch: %v", err)
	}
	stamp, err := store.GetMeta(ctx, library.MetaLastBuildTime)
	if err != nil || stamp == "" {
		t.Fatalf("last build time: %q, %v", stamp, err)
	}
	if _, err := time.Parse(time.RFC3339, stamp); err != nil {
		t.Errorf("last build time not RFC 3339: %v", err)
	}
}

func TestIngestDirectory_isolatesFailures(t *testing.T) {
	dir := t.TempDir()
	docs := filepath.Join(dir, "docs")
	if err := os.Mkdir(docs, 0755); err != nil {
		t.Fatal(err)
	}
	ing, _, _ := newTestIngestor(t, dir, embedding.NewMockEmbedder(4))

	writeTestFile(t, filepath.Join(docs, "good.txt"), "A perfectly ordinary text document.")
	writeTestFile(t, filepath.Join(docs, "broken.pdf"), "this is not a pdf")

	report, err := ing.IngestDirectory(context.Background(), docs)
	if err != nil {
		t.Fatal(err)
	}
	if report.Ingested != 1 || report.Failed != 1 {
		t.Errorf("report: %+v", report)
	}
	if len(report.Errors) != 1 || !strings.HasSuffix(report.Errors[0].Path, "broken.pdf") {
		t.Errorf("errors: %+v", report.Errors)
	}
}

func TestIngestInline(t *testing.T) {
	dir := t.TempDir()
	ing, _, _ := newTestIngestor(t, dir, embedding.NewMockEmbedder(4))
	ctx := context.Background()

	input := &models.DocumentInput{Title: "Field notes", Content: "Inline content about spectral clustering."}
	doc, outcome, err := ing.IngestInline(ctx, input)
	if err != nil {
		t.Fatal(err)
	}
	if outcome != models.IngestOutcomeIngested {
		t.Errorf("outcome = %v, want ingested", outcome)
	}
	if doc.Title != "Field notes" {
		t.Errorf("title = %q", doc.Title)
	}
	if !strings.HasPrefix(doc.SourcePath, "inline:") {
		t.Errorf("source path = %q, want inline: prefix", doc.SourcePath)
	}

	// Same content again dedupes to the existing document.
	again, outcome, err := ing.IngestInline(ctx, &models.DocumentInput{Content: "Inline content about spectral clustering."})
	if err != nil {
		t.Fatal(err)
	}
	if outcome != models.IngestOutcomeSkipped {
		t.Errorf("outcome = %v, want skipped", outcome)
	}
	if again.ID != doc.ID {
		t.Errorf("skip should return the existing document, got %s vs %s", again.ID, doc.ID)
	}

	if _, _, err := ing.IngestInline(ctx, &models.DocumentInput{Content: "   "}); err == nil {
		t.Error("empty content should be rejected")
	}
}

func TestRemoveDocument(t *testing.T) {
	dir := t.TempDir()
	ing, store, index := newTestIngestor(t, dir, embedding.NewMockEmbedder(4))
	ctx := context.Background()

	pathA := filepath.Join(dir, "a.txt")
	pathB := filepath.Join(dir, "b.txt")
	writeTestFile(t, pathA, "Document A talks about optimization landscapes.")
	writeTestFile(t, pathB, "Document B covers reinforcement learning from preferences.")
	if _, err := ing.IngestFile(ctx, pathA); err != nil {
		t.Fatal(err)
	}
	if _, err := ing.IngestFile(ctx, pathB); err != nil {
		t.Fatal(err)
	}

	_, idA := docid.FromBytes([]byte("Document A talks about optimization landscapes."))
	chunksA, _ := store.GetChunksByDocumentID(ctx, idA)

	if err := ing.RemoveDocument(ctx, idA); err != nil {
		t.Fatal(err)
	}
	if _, err := store.GetDocument(ctx, idA); !errors.Is(err, library.ErrNotFound) {
		t.Errorf("document A should be gone, got %v", err)
	}
	for _, ch := range chunksA {
		if index.Contains(ch.ID) {
			t.Errorf("chunk %s still indexed", ch.ID)
		}
	}
	n, _ := store.CountDocuments(ctx)
	if n != 1 {
		t.Errorf("document B should survive, count = %d", n)
	}

	if err := ing.RemoveDocument(ctx, idA); !errors.Is(err, library.ErrNotFound) {
		t.Errorf("second remove should be ErrNotFound, got %v", err)
	}
}

func TestRemoveByPath(t *testing.T) {
	dir := t.TempDir()
	ing, store, _ := newTestIngestor(t, dir, embedding.NewMockEmbedder(4))
	ctx := context.Background()

	path := filepath.Join(dir, "a.txt")
	writeTestFile(t, path, "Short-lived document.")
	if _, err := ing.IngestFile(ctx, path); err != nil {
		t.Fatal(err)
	}

	if err := ing.RemoveByPath(ctx, path); err != nil {
		t.Fatal(err)
	}
	n, _ := store.CountDocuments(ctx)
	if n != 0 {
		t.Errorf("expected 0 documents, got %d", n)
	}

	// A path that was never ingested is a no-op.
	if err := ing.RemoveByPath(ctx, filepath.Join(dir, "never.txt")); err != nil {
		t.Errorf("unknown path should be a no-op, got %v", err)
	}
}

func TestClearAndStatus(t *testing.T) {
	dir := t.TempDir()
	ing, _, index := newTestIngestor(t, dir, embedding.NewMockEmbedder(4))
	ctx := context.Background()

	path := filepath.Join(dir, "a.txt")
	writeTestFile(t, path, paperText)
	if _, err := ing.IngestFile(ctx, path); err != nil {
		t.Fatal(err)
	}
	if err := ing.Flush(ctx); err != nil {
		t.Fatal(err)
	}

	status, err := ing.Status(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if status.Documents != 1 || status.Chunks == 0 {
		t.Errorf("status: %+v", status)
	}
	if status.IndexEntries != status.Chunks {
		t.Errorf("index entries %d != chunks %d", status.IndexEntries, status.Chunks)
	}
	if status.KeywordEntries != uint64(status.Chunks) {
		t.Errorf("keyword entries %d != chunks %d", status.KeywordEntries, status.Chunks)
	}
	if status.EmbeddingModel != "mock" || status.Dimensions != 4 {
		t.Errorf("model info: %+v", status)
	}
	if status.LastBuildTime == "" {
		t.Error("last build time should be set after flush")
	}
	if status.DiskUsageBytes <= 0 {
		t.Error("disk usage should be positive")
	}

	if err := ing.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	status, err = ing.Status(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if status.Documents != 0 || status.Chunks != 0 || status.IndexEntries != 0 || status.KeywordEntries != 0 {
		t.Errorf("status after clear: %+v", status)
	}
	if status.LastBuildTime != "" {
		t.Errorf("last build time should be cleared, got %q", status.LastBuildTime)
	}
	if index.Size() != 0 {
		t.Errorf("index size = %d after clear", index.Size())
	}
}
