// Package ingest turns source files and inline submissions into registered,
// embedded, searchable documents. It owns the write path: everything that
// mutates the library goes through an Ingestor.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/bunken/internal/config"
	"github.com/hyperjump/bunken/internal/docid"
	"github.com/hyperjump/bunken/internal/embedding"
	"github.com/hyperjump/bunken/internal/extract"
	"github.com/hyperjump/bunken/internal/keyword"
	"github.com/hyperjump/bunken/internal/library"
	"github.com/hyperjump/bunken/internal/models"
	"github.com/hyperjump/bunken/internal/vector"
)

// Ingestor runs the ingestion pipeline: read, dedup, extract, chunk, embed,
// commit. Commits are serialized by a mutex so concurrent workers cannot
// race a duplicate or a supersede.
type Ingestor struct {
	store        library.Store
	embedder     embedding.Embedder
	index        vector.Index
	keywords     keyword.KeywordIndex // optional, may be nil
	chunker      *Chunker
	extractor    *extract.Extractor // optional; nil treats every file as plain text
	indexPath    string
	storagePaths []string
	workers      int
	extensions   []string
	logger       *zap.Logger

	mu sync.Mutex
}

// IngestorOption configures an Ingestor.
type IngestorOption func(*Ingestor)

// WithLogger sets a logger for debug and warning output.
func WithLogger(l *zap.Logger) IngestorOption {
	return func(i *Ingestor) { i.logger = l }
}

// NewIngestor creates an ingestor with the given dependencies. keywords may
// be nil to disable keyword indexing; extractor may be nil, in which case
// every file is read as plain text.
func NewIngestor(
	store library.Store,
	embedder embedding.Embedder,
	index vector.Index,
	keywords keyword.KeywordIndex,
	cfg *config.Config,
	extractor *extract.Extractor,
	opts ...IngestorOption,
) *Ingestor {
	ing := &Ingestor{
		store:     store,
		embedder:  embedder,
		index:     index,
		keywords:  keywords,
		chunker:   NewChunker(cfg.Chunking.ChunkSize, cfg.Chunking.ChunkOverlap, cfg.Chunking.MinChunkSize),
		extractor: extractor,
		indexPath: cfg.Storage.IndexPath,
		storagePaths: []string{
			cfg.Storage.DatabasePath,
			cfg.Storage.IndexPath,
			cfg.Storage.KeywordIndexPath,
		},
		workers:    cfg.Ingest.Workers,
		extensions: cfg.Ingest.Extensions,
	}
	for _, opt := range opts {
		opt(ing)
	}
	return ing
}

// IngestFile ingests a single file. Byte-identical content that is already
// registered is skipped without extraction or embedding; a changed file at a
// known path supersedes the prior document. The index is not flushed; call
// Flush once the batch is done.
func (i *Ingestor) IngestFile(ctx context.Context, path string) (models.IngestOutcome, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return models.IngestOutcomeFailed, fmt.Errorf("absolute path: %w", err)
	}
	if i.logger != nil {
		i.logger.Debug("ingesting file", zap.String("path", absPath))
	}
	ext := strings.ToLower(filepath.Ext(absPath))
	if len(i.extensions) > 0 && !extensionAllowed(ext, i.extensions) {
		return models.IngestOutcomeFailed, fmt.Errorf("extension %q not in allowed list: %w", ext, extract.ErrUnsupportedFormat)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return models.IngestOutcomeFailed, fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return models.IngestOutcomeFailed, fmt.Errorf("not a regular file: %s", absPath)
	}
	raw, err := os.ReadFile(absPath)
	if err != nil {
		return models.IngestOutcomeFailed, fmt.Errorf("read file: %w", err)
	}

	hash, documentID := docid.FromBytes(raw)
	if _, err := i.store.GetDocumentByHash(ctx, hash); err == nil {
		if i.logger != nil {
			i.logger.Debug("skipping known content", zap.String("path", absPath), zap.String("doc_id", documentID))
		}
		return models.IngestOutcomeSkipped, nil
	}

	text, err := i.extractContent(absPath, raw)
	if err != nil {
		return models.IngestOutcomeFailed, fmt.Errorf("extract content: %w", err)
	}
	doc := &models.Document{
		ID:          documentID,
		ContentHash: hash,
		SourcePath:  absPath,
		Title:       filepath.Base(absPath),
		Format:      ext,
		Content:     Normalize(text),
	}
	return i.ingest(ctx, doc)
}

// IngestInline registers a document submitted without a backing file. The
// source path is synthetic and unique, so dedup runs purely on content.
// When the content is already registered, the existing document is returned
// with a skipped outcome.
func (i *Ingestor) IngestInline(ctx context.Context, input *models.DocumentInput) (*models.Document, models.IngestOutcome, error) {
	if strings.TrimSpace(input.Content) == "" {
		return nil, models.IngestOutcomeFailed, fmt.Errorf("content cannot be empty")
	}
	hash, documentID := docid.FromBytes([]byte(input.Content))
	title := input.Title
	if title == "" {
		title = "inline-" + uuid.New().String()[:8]
	}
	doc := &models.Document{
		ID:          documentID,
		ContentHash: hash,
		SourcePath:  "inline:" + uuid.New().String(),
		Title:       title,
		Content:     Normalize(input.Content),
	}
	outcome, err := i.ingest(ctx, doc)
	if err != nil {
		return nil, outcome, err
	}
	if outcome == models.IngestOutcomeSkipped {
		existing, getErr := i.store.GetDocumentByHash(ctx, hash)
		if getErr != nil {
			return nil, outcome, getErr
		}
		return existing, outcome, nil
	}
	return doc, outcome, nil
}

// ingest chunks, embeds, and commits one prepared document. Embedding runs
// before any write, so an unavailable backend abandons the document without
// leaving partial state.
func (i *Ingestor) ingest(ctx context.Context, doc *models.Document) (models.IngestOutcome, error) {
	chunks := i.chunker.Chunk(doc.ID, doc.Content)
	if len(chunks) == 0 {
		return models.IngestOutcomeSkipped, fmt.Errorf("no text content")
	}
	if err := i.embedChunks(ctx, chunks); err != nil {
		return models.IngestOutcomeFailed, err
	}
	return i.commit(ctx, doc, chunks)
}

func (i *Ingestor) embedChunks(ctx context.Context, chunks []*models.Chunk) error {
	texts := make([]string, len(chunks))
	for j, ch := range chunks {
		texts[j] = ch.Content
	}
	embeddings, err := i.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to generate embeddings: %w", err)
	}
	for j := range chunks {
		chunks[j].Embedding = embeddings[j]
	}
	return nil
}

// commit registers the document and indexes its chunks. The hash and path
// checks run again under the lock, so two workers ingesting the same bytes
// concurrently end with one registered document and one skip.
func (i *Ingestor) commit(ctx context.Context, doc *models.Document, chunks []*models.Chunk) (models.IngestOutcome, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if _, err := i.store.GetDocumentByHash(ctx, doc.ContentHash); err == nil {
		return models.IngestOutcomeSkipped, nil
	}

	outcome := models.IngestOutcomeIngested
	if doc.SourcePath != "" {
		old, err := i.store.GetDocumentBySourcePath(ctx, doc.SourcePath)
		if err == nil && old.ContentHash != doc.ContentHash {
			if err := i.removeLocked(ctx, old.ID); err != nil {
				return models.IngestOutcomeFailed, fmt.Errorf("supersede %s: %w", old.ID, err)
			}
			outcome = models.IngestOutcomeSuperseded
		}
	}

	if err := i.store.RegisterDocument(ctx, doc, chunks); err != nil {
		return models.IngestOutcomeFailed, fmt.Errorf("failed to register document: %w", err)
	}
	if _, err := i.index.InsertBatch(ctx, vectorEntries(doc, chunks)); err != nil {
		// Keep store and index consistent: roll the registration back.
		_ = i.store.DeleteDocument(ctx, doc.ID)
		return models.IngestOutcomeFailed, fmt.Errorf("failed to index vectors: %w", err)
	}
	if i.keywords != nil {
		if err := i.keywords.IndexChunks(ctx, doc, chunks); err != nil && i.logger != nil {
			i.logger.Warn("keyword indexing failed", zap.String("doc_id", doc.ID), zap.Error(err))
		}
	}
	if i.logger != nil {
		i.logger.Debug("document committed", zap.String("doc_id", doc.ID), zap.Int("chunks", len(chunks)))
	}
	return outcome, nil
}

func vectorEntries(doc *models.Document, chunks []*models.Chunk) []*vector.Entry {
	entries := make([]*vector.Entry, len(chunks))
	for j, ch := range chunks {
		entries[j] = &vector.Entry{
			ChunkID:    ch.ID,
			DocumentID: ch.DocumentID,
			Ordinal:    ch.Ordinal,
			Content:    ch.Content,
			Title:      doc.Title,
			SourcePath: doc.SourcePath,
			Vector:     ch.Embedding,
		}
	}
	return entries
}

// IngestDirectory walks dir recursively and ingests every regular file with
// an allowed extension through the worker pool. Per-file failures land in
// the report; only walking the directory itself can fail.
func (i *Ingestor) IngestDirectory(ctx context.Context, dir string) (*models.IngestReport, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return nil, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", absDir)
	}

	var paths []string
	err = filepath.WalkDir(absDir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if len(i.extensions) > 0 && !extensionAllowed(ext, i.extensions) {
			return nil
		}
		// Resolve symlinks so only regular files are ingested
		finfo, statErr := os.Stat(path)
		if statErr != nil || !finfo.Mode().IsRegular() {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return i.IngestPaths(ctx, paths), nil
}

// IngestPaths ingests the given files through a bounded worker pool and
// returns the batch report. The index is flushed once at the end when
// anything was written.
func (i *Ingestor) IngestPaths(ctx context.Context, paths []string) *models.IngestReport {
	report := &models.IngestReport{BatchID: uuid.New().String()}
	start := time.Now()

	workers := i.workers
	if workers <= 0 {
		workers = 1
	}
	if workers > len(paths) {
		workers = len(paths)
	}

	jobs := make(chan string)
	var reportMu sync.Mutex
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range jobs {
				outcome, err := i.IngestFile(ctx, path)
				reportMu.Lock()
				report.Add(outcome, path, err)
				reportMu.Unlock()
			}
		}()
	}
	for _, path := range paths {
		jobs <- path
	}
	close(jobs)
	wg.Wait()

	if report.Ingested > 0 || report.Superseded > 0 {
		if err := i.Flush(ctx); err != nil && i.logger != nil {
			i.logger.Warn("flush after batch failed", zap.Error(err))
		}
	}
	report.ElapsedMS = time.Since(start).Milliseconds()
	return report
}

// RemoveDocument deletes a document and its chunks from the store and all
// indices, then persists the index. Returns library.ErrNotFound when the
// document does not exist.
func (i *Ingestor) RemoveDocument(ctx context.Context, id string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if err := i.removeLocked(ctx, id); err != nil {
		return err
	}
	return i.index.Save(i.indexPath)
}

// RemoveByPath deletes the document ingested from path, if any. A path that
// was never ingested is a no-op, so the watcher can report deletions without
// checking first.
func (i *Ingestor) RemoveByPath(ctx context.Context, path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	doc, err := i.store.GetDocumentBySourcePath(ctx, absPath)
	if errors.Is(err, library.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return i.RemoveDocument(ctx, doc.ID)
}

// removeLocked deletes one document everywhere. The vector index goes first
// and the store last, so a partial failure leaves no index entries that
// cannot be resolved against the store.
func (i *Ingestor) removeLocked(ctx context.Context, id string) error {
	chunks, err := i.store.GetChunksByDocumentID(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to get chunks: %w", err)
	}
	if _, err := i.index.RemoveDocument(ctx, id); err != nil {
		return fmt.Errorf("failed to remove from vector index: %w", err)
	}
	if i.keywords != nil && len(chunks) > 0 {
		ids := make([]string, len(chunks))
		for j, ch := range chunks {
			ids[j] = ch.ID
		}
		if err := i.keywords.DeleteChunks(ctx, ids); err != nil && i.logger != nil {
			i.logger.Warn("keyword delete failed", zap.String("doc_id", id), zap.Error(err))
		}
	}
	if err := i.store.DeleteDocument(ctx, id); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	if i.logger != nil {
		i.logger.Debug("document removed", zap.String("doc_id", id))
	}
	return nil
}

// Clear empties the library: every document, chunk, index entry, and meta
// key. The index file is rewritten so the emptiness survives a restart.
func (i *Ingestor) Clear(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	ids, err := i.store.AllChunkIDs(ctx)
	if err != nil {
		return err
	}
	if i.keywords != nil && len(ids) > 0 {
		if err := i.keywords.DeleteChunks(ctx, ids); err != nil && i.logger != nil {
			i.logger.Warn("keyword clear failed", zap.Error(err))
		}
	}
	if err := i.store.Clear(ctx); err != nil {
		return err
	}
	i.index.Clear()
	return i.index.Save(i.indexPath)
}

// Flush persists the vector index and stamps the last build time.
func (i *Ingestor) Flush(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if err := i.index.Save(i.indexPath); err != nil {
		return fmt.Errorf("failed to save index: %w", err)
	}
	return i.store.SetMeta(ctx, library.MetaLastBuildTime, time.Now().UTC().Format(time.RFC3339))
}

// Status reports library counts, index health, and disk usage.
func (i *Ingestor) Status(ctx context.Context) (*models.LibraryStatus, error) {
	docs, err := i.store.CountDocuments(ctx)
	if err != nil {
		return nil, err
	}
	chunks, err := i.store.CountChunks(ctx)
	if err != nil {
		return nil, err
	}
	lastBuild, err := i.store.GetMeta(ctx, library.MetaLastBuildTime)
	if err != nil {
		return nil, err
	}
	status := &models.LibraryStatus{
		Documents:      int(docs),
		Chunks:         int(chunks),
		IndexEntries:   i.index.Size(),
		EmbeddingModel: i.index.ModelID(),
		Dimensions:     i.index.Dimensions(),
		LastBuildTime:  lastBuild,
	}
	if i.keywords != nil {
		if n, err := i.keywords.DocCount(); err == nil {
			status.KeywordEntries = n
		}
	}
	if usage, err := library.DiskUsageBytes(i.storagePaths...); err == nil {
		status.DiskUsageBytes = usage
	}
	if report, err := library.ValidateConsistency(ctx, i.store, i.index.ChunkIDs()); err == nil {
		status.MissingFromIndex = len(report.MissingFromIndex)
		status.OrphanedInIndex = len(report.OrphanedInIndex)
	}
	return status, nil
}

func (i *Ingestor) extractContent(path string, raw []byte) (string, error) {
	if i.extractor != nil {
		return i.extractor.ExtractFile(path, raw)
	}
	return string(raw), nil
}

func extensionAllowed(ext string, allowed []string) bool {
	extNorm := strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == extNorm {
			return true
		}
	}
	return false
}
