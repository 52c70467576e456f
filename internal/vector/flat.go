package vector

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/hyperjump/bunken/pkg/utils"
)

// flatIndexMagic identifies the on-disk format, version included.
const flatIndexMagic = "BNKNIDX1"

// maxStringLen bounds decoded string lengths so a corrupt length field cannot
// trigger a huge allocation.
const maxStringLen = 1 << 24

// FlatIndex is a brute-force vector index: every query scans all entries.
// Vectors are normalized to unit length at insert, so inner product equals
// cosine similarity. A literature library holds thousands of chunks, not
// millions, so the scan is well within budget.
type FlatIndex struct {
	dimensions int
	modelID    string
	entries    []*Entry
	byID       map[string]*Entry
	mu         sync.RWMutex
}

// NewFlatIndex creates an empty index for vectors of the given dimension,
// produced by the named embedding model.
func NewFlatIndex(dimensions int, modelID string) (*FlatIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	return &FlatIndex{
		dimensions: dimensions,
		modelID:    modelID,
		byID:       make(map[string]*Entry),
	}, nil
}

// Insert adds one entry. Returns ErrDimensionMismatch for a wrong-size vector
// and ErrDuplicateChunk when the chunk ID is already indexed.
func (x *FlatIndex) Insert(ctx context.Context, entry *Entry) error {
	if len(entry.Vector) != x.dimensions {
		return fmt.Errorf("%w: vector has %d dimensions, index has %d",
			ErrDimensionMismatch, len(entry.Vector), x.dimensions)
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	if _, ok := x.byID[entry.ChunkID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateChunk, entry.ChunkID)
	}
	x.insertLocked(entry)
	return nil
}

// InsertBatch adds entries under a single write lock so one document's chunks
// land atomically with respect to queries. Dimensions are validated up front;
// on mismatch, nothing is inserted. Already-indexed chunk IDs are skipped.
// Returns the number of entries actually inserted.
func (x *FlatIndex) InsertBatch(ctx context.Context, entries []*Entry) (int, error) {
	for _, e := range entries {
		if len(e.Vector) != x.dimensions {
			return 0, fmt.Errorf("%w: chunk %s has %d dimensions, index has %d",
				ErrDimensionMismatch, e.ChunkID, len(e.Vector), x.dimensions)
		}
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	inserted := 0
	for _, e := range entries {
		if _, ok := x.byID[e.ChunkID]; ok {
			continue
		}
		x.insertLocked(e)
		inserted++
	}
	return inserted, nil
}

// insertLocked copies the entry and its vector, normalizes the copy, and
// appends it. Callers hold the write lock and have validated dimensions.
func (x *FlatIndex) insertLocked(entry *Entry) {
	cp := *entry
	vec := make([]float32, len(entry.Vector))
	copy(vec, entry.Vector)
	utils.NormalizeL2(vec)
	cp.Vector = vec
	x.entries = append(x.entries, &cp)
	x.byID[cp.ChunkID] = &cp
}

// Query returns the top-k entries by cosine similarity, highest first.
// Equal scores keep insertion order, so repeated queries over unchanged data
// return identical rankings. k <= 0 or an empty index yields no results.
func (x *FlatIndex) Query(ctx context.Context, query []float32, k int) ([]*Result, error) {
	if len(query) != x.dimensions {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d",
			ErrDimensionMismatch, len(query), x.dimensions)
	}
	x.mu.RLock()
	defer x.mu.RUnlock()
	if k <= 0 || len(x.entries) == 0 {
		return nil, nil
	}

	q := make([]float32, len(query))
	copy(q, query)
	utils.NormalizeL2(q)

	type scored struct {
		entry *Entry
		score float64
	}
	scores := make([]scored, len(x.entries))
	for i, e := range x.entries {
		scores[i] = scored{entry: e, score: InnerProduct(q, e.Vector)}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })

	if k > len(scores) {
		k = len(scores)
	}
	results := make([]*Result, k)
	for i := 0; i < k; i++ {
		e := scores[i].entry
		results[i] = &Result{
			ChunkID:    e.ChunkID,
			DocumentID: e.DocumentID,
			Ordinal:    e.Ordinal,
			Content:    e.Content,
			Title:      e.Title,
			SourcePath: e.SourcePath,
			Score:      scores[i].score,
		}
	}
	return results, nil
}

// RemoveDocument removes every chunk of the given document in one write lock
// and returns how many entries were removed.
func (x *FlatIndex) RemoveDocument(ctx context.Context, documentID string) (int, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	kept := x.entries[:0]
	removed := 0
	for _, e := range x.entries {
		if e.DocumentID == documentID {
			delete(x.byID, e.ChunkID)
			removed++
			continue
		}
		kept = append(kept, e)
	}
	x.entries = kept
	return removed, nil
}

// Contains reports whether the chunk ID is indexed.
func (x *FlatIndex) Contains(chunkID string) bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	_, ok := x.byID[chunkID]
	return ok
}

// ChunkIDs returns all indexed chunk IDs in insertion order.
func (x *FlatIndex) ChunkIDs() []string {
	x.mu.RLock()
	defer x.mu.RUnlock()
	ids := make([]string, len(x.entries))
	for i, e := range x.entries {
		ids[i] = e.ChunkID
	}
	return ids
}

// Clear removes every entry, leaving dimensions and model unchanged.
func (x *FlatIndex) Clear() {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.entries = nil
	x.byID = make(map[string]*Entry)
}

// Size returns the number of indexed chunks.
func (x *FlatIndex) Size() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.entries)
}

// Dimensions returns the vector dimension the index accepts.
func (x *FlatIndex) Dimensions() int {
	return x.dimensions
}

// ModelID returns the embedding model the index was built with.
func (x *FlatIndex) ModelID() string {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.modelID
}

// Close is a no-op for FlatIndex.
func (x *FlatIndex) Close() error {
	return nil
}

// Save writes the index to path: magic, dimensions, model ID, entry count,
// then each entry in insertion order. The file is written to a temp name and
// renamed so a crash mid-write cannot clobber the previous index.
func (x *FlatIndex) Save(path string) error {
	if path == "" {
		return nil
	}
	x.mu.RLock()
	defer x.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	w := bufio.NewWriter(f)

	writeErr := func() error {
		if _, err := w.WriteString(flatIndexMagic); err != nil {
			return fmt.Errorf("write magic: %w", err)
		}
		if err := binary.Write(w, binary.LittleEndian, uint32(x.dimensions)); err != nil {
			return fmt.Errorf("write dimensions: %w", err)
		}
		if err := writeString(w, x.modelID); err != nil {
			return fmt.Errorf("write model id: %w", err)
		}
		if err := binary.Write(w, binary.LittleEndian, uint32(len(x.entries))); err != nil {
			return fmt.Errorf("write count: %w", err)
		}
		for _, e := range x.entries {
			for _, s := range []string{e.ChunkID, e.DocumentID} {
				if err := writeString(w, s); err != nil {
					return fmt.Errorf("write entry id: %w", err)
				}
			}
			if err := binary.Write(w, binary.LittleEndian, uint32(e.Ordinal)); err != nil {
				return fmt.Errorf("write ordinal: %w", err)
			}
			for _, s := range []string{e.Content, e.SourcePath, e.Title} {
				if err := writeString(w, s); err != nil {
					return fmt.Errorf("write entry payload: %w", err)
				}
			}
			if _, err := w.Write(float32SliceToBytes(e.Vector)); err != nil {
				return fmt.Errorf("write vector: %w", err)
			}
		}
		return w.Flush()
	}()
	if writeErr != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return writeErr
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("close index file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace index file: %w", err)
	}
	return nil
}

// Load reads the index from path and replaces the in-memory contents.
// A missing file leaves the index empty without error. A file written with
// different dimensions or a different model fails with ErrDimensionMismatch;
// an undecodable file fails with ErrIndexCorrupt. On any error the index
// keeps its previous contents.
func (x *FlatIndex) Load(path string) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open index file: %w", err)
	}
	defer f.Close()
	r := bufio.NewReader(f)

	magic := make([]byte, len(flatIndexMagic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return fmt.Errorf("%w: short magic: %v", ErrIndexCorrupt, err)
	}
	if string(magic) != flatIndexMagic {
		return fmt.Errorf("%w: bad magic %q", ErrIndexCorrupt, magic)
	}
	var dim uint32
	if err := binary.Read(r, binary.LittleEndian, &dim); err != nil {
		return fmt.Errorf("%w: read dimensions: %v", ErrIndexCorrupt, err)
	}
	if int(dim) != x.dimensions {
		return fmt.Errorf("%w: file has %d dimensions, index expects %d",
			ErrDimensionMismatch, dim, x.dimensions)
	}
	fileModel, err := readString(r)
	if err != nil {
		return fmt.Errorf("%w: read model id: %v", ErrIndexCorrupt, err)
	}
	if x.modelID != "" && fileModel != x.modelID {
		return fmt.Errorf("%w: file built with model %q, index expects %q",
			ErrDimensionMismatch, fileModel, x.modelID)
	}
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return fmt.Errorf("%w: read count: %v", ErrIndexCorrupt, err)
	}
	// Each entry takes at least six 4-byte words plus the vector, so the
	// file cannot hold more entries than its size allows. Checked before the
	// count is used to size the slice and map.
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat index file: %w", err)
	}
	minEntrySize := int64(24 + x.dimensions*4)
	if int64(n)*minEntrySize > info.Size() {
		return fmt.Errorf("%w: count %d exceeds file size %d", ErrIndexCorrupt, n, info.Size())
	}

	entries := make([]*Entry, 0, n)
	byID := make(map[string]*Entry, n)
	vecBuf := make([]byte, x.dimensions*4)
	for i := uint32(0); i < n; i++ {
		e := &Entry{}
		if e.ChunkID, err = readString(r); err != nil {
			return fmt.Errorf("%w: entry %d chunk id: %v", ErrIndexCorrupt, i, err)
		}
		if e.DocumentID, err = readString(r); err != nil {
			return fmt.Errorf("%w: entry %d document id: %v", ErrIndexCorrupt, i, err)
		}
		var ordinal uint32
		if err := binary.Read(r, binary.LittleEndian, &ordinal); err != nil {
			return fmt.Errorf("%w: entry %d ordinal: %v", ErrIndexCorrupt, i, err)
		}
		e.Ordinal = int(ordinal)
		if e.Content, err = readString(r); err != nil {
			return fmt.Errorf("%w: entry %d content: %v", ErrIndexCorrupt, i, err)
		}
		if e.SourcePath, err = readString(r); err != nil {
			return fmt.Errorf("%w: entry %d source path: %v", ErrIndexCorrupt, i, err)
		}
		if e.Title, err = readString(r); err != nil {
			return fmt.Errorf("%w: entry %d title: %v", ErrIndexCorrupt, i, err)
		}
		if _, err := io.ReadFull(r, vecBuf); err != nil {
			return fmt.Errorf("%w: entry %d vector: %v", ErrIndexCorrupt, i, err)
		}
		e.Vector = bytesToFloat32Slice(vecBuf)
		if _, dup := byID[e.ChunkID]; dup {
			return fmt.Errorf("%w: duplicate chunk id %s", ErrIndexCorrupt, e.ChunkID)
		}
		entries = append(entries, e)
		byID[e.ChunkID] = e
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	x.entries = entries
	x.byID = byID
	if x.modelID == "" {
		x.modelID = fileModel
	}
	return nil
}

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r io.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	if n > maxStringLen {
		return "", fmt.Errorf("string length %d exceeds limit", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}
