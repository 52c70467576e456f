package library

import (
	"context"
)

// ConsistencyReport describes how the document store and the vector index
// line up after both have been loaded.
type ConsistencyReport struct {
	StoreChunks      int      `json:"store_chunks"`
	IndexChunks      int      `json:"index_chunks"`
	MissingFromIndex []string `json:"missing_from_index,omitempty"`
	OrphanedInIndex  []string `json:"orphaned_in_index,omitempty"`
}

// Consistent reports whether every stored chunk is indexed and vice versa.
func (r *ConsistencyReport) Consistent() bool {
	return len(r.MissingFromIndex) == 0 && len(r.OrphanedInIndex) == 0
}

// ValidateConsistency compares the chunk IDs held by the store against the
// chunk IDs held by the vector index. The store is authoritative: chunks
// missing from the index can be recovered by re-embedding, orphans in the
// index should be removed.
func ValidateConsistency(ctx context.Context, store Store, indexChunkIDs []string) (*ConsistencyReport, error) {
	storeIDs, err := store.AllChunkIDs(ctx)
	if err != nil {
		return nil, err
	}

	inStore := make(map[string]bool, len(storeIDs))
	for _, id := range storeIDs {
		inStore[id] = true
	}
	inIndex := make(map[string]bool, len(indexChunkIDs))
	for _, id := range indexChunkIDs {
		inIndex[id] = true
	}

	report := &ConsistencyReport{
		StoreChunks: len(storeIDs),
		IndexChunks: len(indexChunkIDs),
	}
	for _, id := range storeIDs {
		if !inIndex[id] {
			report.MissingFromIndex = append(report.MissingFromIndex, id)
		}
	}
	for _, id := range indexChunkIDs {
		if !inStore[id] {
			report.OrphanedInIndex = append(report.OrphanedInIndex, id)
		}
	}
	return report, nil
}
