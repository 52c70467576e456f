package models

import "errors"

// IngestError records a single path that failed during batch ingestion.
type IngestError struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// IngestReport summarizes one ingestion batch. Counts are per document:
// Skipped counts byte-identical re-ingests, Superseded counts documents that
// replaced an older version at the same path.
type IngestReport struct {
	BatchID    string        `json:"batch_id"`
	Ingested   int           `json:"ingested"`
	Skipped    int           `json:"skipped"`
	Superseded int           `json:"superseded"`
	Failed     int           `json:"failed"`
	Errors     []IngestError `json:"errors,omitempty"`
	ElapsedMS  int64         `json:"elapsed_ms"`
}

// Add folds the outcome of a single document into the report. A non-nil err
// is recorded against the path whatever the outcome, so skips can carry a
// reason too.
func (r *IngestReport) Add(outcome IngestOutcome, path string, err error) {
	switch outcome {
	case IngestOutcomeIngested:
		r.Ingested++
	case IngestOutcomeSkipped:
		r.Skipped++
	case IngestOutcomeSuperseded:
		r.Superseded++
	case IngestOutcomeFailed:
		r.Failed++
		if err == nil {
			err = errors.New("unknown error")
		}
	}
	if err != nil {
		r.Errors = append(r.Errors, IngestError{Path: path, Reason: err.Error()})
	}
}

// IngestOutcome classifies what happened to one document during ingestion.
type IngestOutcome int

const (
	IngestOutcomeIngested IngestOutcome = iota
	IngestOutcomeSkipped
	IngestOutcomeSuperseded
	IngestOutcomeFailed
)

// String names the outcome for reports and logs.
func (o IngestOutcome) String() string {
	switch o {
	case IngestOutcomeIngested:
		return "ingested"
	case IngestOutcomeSkipped:
		return "skipped"
	case IngestOutcomeSuperseded:
		return "superseded"
	case IngestOutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// LibraryStatus reports store and index health for the status endpoint.
type LibraryStatus struct {
	Documents      int    `json:"documents"`
	Chunks         int    `json:"chunks"`
	IndexEntries   int    `json:"index_entries"`
	KeywordEntries uint64 `json:"keyword_entries,omitempty"`
	EmbeddingModel string `json:"embedding_model"`
	Dimensions     int    `json:"dimensions"`
	// LastBuildTime is RFC 3339, empty when nothing has been ingested yet.
	LastBuildTime  string `json:"last_build_time,omitempty"`
	DiskUsageBytes int64  `json:"disk_usage_bytes"`
	// MissingFromIndex and OrphanedInIndex count chunk ids present on only
	// one side of the store/index pair. Both zero when consistent.
	MissingFromIndex int `json:"missing_from_index"`
	OrphanedInIndex  int `json:"orphaned_in_index"`
}
