package models

// Reference ties a citation marker to its source document. All chunks of the
// same document share one reference entry.
type Reference struct {
	Marker     int    `json:"marker"`
	DocumentID string `json:"document_id"`
	Title      string `json:"title"`
	SourcePath string `json:"source_path,omitempty"`
}

// ContextResult is an assembled context block ready to hand to a language
// model, plus the reference list resolving its [n] markers.
type ContextResult struct {
	Context    string       `json:"context"`
	References []*Reference `json:"references"`
	// Degraded indicates retrieval could not use the semantic index; the
	// context may be empty or keyword-derived.
	Degraded bool `json:"degraded,omitempty"`
}
