package model

import "time"

// ErrorType classifies a per-source failure entry in a SearchResponse.
type ErrorType string

const (
	ErrorNoSources            ErrorType = "no_sources"
	ErrorFetchFailed          ErrorType = "fetch_failed"
	ErrorExtractionDegraded   ErrorType = "extraction_degraded"
	ErrorNoExtractableContent ErrorType = "no_extractable_content"
)

// SourceError records why a single source produced nothing. Failures are local
// to a source; they never abort sibling sources or the overall search.
type SourceError struct {
	Type     ErrorType `json:"type"`
	SourceID string    `json:"source_id,omitempty"`
	Message  string    `json:"message"`
}

// Field is one extracted name/value pair. Slice order preserves the order in
// which fields were extracted from the page.
type Field struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// StructuredResult is one extracted row from one source. Immutable once built;
// consumed only by the result merger.
type StructuredResult struct {
	SourceID    string            `json:"source_id"`
	Fields      []Field           `json:"fields"`
	FieldCodes  map[string]string `json:"field_codes,omitempty"`
	Confidence  float64           `json:"confidence"`
	MatchScore  float64           `json:"match_score"`
	ExtractedAt time.Time         `json:"extracted_at"`
}

// FieldValue returns the value of the named field, or "" when absent.
func (r *StructuredResult) FieldValue(name string) string {
	for _, f := range r.Fields {
		if f.Name == name {
			return f.Value
		}
	}
	return ""
}

// SearchResponse is the merged, ranked answer for one search call. Filled
// incrementally during the search; never mutated after return.
type SearchResponse struct {
	ID                  string             `json:"id"`
	Query               string             `json:"query"`
	InputType           InputType          `json:"input_type"`
	Jurisdiction        string             `json:"jurisdiction"`
	SourcesQueried      int                `json:"sources_queried"`
	SourcesSucceeded    int                `json:"sources_succeeded"`
	TotalResults        int                `json:"total_results"`
	Results             []StructuredResult `json:"results"`
	Errors              []SourceError      `json:"errors,omitempty"`
	Advisory            *Advisory          `json:"advisory,omitempty"`
	TotalLatencySeconds float64            `json:"total_latency_seconds"`
	CreatedAt           time.Time          `json:"created_at"`
}

// AddError appends a per-source error entry.
func (r *SearchResponse) AddError(t ErrorType, sourceID, msg string) {
	r.Errors = append(r.Errors, SourceError{Type: t, SourceID: sourceID, Message: msg})
}
