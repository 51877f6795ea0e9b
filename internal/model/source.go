package model

// JurisdictionGlobal marks sources and catalog entries not tied to any single
// country.
const JurisdictionGlobal = "GLOBAL"

// InputType is the kind of query value a source accepts.
type InputType string

const (
	InputCompanyName    InputType = "company_name"
	InputPersonName     InputType = "person_name"
	InputRegistrationID InputType = "registration_id"
	InputAddress        InputType = "address"
	InputFreeKeyword    InputType = "free_keyword"
)

// AccessTier grades how much friction stands between a caller and a source.
type AccessTier string

const (
	TierOpen       AccessTier = "open"
	TierRestricted AccessTier = "restricted"
	TierPaywalled  AccessTier = "paywalled"
)

// ResultType classifies the layout of a source's result page.
type ResultType string

const (
	ResultTable        ResultType = "table"
	ResultList         ResultType = "list"
	ResultCards        ResultType = "cards"
	ResultSingleRecord ResultType = "singleRecord"
	ResultJSONAPI      ResultType = "jsonApi"
	ResultNoResults    ResultType = "noResults"
)

// SchemaField is one extractable column of a learned output schema. Selector
// is a CSS selector for HTML result types and a JSON path for jsonApi.
type SchemaField struct {
	Name          string `json:"name"`
	Selector      string `json:"selector"`
	DataType      string `json:"data_type,omitempty"`
	AlwaysPresent bool   `json:"always_present,omitempty"`
}

// OutputSchema is a learned description of a source's result page, produced by
// an offline schema-learning process and consumed read-only here.
type OutputSchema struct {
	ResultType               ResultType    `json:"result_type"`
	ResultsContainerSelector string        `json:"results_container_selector,omitempty"`
	RowSelector              string        `json:"row_selector,omitempty"`
	Fields                   []SchemaField `json:"fields"`
}

// ReliabilityMetrics accumulates fetch outcomes for one source. Every Source
// owns exactly one instance for the process lifetime and only the reliability
// tracker mutates it.
type ReliabilityMetrics struct {
	SuccessCount        int     `json:"success_count"`
	FailureCount        int     `json:"failure_count"`
	ConsecutiveFailures int     `json:"consecutive_failures"`
	AvgLatencySeconds   float64 `json:"avg_latency_seconds"`
	SuccessRate         float64 `json:"success_rate"`
}

// HasHistory reports whether any fetch attempt has been recorded.
func (m *ReliabilityMetrics) HasHistory() bool {
	return m.SuccessCount+m.FailureCount > 0
}

// RecomputeRate refreshes SuccessRate from the recorded counts.
func (m *ReliabilityMetrics) RecomputeRate() {
	total := m.SuccessCount + m.FailureCount
	if total == 0 {
		m.SuccessRate = 0
		return
	}
	m.SuccessRate = float64(m.SuccessCount) / float64(total)
}

// Source is a queryable external endpoint. Created once at registry load;
// immutable afterwards except for Reliability.
type Source struct {
	ID           string              `json:"id"`
	Name         string              `json:"name,omitempty"`
	Jurisdiction string              `json:"jurisdiction"`
	InputType    InputType           `json:"input_type"`
	ThematicTags []string            `json:"thematic_tags,omitempty"`
	AccessTier   AccessTier          `json:"access_tier"`
	URLTemplate  string              `json:"url_template,omitempty"`
	OutputSchema *OutputSchema       `json:"output_schema,omitempty"`
	Reliability  *ReliabilityMetrics `json:"reliability,omitempty"`
}

// Executable reports whether the source can be queried at all. Sources without
// a URL template stay inspectable by id but never enter selection.
func (s *Source) Executable() bool {
	return s.URLTemplate != ""
}

// HasTag reports whether the source carries the given thematic tag.
func (s *Source) HasTag(tag string) bool {
	for _, t := range s.ThematicTags {
		if t == tag {
			return true
		}
	}
	return false
}

// TagOverlap counts how many of the given tags the source carries.
func (s *Source) TagOverlap(tags []string) int {
	n := 0
	for _, t := range tags {
		if s.HasTag(t) {
			n++
		}
	}
	return n
}
