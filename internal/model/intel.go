package model

import "time"

// DeadEnd is a catalog entry describing information known to be unobtainable
// in a jurisdiction. Static, loaded once, matched against live queries.
type DeadEnd struct {
	SoughtDescription string   `json:"sought_description"`
	Jurisdiction      string   `json:"jurisdiction"`
	Reason            string   `json:"reason"`
	AttemptedSources  []string `json:"attempted_sources,omitempty"`
}

// ArbitrageRoute points at a foreign registry that discloses information the
// target jurisdiction withholds.
type ArbitrageRoute struct {
	TargetJurisdiction string   `json:"target_jurisdiction"`
	SourceJurisdiction string   `json:"source_jurisdiction"`
	SourceRegistry     string   `json:"source_registry"`
	InfoTypes          []string `json:"info_types"`
	Explanation        string   `json:"explanation,omitempty"`
}

// FrictionLevel grades the effort a chain demands end to end.
type FrictionLevel string

const (
	FrictionOpen         FrictionLevel = "open"
	FrictionRegistration FrictionLevel = "registration"
	FrictionPaid         FrictionLevel = "paid"
	FrictionManual       FrictionLevel = "manual"
)

var frictionRank = map[FrictionLevel]int{
	FrictionOpen:         0,
	FrictionRegistration: 1,
	FrictionPaid:         2,
	FrictionManual:       3,
}

// Within reports whether the level is at or below the ceiling. An empty
// ceiling allows everything; an unrecognized level passes only an empty or
// manual ceiling.
func (f FrictionLevel) Within(ceiling FrictionLevel) bool {
	if ceiling == "" {
		return true
	}
	fr, ok := frictionRank[f]
	if !ok {
		fr = frictionRank[FrictionManual]
	}
	cr, ok := frictionRank[ceiling]
	if !ok {
		return false
	}
	return fr <= cr
}

// Chain is a pre-validated sequence of steps converting input capability codes
// into output capability codes within a jurisdiction.
type Chain struct {
	ID            string        `json:"id,omitempty"`
	Jurisdiction  string        `json:"jurisdiction"`
	InputCodes    []string      `json:"input_codes"`
	OutputCodes   []string      `json:"output_codes"`
	Steps         []string      `json:"steps,omitempty"`
	SuccessCount  int           `json:"success_count"`
	FrictionLevel FrictionLevel `json:"friction_level"`
}

// SuccessEstimate grades an advisory's expectation of a productive search.
type SuccessEstimate string

const (
	EstimateLow     SuccessEstimate = "low"
	EstimateMedium  SuccessEstimate = "medium"
	EstimateHigh    SuccessEstimate = "high"
	EstimateUnknown SuccessEstimate = "unknown"
)

// SuggestionConfidence grades how directly an arbitrage route matched the
// caller's query.
type SuggestionConfidence string

const (
	ConfidenceHigh   SuggestionConfidence = "high"
	ConfidenceMedium SuggestionConfidence = "medium"
)

// ArbitrageSuggestion is one ranked alternative route in an advisory.
type ArbitrageSuggestion struct {
	Route             ArbitrageRoute       `json:"route"`
	Confidence        SuggestionConfidence `json:"confidence"`
	MatchedCategories []string             `json:"matched_categories,omitempty"`
}

// Advisory is the pre-search assessment attached to every search response. It
// informs the caller; it never aborts a search on its own.
type Advisory struct {
	Proceed          bool                  `json:"proceed"`
	DeadEndReason    string                `json:"dead_end_reason,omitempty"`
	Alternatives     []ArbitrageSuggestion `json:"alternatives,omitempty"`
	EstimatedSuccess SuccessEstimate       `json:"estimated_success"`
}

// Entity is a consolidated identity distilled from stored search results by
// the ingest pipeline.
type Entity struct {
	ID           string    `json:"id"`
	IdentityKey  string    `json:"identity_key"`
	Name         string    `json:"name"`
	Registration string    `json:"registration,omitempty"`
	Jurisdiction string    `json:"jurisdiction"`
	SourceIDs    []string  `json:"source_ids,omitempty"`
	ResultCount  int       `json:"result_count"`
	FirstSeen    time.Time `json:"first_seen"`
	LastSeen     time.Time `json:"last_seen"`
}
