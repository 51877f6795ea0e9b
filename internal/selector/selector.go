package selector

import (
	"go.uber.org/zap"

	"github.com/osintops/dragnet/internal/model"
	"github.com/osintops/dragnet/internal/registry"
)

// Request describes one selection round.
type Request struct {
	InputType      model.InputType `json:"input_type"`
	Jurisdiction   string          `json:"jurisdiction"`
	ThematicFilter []string        `json:"thematic_filter,omitempty"`
	MaxSources     int             `json:"max_sources"`
	IncludeGlobal  bool            `json:"include_global"`
}

// ScoredSource pairs a candidate with its selection score and the raw
// components behind it.
type ScoredSource struct {
	Source     *model.Source      `json:"source"`
	Score      float64            `json:"score"`
	Components map[string]float64 `json:"components,omitempty"`
}

// Selector ranks candidate sources for a request using live reliability
// metrics and static fit multipliers.
type Selector struct {
	registry *registry.Registry
}

// New creates a Selector over the loaded registry.
func New(reg *registry.Registry) *Selector {
	return &Selector{registry: reg}
}

// Select returns the top candidates for the request, best first.
func (s *Selector) Select(req Request) []*model.Source {
	ranked := s.Rank(req)
	out := make([]*model.Source, 0, len(ranked))
	for _, r := range ranked {
		out = append(out, r.Source)
	}
	return out
}

// Rank scores every eligible candidate and returns them sorted descending,
// truncated to MaxSources when it is positive.
func (s *Selector) Rank(req Request) []ScoredSource {
	pool := s.registry.ByJurisdiction(req.Jurisdiction)
	if req.IncludeGlobal && req.Jurisdiction != model.JurisdictionGlobal {
		pool = append(append([]*model.Source{}, pool...),
			s.registry.ByJurisdiction(model.JurisdictionGlobal)...)
	}

	var ranked []ScoredSource
	for _, src := range pool {
		if !inputCompatible(src.InputType, req.InputType) {
			continue
		}
		if len(req.ThematicFilter) > 0 && src.TagOverlap(req.ThematicFilter) == 0 {
			continue
		}
		score, components := scoreSource(src, req)
		ranked = append(ranked, ScoredSource{Source: src, Score: score, Components: components})
	}

	// Insertion sort descending; stable, so registry order breaks ties and
	// repeated runs rank identically.
	for i := 1; i < len(ranked); i++ {
		for j := i; j > 0 && ranked[j].Score > ranked[j-1].Score; j-- {
			ranked[j], ranked[j-1] = ranked[j-1], ranked[j]
		}
	}

	if req.MaxSources > 0 && len(ranked) > req.MaxSources {
		ranked = ranked[:req.MaxSources]
	}

	zap.L().Debug("selector: ranked candidates",
		zap.String("jurisdiction", req.Jurisdiction),
		zap.String("input_type", string(req.InputType)),
		zap.Int("pool", len(pool)),
		zap.Int("selected", len(ranked)))
	return ranked
}

// inputCompatible applies the one deliberate asymmetry: free-keyword requests
// may still use company-name sources.
func inputCompatible(source, requested model.InputType) bool {
	if source == requested {
		return true
	}
	return requested == model.InputFreeKeyword && source == model.InputCompanyName
}

// scoreSource computes the selection score. The constants are behavioral
// contracts shared with the catalog tooling; changing any of them reorders
// selections globally.
func scoreSource(src *model.Source, req Request) (float64, map[string]float64) {
	base := 0.5
	m := src.Reliability
	if m != nil && m.HasHistory() {
		base = m.SuccessRate
	}

	latencyMul := 1.0
	if m != nil {
		// Single matching tier, not cumulative.
		switch {
		case m.AvgLatencySeconds > 10:
			latencyMul = 0.5
		case m.AvgLatencySeconds > 5:
			latencyMul = 0.8
		}
	}

	failureMul := 1.0
	if m != nil {
		switch {
		case m.ConsecutiveFailures > 5:
			failureMul = 0.1
		case m.ConsecutiveFailures > 3:
			failureMul = 0.5
		}
	}

	// A local registry beats even a near-perfect global aggregator.
	jurisdictionMul := 1.0
	if src.Jurisdiction == req.Jurisdiction {
		jurisdictionMul = 10.0
	}

	inputMul := 1.0
	if src.InputType == req.InputType {
		inputMul = 1.2
	}

	thematicMul := 1.0 + 0.1*float64(src.TagOverlap(req.ThematicFilter))

	schemaMul := 1.0
	if src.OutputSchema != nil {
		schemaMul = 1.3
	}

	tierMul := 1.0
	if src.AccessTier == model.TierOpen {
		tierMul = 1.1
	}

	components := map[string]float64{
		"base":         base,
		"latency":      latencyMul,
		"failures":     failureMul,
		"jurisdiction": jurisdictionMul,
		"input_type":   inputMul,
		"thematic":     thematicMul,
		"schema":       schemaMul,
		"access_tier":  tierMul,
	}
	score := base * latencyMul * failureMul * jurisdictionMul * inputMul * thematicMul * schemaMul * tierMul
	return score, components
}
