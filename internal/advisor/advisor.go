package advisor

import (
	"github.com/osintops/dragnet/internal/model"
)

// Advisor answers pre-search questions from the static intelligence catalogs:
// known dead ends, cross-jurisdiction arbitrage routes, and pre-validated
// capability chains. Catalogs load once at startup and never mutate.
type Advisor struct {
	deadEnds []model.DeadEnd
	routes   []model.ArbitrageRoute
	chains   []model.Chain
}

// New creates an Advisor over the given catalogs.
func New(deadEnds []model.DeadEnd, routes []model.ArbitrageRoute, chains []model.Chain) *Advisor {
	return &Advisor{deadEnds: deadEnds, routes: routes, chains: chains}
}

// IsDeadEnd reports whether the query asks for something the catalog marks
// unobtainable in the jurisdiction, and returns the catalog's verbatim reason.
// A catalog entry applies when its jurisdiction is the target or GLOBAL, and
// it matches when the query covers at least half the sought phrase's tokens or
// both mention a phrase from the same canonical group.
func (a *Advisor) IsDeadEnd(query, jurisdiction string) (bool, string) {
	queryTokens := tokenSet(query)
	for i := range a.deadEnds {
		d := &a.deadEnds[i]
		if d.Jurisdiction != jurisdiction && d.Jurisdiction != model.JurisdictionGlobal {
			continue
		}

		sought := tokenize(d.SoughtDescription)
		if len(sought) > 0 {
			shared := 0
			for _, tok := range sought {
				if queryTokens[tok] {
					shared++
				}
			}
			if float64(shared) >= 0.5*float64(len(sought)) {
				return true, d.Reason
			}
		}

		if sharePhraseGroup(query, d.SoughtDescription) {
			return true, d.Reason
		}
	}
	return false, ""
}

// SuggestArbitrage returns ranked foreign-registry routes for the target
// jurisdiction. When the query yields relevance categories, only routes whose
// info types intersect them are kept, at high confidence; a query with no
// derivable category keeps every target-matching route at medium confidence.
func (a *Advisor) SuggestArbitrage(jurisdiction, query string) []model.ArbitrageSuggestion {
	categories := deriveCategories(query)

	var out []model.ArbitrageSuggestion
	for i := range a.routes {
		r := &a.routes[i]
		if r.TargetJurisdiction != jurisdiction {
			continue
		}
		if len(categories) == 0 {
			out = append(out, model.ArbitrageSuggestion{
				Route:      *r,
				Confidence: model.ConfidenceMedium,
			})
			continue
		}
		matched := intersect(r.InfoTypes, categories)
		if len(matched) == 0 {
			continue
		}
		out = append(out, model.ArbitrageSuggestion{
			Route:             *r,
			Confidence:        model.ConfidenceHigh,
			MatchedCategories: matched,
		})
	}

	// Insertion sort by matched-category count descending; stable so catalog
	// order breaks ties.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && len(out[j].MatchedCategories) > len(out[j-1].MatchedCategories); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// ScoredChain pairs a chain with its query-time score.
type ScoredChain struct {
	Chain model.Chain `json:"chain"`
	Score float64     `json:"score"`
}

// FindChains returns chains accepting at least one held code and producing at
// least one wanted code, within the jurisdiction and friction ceiling, ranked
// by empirical success, want coverage, and openness.
func (a *Advisor) FindChains(have, want []string, jurisdiction string, maxFriction model.FrictionLevel) []ScoredChain {
	var out []ScoredChain
	for i := range a.chains {
		c := &a.chains[i]
		if jurisdiction != "" && c.Jurisdiction != jurisdiction {
			continue
		}
		if !c.FrictionLevel.Within(maxFriction) {
			continue
		}
		if len(intersect(c.InputCodes, have)) == 0 {
			continue
		}
		wantOverlap := len(intersect(c.OutputCodes, want))
		if wantOverlap == 0 {
			continue
		}

		score := float64(c.SuccessCount) + 10*float64(wantOverlap)
		if c.FrictionLevel == model.FrictionOpen {
			score += 5
		}
		out = append(out, ScoredChain{Chain: *c, Score: score})
	}

	// Simple insertion sort is fine for catalog-sized inputs.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Score > out[j-1].Score; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// AdviseBeforeAction combines the dead-end check with arbitrage alternatives
// into one pre-search assessment. The advisory informs the caller; it never
// blocks a search by itself.
func (a *Advisor) AdviseBeforeAction(query, jurisdiction string) *model.Advisory {
	dead, reason := a.IsDeadEnd(query, jurisdiction)
	if !dead {
		return &model.Advisory{Proceed: true, EstimatedSuccess: model.EstimateUnknown}
	}

	alternatives := a.SuggestArbitrage(jurisdiction, query)
	if len(alternatives) == 0 {
		return &model.Advisory{
			Proceed:          false,
			DeadEndReason:    reason,
			EstimatedSuccess: model.EstimateLow,
		}
	}
	return &model.Advisory{
		Proceed:          true,
		DeadEndReason:    reason,
		Alternatives:     alternatives,
		EstimatedSuccess: model.EstimateMedium,
	}
}
