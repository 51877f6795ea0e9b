package advisor

import (
	"sort"
	"strings"
)

// tokenize lowercases and splits on non-alphanumeric runs.
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range tokenize(s) {
		set[tok] = true
	}
	return set
}

// phraseGroups are canonical equivalences. A query and a sought description
// that each mention a phrase from the same group describe the same
// information need even when their tokens barely overlap.
var phraseGroups = [][]string{
	{"beneficial owner", "beneficial ownership", "ubo", "ultimate beneficial"},
	{"shareholder", "share register", "equity holder"},
	{"director", "officer", "board member"},
	{"sanction", "watchlist", "embargo"},
	{"financial statement", "annual report", "annual accounts"},
}

// sharePhraseGroup reports whether both strings contain a phrase from one of
// the canonical groups.
func sharePhraseGroup(a, b string) bool {
	la, lb := strings.ToLower(a), strings.ToLower(b)
	for _, group := range phraseGroups {
		aHit, bHit := false, false
		for _, phrase := range group {
			if strings.Contains(la, phrase) {
				aHit = true
			}
			if strings.Contains(lb, phrase) {
				bHit = true
			}
		}
		if aHit && bHit {
			return true
		}
	}
	return false
}

// categoryKeywords maps relevance categories, in the vocabulary arbitrage
// routes use for their info types, to the query keywords that signal them.
var categoryKeywords = map[string][]string{
	"beneficial_ownership": {"beneficial", "ubo", "ultimate owner"},
	"shareholders":         {"shareholder", "share register", "equity"},
	"directors":            {"director", "officer", "board"},
	"financials":           {"financial", "accounts", "revenue", "balance sheet"},
	"sanctions":            {"sanction", "watchlist", "embargo"},
	"litigation":           {"court", "lawsuit", "litigation", "judgment"},
	"real_estate":          {"property", "land registry", "cadastre", "real estate"},
}

// deriveCategories returns the relevance categories whose keywords appear in
// the query, sorted for deterministic output.
func deriveCategories(query string) []string {
	lq := strings.ToLower(query)
	var out []string
	for category, keywords := range categoryKeywords {
		for _, kw := range keywords {
			if strings.Contains(lq, kw) {
				out = append(out, category)
				break
			}
		}
	}
	sort.Strings(out)
	return out
}

// intersect returns the members of a that also appear in b, preserving a's
// order.
func intersect(a, b []string) []string {
	set := make(map[string]bool, len(b))
	for _, s := range b {
		set[s] = true
	}
	var out []string
	for _, s := range a {
		if set[s] {
			out = append(out, s)
		}
	}
	return out
}
