package extract

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/osintops/dragnet/internal/model"
)

// MatchScore grades how well a result's fields answer the query, in [0,1].
// Exact case-insensitive equality wins outright; substring containment
// scores 0.9 (value contains query) or 0.8 (query contains value); otherwise
// the token-set Jaccard overlap scaled by 0.7. The maximum across fields is
// returned. Comparison folds diacritics so queries typed without accents
// still match registry spellings.
func MatchScore(query string, fields []model.Field) float64 {
	q := normalize(query)
	if q == "" {
		return 0
	}
	qTokens := tokenSet(q)

	best := 0.0
	for _, f := range fields {
		v := normalize(f.Value)
		if v == "" {
			continue
		}
		switch {
		case v == q:
			return 1.0
		case strings.Contains(v, q):
			best = max(best, 0.9)
		case strings.Contains(q, v):
			best = max(best, 0.8)
		default:
			best = max(best, overlapRatio(qTokens, tokenSet(v))*0.7)
		}
	}
	return best
}

// normalize lowercases, folds diacritics, and collapses whitespace.
func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(foldDiacritics(s))), " ")
}

// foldDiacritics strips combining marks. The transform chain carries state,
// so it is built per call rather than shared.
func foldDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		set[tok] = struct{}{}
	}
	return set
}

// overlapRatio is |a ∩ b| / |a ∪ b|.
func overlapRatio(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}
