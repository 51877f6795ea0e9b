// Package merge collapses structured results from many sources into one
// deduplicated, deterministically ranked answer set.
package merge

import (
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/osintops/dragnet/internal/model"
)

// Merge deduplicates results by identity key and ranks them descending by
// the (matchScore, confidence) pair. On a key collision the result with the
// greater pair survives; an exact tie keeps the earlier result. Results
// carrying no identity at all are always retained.
func Merge(results []model.StructuredResult) []model.StructuredResult {
	if len(results) == 0 {
		return nil
	}

	byKey := make(map[string]int, len(results))
	out := make([]model.StructuredResult, 0, len(results))
	dropped := 0

	for _, r := range results {
		key, ok := IdentityKey(r)
		if !ok {
			key = fallbackKey()
		}
		at, seen := byKey[key]
		if !seen {
			byKey[key] = len(out)
			out = append(out, r)
			continue
		}
		if ranksAbove(r, out[at]) {
			out[at] = r
		}
		dropped++
	}

	sort.SliceStable(out, func(i, j int) bool { return ranksAbove(out[i], out[j]) })

	if dropped > 0 {
		zap.L().Debug("merge: duplicates collapsed",
			zap.Int("in", len(results)),
			zap.Int("out", len(out)),
		)
	}
	return out
}

// ranksAbove reports whether a outranks b: higher matchScore wins, then
// higher confidence.
func ranksAbove(a, b model.StructuredResult) bool {
	if a.MatchScore != b.MatchScore {
		return a.MatchScore > b.MatchScore
	}
	return a.Confidence > b.Confidence
}

// IdentityFields returns the raw values of the first name-like field and the
// first registration or identifier-like field of a result. Either may be
// empty.
func IdentityFields(r model.StructuredResult) (name, registration string) {
	for _, f := range r.Fields {
		code := ""
		if r.FieldCodes != nil {
			code = r.FieldCodes[f.Name]
		}
		switch {
		case name == "" && isNameLike(f.Name, code):
			name = f.Value
		case registration == "" && isIDLike(f.Name, code):
			registration = f.Value
		}
	}
	return name, registration
}

// IdentityKey derives the dedup key for a result: the first name-like field
// followed by the first registration or identifier-like field, lower-cased
// and trimmed, joined with "|". Returns false when the result carries no
// identity-bearing field.
func IdentityKey(r model.StructuredResult) (string, bool) {
	name, id := IdentityFields(r)

	var parts []string
	if v := keyPart(name); v != "" {
		parts = append(parts, v)
	}
	if v := keyPart(id); v != "" {
		parts = append(parts, v)
	}
	if len(parts) == 0 {
		return "", false
	}
	return strings.Join(parts, "|"), true
}

// fallbackKey is unique per call, so identity-less results never collide
// with each other or with real keys.
func fallbackKey() string {
	return "anon|" + uuid.NewString()
}

func keyPart(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

var nameCodes = map[string]bool{
	"company_name": true,
	"person_name":  true,
	"entity_name":  true,
	"full_name":    true,
	"vessel_name":  true,
}

var idCodes = map[string]bool{
	"registration_id":     true,
	"registration_number": true,
	"company_number":      true,
	"tax_id":              true,
	"vat_number":          true,
	"vessel_imo":          true,
	"license_number":      true,
	"identifier":          true,
}

func isNameLike(fieldName, code string) bool {
	if nameCodes[code] {
		return true
	}
	n := strings.ToLower(fieldName)
	return strings.Contains(n, "name") || n == "company" || n == "entity"
}

// isIDLike matches the registration-number and identifier labels seen across
// registries, including heuristic table headers like "Reg. No.".
func isIDLike(fieldName, code string) bool {
	if idCodes[code] {
		return true
	}
	n := strings.ToLower(fieldName)
	if n == "id" || strings.HasSuffix(n, "_id") {
		return true
	}
	for _, marker := range []string{"reg", "number", "imo", "vat", "tax", "identifier", "license"} {
		if strings.Contains(n, marker) {
			return true
		}
	}
	return false
}
