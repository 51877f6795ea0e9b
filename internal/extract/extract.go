// Package extract turns fetched page content into structured results, using
// a learned schema when the source carries one and heuristic table parsing
// otherwise.
package extract

import (
	"bytes"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/osintops/dragnet/internal/model"
)

// Confidence grades assigned to extracted rows.
const (
	ConfidenceSchemaRich   = 0.9 // schema extraction populated more than two fields
	ConfidenceSchemaSparse = 0.7
	ConfidenceHeuristic    = 0.5
)

// ErrNoExtractableContent marks a fetch whose content produced no rows by
// either extraction path.
var ErrNoExtractableContent = eris.New("extract: no extractable content")

// Input is one fetched page to extract.
type Input struct {
	SourceID    string
	Body        []byte
	ContentType string
	Query       string
	Schema      *model.OutputSchema
}

// Extraction is the outcome of extracting a single page.
type Extraction struct {
	Results []model.StructuredResult
	// Degraded is set when a learned schema produced nothing and the
	// heuristic fallback supplied the rows instead.
	Degraded bool
}

// Extract parses the page and returns one StructuredResult per extracted
// row, scored against the query. Returns ErrNoExtractableContent when
// neither path yields a row.
func Extract(in Input) (*Extraction, error) {
	// A noResults schema records that the learner saw no result structure,
	// so only the heuristic path applies.
	schemaUsable := in.Schema != nil && in.Schema.ResultType != model.ResultNoResults

	var results []model.StructuredResult
	if schemaUsable {
		results = bySchema(in)
	}

	degraded := false
	if len(results) == 0 {
		results = heuristicTables(in)
		degraded = schemaUsable && len(results) > 0
	}
	if len(results) == 0 {
		return nil, eris.Wrapf(ErrNoExtractableContent, "source %s", in.SourceID)
	}
	if degraded {
		zap.L().Warn("extract: learned schema produced no rows, heuristic fallback used",
			zap.String("source_id", in.SourceID),
			zap.String("error_type", string(model.ErrorExtractionDegraded)),
		)
	}

	now := time.Now().UTC()
	for i := range results {
		results[i].SourceID = in.SourceID
		results[i].MatchScore = MatchScore(in.Query, results[i].Fields)
		results[i].ExtractedAt = now
	}
	return &Extraction{Results: results, Degraded: degraded}, nil
}

func bySchema(in Input) []model.StructuredResult {
	if in.Schema.ResultType == model.ResultJSONAPI || looksJSON(in.ContentType, in.Body) {
		return jsonRows(in)
	}
	return htmlRows(in)
}

func htmlRows(in Input) []model.StructuredResult {
	s := in.Schema
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(in.Body))
	if err != nil {
		zap.L().Debug("extract: html parse failed",
			zap.String("source_id", in.SourceID),
			zap.Error(err),
		)
		return nil
	}

	container := doc.Selection
	if s.ResultsContainerSelector != "" {
		found := doc.Find(s.ResultsContainerSelector).First()
		if found.Length() == 0 {
			return nil
		}
		container = found
	}

	var rows *goquery.Selection
	switch {
	case s.RowSelector != "":
		rows = container.Find(s.RowSelector)
	case s.ResultType == model.ResultTable:
		rows = container.Find("tbody tr")
		if rows.Length() == 0 {
			rows = container.Find("tr")
		}
	case s.ResultType == model.ResultList:
		rows = container.Find("li")
	case s.ResultType == model.ResultCards:
		rows = container.Find(".card, .result, .item")
	default:
		// singleRecord and unclassified layouts: the container is the row.
		rows = container
	}

	var out []model.StructuredResult
	rows.Each(func(_ int, row *goquery.Selection) {
		if r, ok := rowFields(row, s.Fields); ok {
			out = append(out, r)
		}
	})
	return out
}

// rowFields extracts the declared fields from one row. Fields resolving to
// empty are skipped; a row with no populated fields is dropped entirely.
func rowFields(row *goquery.Selection, schema []model.SchemaField) (model.StructuredResult, bool) {
	var fields []model.Field
	var codes map[string]string
	for _, f := range schema {
		if f.Selector == "" {
			continue
		}
		val := strings.TrimSpace(row.Find(f.Selector).First().Text())
		if val == "" {
			continue
		}
		fields = append(fields, model.Field{Name: f.Name, Value: val})
		if f.DataType != "" {
			if codes == nil {
				codes = make(map[string]string)
			}
			codes[f.Name] = f.DataType
		}
	}
	if len(fields) == 0 {
		return model.StructuredResult{}, false
	}
	return model.StructuredResult{
		Fields:     fields,
		FieldCodes: codes,
		Confidence: schemaConfidence(len(fields)),
	}, true
}

func schemaConfidence(populated int) float64 {
	if populated > 2 {
		return ConfidenceSchemaRich
	}
	return ConfidenceSchemaSparse
}

func looksJSON(contentType string, body []byte) bool {
	if strings.Contains(contentType, "json") {
		return true
	}
	trimmed := bytes.TrimSpace(body)
	return len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[')
}
