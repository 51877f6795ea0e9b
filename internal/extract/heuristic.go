package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/osintops/dragnet/internal/model"
)

// heuristicTables scans at most the first two tables in the content. Header
// cells become field names when the first row carries them; otherwise names
// are synthesized as col_N.
func heuristicTables(in Input) []model.StructuredResult {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(in.Body))
	if err != nil {
		return nil
	}

	var out []model.StructuredResult
	doc.Find("table").EachWithBreak(func(ti int, table *goquery.Selection) bool {
		if ti >= 2 {
			return false
		}
		out = append(out, tableRows(table)...)
		return true
	})
	return out
}

func tableRows(table *goquery.Selection) []model.StructuredResult {
	rows := table.Find("tr")
	if rows.Length() == 0 {
		return nil
	}

	var headers []string
	first := rows.First()
	if first.Find("th").Length() > 0 {
		first.Find("th").Each(func(_ int, th *goquery.Selection) {
			headers = append(headers, strings.TrimSpace(th.Text()))
		})
		rows = rows.Slice(1, rows.Length())
	}

	var out []model.StructuredResult
	rows.Each(func(_ int, row *goquery.Selection) {
		var fields []model.Field
		row.Find("td").Each(func(ci int, cell *goquery.Selection) {
			val := strings.TrimSpace(cell.Text())
			if val == "" {
				return
			}
			name := ""
			if ci < len(headers) {
				name = headers[ci]
			}
			if name == "" {
				name = fmt.Sprintf("col_%d", ci+1)
			}
			fields = append(fields, model.Field{Name: name, Value: val})
		})
		if len(fields) == 0 {
			return
		}
		out = append(out, model.StructuredResult{
			Fields:     fields,
			Confidence: ConfidenceHeuristic,
		})
	})
	return out
}
