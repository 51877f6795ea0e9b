//go:build !integration

package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/osintops/dragnet/internal/model"
)

func TestFormatResponse_WithResultsAndErrors(t *testing.T) {
	resp := &model.SearchResponse{
		ID:                  "resp-1",
		Query:               "acme",
		Jurisdiction:        "HU",
		SourcesQueried:      2,
		SourcesSucceeded:    1,
		TotalResults:        1,
		TotalLatencySeconds: 2.5,
		Results: []model.StructuredResult{{
			SourceID:   "hu_cegjegyzek",
			MatchScore: 0.91,
			Fields: []model.Field{
				{Name: "name", Value: "Acme Holdings Kft"},
				{Name: "reg_no", Value: "01-09-123456"},
			},
		}},
		Errors: []model.SourceError{{
			Type:     model.ErrorFetchFailed,
			SourceID: "de_handelsregister",
			Message:  "status 503",
		}},
	}

	var buf bytes.Buffer
	formatResponse(&buf, resp)
	out := buf.String()

	assert.Contains(t, out, "acme")
	assert.Contains(t, out, "2 queried, 1 succeeded")
	assert.Contains(t, out, "[1] hu_cegjegyzek (match 0.91)")
	assert.Contains(t, out, "name: Acme Holdings Kft")
	assert.Contains(t, out, "reg_no: 01-09-123456")
	assert.Contains(t, out, "Errors:")
	assert.Contains(t, out, "de_handelsregister")
	assert.Contains(t, out, "status 503")
	assert.NotContains(t, out, "No results.")
}

func TestFormatResponse_Empty(t *testing.T) {
	resp := &model.SearchResponse{
		ID:           "resp-2",
		Query:        "ghost corp",
		Jurisdiction: "DE",
	}

	var buf bytes.Buffer
	formatResponse(&buf, resp)
	out := buf.String()

	assert.Contains(t, out, "No results.")
	assert.NotContains(t, out, "Errors:")
}

func TestFormatResponse_DeadEndAdvisory(t *testing.T) {
	resp := &model.SearchResponse{
		Query:        "acme beneficial owners",
		Jurisdiction: "HU",
		Advisory: &model.Advisory{
			Proceed:       false,
			DeadEndReason: "beneficial ownership data is not public in HU",
			Alternatives: []model.ArbitrageSuggestion{{
				Route: model.ArbitrageRoute{
					SourceJurisdiction: "DE",
					SourceRegistry:     "handelsregister",
					InfoTypes:          []string{"ownership"},
				},
				Confidence: model.ConfidenceHigh,
			}},
			EstimatedSuccess: model.EstimateLow,
		},
	}

	var buf bytes.Buffer
	formatResponse(&buf, resp)
	out := buf.String()

	assert.Contains(t, out, "Advisory: beneficial ownership data is not public in HU")
	assert.Contains(t, out, "alternative: handelsregister (DE, high confidence)")
}
