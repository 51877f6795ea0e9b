package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeuristic_HeaderRowNamesFields(t *testing.T) {
	html := `<html><body>
<table>
<tr><th>Name</th><th>Registration</th></tr>
<tr><td>Acme Holdings Kft.</td><td>01-09-123456</td></tr>
<tr><td>Acme Trade Kft.</td><td>01-09-654321</td></tr>
</table>
</body></html>`

	ex, err := Extract(Input{SourceID: "unknown_site", Body: []byte(html), Query: "Acme Holdings"})
	require.NoError(t, err)
	assert.False(t, ex.Degraded)
	require.Len(t, ex.Results, 2)

	r0 := ex.Results[0]
	assert.Equal(t, "Acme Holdings Kft.", r0.FieldValue("Name"))
	assert.Equal(t, "01-09-123456", r0.FieldValue("Registration"))
	assert.Equal(t, ConfidenceHeuristic, r0.Confidence)
	assert.Empty(t, r0.FieldCodes, "heuristic rows carry no semantic codes")
}

func TestHeuristic_SynthesizedColumnNames(t *testing.T) {
	html := `<table><tr><td>Acme Holdings Kft.</td><td>Budapest</td></tr></table>`

	ex, err := Extract(Input{SourceID: "unknown_site", Body: []byte(html), Query: "Acme"})
	require.NoError(t, err)
	require.Len(t, ex.Results, 1)
	assert.Equal(t, "Acme Holdings Kft.", ex.Results[0].FieldValue("col_1"))
	assert.Equal(t, "Budapest", ex.Results[0].FieldValue("col_2"))
}

func TestHeuristic_FirstTwoTablesOnly(t *testing.T) {
	// Deep pages bury navigation and footer tables after the results; only
	// the leading tables are worth scanning.
	html := `
<table><tr><td>Alpha Kft.</td></tr></table>
<table><tr><td>Beta Kft.</td></tr></table>
<table><tr><td>Footer links</td></tr></table>`

	ex, err := Extract(Input{SourceID: "unknown_site", Body: []byte(html), Query: "Alpha"})
	require.NoError(t, err)
	require.Len(t, ex.Results, 2)
	assert.Equal(t, "Alpha Kft.", ex.Results[0].FieldValue("col_1"))
	assert.Equal(t, "Beta Kft.", ex.Results[1].FieldValue("col_1"))
}

func TestHeuristic_EmptyCellsSkipped(t *testing.T) {
	html := `<table>
<tr><td></td><td>Acme Kft.</td></tr>
<tr><td></td><td></td></tr>
</table>`

	ex, err := Extract(Input{SourceID: "unknown_site", Body: []byte(html), Query: "Acme"})
	require.NoError(t, err)
	require.Len(t, ex.Results, 1, "a row with no populated cells is dropped")

	r0 := ex.Results[0]
	assert.Empty(t, r0.FieldValue("col_1"))
	assert.Equal(t, "Acme Kft.", r0.FieldValue("col_2"))
}

func TestHeuristic_HeaderOnlyTable(t *testing.T) {
	html := `<table><tr><th>Name</th><th>Registration</th></tr></table>`

	ex, err := Extract(Input{SourceID: "unknown_site", Body: []byte(html), Query: "Acme"})
	assert.ErrorIs(t, err, ErrNoExtractableContent)
	assert.Nil(t, ex)
}
