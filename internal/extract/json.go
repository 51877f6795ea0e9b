package extract

import (
	"strings"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/osintops/dragnet/internal/model"
)

// jsonRows extracts rows from a JSON API response. The container selector is
// a gjson path to the results array; field selectors are paths relative to
// each element.
func jsonRows(in Input) []model.StructuredResult {
	if !gjson.ValidBytes(in.Body) {
		zap.L().Debug("extract: invalid json body", zap.String("source_id", in.SourceID))
		return nil
	}

	s := in.Schema
	root := gjson.ParseBytes(in.Body)
	container := root
	if s.ResultsContainerSelector != "" {
		container = root.Get(s.ResultsContainerSelector)
		if !container.Exists() {
			return nil
		}
	}

	var elems []gjson.Result
	if container.IsArray() {
		elems = container.Array()
	} else {
		elems = []gjson.Result{container}
	}

	var out []model.StructuredResult
	for _, elem := range elems {
		if r, ok := jsonFields(elem, s.Fields); ok {
			out = append(out, r)
		}
	}
	return out
}

func jsonFields(elem gjson.Result, schema []model.SchemaField) (model.StructuredResult, bool) {
	var fields []model.Field
	var codes map[string]string
	for _, f := range schema {
		if f.Selector == "" {
			continue
		}
		val := strings.TrimSpace(elem.Get(f.Selector).String())
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
