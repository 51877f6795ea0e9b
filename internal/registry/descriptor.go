package registry

import (
	"encoding/json"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/osintops/dragnet/internal/model"
)

// descriptor is the tolerated wire shape of one source record. Catalog files
// come from several provenances, so almost everything is optional.
type descriptor struct {
	ID            string                    `json:"id" yaml:"id"`
	Domain        string                    `json:"domain" yaml:"domain"`
	Name          string                    `json:"name" yaml:"name"`
	Jurisdiction  string                    `json:"jurisdiction" yaml:"jurisdiction"`
	Jurisdictions []string                  `json:"jurisdictions" yaml:"jurisdictions"`
	InputType     string                    `json:"input_type" yaml:"input_type"`
	ThematicTags  []string                  `json:"thematic_tags" yaml:"thematic_tags"`
	AccessTier    string                    `json:"access_tier" yaml:"access_tier"`
	URLTemplate   string                    `json:"url_template" yaml:"url_template"`
	OutputSchema  *model.OutputSchema       `json:"output_schema" yaml:"output_schema"`
	Reliability   *model.ReliabilityMetrics `json:"reliability" yaml:"reliability"`
}

// QueryPlaceholder is the token in a URL template replaced by the encoded
// query at fetch time.
const QueryPlaceholder = "{query}"

// ParseJSON decodes raw descriptor data that is either a flat list or a
// jurisdiction-keyed map of lists. Unknown shapes yield no sources and a
// warning, never an error.
func ParseJSON(raw []byte) []*model.Source {
	var flat []descriptor
	if err := json.Unmarshal(raw, &flat); err == nil {
		return normalizeAll(flat, "")
	}

	var keyed map[string][]descriptor
	if err := json.Unmarshal(raw, &keyed); err == nil {
		var out []*model.Source
		for jurisdiction, list := range keyed {
			out = append(out, normalizeAll(list, jurisdiction)...)
		}
		return out
	}

	zap.L().Warn("registry: unrecognized descriptor shape, skipping document")
	return nil
}

// ParseYAML is ParseJSON for YAML catalog files.
func ParseYAML(raw []byte) []*model.Source {
	var flat []descriptor
	if err := yaml.Unmarshal(raw, &flat); err == nil {
		return normalizeAll(flat, "")
	}

	var keyed map[string][]descriptor
	if err := yaml.Unmarshal(raw, &keyed); err == nil {
		var out []*model.Source
		for jurisdiction, list := range keyed {
			out = append(out, normalizeAll(list, jurisdiction)...)
		}
		return out
	}

	zap.L().Warn("registry: unrecognized descriptor shape, skipping document")
	return nil
}

func normalizeAll(list []descriptor, fallbackJurisdiction string) []*model.Source {
	var out []*model.Source
	for i := range list {
		out = append(out, list[i].normalize(fallbackJurisdiction)...)
	}
	return out
}

// normalize maps one tolerated descriptor into zero or more typed sources. A
// descriptor listing several jurisdictions materializes one source per
// jurisdiction with a suffixed id, so the local-jurisdiction boost applies in
// each of them.
func (d *descriptor) normalize(fallbackJurisdiction string) []*model.Source {
	id := strings.TrimSpace(d.ID)
	if id == "" {
		id = strings.TrimSpace(d.Domain)
	}
	if id == "" {
		zap.L().Warn("registry: dropping descriptor without id or domain",
			zap.String("name", d.Name))
		return nil
	}

	jurisdictions := d.Jurisdictions
	if len(jurisdictions) == 0 {
		j := d.Jurisdiction
		if j == "" {
			j = fallbackJurisdiction
		}
		if j == "" {
			j = model.JurisdictionGlobal
		}
		jurisdictions = []string{j}
	}

	template := strings.TrimSpace(d.URLTemplate)
	if template != "" && !strings.Contains(template, QueryPlaceholder) {
		zap.L().Warn("registry: url template has no query placeholder, source kept inspect-only",
			zap.String("id", id))
		template = ""
	}

	inputType := model.InputType(strings.TrimSpace(d.InputType))
	if inputType == "" {
		inputType = model.InputCompanyName
	}

	tier := model.AccessTier(strings.TrimSpace(d.AccessTier))
	if tier == "" {
		tier = model.TierOpen
	}

	var out []*model.Source
	for _, j := range jurisdictions {
		jurisdiction := strings.ToUpper(strings.TrimSpace(j))
		if jurisdiction == "" {
			jurisdiction = model.JurisdictionGlobal
		}

		sourceID := id
		if len(jurisdictions) > 1 {
			sourceID = id + "-" + strings.ToLower(jurisdiction)
		}

		reliability := &model.ReliabilityMetrics{}
		if d.Reliability != nil {
			seeded := *d.Reliability
			reliability = &seeded
		}
		reliability.RecomputeRate()

		out = append(out, &model.Source{
			ID:           sourceID,
			Name:         d.Name,
			Jurisdiction: jurisdiction,
			InputType:    inputType,
			ThematicTags: d.ThematicTags,
			AccessTier:   tier,
			URLTemplate:  template,
			OutputSchema: d.OutputSchema,
			Reliability:  reliability,
		})
	}
	return out
}
