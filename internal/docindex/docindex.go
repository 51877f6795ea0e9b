// Package docindex is the Elasticsearch boundary: it hydrates the source
// registry from a document index and publishes finished search responses for
// analyst discovery. The core treats it as stateless input/output.
package docindex

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/osintops/dragnet/internal/model"
)

const (
	defaultSourceIndex   = "dragnet-sources"
	defaultResponseIndex = "dragnet-responses"
	defaultFetchSize     = 200
)

// Config holds connection and index naming for the document index.
type Config struct {
	Addresses     []string `yaml:"addresses" mapstructure:"addresses"`
	Username      string   `yaml:"username" mapstructure:"username"`
	Password      string   `yaml:"password" mapstructure:"password"`
	SourceIndex   string   `yaml:"source_index" mapstructure:"source_index"`
	ResponseIndex string   `yaml:"response_index" mapstructure:"response_index"`
}

// Index wraps an Elasticsearch client bound to the two dragnet indices.
type Index struct {
	client    *elasticsearch.Client
	sources   string
	responses string
}

// New creates an Index with its own Elasticsearch client.
func New(cfg Config) (*Index, error) {
	esCfg := elasticsearch.Config{Addresses: cfg.Addresses}
	if cfg.Username != "" {
		esCfg.Username = cfg.Username
		esCfg.Password = cfg.Password
	}
	client, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		return nil, eris.Wrap(err, "docindex: create client")
	}
	return NewWithClient(client, cfg), nil
}

// NewWithClient creates an Index over an existing client.
func NewWithClient(client *elasticsearch.Client, cfg Config) *Index {
	sources := cfg.SourceIndex
	if sources == "" {
		sources = defaultSourceIndex
	}
	responses := cfg.ResponseIndex
	if responses == "" {
		responses = defaultResponseIndex
	}
	return &Index{client: client, sources: sources, responses: responses}
}

// Ping tests the connection.
func (ix *Index) Ping(ctx context.Context) error {
	res, err := ix.client.Ping(ix.client.Ping.WithContext(ctx))
	if err != nil {
		return eris.Wrap(err, "docindex: ping")
	}
	defer res.Body.Close()
	if res.IsError() {
		return eris.Errorf("docindex: ping: %s", res.Status())
	}
	return nil
}

var indexMappings = map[string]string{
	defaultSourceIndex: `{
		"mappings": {
			"properties": {
				"id":            {"type": "keyword"},
				"name":          {"type": "text"},
				"jurisdiction":  {"type": "keyword"},
				"input_type":    {"type": "keyword"},
				"thematic_tags": {"type": "keyword"},
				"access_tier":   {"type": "keyword"},
				"url_template":  {"type": "keyword"}
			}
		}
	}`,
	defaultResponseIndex: `{
		"mappings": {
			"properties": {
				"id":           {"type": "keyword"},
				"query":        {"type": "text"},
				"input_type":   {"type": "keyword"},
				"jurisdiction": {"type": "keyword"},
				"created_at":   {"type": "date"}
			}
		}
	}`,
}

// EnsureIndices creates both indices with their mappings. Indices that
// already exist are left untouched.
func (ix *Index) EnsureIndices(ctx context.Context) error {
	for name, mapping := range map[string]string{
		ix.sources:   indexMappings[defaultSourceIndex],
		ix.responses: indexMappings[defaultResponseIndex],
	} {
		res, err := ix.client.Indices.Create(
			name,
			ix.client.Indices.Create.WithContext(ctx),
			ix.client.Indices.Create.WithBody(strings.NewReader(mapping)),
		)
		if err != nil {
			return eris.Wrapf(err, "docindex: create index %s", name)
		}
		body, _ := io.ReadAll(res.Body)
		res.Body.Close()
		if res.IsError() && !strings.Contains(string(body), "resource_already_exists_exception") {
			return eris.Errorf("docindex: create index %s: %s", name, res.Status())
		}
	}
	return nil
}

// SourceQuery narrows a registry hydration fetch. Zero-value fields match
// everything.
type SourceQuery struct {
	Jurisdiction string
	InputType    model.InputType
	ThematicTag  string
	Size         int
}

// FetchSources reads source descriptors matching the query. A jurisdiction
// filter always admits GLOBAL entries alongside local ones; selection weighs
// them later.
func (ix *Index) FetchSources(ctx context.Context, q SourceQuery) ([]model.Source, error) {
	body, err := json.Marshal(buildSourceQuery(q))
	if err != nil {
		return nil, eris.Wrap(err, "docindex: marshal query")
	}

	size := q.Size
	if size <= 0 {
		size = defaultFetchSize
	}

	res, err := ix.client.Search(
		ix.client.Search.WithContext(ctx),
		ix.client.Search.WithIndex(ix.sources),
		ix.client.Search.WithBody(bytes.NewReader(body)),
		ix.client.Search.WithSize(size),
	)
	if err != nil {
		return nil, eris.Wrap(err, "docindex: search sources")
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, eris.Errorf("docindex: search sources: %s", res.Status())
	}

	var envelope struct {
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				Source model.Source `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&envelope); err != nil {
		return nil, eris.Wrap(err, "docindex: decode search response")
	}

	out := make([]model.Source, 0, len(envelope.Hits.Hits))
	for _, h := range envelope.Hits.Hits {
		out = append(out, h.Source)
	}

	zap.L().Debug("docindex: sources hydrated",
		zap.Int("count", len(out)),
		zap.Int64("total", envelope.Hits.Total.Value),
		zap.String("jurisdiction", q.Jurisdiction),
	)
	return out, nil
}

// IndexResponse publishes one search response document, keyed by its id so
// republishing is an overwrite, not a duplicate.
func (ix *Index) IndexResponse(ctx context.Context, resp *model.SearchResponse) error {
	blob, err := json.Marshal(resp)
	if err != nil {
		return eris.Wrap(err, "docindex: marshal response")
	}

	res, err := ix.client.Index(
		ix.responses,
		bytes.NewReader(blob),
		ix.client.Index.WithContext(ctx),
		ix.client.Index.WithDocumentID(resp.ID),
	)
	if err != nil {
		return eris.Wrapf(err, "docindex: index response %s", resp.ID)
	}
	defer res.Body.Close()
	if res.IsError() {
		return eris.Errorf("docindex: index response %s: %s", resp.ID, res.Status())
	}
	return nil
}

// buildSourceQuery assembles a bool/filter query: exact keyword filters only,
// no scoring clauses.
func buildSourceQuery(q SourceQuery) map[string]any {
	var filters []any
	if q.Jurisdiction != "" {
		filters = append(filters, map[string]any{
			"bool": map[string]any{
				"should": []any{
					map[string]any{"term": map[string]any{"jurisdiction": q.Jurisdiction}},
					map[string]any{"term": map[string]any{"jurisdiction": model.JurisdictionGlobal}},
				},
				"minimum_should_match": 1,
			},
		})
	}
	if q.InputType != "" {
		filters = append(filters, map[string]any{
			"term": map[string]any{"input_type": string(q.InputType)},
		})
	}
	if q.ThematicTag != "" {
		filters = append(filters, map[string]any{
			"term": map[string]any{"thematic_tags": q.ThematicTag},
		})
	}

	boolQuery := map[string]any{}
	if len(filters) > 0 {
		boolQuery["filter"] = filters
	} else {
		boolQuery["must"] = []any{map[string]any{"match_all": map[string]any{}}}
	}
	return map[string]any{"query": map[string]any{"bool": boolQuery}}
}
