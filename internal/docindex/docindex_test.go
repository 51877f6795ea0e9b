package docindex

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osintops/dragnet/internal/model"
)

// esHandler stamps the product header the v8 client checks for on every
// response.
func esHandler(fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		fn(w, r)
	}
}

func newTestIndex(t *testing.T, cfg Config, fn http.HandlerFunc) *Index {
	t.Helper()
	srv := httptest.NewServer(esHandler(fn))
	t.Cleanup(srv.Close)

	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{srv.URL}})
	require.NoError(t, err)
	return NewWithClient(client, cfg)
}

const sourceHitsBody = `{
	"took": 3,
	"hits": {
		"total": {"value": 2, "relation": "eq"},
		"hits": [
			{
				"_index": "dragnet-sources",
				"_id": "hu_cegjegyzek",
				"_source": {
					"id": "hu_cegjegyzek",
					"name": "Hungarian Company Registry",
					"jurisdiction": "HU",
					"input_type": "company_name",
					"thematic_tags": ["corporate"],
					"access_tier": "open",
					"url_template": "https://www.e-cegjegyzek.hu/?cegkereses={query}",
					"output_schema": {
						"result_type": "table",
						"row_selector": "tr.result",
						"fields": [{"name": "company_name", "selector": "td.name", "always_present": true}]
					}
				}
			},
			{
				"_index": "dragnet-sources",
				"_id": "opencorporates",
				"_source": {
					"id": "opencorporates",
					"jurisdiction": "GLOBAL",
					"input_type": "company_name",
					"access_tier": "open",
					"url_template": "https://opencorporates.com/companies?q={query}"
				}
			}
		]
	}
}`

func TestFetchSources_FiltersAndDecodes(t *testing.T) {
	var (
		gotMethod string
		gotPath   string
		gotSize   string
		gotQuery  struct {
			Query struct {
				Bool struct {
					Filter []map[string]any `json:"filter"`
					Must   []map[string]any `json:"must"`
				} `json:"bool"`
			} `json:"query"`
		}
	)
	ix := newTestIndex(t, Config{}, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotSize = r.URL.Query().Get("size")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotQuery))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(sourceHitsBody)) //nolint:errcheck
	})

	sources, err := ix.FetchSources(context.Background(), SourceQuery{
		Jurisdiction: "HU",
		InputType:    model.InputCompanyName,
	})
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/dragnet-sources/_search", gotPath)
	assert.Equal(t, "200", gotSize)
	assert.Len(t, gotQuery.Query.Bool.Filter, 2)
	assert.Empty(t, gotQuery.Query.Bool.Must)

	require.Len(t, sources, 2)
	assert.Equal(t, "hu_cegjegyzek", sources[0].ID)
	assert.Equal(t, "HU", sources[0].Jurisdiction)
	assert.Equal(t, model.TierOpen, sources[0].AccessTier)
	require.NotNil(t, sources[0].OutputSchema)
	assert.Equal(t, model.ResultTable, sources[0].OutputSchema.ResultType)
	assert.Equal(t, "GLOBAL", sources[1].Jurisdiction)
	assert.True(t, sources[1].Executable())
}

func TestFetchSources_MatchAllWhenUnfiltered(t *testing.T) {
	var body map[string]any
	ix := newTestIndex(t, Config{SourceIndex: "catalog"}, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/catalog/_search", r.URL.Path)
		assert.Equal(t, "50", r.URL.Query().Get("size"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"hits": {"total": {"value": 0}, "hits": []}}`)) //nolint:errcheck
	})

	sources, err := ix.FetchSources(context.Background(), SourceQuery{Size: 50})
	require.NoError(t, err)
	assert.Empty(t, sources)

	blob, err := json.Marshal(body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"query": {"bool": {"must": [{"match_all": {}}]}}}`, string(blob))
}

func TestFetchSources_ServerError(t *testing.T) {
	ix := newTestIndex(t, Config{}, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error": {"type": "search_phase_execution_exception"}}`)) //nolint:errcheck
	})

	_, err := ix.FetchSources(context.Background(), SourceQuery{Jurisdiction: "HU"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "search sources")
}

func TestIndexResponse_WritesByID(t *testing.T) {
	var (
		gotMethod string
		gotPath   string
		gotDoc    model.SearchResponse
	)
	ix := newTestIndex(t, Config{}, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotDoc))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"result": "created"}`)) //nolint:errcheck
	})

	resp := &model.SearchResponse{
		ID:           "resp-1",
		Query:        "acme holdings",
		InputType:    model.InputCompanyName,
		Jurisdiction: "HU",
		TotalResults: 3,
		CreatedAt:    time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, ix.IndexResponse(context.Background(), resp))

	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "/dragnet-responses/_doc/resp-1", gotPath)
	assert.Equal(t, "acme holdings", gotDoc.Query)
	assert.Equal(t, 3, gotDoc.TotalResults)
}

func TestIndexResponse_ServerError(t *testing.T) {
	ix := newTestIndex(t, Config{}, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error": {"type": "cluster_block_exception"}}`)) //nolint:errcheck
	})

	err := ix.IndexResponse(context.Background(), &model.SearchResponse{ID: "resp-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resp-1")
}

func TestEnsureIndices_CreatesBoth(t *testing.T) {
	created := map[string]bool{}
	ix := newTestIndex(t, Config{}, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		created[r.URL.Path] = true
		var mapping map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&mapping))
		assert.Contains(t, mapping, "mappings")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"acknowledged": true}`)) //nolint:errcheck
	})

	require.NoError(t, ix.EnsureIndices(context.Background()))
	assert.True(t, created["/dragnet-sources"])
	assert.True(t, created["/dragnet-responses"])
}

func TestEnsureIndices_ToleratesExisting(t *testing.T) {
	ix := newTestIndex(t, Config{}, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": {"type": "resource_already_exists_exception"}}`)) //nolint:errcheck
	})

	require.NoError(t, ix.EnsureIndices(context.Background()))
}

func TestEnsureIndices_OtherErrorSurfaces(t *testing.T) {
	ix := newTestIndex(t, Config{}, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error": {"type": "security_exception"}}`)) //nolint:errcheck
	})

	err := ix.EnsureIndices(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create index")
}

func TestPing(t *testing.T) {
	ix := newTestIndex(t, Config{}, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	require.NoError(t, ix.Ping(context.Background()))
}

func TestPing_Down(t *testing.T) {
	ix := newTestIndex(t, Config{}, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	require.Error(t, ix.Ping(context.Background()))
}

func TestBuildSourceQuery_JurisdictionAdmitsGlobal(t *testing.T) {
	blob, err := json.Marshal(buildSourceQuery(SourceQuery{
		Jurisdiction: "HU",
		InputType:    model.InputCompanyName,
		ThematicTag:  "sanctions",
	}))
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"query": {
			"bool": {
				"filter": [
					{
						"bool": {
							"should": [
								{"term": {"jurisdiction": "HU"}},
								{"term": {"jurisdiction": "GLOBAL"}}
							],
							"minimum_should_match": 1
						}
					},
					{"term": {"input_type": "company_name"}},
					{"term": {"thematic_tags": "sanctions"}}
				]
			}
		}
	}`, string(blob))
}

func TestNewWithClient_IndexNameDefaults(t *testing.T) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{"http://localhost:9200"}})
	require.NoError(t, err)

	ix := NewWithClient(client, Config{})
	assert.Equal(t, defaultSourceIndex, ix.sources)
	assert.Equal(t, defaultResponseIndex, ix.responses)

	ix = NewWithClient(client, Config{SourceIndex: "cat", ResponseIndex: "resp"})
	assert.Equal(t, "cat", ix.sources)
	assert.Equal(t, "resp", ix.responses)
}
