// Package search orchestrates one federated search round: pre-search
// advisory, source selection, concurrent fetch, extraction, and the final
// merge into a ranked response.
package search

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/osintops/dragnet/internal/advisor"
	"github.com/osintops/dragnet/internal/dispatch"
	"github.com/osintops/dragnet/internal/extract"
	"github.com/osintops/dragnet/internal/merge"
	"github.com/osintops/dragnet/internal/metrics"
	"github.com/osintops/dragnet/internal/model"
	"github.com/osintops/dragnet/internal/registry"
	"github.com/osintops/dragnet/internal/selector"
)

// Request is one search call.
type Request struct {
	Query          string
	InputType      model.InputType
	Jurisdiction   string
	ThematicFilter []string
	// SourceIDs bypasses selection; exactly these sources are queried.
	SourceIDs  []string
	MaxSources int
	// Timeout bounds the whole round. Zero leaves only the per-source
	// timeout in force.
	Timeout time.Duration
}

// Persister saves completed responses. Saving is best effort; a failing
// store never fails a search.
type Persister interface {
	SaveResponse(ctx context.Context, resp *model.SearchResponse) error
}

// Searcher wires the pipeline together. Construct once and share; all
// methods are safe for concurrent use.
type Searcher struct {
	registry   *registry.Registry
	selector   *selector.Selector
	advisor    *advisor.Advisor
	dispatcher *dispatch.Dispatcher
	store      Persister
}

// New creates a Searcher. The advisor may be nil; advisories then default
// to proceed.
func New(reg *registry.Registry, sel *selector.Selector, adv *advisor.Advisor, disp *dispatch.Dispatcher) *Searcher {
	return &Searcher{registry: reg, selector: sel, advisor: adv, dispatcher: disp}
}

// WithStore enables response persistence.
func (s *Searcher) WithStore(p Persister) *Searcher {
	s.store = p
	return s
}

// Search runs one full round. Per-source failures are folded into the
// response error list; the returned error is reserved for unusable
// requests. An empty candidate set is a normal zero-result response.
func (s *Searcher) Search(ctx context.Context, req Request) (*model.SearchResponse, error) {
	if req.Query == "" {
		return nil, eris.New("search: empty query")
	}

	start := time.Now()
	resp := &model.SearchResponse{
		ID:           uuid.NewString(),
		Query:        req.Query,
		InputType:    req.InputType,
		Jurisdiction: req.Jurisdiction,
		CreatedAt:    start.UTC(),
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	// The advisory informs the caller; it never aborts the round.
	if s.advisor != nil {
		resp.Advisory = s.advisor.AdviseBeforeAction(req.Query, req.Jurisdiction)
	}

	sources := s.resolve(req, resp)
	resp.SourcesQueried = len(sources)
	if len(sources) == 0 {
		resp.AddError(model.ErrorNoSources, "",
			fmt.Sprintf("no candidate sources for jurisdiction %s and input type %s",
				req.Jurisdiction, req.InputType))
		return s.finish(ctx, resp, start), nil
	}

	outcomes := s.dispatcher.FetchAll(ctx, sources, req.Query)

	var rows []model.StructuredResult
	for _, o := range outcomes {
		if o.Err != nil {
			resp.Errors = append(resp.Errors, *o.Err)
			metrics.FetchesTotal.WithLabelValues("none", "failed").Inc()
			continue
		}
		metrics.FetchesTotal.WithLabelValues(o.Page.Via, "ok").Inc()

		ex, err := extract.Extract(extract.Input{
			SourceID:    o.Source.ID,
			Body:        o.Page.Body,
			ContentType: o.Page.ContentType,
			Query:       req.Query,
			Schema:      o.Source.OutputSchema,
		})
		if err != nil {
			resp.AddError(model.ErrorNoExtractableContent, o.Source.ID,
				"page fetched but no rows could be extracted")
			metrics.ExtractionsTotal.WithLabelValues("none").Inc()
			continue
		}
		resp.SourcesSucceeded++
		metrics.ExtractionsTotal.WithLabelValues(extractionMode(o.Source, ex)).Inc()
		rows = append(rows, ex.Results...)
	}

	resp.Results = merge.Merge(rows)
	resp.TotalResults = len(resp.Results)
	return s.finish(ctx, resp, start), nil
}

// Advise runs the pre-search advisory on its own.
func (s *Searcher) Advise(query, jurisdiction string) *model.Advisory {
	if s.advisor == nil {
		return &model.Advisory{Proceed: true, EstimatedSuccess: model.EstimateUnknown}
	}
	return s.advisor.AdviseBeforeAction(query, jurisdiction)
}

// SelectSources previews selection for a request without fetching anything.
func (s *Searcher) SelectSources(req Request) []selector.ScoredSource {
	return s.selector.Rank(selectorRequest(req))
}

func (s *Searcher) resolve(req Request, resp *model.SearchResponse) []*model.Source {
	if len(req.SourceIDs) > 0 {
		out := make([]*model.Source, 0, len(req.SourceIDs))
		for _, id := range req.SourceIDs {
			src := s.registry.ByID(id)
			if src == nil {
				resp.AddError(model.ErrorNoSources, id, "unknown source id")
				continue
			}
			out = append(out, src)
		}
		return out
	}
	return s.selector.Select(selectorRequest(req))
}

func selectorRequest(req Request) selector.Request {
	return selector.Request{
		InputType:      req.InputType,
		Jurisdiction:   req.Jurisdiction,
		ThematicFilter: req.ThematicFilter,
		MaxSources:     req.MaxSources,
		IncludeGlobal:  true,
	}
}

func (s *Searcher) finish(ctx context.Context, resp *model.SearchResponse, start time.Time) *model.SearchResponse {
	resp.TotalLatencySeconds = time.Since(start).Seconds()

	metrics.SearchesTotal.WithLabelValues(resp.Jurisdiction, string(resp.InputType)).Inc()
	metrics.SearchDuration.WithLabelValues(resp.Jurisdiction).Observe(resp.TotalLatencySeconds)
	metrics.ResultsPerSearch.Observe(float64(resp.TotalResults))

	zap.L().Info("search: round complete",
		zap.String("id", resp.ID),
		zap.String("query", resp.Query),
		zap.String("jurisdiction", resp.Jurisdiction),
		zap.Int("sources_queried", resp.SourcesQueried),
		zap.Int("sources_succeeded", resp.SourcesSucceeded),
		zap.Int("results", resp.TotalResults),
		zap.Float64("latency_seconds", resp.TotalLatencySeconds),
	)

	if s.store != nil {
		// Bookkeeping survives the round's deadline.
		if err := s.store.SaveResponse(context.WithoutCancel(ctx), resp); err != nil {
			zap.L().Warn("search: persisting response failed",
				zap.String("id", resp.ID),
				zap.Error(err))
		}
	}
	return resp
}

// extractionMode classifies which path produced the rows, for metrics only.
func extractionMode(src *model.Source, ex *extract.Extraction) string {
	switch {
	case src.OutputSchema == nil || src.OutputSchema.ResultType == model.ResultNoResults:
		return "heuristic"
	case ex.Degraded:
		return "fallback"
	default:
		return "schema"
	}
}
