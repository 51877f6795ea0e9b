package main

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/osintops/dragnet/internal/advisor"
	"github.com/osintops/dragnet/internal/dispatch"
	"github.com/osintops/dragnet/internal/docindex"
	"github.com/osintops/dragnet/internal/fetcher"
	"github.com/osintops/dragnet/internal/model"
	"github.com/osintops/dragnet/internal/registry"
	"github.com/osintops/dragnet/internal/reliability"
	"github.com/osintops/dragnet/internal/search"
	"github.com/osintops/dragnet/internal/selector"
	"github.com/osintops/dragnet/internal/store"
	"github.com/osintops/dragnet/pkg/renderapi"
)

// searchEnv bundles the initialized store, registry, tracker, and search
// pipeline shared by the search, serve, and status commands.
type searchEnv struct {
	Store      store.Store
	Registry   *registry.Registry
	Tracker    *reliability.Tracker
	Fetcher    *fetcher.HTTPFetcher
	Dispatcher *dispatch.Dispatcher
	Searcher   *search.Searcher
	DocIndex   *docindex.Index // nil unless index addresses are configured
}

// Close persists the reliability snapshot and releases the store.
func (e *searchEnv) Close() {
	if e.Tracker != nil && e.Store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.Store.SaveReliability(ctx, e.Tracker.Snapshot()); err != nil {
			zap.L().Warn("env: saving reliability snapshot failed", zap.Error(err))
		}
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	pageTTL := time.Duration(cfg.Fetch.CacheTTLHours) * time.Hour

	switch cfg.Store.Driver {
	case "sqlite":
		path := cfg.Store.Path
		if path == "" {
			path = "dragnet.db"
		}
		return store.NewSQLite(path, pageTTL)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil, pageTTL)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initDocIndex returns nil without error when no index addresses are
// configured; the document index is optional.
func initDocIndex() (*docindex.Index, error) {
	if len(cfg.Index.Addresses) == 0 {
		return nil, nil
	}
	return docindex.New(docindex.Config{
		Addresses:     cfg.Index.Addresses,
		Username:      cfg.Index.Username,
		Password:      cfg.Index.Password,
		SourceIndex:   cfg.Index.SourcesIndex,
		ResponseIndex: cfg.Index.ResponsesIndex,
	})
}

// loadRegistry hydrates the source registry from the document index when one
// is configured, falling back to the catalog files on the local disk.
func loadRegistry(ctx context.Context, ix *docindex.Index) (*registry.Registry, error) {
	if ix != nil {
		sources, err := ix.FetchSources(ctx, docindex.SourceQuery{})
		if err != nil {
			zap.L().Warn("env: index hydration failed, falling back to catalog files", zap.Error(err))
		} else if len(sources) > 0 {
			ptrs := make([]*model.Source, len(sources))
			for i := range sources {
				ptrs[i] = &sources[i]
			}
			zap.L().Info("env: registry hydrated from document index", zap.Int("sources", len(ptrs)))
			return registry.New(ptrs), nil
		}
	}
	return registry.LoadPath(cfg.Catalog.SourcesPath)
}

// loadAdvisor loads the intel catalogs. A missing catalog file is logged and
// skipped; the advisor then answers proceed for queries that file would have
// covered.
func loadAdvisor() *advisor.Advisor {
	deadEnds, err := advisor.LoadDeadEnds(cfg.Catalog.DeadEndsPath)
	if err != nil {
		zap.L().Warn("env: dead-end catalog not loaded", zap.Error(err))
	}
	routes, err := advisor.LoadRoutes(cfg.Catalog.ArbitragePath)
	if err != nil {
		zap.L().Warn("env: arbitrage catalog not loaded", zap.Error(err))
	}
	chains, err := advisor.LoadChains(cfg.Catalog.ChainsPath)
	if err != nil {
		zap.L().Warn("env: chain catalog not loaded", zap.Error(err))
	}
	return advisor.New(deadEnds, routes, chains)
}

// persistFan writes a finished response to the store and mirrors it to the
// optional document index. Index failures are logged, never surfaced; the
// store is the system of record.
type persistFan struct {
	store store.Store
	index *docindex.Index
}

func (p *persistFan) SaveResponse(ctx context.Context, resp *model.SearchResponse) error {
	if err := p.store.SaveResponse(ctx, resp); err != nil {
		return err
	}
	if p.index != nil {
		if err := p.index.IndexResponse(ctx, resp); err != nil {
			zap.L().Warn("env: publishing response to index failed",
				zap.String("id", resp.ID),
				zap.Error(err),
			)
		}
	}
	return nil
}

// initEnv wires the store, registry, reliability tracker, fetch path, and
// searcher together. Callers should defer env.Close().
func initEnv(ctx context.Context) (*searchEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	ix, err := initDocIndex()
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	reg, err := loadRegistry(ctx, ix)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	tracker := reliability.New(reg.All())
	saved, err := st.LoadReliability(ctx)
	if err != nil {
		zap.L().Warn("env: loading reliability snapshot failed", zap.Error(err))
	} else if len(saved) > 0 {
		tracker.Restore(saved)
		zap.L().Debug("env: reliability snapshot restored", zap.Int("sources", len(saved)))
	}

	direct := fetcher.NewHTTPFetcher(fetcher.Options{
		UserAgent:    cfg.Fetch.UserAgent,
		Timeout:      time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
		Retries:      cfg.Fetch.Retries,
		PerHostRPS:   cfg.Fetch.PerHostRPS,
		PerHostBurst: cfg.Fetch.PerHostBurst,
	})

	disp := dispatch.New(direct, tracker, dispatch.Options{
		PerSourceTimeout: time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
		MaxInFlight:      cfg.Fetch.MaxInFlight,
		MinContentBytes:  cfg.Fetch.MinContentBytes,
	}).WithCache(st)

	if cfg.Render.Key != "" {
		rc := renderapi.NewClient(cfg.Render.Key,
			renderapi.WithBaseURL(cfg.Render.BaseURL),
			renderapi.WithHTTPClient(&http.Client{
				Timeout: time.Duration(cfg.Render.TimeoutSecs) * time.Second,
			}),
		)
		disp = disp.WithRenderClient(rc)
		zap.L().Info("env: render fallback enabled")
	} else {
		zap.L().Debug("env: DRAGNET_RENDER_KEY not set, render fallback disabled")
	}

	searcher := search.New(reg, selector.New(reg), loadAdvisor(), disp).
		WithStore(&persistFan{store: st, index: ix})

	return &searchEnv{
		Store:      st,
		Registry:   reg,
		Tracker:    tracker,
		Fetcher:    direct,
		Dispatcher: disp,
		Searcher:   searcher,
		DocIndex:   ix,
	}, nil
}
