package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/osintops/dragnet/internal/model"
	"github.com/osintops/dragnet/internal/monitoring"
	"github.com/osintops/dragnet/internal/search"
	"github.com/osintops/dragnet/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP search API",
	Long: `Serves the search pipeline over HTTP: search and advisory endpoints,
source and response lookups, consolidated entities, health, and metrics.
A background checker watches recent searches and alerts on degradation.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		collector := monitoring.NewCollector(env.Store, env.Tracker, env.Fetcher)
		checker := monitoring.NewChecker(collector, monitoring.NewAlerter(cfg.Monitor), cfg.Monitor)
		go checker.Run(ctx)

		router := buildRouter(env, cfg.Select.MaxSources)
		return startServer(ctx, router, resolvePort(servePort, cfg.Server.Port))
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// resolvePort prefers the flag value over the configured default.
func resolvePort(flag, configured int) int {
	if flag != 0 {
		return flag
	}
	return configured
}

// startServer runs the HTTP server until ctx is cancelled, then drains it.
func startServer(ctx context.Context, handler http.Handler, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	zap.L().Info("starting server", zap.Int("port", port))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return eris.Wrap(err, "server listen")
	}

	return nil
}

// buildRouter assembles the API. defaultMaxSources caps source selection for
// requests that do not set their own limit.
func buildRouter(env *searchEnv, defaultMaxSources int) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "Authorization"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/search", handleSearch(env, defaultMaxSources))
		r.Post("/advise", handleAdvise(env))
		r.Get("/sources", handleSources(env))
		r.Get("/sources/{id}", handleSourceByID(env))
		r.Get("/responses", handleResponses(env))
		r.Get("/responses/{id}", handleResponseByID(env))
		r.Get("/entities", handleEntities(env))
	})

	return r
}

type searchRequestBody struct {
	Query        string   `json:"query"`
	InputType    string   `json:"input_type,omitempty"`
	Jurisdiction string   `json:"jurisdiction,omitempty"`
	ThematicTags []string `json:"thematic_tags,omitempty"`
	SourceIDs    []string `json:"source_ids,omitempty"`
	MaxSources   int      `json:"max_sources,omitempty"`
	TimeoutSecs  int      `json:"timeout_secs,omitempty"`
}

func handleSearch(env *searchEnv, defaultMaxSources int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body searchRequestBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if strings.TrimSpace(body.Query) == "" {
			writeError(w, http.StatusBadRequest, "query is required")
			return
		}

		req := search.Request{
			Query:          body.Query,
			InputType:      model.InputType(body.InputType),
			Jurisdiction:   body.Jurisdiction,
			ThematicFilter: body.ThematicTags,
			SourceIDs:      body.SourceIDs,
			MaxSources:     body.MaxSources,
		}
		if req.InputType == "" {
			req.InputType = model.InputCompanyName
		}
		if req.Jurisdiction == "" {
			req.Jurisdiction = model.JurisdictionGlobal
		}
		if req.MaxSources == 0 {
			req.MaxSources = defaultMaxSources
		}
		if body.TimeoutSecs > 0 {
			req.Timeout = time.Duration(body.TimeoutSecs) * time.Second
		}

		resp, err := env.Searcher.Search(r.Context(), req)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func handleAdvise(env *searchEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Query        string `json:"query"`
			Jurisdiction string `json:"jurisdiction"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if strings.TrimSpace(body.Query) == "" {
			writeError(w, http.StatusBadRequest, "query is required")
			return
		}

		writeJSON(w, http.StatusOK, env.Searcher.Advise(body.Query, body.Jurisdiction))
	}
}

// handleSources previews source selection for the given filters.
func handleSources(env *searchEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		jurisdiction := q.Get("jurisdiction")
		if jurisdiction == "" {
			jurisdiction = model.JurisdictionGlobal
		}
		inputType := q.Get("input_type")
		if inputType == "" {
			inputType = string(model.InputCompanyName)
		}
		var tags []string
		if t := q.Get("tag"); t != "" {
			tags = strings.Split(t, ",")
		}

		ranked := env.Searcher.SelectSources(search.Request{
			InputType:      model.InputType(inputType),
			Jurisdiction:   jurisdiction,
			ThematicFilter: tags,
			MaxSources:     queryInt(r, "limit", 0),
		})

		writeJSON(w, http.StatusOK, map[string]any{"sources": ranked})
	}
}

func handleSourceByID(env *searchEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		src := env.Registry.ByID(chi.URLParam(r, "id"))
		if src == nil {
			writeError(w, http.StatusNotFound, "unknown source id")
			return
		}
		writeJSON(w, http.StatusOK, src)
	}
}

func handleResponses(env *searchEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		list, err := env.Store.ListResponses(r.Context(), store.ResponseFilter{
			Jurisdiction: q.Get("jurisdiction"),
			Query:        q.Get("query"),
			Limit:        queryInt(r, "limit", 20),
			Offset:       queryInt(r, "offset", 0),
		})
		if err != nil {
			zap.L().Error("serve: listing responses failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "listing responses failed")
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{"responses": list})
	}
}

func handleResponseByID(env *searchEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		resp, err := env.Store.GetResponse(r.Context(), id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusNotFound, "response not found")
				return
			}
			zap.L().Error("serve: loading response failed", zap.String("id", id), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "loading response failed")
			return
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func handleEntities(env *searchEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entities, err := env.Store.ListEntities(r.Context(), r.URL.Query().Get("jurisdiction"), queryInt(r, "limit", 50))
		if err != nil {
			zap.L().Error("serve: listing entities failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "listing entities failed")
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{"entities": entities})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// queryInt parses a non-negative integer query parameter, falling back to
// def when absent or malformed.
func queryInt(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}
