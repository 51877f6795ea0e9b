// Package dispatch executes source fetches concurrently, trying a direct
// fetch first and falling back to the render proxy when the direct path
// fails or returns unusable content.
package dispatch

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/osintops/dragnet/internal/fetcher"
	"github.com/osintops/dragnet/internal/model"
	"github.com/osintops/dragnet/internal/registry"
	"github.com/osintops/dragnet/internal/reliability"
	"github.com/osintops/dragnet/pkg/renderapi"
)

// Via labels for the path that produced a page.
const (
	ViaDirect = "direct"
	ViaRender = "render"
	ViaCache  = "cache"
)

// Page is the raw payload fetched for one source.
type Page struct {
	SourceID       string
	URL            string
	Body           []byte
	ContentType    string
	StatusCode     int
	Via            string
	LatencySeconds float64
}

// Outcome pairs a source with its fetch result. Exactly one of Page and Err
// is set.
type Outcome struct {
	Source *model.Source
	Page   *Page
	Err    *model.SourceError
}

// CachedPage is a previously fetched payload.
type CachedPage struct {
	Body        []byte
	ContentType string
}

// Cache stores fetched pages for reuse inside the TTL window. GetPage
// returns nil on a miss.
type Cache interface {
	GetPage(ctx context.Context, url string) (*CachedPage, error)
	PutPage(ctx context.Context, url string, page CachedPage) error
}

// Options configures dispatch behavior.
type Options struct {
	PerSourceTimeout time.Duration
	MaxInFlight      int
	MinContentBytes  int
	RenderWaitMS     int
}

// Dispatcher fans a query out to selected sources.
type Dispatcher struct {
	direct  fetcher.Fetcher
	tracker *reliability.Tracker
	render  renderapi.Client // optional: enables render proxy fallback
	cache   Cache            // optional
	opts    Options
}

// New creates a Dispatcher over the given direct fetcher and tracker.
func New(direct fetcher.Fetcher, tracker *reliability.Tracker, opts Options) *Dispatcher {
	if opts.PerSourceTimeout <= 0 {
		opts.PerSourceTimeout = 15 * time.Second
	}
	if opts.MaxInFlight <= 0 {
		opts.MaxInFlight = 8
	}
	if opts.MinContentBytes <= 0 {
		opts.MinContentBytes = 64
	}
	if opts.RenderWaitMS <= 0 {
		opts.RenderWaitMS = 2000
	}
	return &Dispatcher{direct: direct, tracker: tracker, opts: opts}
}

// WithRenderClient enables render proxy fallback.
func (d *Dispatcher) WithRenderClient(rc renderapi.Client) *Dispatcher {
	d.render = rc
	return d
}

// WithCache enables the fetch cache.
func (d *Dispatcher) WithCache(c Cache) *Dispatcher {
	d.cache = c
	return d
}

// BuildURL substitutes the query into a source's URL template.
func BuildURL(template, query string) string {
	return strings.ReplaceAll(template, registry.QueryPlaceholder, url.QueryEscape(query))
}

// FetchAll fetches every source concurrently and returns one outcome per
// source, in input order. A failing source never cancels its siblings.
func (d *Dispatcher) FetchAll(ctx context.Context, sources []*model.Source, query string) []Outcome {
	outcomes := make([]Outcome, len(sources))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(d.opts.MaxInFlight)

	for i, src := range sources {
		g.Go(func() error {
			outcomes[i] = d.fetchOne(gCtx, src, query)
			return nil
		})
	}
	_ = g.Wait()

	var ok int
	for _, o := range outcomes {
		if o.Page != nil {
			ok++
		}
	}
	zap.L().Info("dispatch: fetch round complete",
		zap.Int("sources", len(sources)),
		zap.Int("succeeded", ok),
		zap.Int("failed", len(sources)-ok),
	)
	return outcomes
}

func (d *Dispatcher) fetchOne(ctx context.Context, src *model.Source, query string) Outcome {
	out := Outcome{Source: src}
	target := BuildURL(src.URLTemplate, query)

	if d.cache != nil {
		cached, err := d.cache.GetPage(ctx, target)
		if err != nil {
			zap.L().Debug("dispatch: cache read failed", zap.String("url", target), zap.Error(err))
		} else if cached != nil {
			out.Page = &Page{
				SourceID:    src.ID,
				URL:         target,
				Body:        cached.Body,
				ContentType: cached.ContentType,
				StatusCode:  http.StatusOK,
				Via:         ViaCache,
			}
			return out
		}
	}

	fetchCtx, cancel := context.WithTimeout(ctx, d.opts.PerSourceTimeout)
	defer cancel()

	start := time.Now()
	page, reason := d.fetchDirect(fetchCtx, src.ID, target)
	if page == nil && d.render != nil {
		zap.L().Debug("dispatch: falling back to render proxy",
			zap.String("source_id", src.ID),
			zap.String("reason", reason),
		)
		var renderReason string
		page, renderReason = d.fetchRendered(fetchCtx, src.ID, target)
		if page == nil {
			reason = fmt.Sprintf("%s; render fallback: %s", reason, renderReason)
		}
	}
	elapsed := time.Since(start)

	if page == nil {
		d.tracker.RecordFailure(src)
		zap.L().Warn("dispatch: source fetch failed",
			zap.String("source_id", src.ID),
			zap.String("reason", reason),
		)
		out.Err = &model.SourceError{
			Type:     model.ErrorFetchFailed,
			SourceID: src.ID,
			Message:  reason,
		}
		return out
	}

	page.LatencySeconds = elapsed.Seconds()
	d.tracker.RecordSuccess(src, elapsed)
	if d.cache != nil {
		if err := d.cache.PutPage(ctx, target, CachedPage{Body: page.Body, ContentType: page.ContentType}); err != nil {
			zap.L().Warn("dispatch: cache write failed", zap.String("url", target), zap.Error(err))
		}
	}
	out.Page = page
	return out
}

// fetchDirect returns the fetched page, or nil and the reason it was not
// usable.
func (d *Dispatcher) fetchDirect(ctx context.Context, sourceID, target string) (*Page, string) {
	res, err := d.direct.Fetch(ctx, target)
	if err != nil {
		return nil, err.Error()
	}
	if blocked, bt := DetectBlock(res.Body); blocked {
		return nil, fmt.Sprintf("blocked by anti-bot protection (%s)", bt)
	}
	if n := usableTextLen(res.Body, res.ContentType); n < d.opts.MinContentBytes {
		return nil, fmt.Sprintf("usable content %d bytes, below threshold %d", n, d.opts.MinContentBytes)
	}
	return &Page{
		SourceID:    sourceID,
		URL:         res.FinalURL,
		Body:        res.Body,
		ContentType: res.ContentType,
		StatusCode:  res.StatusCode,
		Via:         ViaDirect,
	}, ""
}

func (d *Dispatcher) fetchRendered(ctx context.Context, sourceID, target string) (*Page, string) {
	resp, err := d.render.Render(ctx, renderapi.RenderRequest{URL: target, WaitMS: d.opts.RenderWaitMS})
	if err != nil {
		return nil, err.Error()
	}
	if !resp.Success {
		return nil, "render proxy reported failure"
	}

	body := []byte(resp.Data.HTML)
	if blocked, bt := DetectBlock(body); blocked {
		return nil, fmt.Sprintf("rendered page blocked by anti-bot protection (%s)", bt)
	}
	if n := usableTextLen(body, "text/html"); n < d.opts.MinContentBytes {
		return nil, fmt.Sprintf("rendered content %d bytes, below threshold %d", n, d.opts.MinContentBytes)
	}

	status := resp.Data.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	return &Page{
		SourceID:    sourceID,
		URL:         target,
		Body:        body,
		ContentType: "text/html",
		StatusCode:  status,
		Via:         ViaRender,
	}, ""
}

// usableTextLen measures visible text rather than raw bytes; templated pages
// wrap an empty result set in kilobytes of markup.
func usableTextLen(body []byte, contentType string) int {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return 0
	}
	if looksJSON(contentType, trimmed) {
		return len(trimmed)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return len(trimmed)
	}
	doc.Find("script, style, noscript").Remove()
	return len(strings.TrimSpace(doc.Text()))
}

func looksJSON(contentType string, trimmed []byte) bool {
	if strings.Contains(contentType, "json") {
		return true
	}
	return trimmed[0] == '{' || trimmed[0] == '['
}
