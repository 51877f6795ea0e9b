package renderapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
)

// Default base URL for the render proxy API.
const defaultBaseURL = "https://api.renderproxy.dev/v1"

// Client defines the render proxy operations. The proxy drives a headless
// browser, so it reaches pages that refuse plain HTTP clients or only
// materialize content after script execution.
type Client interface {
	Render(ctx context.Context, req RenderRequest) (*RenderResponse, error)
	Health(ctx context.Context) error
}

// RenderRequest is the body for POST /render.
type RenderRequest struct {
	URL    string `json:"url"`
	WaitMS int    `json:"waitMs,omitempty"`
}

// RenderResponse is the response from POST /render.
type RenderResponse struct {
	Success bool         `json:"success"`
	Data    RenderedPage `json:"data"`
}

// RenderedPage is a single rendered page.
type RenderedPage struct {
	URL        string `json:"url"`
	HTML       string `json:"html"`
	Title      string `json:"title"`
	StatusCode int    `json:"statusCode"`
}

type healthResponse struct {
	Status string `json:"status"`
}

// APIError is returned when the proxy responds with a non-2xx status.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("renderapi: HTTP %d: %s", e.StatusCode, e.Body)
}

// Option configures the httpClient.
type Option func(*httpClient)

// WithBaseURL overrides the default base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// httpClient implements Client using net/http.
type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a new render proxy client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) Render(ctx context.Context, req RenderRequest) (*RenderResponse, error) {
	var resp RenderResponse
	if err := c.post(ctx, "/render", req, &resp); err != nil {
		return nil, eris.Wrap(err, "renderapi: render")
	}
	return &resp, nil
}

func (c *httpClient) Health(ctx context.Context) error {
	var resp healthResponse
	if err := c.get(ctx, "/health", &resp); err != nil {
		return eris.Wrap(err, "renderapi: health")
	}
	if resp.Status != "ok" {
		return eris.Errorf("renderapi: unhealthy: %s", resp.Status)
	}
	return nil
}

func (c *httpClient) post(ctx context.Context, path string, body any, out any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return eris.Wrap(err, "marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return eris.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	return c.do(req, out)
}

func (c *httpClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return eris.Wrap(err, "create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	return c.do(req, out)
}

func (c *httpClient) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "execute request")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{
			StatusCode: resp.StatusCode,
			Body:       string(data),
		}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return eris.Wrap(err, "decode response")
	}

	return nil
}
