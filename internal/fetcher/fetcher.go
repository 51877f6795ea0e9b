package fetcher

import "context"

// Result is a completed page retrieval.
type Result struct {
	Body        []byte
	StatusCode  int
	ContentType string
	FinalURL    string
}

// Fetcher defines the interface for retrieving source pages.
type Fetcher interface {
	// Fetch downloads the URL and returns the response body with metadata.
	Fetch(ctx context.Context, url string) (*Result, error)
}
