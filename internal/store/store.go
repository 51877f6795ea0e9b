// Package store persists search responses, the fetch cache, reliability
// snapshots, consolidated entities, and ingest checkpoints. Two
// implementations exist: SQLite for local single-binary use and Postgres
// for shared deployments.
package store

import (
	"context"
	"time"

	"github.com/osintops/dragnet/internal/dispatch"
	"github.com/osintops/dragnet/internal/model"
)

// ResponseFilter specifies criteria for listing stored responses.
type ResponseFilter struct {
	Jurisdiction string `json:"jurisdiction,omitempty"`
	Query        string `json:"query,omitempty"`
	Limit        int    `json:"limit,omitempty"`
	Offset       int    `json:"offset,omitempty"`
}

// Cursor is a resumable position in the response log, ordered by
// (created_at, id). The zero Cursor starts from the beginning.
type Cursor struct {
	CreatedAt time.Time `json:"created_at"`
	ID        string    `json:"id"`
}

// Store is the persistence interface for the search engine. The page cache
// methods satisfy dispatch.Cache, so a Store plugs straight into the
// dispatcher.
type Store interface {
	// Search responses
	SaveResponse(ctx context.Context, resp *model.SearchResponse) error
	GetResponse(ctx context.Context, id string) (*model.SearchResponse, error)
	ListResponses(ctx context.Context, filter ResponseFilter) ([]model.SearchResponse, error)
	// ListResponsesAfter returns responses strictly after the cursor in
	// (created_at, id) order, for checkpointed ingest batches.
	ListResponsesAfter(ctx context.Context, after Cursor, limit int) ([]model.SearchResponse, error)
	CountResponses(ctx context.Context) (int, error)

	// Fetch cache
	GetPage(ctx context.Context, url string) (*dispatch.CachedPage, error)
	PutPage(ctx context.Context, url string, page dispatch.CachedPage) error
	DeleteExpiredPages(ctx context.Context) (int, error)

	// Reliability snapshots
	SaveReliability(ctx context.Context, snapshot map[string]model.ReliabilityMetrics) error
	LoadReliability(ctx context.Context) (map[string]model.ReliabilityMetrics, error)

	// Consolidated entities
	UpsertEntities(ctx context.Context, entities []model.Entity) (int64, error)
	CountEntities(ctx context.Context) (int, error)
	ListEntities(ctx context.Context, jurisdiction string, limit int) ([]model.Entity, error)

	// Ingest checkpoints
	GetCheckpoint(ctx context.Context, name string) (*Cursor, error)
	SetCheckpoint(ctx context.Context, name string, cur Cursor) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
