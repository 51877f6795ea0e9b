package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/osintops/dragnet/internal/db"
	"github.com/osintops/dragnet/internal/dispatch"
	"github.com/osintops/dragnet/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
	pageTTL time.Duration
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"insert_response":      `INSERT INTO search_responses (id, query, input_type, jurisdiction, result_count, response, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
	"get_response":         `SELECT response FROM search_responses WHERE id = $1`,
	"get_cached_page":      `SELECT body, content_type FROM fetch_cache WHERE url = $1 AND expires_at > now()`,
	"set_cached_page":      `INSERT INTO fetch_cache (url, body, content_type, fetched_at, expires_at) VALUES ($1, $2, $3, $4, $5) ON CONFLICT (url) DO UPDATE SET body = $2, content_type = $3, fetched_at = $4, expires_at = $5`,
	"delete_expired_pages": `DELETE FROM fetch_cache WHERE expires_at <= now()`,
	"get_checkpoint":       `SELECT cursor FROM checkpoints WHERE name = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool. pageTTL bounds
// fetch cache entries; zero means the 24h default.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig, pageTTL time.Duration) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	if pageTTL <= 0 {
		pageTTL = defaultPageTTL
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close, pageTTL: pageTTL}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS search_responses (
	id           TEXT PRIMARY KEY,
	query        TEXT NOT NULL,
	input_type   TEXT NOT NULL,
	jurisdiction TEXT NOT NULL,
	result_count INTEGER NOT NULL DEFAULT 0,
	response     JSONB NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS fetch_cache (
	url          TEXT PRIMARY KEY,
	body         BYTEA NOT NULL,
	content_type TEXT NOT NULL,
	fetched_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	expires_at   TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS reliability_snapshots (
	source_id  TEXT PRIMARY KEY,
	metrics    JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS entities (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	identity_key TEXT NOT NULL,
	jurisdiction TEXT NOT NULL,
	name         TEXT NOT NULL,
	registration TEXT,
	source_ids   JSONB NOT NULL,
	result_count INTEGER NOT NULL DEFAULT 0,
	first_seen   TIMESTAMPTZ NOT NULL,
	last_seen    TIMESTAMPTZ NOT NULL,
	UNIQUE (identity_key, jurisdiction)
);

CREATE TABLE IF NOT EXISTS checkpoints (
	name       TEXT PRIMARY KEY,
	cursor     JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_responses_jurisdiction ON search_responses(jurisdiction);
CREATE INDEX IF NOT EXISTS idx_responses_cursor ON search_responses(created_at, id);
CREATE INDEX IF NOT EXISTS idx_fetch_cache_expires_at ON fetch_cache(expires_at);
CREATE INDEX IF NOT EXISTS idx_entities_jurisdiction ON entities(jurisdiction);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) SaveResponse(ctx context.Context, resp *model.SearchResponse) error {
	blob, err := json.Marshal(resp)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal response")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO search_responses (id, query, input_type, jurisdiction, result_count, response, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		resp.ID, resp.Query, string(resp.InputType), resp.Jurisdiction,
		resp.TotalResults, blob, resp.CreatedAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: insert response %s", resp.ID)
}

func (s *PostgresStore) GetResponse(ctx context.Context, id string) (*model.SearchResponse, error) {
	var blob []byte
	err := s.pool.QueryRow(ctx,
		`SELECT response FROM search_responses WHERE id = $1`, id,
	).Scan(&blob)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "response %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get response %s", id)
	}
	return unmarshalResponse(blob)
}

func (s *PostgresStore) ListResponses(ctx context.Context, filter ResponseFilter) ([]model.SearchResponse, error) {
	query := `SELECT response FROM search_responses WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Jurisdiction != "" {
		query += fmt.Sprintf(` AND jurisdiction = $%d`, argIdx)
		args = append(args, filter.Jurisdiction)
		argIdx++
	}
	if filter.Query != "" {
		query += fmt.Sprintf(` AND query = $%d`, argIdx)
		args = append(args, filter.Query)
		argIdx++
	}
	query += ` ORDER BY created_at DESC, id DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
		argIdx++
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list responses")
	}
	defer rows.Close()
	return collectResponses(rows)
}

func (s *PostgresStore) ListResponsesAfter(ctx context.Context, after Cursor, limit int) ([]model.SearchResponse, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT response FROM search_responses
		 WHERE (created_at, id) > ($1, $2)
		 ORDER BY created_at, id LIMIT $3`,
		after.CreatedAt.UTC(), after.ID, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list responses after cursor")
	}
	defer rows.Close()
	return collectResponses(rows)
}

func (s *PostgresStore) CountResponses(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM search_responses`).Scan(&n)
	return n, eris.Wrap(err, "postgres: count responses")
}

func (s *PostgresStore) GetPage(ctx context.Context, url string) (*dispatch.CachedPage, error) {
	var page dispatch.CachedPage
	err := s.pool.QueryRow(ctx,
		`SELECT body, content_type FROM fetch_cache WHERE url = $1 AND expires_at > now()`,
		url,
	).Scan(&page.Body, &page.ContentType)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get cached page")
	}
	return &page, nil
}

func (s *PostgresStore) PutPage(ctx context.Context, url string, page dispatch.CachedPage) error {
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO fetch_cache (url, body, content_type, fetched_at, expires_at) VALUES ($1, $2, $3, $4, $5) ON CONFLICT (url) DO UPDATE SET body = $2, content_type = $3, fetched_at = $4, expires_at = $5`,
		url, page.Body, page.ContentType, now, now.Add(s.pageTTL),
	)
	return eris.Wrap(err, "postgres: put cached page")
}

func (s *PostgresStore) DeleteExpiredPages(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM fetch_cache WHERE expires_at <= now()`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete expired pages")
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) SaveReliability(ctx context.Context, snapshot map[string]model.ReliabilityMetrics) error {
	if len(snapshot) == 0 {
		return nil
	}

	now := time.Now().UTC()
	rows := make([][]any, 0, len(snapshot))
	for sourceID, m := range snapshot {
		blob, err := json.Marshal(m)
		if err != nil {
			return eris.Wrapf(err, "postgres: marshal metrics %s", sourceID)
		}
		rows = append(rows, []any{sourceID, blob, now})
	}

	_, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "reliability_snapshots",
		Columns:      []string{"source_id", "metrics", "updated_at"},
		ConflictKeys: []string{"source_id"},
	}, rows)
	return eris.Wrap(err, "postgres: save reliability")
}

func (s *PostgresStore) LoadReliability(ctx context.Context) (map[string]model.ReliabilityMetrics, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT source_id, metrics FROM reliability_snapshots`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load reliability")
	}
	defer rows.Close()

	out := make(map[string]model.ReliabilityMetrics)
	for rows.Next() {
		var sourceID string
		var blob []byte
		if err := rows.Scan(&sourceID, &blob); err != nil {
			return nil, eris.Wrap(err, "postgres: scan metrics")
		}
		var m model.ReliabilityMetrics
		if err := json.Unmarshal(blob, &m); err != nil {
			return nil, eris.Wrapf(err, "postgres: unmarshal metrics %s", sourceID)
		}
		out[sourceID] = m
	}
	return out, eris.Wrap(rows.Err(), "postgres: load reliability iterate")
}

func (s *PostgresStore) UpsertEntities(ctx context.Context, entities []model.Entity) (int64, error) {
	if len(entities) == 0 {
		return 0, nil
	}

	rows := make([][]any, 0, len(entities))
	for _, e := range entities {
		if e.ID == "" {
			e.ID = uuid.New().String()
		}
		sourceIDs, err := json.Marshal(e.SourceIDs)
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: marshal source ids %s", e.IdentityKey)
		}
		rows = append(rows, []any{
			e.ID, e.IdentityKey, e.Jurisdiction, e.Name, e.Registration,
			sourceIDs, e.ResultCount, e.FirstSeen.UTC(), e.LastSeen.UTC(),
		})
	}

	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "entities",
		Columns:      []string{"id", "identity_key", "jurisdiction", "name", "registration", "source_ids", "result_count", "first_seen", "last_seen"},
		ConflictKeys: []string{"identity_key", "jurisdiction"},
		UpdateCols:   []string{"name", "registration", "source_ids", "last_seen"},
		SetExprs:     []string{"result_count = entities.result_count + EXCLUDED.result_count"},
	}, rows)
	return n, eris.Wrap(err, "postgres: upsert entities")
}

func (s *PostgresStore) CountEntities(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM entities`).Scan(&n)
	return n, eris.Wrap(err, "postgres: count entities")
}

func (s *PostgresStore) ListEntities(ctx context.Context, jurisdiction string, limit int) ([]model.Entity, error) {
	query := `SELECT id, identity_key, jurisdiction, name, registration, source_ids, result_count, first_seen, last_seen FROM entities WHERE true`
	args := []any{}
	argIdx := 1

	if jurisdiction != "" {
		query += fmt.Sprintf(` AND jurisdiction = $%d`, argIdx)
		args = append(args, jurisdiction)
		argIdx++
	}
	query += ` ORDER BY result_count DESC, name`
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list entities")
	}
	defer rows.Close()

	var out []model.Entity
	for rows.Next() {
		var e model.Entity
		var registration *string
		var sourceIDs []byte
		if err := rows.Scan(&e.ID, &e.IdentityKey, &e.Jurisdiction, &e.Name,
			&registration, &sourceIDs, &e.ResultCount, &e.FirstSeen, &e.LastSeen); err != nil {
			return nil, eris.Wrap(err, "postgres: scan entity")
		}
		if registration != nil {
			e.Registration = *registration
		}
		if err := json.Unmarshal(sourceIDs, &e.SourceIDs); err != nil {
			return nil, eris.Wrapf(err, "postgres: unmarshal source ids %s", e.ID)
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list entities iterate")
}

func (s *PostgresStore) GetCheckpoint(ctx context.Context, name string) (*Cursor, error) {
	var blob []byte
	err := s.pool.QueryRow(ctx,
		`SELECT cursor FROM checkpoints WHERE name = $1`, name,
	).Scan(&blob)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get checkpoint %s", name)
	}

	var cur Cursor
	if err := json.Unmarshal(blob, &cur); err != nil {
		return nil, eris.Wrapf(err, "postgres: unmarshal checkpoint %s", name)
	}
	return &cur, nil
}

func (s *PostgresStore) SetCheckpoint(ctx context.Context, name string, cur Cursor) error {
	blob, err := json.Marshal(cur)
	if err != nil {
		return eris.Wrapf(err, "postgres: marshal checkpoint %s", name)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO checkpoints (name, cursor, updated_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (name) DO UPDATE SET cursor = $2, updated_at = $3`,
		name, blob, time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: set checkpoint %s", name)
}
