package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/osintops/dragnet/internal/dispatch"
	"github.com/osintops/dragnet/internal/model"
)

// ErrNotFound marks lookups for rows that do not exist.
var ErrNotFound = eris.New("store: not found")

const defaultPageTTL = 24 * time.Hour

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db      *sql.DB
	pageTTL time.Duration
}

// NewSQLite opens a SQLite database at the given path and configures WAL
// mode. pageTTL bounds fetch cache entries; zero means the 24h default.
func NewSQLite(dsn string, pageTTL time.Duration) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	if pageTTL <= 0 {
		pageTTL = defaultPageTTL
	}
	return &SQLiteStore{db: db, pageTTL: pageTTL}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS search_responses (
	id           TEXT PRIMARY KEY,
	query        TEXT NOT NULL,
	input_type   TEXT NOT NULL,
	jurisdiction TEXT NOT NULL,
	result_count INTEGER NOT NULL DEFAULT 0,
	response     TEXT NOT NULL,
	created_at   DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS fetch_cache (
	url          TEXT PRIMARY KEY,
	body         BLOB NOT NULL,
	content_type TEXT NOT NULL,
	fetched_at   DATETIME NOT NULL,
	expires_at   DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS reliability_snapshots (
	source_id  TEXT PRIMARY KEY,
	metrics    TEXT NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS entities (
	id           TEXT PRIMARY KEY,
	identity_key TEXT NOT NULL,
	jurisdiction TEXT NOT NULL,
	name         TEXT NOT NULL,
	registration TEXT,
	source_ids   TEXT NOT NULL,
	result_count INTEGER NOT NULL DEFAULT 0,
	first_seen   DATETIME NOT NULL,
	last_seen    DATETIME NOT NULL,
	UNIQUE (identity_key, jurisdiction)
);

CREATE TABLE IF NOT EXISTS checkpoints (
	name       TEXT PRIMARY KEY,
	cursor     TEXT NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_responses_jurisdiction ON search_responses(jurisdiction);
CREATE INDEX IF NOT EXISTS idx_responses_cursor ON search_responses(created_at, id);
CREATE INDEX IF NOT EXISTS idx_fetch_cache_expires ON fetch_cache(expires_at);
CREATE INDEX IF NOT EXISTS idx_entities_jurisdiction ON entities(jurisdiction);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveResponse(ctx context.Context, resp *model.SearchResponse) error {
	blob, err := json.Marshal(resp)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal response")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO search_responses (id, query, input_type, jurisdiction, result_count, response, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		resp.ID, resp.Query, string(resp.InputType), resp.Jurisdiction,
		resp.TotalResults, string(blob), resp.CreatedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: insert response %s", resp.ID)
}

func (s *SQLiteStore) GetResponse(ctx context.Context, id string) (*model.SearchResponse, error) {
	var blob string
	err := s.db.QueryRowContext(ctx,
		`SELECT response FROM search_responses WHERE id = ?`, id,
	).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "response %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get response %s", id)
	}
	return unmarshalResponse([]byte(blob))
}

func (s *SQLiteStore) ListResponses(ctx context.Context, filter ResponseFilter) ([]model.SearchResponse, error) {
	query := `SELECT response FROM search_responses WHERE 1=1`
	var args []any

	if filter.Jurisdiction != "" {
		query += ` AND jurisdiction = ?`
		args = append(args, filter.Jurisdiction)
	}
	if filter.Query != "" {
		query += ` AND query = ?`
		args = append(args, filter.Query)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list responses")
	}
	defer rows.Close()
	return collectResponses(rows)
}

func (s *SQLiteStore) ListResponsesAfter(ctx context.Context, after Cursor, limit int) ([]model.SearchResponse, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT response FROM search_responses
		 WHERE (created_at, id) > (?, ?)
		 ORDER BY created_at, id LIMIT ?`,
		after.CreatedAt.UTC(), after.ID, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list responses after cursor")
	}
	defer rows.Close()
	return collectResponses(rows)
}

func (s *SQLiteStore) CountResponses(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM search_responses`).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count responses")
}

func (s *SQLiteStore) GetPage(ctx context.Context, url string) (*dispatch.CachedPage, error) {
	var page dispatch.CachedPage
	err := s.db.QueryRowContext(ctx,
		`SELECT body, content_type FROM fetch_cache WHERE url = ? AND expires_at > ?`,
		url, time.Now().UTC(),
	).Scan(&page.Body, &page.ContentType)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get cached page")
	}
	return &page, nil
}

func (s *SQLiteStore) PutPage(ctx context.Context, url string, page dispatch.CachedPage) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO fetch_cache (url, body, content_type, fetched_at, expires_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(url) DO UPDATE SET
			body = excluded.body,
			content_type = excluded.content_type,
			fetched_at = excluded.fetched_at,
			expires_at = excluded.expires_at`,
		url, page.Body, page.ContentType, now, now.Add(s.pageTTL),
	)
	return eris.Wrap(err, "sqlite: put cached page")
}

func (s *SQLiteStore) DeleteExpiredPages(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM fetch_cache WHERE expires_at <= ?`, time.Now().UTC(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete expired pages")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

func (s *SQLiteStore) SaveReliability(ctx context.Context, snapshot map[string]model.ReliabilityMetrics) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin snapshot tx")
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	for sourceID, m := range snapshot {
		blob, err := json.Marshal(m)
		if err != nil {
			return eris.Wrapf(err, "sqlite: marshal metrics %s", sourceID)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO reliability_snapshots (source_id, metrics, updated_at)
			 VALUES (?, ?, ?)
			 ON CONFLICT(source_id) DO UPDATE SET
				metrics = excluded.metrics,
				updated_at = excluded.updated_at`,
			sourceID, string(blob), now,
		); err != nil {
			return eris.Wrapf(err, "sqlite: save metrics %s", sourceID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit snapshot")
}

func (s *SQLiteStore) LoadReliability(ctx context.Context) (map[string]model.ReliabilityMetrics, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT source_id, metrics FROM reliability_snapshots`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load reliability")
	}
	defer rows.Close()

	out := make(map[string]model.ReliabilityMetrics)
	for rows.Next() {
		var sourceID, blob string
		if err := rows.Scan(&sourceID, &blob); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan metrics")
		}
		var m model.ReliabilityMetrics
		if err := json.Unmarshal([]byte(blob), &m); err != nil {
			return nil, eris.Wrapf(err, "sqlite: unmarshal metrics %s", sourceID)
		}
		out[sourceID] = m
	}
	return out, eris.Wrap(rows.Err(), "sqlite: load reliability iterate")
}

func (s *SQLiteStore) UpsertEntities(ctx context.Context, entities []model.Entity) (int64, error) {
	if len(entities) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin entities tx")
	}
	defer tx.Rollback() //nolint:errcheck

	var total int64
	for _, e := range entities {
		if e.ID == "" {
			e.ID = uuid.New().String()
		}
		sourceIDs, err := json.Marshal(e.SourceIDs)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: marshal source ids %s", e.IdentityKey)
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO entities (id, identity_key, jurisdiction, name, registration, source_ids, result_count, first_seen, last_seen)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(identity_key, jurisdiction) DO UPDATE SET
				name = excluded.name,
				registration = excluded.registration,
				source_ids = excluded.source_ids,
				result_count = result_count + excluded.result_count,
				last_seen = excluded.last_seen`,
			e.ID, e.IdentityKey, e.Jurisdiction, e.Name, e.Registration,
			string(sourceIDs), e.ResultCount, e.FirstSeen.UTC(), e.LastSeen.UTC(),
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert entity %s", e.IdentityKey)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: rows affected")
		}
		total += n
	}
	return total, eris.Wrap(tx.Commit(), "sqlite: commit entities")
}

func (s *SQLiteStore) CountEntities(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entities`).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count entities")
}

func (s *SQLiteStore) ListEntities(ctx context.Context, jurisdiction string, limit int) ([]model.Entity, error) {
	query := `SELECT id, identity_key, jurisdiction, name, registration, source_ids, result_count, first_seen, last_seen
		 FROM entities WHERE 1=1`
	var args []any

	if jurisdiction != "" {
		query += ` AND jurisdiction = ?`
		args = append(args, jurisdiction)
	}
	query += ` ORDER BY result_count DESC, name`
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list entities")
	}
	defer rows.Close()

	var out []model.Entity
	for rows.Next() {
		var e model.Entity
		var registration sql.NullString
		var sourceIDs string
		if err := rows.Scan(&e.ID, &e.IdentityKey, &e.Jurisdiction, &e.Name,
			&registration, &sourceIDs, &e.ResultCount, &e.FirstSeen, &e.LastSeen); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan entity")
		}
		e.Registration = registration.String
		if err := json.Unmarshal([]byte(sourceIDs), &e.SourceIDs); err != nil {
			return nil, eris.Wrapf(err, "sqlite: unmarshal source ids %s", e.ID)
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list entities iterate")
}

func (s *SQLiteStore) GetCheckpoint(ctx context.Context, name string) (*Cursor, error) {
	var blob string
	err := s.db.QueryRowContext(ctx,
		`SELECT cursor FROM checkpoints WHERE name = ?`, name,
	).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get checkpoint %s", name)
	}

	var cur Cursor
	if err := json.Unmarshal([]byte(blob), &cur); err != nil {
		return nil, eris.Wrapf(err, "sqlite: unmarshal checkpoint %s", name)
	}
	return &cur, nil
}

func (s *SQLiteStore) SetCheckpoint(ctx context.Context, name string, cur Cursor) error {
	blob, err := json.Marshal(cur)
	if err != nil {
		return eris.Wrapf(err, "sqlite: marshal checkpoint %s", name)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO checkpoints (name, cursor, updated_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET
			cursor = excluded.cursor,
			updated_at = excluded.updated_at`,
		name, string(blob), time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: set checkpoint %s", name)
}

// helpers shared with the Postgres store

func unmarshalResponse(blob []byte) (*model.SearchResponse, error) {
	var resp model.SearchResponse
	if err := json.Unmarshal(blob, &resp); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal response")
	}
	return &resp, nil
}

type blobRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func collectResponses(rows blobRows) ([]model.SearchResponse, error) {
	var out []model.SearchResponse
	for rows.Next() {
		var blob string
		if err := rows.Scan(&blob); err != nil {
			return nil, eris.Wrap(err, "store: scan response")
		}
		resp, err := unmarshalResponse([]byte(blob))
		if err != nil {
			return nil, err
		}
		out = append(out, *resp)
	}
	return out, eris.Wrap(rows.Err(), "store: iterate responses")
}
