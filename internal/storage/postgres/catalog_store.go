// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/steam-catalog-crawler/internal/catalog"
)

// Schema creates the catalog tables. It is idempotent. detail is JSON rather
// than JSONB so the stored payload keeps its original bytes.
const Schema = `
CREATE TABLE IF NOT EXISTS catalog_items (
	id           BIGINT PRIMARY KEY,
	name         TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL DEFAULT 'pending'
		CHECK (status IN ('pending', 'checked', 'game', 'failed', 'not_game')),
	last_checked TIMESTAMPTZ,
	filtered     BOOLEAN NOT NULL DEFAULT FALSE
);
CREATE TABLE IF NOT EXISTS enriched_records (
	id     BIGINT PRIMARY KEY REFERENCES catalog_items(id),
	name   TEXT NOT NULL DEFAULT '',
	type   TEXT NOT NULL,
	detail JSON NOT NULL
);
CREATE TABLE IF NOT EXISTS crawl_state (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_catalog_items_status ON catalog_items(status);
`

// StoreConfig controls the Postgres connection pool.
type StoreConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// pool is the subset of *pgxpool.Pool used by the store; pgxmock satisfies it in tests.
type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// CatalogStore implements catalog.Store on Postgres.
type CatalogStore struct {
	pool pool
	now  func() time.Time
}

var _ catalog.Store = (*CatalogStore)(nil)

// NewCatalogStore connects to Postgres and migrates the schema.
func NewCatalogStore(ctx context.Context, cfg StoreConfig) (*CatalogStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if _, err := p.Exec(ctx, Schema); err != nil {
		p.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return &CatalogStore{pool: p, now: time.Now}, nil
}

// NewCatalogStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewCatalogStoreWithPool(p pool) (*CatalogStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &CatalogStore{pool: p, now: time.Now}, nil
}

// Close releases the underlying pool resources.
func (s *CatalogStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

// CountItems returns the number of catalog items.
func (s *CatalogStore) CountItems(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM catalog_items`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count items: %w", err)
	}
	return n, nil
}

// SyncItems inserts every new entry with one unnest statement and stamps the sync
// time in the same transaction.
func (s *CatalogStore) SyncItems(ctx context.Context, entries []catalog.ListEntry, syncedAt time.Time) (int64, error) {
	ids := make([]int64, len(entries))
	names := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
		names[i] = e.Name
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin sync: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
INSERT INTO catalog_items (id, name, status)
SELECT u.id, u.name, 'pending' FROM unnest($1::bigint[], $2::text[]) AS u(id, name)
ON CONFLICT (id) DO NOTHING`, ids, names)
	if err != nil {
		return 0, fmt.Errorf("insert items: %w", err)
	}
	if err := putState(ctx, tx, catalog.StateListLastSynced, catalog.FormatTime(syncedAt), syncedAt); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit sync: %w", err)
	}
	return tag.RowsAffected(), nil
}

// PendingItems returns the processable items for one pass.
func (s *CatalogStore) PendingItems(ctx context.Context, sel catalog.Selection) ([]catalog.Item, error) {
	where := `status = 'pending'`
	if sel.RetryFailed {
		where = `status IN ('pending', 'failed')`
	}
	order := `id`
	if sel.Shuffle {
		order = `random()`
	}
	query := `SELECT id, name, status, last_checked, filtered FROM catalog_items WHERE ` +
		where + ` ORDER BY ` + order
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("select pending items: %w", err)
	}
	defer rows.Close()

	var items []catalog.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("select pending items: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("select pending items: %w", err)
	}
	return items, nil
}

// GetItem loads one item by id.
func (s *CatalogStore) GetItem(ctx context.Context, id int64) (catalog.Item, error) {
	item, err := scanItem(s.pool.QueryRow(ctx,
		`SELECT id, name, status, last_checked, filtered FROM catalog_items WHERE id = $1`, id))
	if err != nil {
		return catalog.Item{}, fmt.Errorf("get item %d: %w", id, err)
	}
	return item, nil
}

// MarkItem records a not_game or failed outcome.
func (s *CatalogStore) MarkItem(
	ctx context.Context,
	id int64,
	status catalog.Status,
	checkedAt time.Time,
	filtered bool,
) error {
	if err := catalog.CheckMarkable(status); err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE catalog_items SET status = $1, last_checked = $2, filtered = $3 WHERE id = $4`,
		string(status), checkedAt.UTC(), filtered, id)
	if err != nil {
		return fmt.Errorf("mark item %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("item %d: %w", id, catalog.ErrNotFound)
	}
	return nil
}

// SaveGame upserts the enriched record and flips the item to game.
func (s *CatalogStore) SaveGame(ctx context.Context, rec catalog.Record, checkedAt time.Time) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin save game: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx,
		`UPDATE catalog_items SET status = 'game', last_checked = $1, filtered = FALSE WHERE id = $2`,
		checkedAt.UTC(), rec.ID)
	if err != nil {
		return fmt.Errorf("mark game %d: %w", rec.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("item %d: %w", rec.ID, catalog.ErrNotFound)
	}
	if _, err := tx.Exec(ctx, `
INSERT INTO enriched_records (id, name, type, detail) VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, type = EXCLUDED.type, detail = EXCLUDED.detail`,
		rec.ID, rec.Name, rec.Type, []byte(rec.Detail)); err != nil {
		return fmt.Errorf("upsert record %d: %w", rec.ID, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit save game: %w", err)
	}
	return nil
}

// GetRecord loads one enriched record by id.
func (s *CatalogStore) GetRecord(ctx context.Context, id int64) (catalog.Record, error) {
	var rec catalog.Record
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, type, detail FROM enriched_records WHERE id = $1`, id).
		Scan(&rec.ID, &rec.Name, &rec.Type, &rec.Detail)
	if errors.Is(err, pgx.ErrNoRows) {
		return catalog.Record{}, catalog.ErrNotFound
	}
	if err != nil {
		return catalog.Record{}, fmt.Errorf("get record %d: %w", id, err)
	}
	return rec, nil
}

// ListRecords pages through enriched records ordered by id.
func (s *CatalogStore) ListRecords(ctx context.Context, afterID int64, limit int) ([]catalog.Record, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, type, detail FROM enriched_records WHERE id > $1 ORDER BY id LIMIT $2`,
		afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	records := make([]catalog.Record, 0, limit)
	for rows.Next() {
		var rec catalog.Record
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.Type, &rec.Detail); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}

// Stats aggregates item counts by status.
func (s *CatalogStore) Stats(ctx context.Context) (catalog.Stats, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT status, filtered, COUNT(*) FROM catalog_items GROUP BY status, filtered`)
	if err != nil {
		return catalog.Stats{}, fmt.Errorf("query stats: %w", err)
	}
	defer rows.Close()

	var stats catalog.Stats
	for rows.Next() {
		var (
			raw      string
			filtered bool
			count    int64
		)
		if err := rows.Scan(&raw, &filtered, &count); err != nil {
			return catalog.Stats{}, fmt.Errorf("scan stats: %w", err)
		}
		status, err := catalog.ParseStatus(raw)
		if err != nil {
			return catalog.Stats{}, err
		}
		stats.Add(status, filtered, count)
	}
	if err := rows.Err(); err != nil {
		return catalog.Stats{}, fmt.Errorf("iterate stats: %w", err)
	}
	return stats, nil
}

// LoadState reads the crawl_state table.
func (s *CatalogStore) LoadState(ctx context.Context) (catalog.CrawlState, error) {
	rows, err := s.pool.Query(ctx, `SELECT key, value, updated_at FROM crawl_state`)
	if err != nil {
		return catalog.CrawlState{}, fmt.Errorf("load state: %w", err)
	}
	defer rows.Close()

	var state catalog.CrawlState
	for rows.Next() {
		var (
			key, value string
			updatedAt  time.Time
		)
		if err := rows.Scan(&key, &value, &updatedAt); err != nil {
			return catalog.CrawlState{}, fmt.Errorf("scan state: %w", err)
		}
		if err := state.Apply(key, value, updatedAt); err != nil {
			return catalog.CrawlState{}, err
		}
	}
	if err := rows.Err(); err != nil {
		return catalog.CrawlState{}, fmt.Errorf("iterate state: %w", err)
	}
	return state, nil
}

// SaveFailures persists the consecutive failure counter.
func (s *CatalogStore) SaveFailures(ctx context.Context, n int) error {
	return putState(ctx, s.pool, catalog.StateConsecutiveFailures, strconv.Itoa(n), s.now())
}

// SaveStats persists the last reported aggregate counts.
func (s *CatalogStore) SaveStats(ctx context.Context, stats catalog.Stats, at time.Time) error {
	value, err := catalog.EncodeStats(stats)
	if err != nil {
		return err
	}
	return putState(ctx, s.pool, catalog.StateLastStats, value, at)
}

// Reset clears every status back to pending and empties the record table.
func (s *CatalogStore) Reset(ctx context.Context) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin reset: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM enriched_records`); err != nil {
		return fmt.Errorf("clear records: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE catalog_items SET status = 'pending', last_checked = NULL, filtered = FALSE`); err != nil {
		return fmt.Errorf("reset items: %w", err)
	}
	if err := putState(ctx, tx, catalog.StateConsecutiveFailures, "0", s.now()); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit reset: %w", err)
	}
	return nil
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func putState(ctx context.Context, db execer, key, value string, at time.Time) error {
	_, err := db.Exec(ctx, `
INSERT INTO crawl_state (key, value, updated_at) VALUES ($1, $2, $3)
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		key, value, at.UTC())
	if err != nil {
		return fmt.Errorf("save state %s: %w", key, err)
	}
	return nil
}

func scanItem(row pgx.Row) (catalog.Item, error) {
	var (
		item    catalog.Item
		raw     string
		checked *time.Time
	)
	err := row.Scan(&item.ID, &item.Name, &raw, &checked, &item.Filtered)
	if errors.Is(err, pgx.ErrNoRows) {
		return catalog.Item{}, catalog.ErrNotFound
	}
	if err != nil {
		return catalog.Item{}, err
	}
	if item.Status, err = catalog.ParseStatus(raw); err != nil {
		return catalog.Item{}, err
	}
	if checked != nil {
		t := checked.UTC()
		item.LastChecked = &t
	}
	return item, nil
}
