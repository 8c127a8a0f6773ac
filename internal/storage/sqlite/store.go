package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/JakeFAU/steam-catalog-crawler/internal/catalog"
)

// Store implements catalog.Store.
type Store struct {
	db *sql.DB
}

var _ catalog.Store = (*Store)(nil)

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close sqlite: %w", err)
	}
	return nil
}

// CountItems returns the number of catalog items.
func (s *Store) CountItems(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM catalog_items`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count items: %w", err)
	}
	return n, nil
}

// SyncItems bulk inserts new listing entries and stamps the sync time atomically.
func (s *Store) SyncItems(ctx context.Context, entries []catalog.ListEntry, syncedAt time.Time) (int64, error) {
	var inserted int64
	err := s.runTx(ctx, func(tx *sql.Tx) error {
		inserted = 0
		stmt, err := tx.PrepareContext(ctx, `
INSERT INTO catalog_items (id, name, status) VALUES (?, ?, 'pending')
ON CONFLICT (id) DO NOTHING`)
		if err != nil {
			return fmt.Errorf("prepare insert: %w", err)
		}
		defer stmt.Close()
		for _, e := range entries {
			res, err := stmt.ExecContext(ctx, e.ID, e.Name)
			if err != nil {
				return fmt.Errorf("insert item %d: %w", e.ID, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("rows affected: %w", err)
			}
			inserted += n
		}
		return putState(ctx, tx, catalog.StateListLastSynced, catalog.FormatTime(syncedAt), syncedAt)
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// PendingItems returns the processable items for one pass.
func (s *Store) PendingItems(ctx context.Context, sel catalog.Selection) ([]catalog.Item, error) {
	where := `status = 'pending'`
	if sel.RetryFailed {
		where = `status IN ('pending', 'failed')`
	}
	order := `id`
	if sel.Shuffle {
		order = `RANDOM()`
	}
	query := `SELECT id, name, status, last_checked, filtered FROM catalog_items WHERE ` +
		where + ` ORDER BY ` + order
	rows, err := s.db.QueryContext(ctx, query)
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
func (s *Store) GetItem(ctx context.Context, id int64) (catalog.Item, error) {
	item, err := scanItem(s.db.QueryRowContext(ctx,
		`SELECT id, name, status, last_checked, filtered FROM catalog_items WHERE id = ?`, id))
	if err != nil {
		return catalog.Item{}, fmt.Errorf("get item %d: %w", id, err)
	}
	return item, nil
}

// MarkItem records a not_game or failed outcome.
func (s *Store) MarkItem(
	ctx context.Context,
	id int64,
	status catalog.Status,
	checkedAt time.Time,
	filtered bool,
) error {
	if err := catalog.CheckMarkable(status); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE catalog_items SET status = ?, last_checked = ?, filtered = ? WHERE id = ?`,
		string(status), catalog.FormatTime(checkedAt), filtered, id)
	if err != nil {
		return fmt.Errorf("mark item %d: %w", id, err)
	}
	return requireRow(res, id)
}

// SaveGame upserts the enriched record and flips the item to game.
func (s *Store) SaveGame(ctx context.Context, rec catalog.Record, checkedAt time.Time) error {
	return s.runTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE catalog_items SET status = 'game', last_checked = ?, filtered = 0 WHERE id = ?`,
			catalog.FormatTime(checkedAt), rec.ID)
		if err != nil {
			return fmt.Errorf("mark game %d: %w", rec.ID, err)
		}
		if err := requireRow(res, rec.ID); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
INSERT INTO enriched_records (id, name, type, detail) VALUES (?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET name = excluded.name, type = excluded.type, detail = excluded.detail`,
			rec.ID, rec.Name, rec.Type, string(rec.Detail))
		if err != nil {
			return fmt.Errorf("upsert record %d: %w", rec.ID, err)
		}
		return nil
	})
}

// GetRecord loads one enriched record by id.
func (s *Store) GetRecord(ctx context.Context, id int64) (catalog.Record, error) {
	var (
		rec    catalog.Record
		detail string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, type, detail FROM enriched_records WHERE id = ?`, id).
		Scan(&rec.ID, &rec.Name, &rec.Type, &detail)
	if errors.Is(err, sql.ErrNoRows) {
		return catalog.Record{}, catalog.ErrNotFound
	}
	if err != nil {
		return catalog.Record{}, fmt.Errorf("get record %d: %w", id, err)
	}
	rec.Detail = []byte(detail)
	return rec, nil
}

// ListRecords pages through enriched records ordered by id.
func (s *Store) ListRecords(ctx context.Context, afterID int64, limit int) ([]catalog.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, type, detail FROM enriched_records WHERE id > ? ORDER BY id LIMIT ?`,
		afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	records := make([]catalog.Record, 0, limit)
	for rows.Next() {
		var (
			rec    catalog.Record
			detail string
		)
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.Type, &detail); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		rec.Detail = []byte(detail)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}

// Stats aggregates item counts by status.
func (s *Store) Stats(ctx context.Context) (catalog.Stats, error) {
	rows, err := s.db.QueryContext(ctx,
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
func (s *Store) LoadState(ctx context.Context) (catalog.CrawlState, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value, updated_at FROM crawl_state`)
	if err != nil {
		return catalog.CrawlState{}, fmt.Errorf("load state: %w", err)
	}
	defer rows.Close()

	var state catalog.CrawlState
	for rows.Next() {
		var key, value, updated string
		if err := rows.Scan(&key, &value, &updated); err != nil {
			return catalog.CrawlState{}, fmt.Errorf("scan state: %w", err)
		}
		updatedAt, err := catalog.ParseTime(updated)
		if err != nil {
			return catalog.CrawlState{}, err
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
func (s *Store) SaveFailures(ctx context.Context, n int) error {
	return putState(ctx, s.db, catalog.StateConsecutiveFailures, strconv.Itoa(n), time.Now())
}

// SaveStats persists the last reported aggregate counts.
func (s *Store) SaveStats(ctx context.Context, stats catalog.Stats, at time.Time) error {
	value, err := catalog.EncodeStats(stats)
	if err != nil {
		return err
	}
	return putState(ctx, s.db, catalog.StateLastStats, value, at)
}

// Reset clears every status back to pending and empties the record table.
func (s *Store) Reset(ctx context.Context) error {
	return s.runTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM enriched_records`); err != nil {
			return fmt.Errorf("clear records: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE catalog_items SET status = 'pending', last_checked = NULL, filtered = 0`); err != nil {
			return fmt.Errorf("reset items: %w", err)
		}
		return putState(ctx, tx, catalog.StateConsecutiveFailures, "0", time.Now())
	})
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func putState(ctx context.Context, db execer, key, value string, at time.Time) error {
	_, err := db.ExecContext(ctx, `
INSERT INTO crawl_state (key, value, updated_at) VALUES (?, ?, ?)
ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, catalog.FormatTime(at))
	if err != nil {
		return fmt.Errorf("save state %s: %w", key, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (catalog.Item, error) {
	var (
		item    catalog.Item
		raw     string
		checked sql.NullString
	)
	err := row.Scan(&item.ID, &item.Name, &raw, &checked, &item.Filtered)
	if errors.Is(err, sql.ErrNoRows) {
		return catalog.Item{}, catalog.ErrNotFound
	}
	if err != nil {
		return catalog.Item{}, err
	}
	if item.Status, err = catalog.ParseStatus(raw); err != nil {
		return catalog.Item{}, err
	}
	if checked.Valid {
		t, err := catalog.ParseTime(checked.String)
		if err != nil {
			return catalog.Item{}, err
		}
		item.LastChecked = &t
	}
	return item, nil
}

func requireRow(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("item %d: %w", id, catalog.ErrNotFound)
	}
	return nil
}
