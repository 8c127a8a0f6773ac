package catalog

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// ItemStore persists catalog items. Items are only ever inserted-if-absent or
// updated by id; the only bulk delete is Store.Reset.
type ItemStore interface {
	CountItems(ctx context.Context) (int64, error)
	// SyncItems inserts every entry not already present and records syncedAt as the
	// last listing sync, all in one transaction. Existing rows keep their status.
	SyncItems(ctx context.Context, entries []ListEntry, syncedAt time.Time) (int64, error)
	// PendingItems returns the items eligible for one crawl pass, in processing order.
	PendingItems(ctx context.Context, sel Selection) ([]Item, error)
	// MarkItem records a non-game outcome for an item.
	MarkItem(ctx context.Context, id int64, status Status, checkedAt time.Time, filtered bool) error
	GetItem(ctx context.Context, id int64) (Item, error)
	Stats(ctx context.Context) (Stats, error)
}

// RecordStore persists enriched records.
type RecordStore interface {
	// SaveGame upserts rec and marks the matching item as a game in one transaction.
	SaveGame(ctx context.Context, rec Record, checkedAt time.Time) error
	GetRecord(ctx context.Context, id int64) (Record, error)
	// ListRecords returns up to limit records with id > afterID, ordered by id.
	ListRecords(ctx context.Context, afterID int64, limit int) ([]Record, error)
}

// StateStore persists CrawlState.
type StateStore interface {
	LoadState(ctx context.Context) (CrawlState, error)
	SaveFailures(ctx context.Context, n int) error
	SaveStats(ctx context.Context, stats Stats, at time.Time) error
}

// Store bundles every persisted table behind one handle.
type Store interface {
	ItemStore
	RecordStore
	StateStore
	// Reset returns every item to pending, empties the record table and clears the
	// consecutive failure counter.
	Reset(ctx context.Context) error
	Close() error
}
