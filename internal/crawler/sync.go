package crawler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/steam-catalog-crawler/internal/catalog"
)

// ErrSyncFailed wraps every listing fetch or bulk insert failure. Nothing is
// committed when it is returned, so the whole sync can be retried.
var ErrSyncFailed = errors.New("list sync failed")

// SyncResult describes one Sync call.
type SyncResult struct {
	// Skipped is set when the local listing was fresh enough.
	Skipped  bool
	Fetched  int
	Inserted int64
	SyncedAt time.Time
}

// SyncStore is the persistence the Synchronizer needs.
type SyncStore interface {
	CountItems(ctx context.Context) (int64, error)
	SyncItems(ctx context.Context, entries []catalog.ListEntry, syncedAt time.Time) (int64, error)
	LoadState(ctx context.Context) (catalog.CrawlState, error)
}

// Synchronizer mirrors the remote listing into the item store.
type Synchronizer struct {
	store     SyncStore
	list      ListFetcher
	freshness time.Duration
	clock     Clock
	logger    *zap.Logger
}

// NewSynchronizer builds a Synchronizer. A nil clock uses the system clock.
func NewSynchronizer(
	store SyncStore,
	list ListFetcher,
	freshness time.Duration,
	clock Clock,
	logger *zap.Logger,
) *Synchronizer {
	if clock == nil {
		clock = systemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synchronizer{store: store, list: list, freshness: freshness, clock: clock, logger: logger}
}

// Sync fetches the full listing when the store is empty, the last sync is older
// than the freshness threshold, or force is set. Existing items keep their status.
func (s *Synchronizer) Sync(ctx context.Context, force bool) (SyncResult, error) {
	now := s.clock.Now()
	if !force {
		fresh, err := s.fresh(ctx, now)
		if err != nil {
			return SyncResult{}, err
		}
		if fresh {
			s.logger.Debug("listing is fresh, skipping sync")
			return SyncResult{Skipped: true}, nil
		}
	}

	start := time.Now()
	entries, err := s.list.FetchList(ctx)
	if err != nil {
		return SyncResult{}, fmt.Errorf("%w: fetch listing: %w", ErrSyncFailed, err)
	}
	valid := entries[:0:0]
	for _, entry := range entries {
		if entry.ID > 0 {
			valid = append(valid, entry)
		}
	}
	inserted, err := s.store.SyncItems(ctx, valid, now)
	if err != nil {
		return SyncResult{}, fmt.Errorf("%w: %w", ErrSyncFailed, err)
	}
	s.logger.Info("listing synced",
		zap.Int("fetched", len(valid)),
		zap.Int64("inserted", inserted),
		zap.Duration("dur", time.Since(start)),
	)
	return SyncResult{Fetched: len(valid), Inserted: inserted, SyncedAt: now}, nil
}

func (s *Synchronizer) fresh(ctx context.Context, now time.Time) (bool, error) {
	count, err := s.store.CountItems(ctx)
	if err != nil {
		return false, fmt.Errorf("count items: %w", err)
	}
	if count == 0 {
		return false, nil
	}
	state, err := s.store.LoadState(ctx)
	if err != nil {
		return false, fmt.Errorf("load crawl state: %w", err)
	}
	if state.ListLastSynced.IsZero() {
		return false, nil
	}
	return now.Sub(state.ListLastSynced) < s.freshness, nil
}
