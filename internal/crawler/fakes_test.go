package crawler

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/steam-catalog-crawler/internal/catalog"
	"github.com/JakeFAU/steam-catalog-crawler/internal/storage/sqlite"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.Open(context.Background(), sqlite.Config{Path: sqlite.MemoryPath})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, store.Close()) })
	return store
}

func seedItems(t *testing.T, store catalog.Store, entries ...catalog.ListEntry) {
	t.Helper()
	_, err := store.SyncItems(context.Background(), entries, time.Unix(1700000000, 0).UTC())
	require.NoError(t, err)
}

func gameDetail(name string) FetchResult {
	raw, _ := json.Marshal(map[string]any{"type": "game", "name": name, "steam_appid": 730})
	return Success(Detail{Name: name, Type: "game", Raw: raw})
}

// fakeDetails returns scripted results per id, falling back to def.
type fakeDetails struct {
	mu      sync.Mutex
	results map[int64]FetchResult
	def     FetchResult
	calls   []int64
}

func newFakeDetails(def FetchResult) *fakeDetails {
	return &fakeDetails{results: map[int64]FetchResult{}, def: def}
}

func (f *fakeDetails) FetchDetail(_ context.Context, id int64) FetchResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, id)
	if res, ok := f.results[id]; ok {
		return res
	}
	return f.def
}

func (f *fakeDetails) Calls() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.calls...)
}

type fakeList struct {
	entries []catalog.ListEntry
	err     error
	calls   int
}

func (f *fakeList) FetchList(context.Context) ([]catalog.ListEntry, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.entries, nil
}

// countingPauser records pauses without sleeping.
type countingPauser struct {
	mu     sync.Mutex
	pauses []time.Duration
	onCall func()
}

func (p *countingPauser) Pause(ctx context.Context, d time.Duration) error {
	p.mu.Lock()
	p.pauses = append(p.pauses, d)
	hook := p.onCall
	p.mu.Unlock()
	if hook != nil {
		hook()
	}
	return ctx.Err()
}

func (p *countingPauser) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pauses)
}

type countingPacer struct {
	waits int
}

func (p *countingPacer) Wait(ctx context.Context) error {
	p.waits++
	return ctx.Err()
}

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time {
	return c.now
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Delay = 0
	cfg.StatsEvery = 1000
	return cfg
}
