package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/steam-catalog-crawler/internal/catalog"
	"github.com/JakeFAU/steam-catalog-crawler/internal/config"
	"github.com/JakeFAU/steam-catalog-crawler/internal/crawler"
	"github.com/JakeFAU/steam-catalog-crawler/internal/filter"
	"github.com/JakeFAU/steam-catalog-crawler/internal/storage/sqlite"
)

type staticList []catalog.ListEntry

func (l staticList) FetchList(context.Context) ([]catalog.ListEntry, error) {
	return l, nil
}

type brokenList struct{}

func (brokenList) FetchList(context.Context) ([]catalog.ListEntry, error) {
	return nil, errors.New("listing unavailable")
}

// gamesByID answers game for the listed ids and not-found for everything else.
type gamesByID map[int64]bool

func (g gamesByID) FetchDetail(_ context.Context, id int64) crawler.FetchResult {
	if !g[id] {
		return crawler.NotFound("no data")
	}
	raw, _ := json.Marshal(map[string]any{"type": "game"})
	return crawler.Success(crawler.Detail{Name: "Game", Type: "game", Raw: raw})
}

type fakeApp struct {
	mu        sync.Mutex
	cfg       config.Config
	store     *sqlite.Store
	sync      *crawler.Synchronizer
	details   crawler.DetailFetcher
	engineCfg crawler.Config
	served    bool
	closed    int
}

func newFakeApp(t *testing.T, entries ...catalog.ListEntry) *fakeApp {
	t.Helper()
	store, err := sqlite.Open(context.Background(), sqlite.Config{Path: sqlite.MemoryPath})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Crawler.DelayMs = 0

	return &fakeApp{
		cfg:     cfg,
		store:   store,
		sync:    crawler.NewSynchronizer(store, staticList(entries), cfg.CrawlerSettings().ListFreshness, nil, nil),
		details: gamesByID{1: true},
	}
}

func (f *fakeApp) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
}

func (f *fakeApp) Logger() *zap.Logger                 { return zap.NewNop() }
func (f *fakeApp) Config() config.Config               { return f.cfg }
func (f *fakeApp) Store() catalog.Store                { return f.store }
func (f *fakeApp) Synchronizer() *crawler.Synchronizer { return f.sync }

func (f *fakeApp) NewEngine(cfg crawler.Config) (*crawler.Engine, error) {
	f.mu.Lock()
	f.engineCfg = cfg
	f.mu.Unlock()
	return crawler.NewEngine(cfg, crawler.Deps{
		Store:   f.store,
		Details: f.details,
		Filter:  filter.NewHeuristic(),
		Sync:    f.sync,
	})
}

func (f *fakeApp) ServeAPI(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.served = true
	return nil
}

func execute(t *testing.T, fake *fakeApp, args ...string) (string, error) {
	t.Helper()
	orig := newApp
	newApp = func(context.Context, string) (App, error) { return fake, nil }
	t.Cleanup(func() { newApp = orig })

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := runRoot(context.Background(), root)
	return out.String(), err
}

func TestCrawlCommandSyncsAndCrawls(t *testing.T) {
	fake := newFakeApp(t,
		catalog.ListEntry{ID: 1, Name: "Real Game"},
		catalog.ListEntry{ID: 2, Name: "Real Game Demo"},
		catalog.ListEntry{ID: 3, Name: "Gone"},
	)

	out, err := execute(t, fake, "crawl")
	require.NoError(t, err)

	assert.Contains(t, out, "Processed 3 items")
	assert.Contains(t, out, "Games:                1")
	assert.Contains(t, out, "Not games:            2")
	assert.Contains(t, out, "Progress:             100.00%")
	assert.Equal(t, 1, fake.closed)
	assert.True(t, fake.engineCfg.NameFilter)

	item, err := fake.store.GetItem(context.Background(), 2)
	require.NoError(t, err)
	assert.True(t, item.Filtered)
}

func TestCrawlCommandFlagsOverrideSettings(t *testing.T) {
	fake := newFakeApp(t, catalog.ListEntry{ID: 1, Name: "Real Game"})

	_, err := execute(t, fake, "crawl", "--shuffle", "--retry-failed", "--no-name-filter")
	require.NoError(t, err)

	assert.True(t, fake.engineCfg.Selection.Shuffle)
	assert.True(t, fake.engineCfg.Selection.RetryFailed)
	assert.False(t, fake.engineCfg.NameFilter)
}

func TestCrawlCommandClosesAppOnFailure(t *testing.T) {
	fake := newFakeApp(t)
	fake.sync = crawler.NewSynchronizer(fake.store, brokenList{}, fake.cfg.CrawlerSettings().ListFreshness, nil, nil)

	_, err := execute(t, fake, "crawl")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sync listing")
	assert.Equal(t, 1, fake.closed)
}

func TestSyncCommand(t *testing.T) {
	fake := newFakeApp(t, catalog.ListEntry{ID: 1, Name: "A"}, catalog.ListEntry{ID: 2, Name: "B"})

	out, err := execute(t, fake, "sync")
	require.NoError(t, err)
	assert.Contains(t, out, "Fetched 2 entries, 2 new")

	out, err = execute(t, fake, "sync")
	require.NoError(t, err)
	assert.Contains(t, out, "Listing is fresh")

	out, err = execute(t, fake, "sync", "--force")
	require.NoError(t, err)
	assert.Contains(t, out, "Fetched 2 entries, 0 new")
}

func TestStatsCommand(t *testing.T) {
	fake := newFakeApp(t, catalog.ListEntry{ID: 1, Name: "A"})

	out, err := execute(t, fake, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "Total items:          0")
	assert.Contains(t, out, "Last listing sync:    never")

	_, err = execute(t, fake, "sync")
	require.NoError(t, err)
	out, err = execute(t, fake, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "Pending:              1")
	assert.NotContains(t, out, "never")
}

func TestResetCommandRequiresConfirmation(t *testing.T) {
	fake := newFakeApp(t, catalog.ListEntry{ID: 1, Name: "Real Game"})
	_, err := execute(t, fake, "crawl")
	require.NoError(t, err)

	_, err = execute(t, fake, "reset")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--yes")
	assert.Equal(t, 2, fake.closed, "a failed command still closes the app")

	out, err := execute(t, fake, "reset", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "Catalog reset")

	item, err := fake.store.GetItem(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, catalog.StatusPending, item.Status)
	_, err = fake.store.GetRecord(context.Background(), 1)
	assert.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestServeCommand(t *testing.T) {
	fake := newFakeApp(t)

	_, err := execute(t, fake, "serve")
	require.NoError(t, err)
	assert.True(t, fake.served)
}

func TestAppFactoryError(t *testing.T) {
	orig := newApp
	newApp = func(context.Context, string) (App, error) { return nil, errors.New("no database") }
	t.Cleanup(func() { newApp = orig })

	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"stats"})
	err := runRoot(context.Background(), root)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no database")
}

func TestResolveAppMissing(t *testing.T) {
	_, err := resolveApp(context.Background())
	require.Error(t, err)
}
