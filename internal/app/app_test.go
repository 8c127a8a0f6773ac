package app_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/steam-catalog-crawler/internal/app"
	"github.com/JakeFAU/steam-catalog-crawler/internal/catalog"
	"github.com/JakeFAU/steam-catalog-crawler/internal/config"
)

func newSourceServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/list", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"applist":{"apps":[
			{"appid":10,"name":"Counter-Strike"},
			{"appid":20,"name":"Space Game Soundtrack"},
			{"appid":30,"name":"Hidden Gem"}
		]}}`)
	})
	mux.HandleFunc("/details", func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("appids")
		switch id {
		case "10":
			fmt.Fprintf(w, `{"%s":{"success":true,"data":{"type":"game","name":"Counter-Strike"}}}`, id)
		default:
			fmt.Fprintf(w, `{"%s":{"success":false}}`, id)
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, sourceURL string) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Database.Path = filepath.Join(t.TempDir(), "catalog.db")
	cfg.Source.ListURL = sourceURL + "/list"
	cfg.Source.DetailURL = sourceURL + "/details"
	cfg.Source.BackoffBaseMs = 0
	cfg.Crawler.DelayMs = 0
	require.NoError(t, cfg.Validate())
	return cfg
}

func buildApp(t *testing.T, cfg config.Config) *app.App {
	t.Helper()
	a, err := app.Build(context.Background(), cfg, app.Options{
		Logger:     zap.NewNop(),
		Registerer: prometheus.NewRegistry(),
	})
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

func TestBuildSyncAndCrawl(t *testing.T) {
	srv := newSourceServer(t)
	cfg := testConfig(t, srv.URL)
	a := buildApp(t, cfg)
	ctx := context.Background()

	res, err := a.Synchronizer().Sync(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Fetched)
	assert.EqualValues(t, 3, res.Inserted)

	engine, err := a.NewEngine(a.Config().CrawlerSettings())
	require.NoError(t, err)
	summary, err := engine.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Processed)
	assert.EqualValues(t, 0, summary.Stats.Pending)
	assert.EqualValues(t, 1, summary.Stats.Games)
	assert.EqualValues(t, 2, summary.Stats.NotGames)
	assert.EqualValues(t, 1, summary.Stats.Filtered)

	rec, err := a.Store().GetRecord(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, "game", rec.Type)
	var detail map[string]any
	require.NoError(t, json.Unmarshal(rec.Detail, &detail))
	assert.Equal(t, "Counter-Strike", detail["name"])

	item, err := a.Store().GetItem(ctx, 20)
	require.NoError(t, err)
	assert.Equal(t, catalog.StatusNotGame, item.Status)
	assert.True(t, item.Filtered)
}

func TestBuildDataSurvivesRebuild(t *testing.T) {
	srv := newSourceServer(t)
	cfg := testConfig(t, srv.URL)
	ctx := context.Background()

	first, err := app.Build(ctx, cfg, app.Options{Logger: zap.NewNop(), Registerer: prometheus.NewRegistry()})
	require.NoError(t, err)
	_, err = first.Synchronizer().Sync(ctx, false)
	require.NoError(t, err)
	first.Close()

	second := buildApp(t, cfg)
	res, err := second.Synchronizer().Sync(ctx, false)
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	count, err := second.Store().CountItems(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, count)
}

func TestBuildRejectsBadStore(t *testing.T) {
	srv := newSourceServer(t)
	cfg := testConfig(t, srv.URL)
	cfg.Database.Driver = config.DriverPostgres
	cfg.Database.DSN = "://not a dsn"

	_, err := app.Build(context.Background(), cfg, app.Options{Logger: zap.NewNop(), Registerer: prometheus.NewRegistry()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres store init failed")
}

func TestNewEngineRejectsInvalidSettings(t *testing.T) {
	srv := newSourceServer(t)
	a := buildApp(t, testConfig(t, srv.URL))

	settings := a.Config().CrawlerSettings()
	settings.FailureThreshold = 0
	_, err := a.NewEngine(settings)
	require.Error(t, err)
}

func TestServeAPIStopsOnCancel(t *testing.T) {
	srv := newSourceServer(t)
	cfg := testConfig(t, srv.URL)
	cfg.Server.Port = freePort(t)
	a := buildApp(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.ServeAPI(ctx) }()

	url := fmt.Sprintf("http://127.0.0.1:%d/healthz", cfg.Server.Port)
	require.Eventually(t, func() bool {
		resp, err := http.Get(url) //nolint:noctx // test probe
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}
