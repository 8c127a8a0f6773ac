package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/steam-catalog-crawler/internal/catalog"
	"github.com/JakeFAU/steam-catalog-crawler/internal/config"
)

func TestServer_GetGame_ReturnsRecord(t *testing.T) {
	t.Parallel()

	store := newAPIFakeStore()
	store.records[730] = catalog.Record{
		ID:     730,
		Name:   "Counter-Strike 2",
		Type:   "game",
		Detail: json.RawMessage(`{"type":"game","name":"Counter-Strike 2"}`),
	}
	server := newTestServerWithStore(store)

	rec := serve(server, http.MethodGet, "/v1/games/730", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var got catalog.Record
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, int64(730), got.ID)
	assert.Equal(t, "Counter-Strike 2", got.Name)
	assert.JSONEq(t, `{"type":"game","name":"Counter-Strike 2"}`, string(got.Detail))
}

func TestServer_GetGame_NotFound(t *testing.T) {
	t.Parallel()

	rec := serve(newTestServer(), http.MethodGet, "/v1/games/5", nil)

	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Body.String(), "game not found")
}

func TestServer_GetGame_InvalidID(t *testing.T) {
	t.Parallel()

	for _, path := range []string{"/v1/games/abc", "/v1/games/-3", "/v1/games/0"} {
		rec := serve(newTestServer(), http.MethodGet, path, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
	}
}

func TestServer_GetGame_StoreError(t *testing.T) {
	t.Parallel()

	store := newAPIFakeStore()
	store.err = errors.New("disk on fire")
	rec := serve(newTestServerWithStore(store), http.MethodGet, "/v1/games/10", nil)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NotContains(t, rec.Body.String(), "disk on fire")
}

func TestServer_ListGames_PagesByID(t *testing.T) {
	t.Parallel()

	store := newAPIFakeStore()
	for _, id := range []int64{40, 10, 30, 20} {
		store.records[id] = catalog.Record{ID: id, Name: "Game", Type: "game", Detail: json.RawMessage(`{}`)}
	}
	server := newTestServerWithStore(store)

	rec := serve(server, http.MethodGet, "/v1/games?limit=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var page gamesPage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Len(t, page.Games, 2)
	assert.Equal(t, int64(10), page.Games[0].ID)
	assert.Equal(t, int64(20), page.Games[1].ID)
	require.NotNil(t, page.NextAfter)
	assert.Equal(t, int64(20), *page.NextAfter)

	rec = serve(server, http.MethodGet, "/v1/games?after=20&limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page = gamesPage{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Len(t, page.Games, 2)
	assert.Equal(t, int64(30), page.Games[0].ID)
	assert.Nil(t, page.NextAfter)
}

func TestServer_ListGames_EmptyIsArray(t *testing.T) {
	t.Parallel()

	rec := serve(newTestServer(), http.MethodGet, "/v1/games", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"games":[]}`, rec.Body.String())
}

func TestServer_ListGames_InvalidCursor(t *testing.T) {
	t.Parallel()

	for _, path := range []string{"/v1/games?after=x", "/v1/games?after=-1", "/v1/games?limit=0", "/v1/games?limit=many"} {
		rec := serve(newTestServer(), http.MethodGet, path, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
	}
}

func TestParseCursorClampsLimit(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/v1/games?limit=50000&after=7", nil)
	after, limit, err := parseCursor(req)
	require.NoError(t, err)
	assert.Equal(t, int64(7), after)
	assert.Equal(t, maxGamesLimit, limit)
}

func TestServer_GetStats(t *testing.T) {
	t.Parallel()

	store := newAPIFakeStore()
	store.stats = catalog.Stats{Total: 4, Pending: 1, Games: 2, NotGames: 1, Filtered: 1}
	store.state = catalog.CrawlState{
		ConsecutiveFailures: 3,
		ListLastSynced:      time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	rec := serve(newTestServerWithStore(store), http.MethodGet, "/v1/stats", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var got statsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, store.stats, got.Stats)
	assert.InDelta(t, 75.0, got.ProgressPct, 0.001)
	assert.Equal(t, 3, got.State.ConsecutiveFailures)
	assert.True(t, store.state.ListLastSynced.Equal(got.State.ListLastSynced))
}

func TestServer_Reset(t *testing.T) {
	t.Parallel()

	store := newAPIFakeStore()
	server := NewServer(store, config.AuthConfig{Enabled: true, APIKey: "secret"}, zap.NewNop())
	rec := serve(server, http.MethodPost, "/v1/admin/reset", map[string]string{"X-API-Key": "secret"})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, store.resets)
}

func TestServer_AdminRoutesRequireAuth(t *testing.T) {
	t.Parallel()

	store := newAPIFakeStore()
	rec := serve(newTestServerWithStore(store), http.MethodPost, "/v1/admin/reset", nil)

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, 0, store.resets)
}

func TestServer_APIKeyMiddleware(t *testing.T) {
	t.Parallel()

	store := newAPIFakeStore()
	server := NewServer(store, config.AuthConfig{Enabled: true, APIKey: "secret"}, zap.NewNop())

	rec := serve(server, http.MethodPost, "/v1/admin/reset", nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, 0, store.resets)

	rec = serve(server, http.MethodPost, "/v1/admin/reset", map[string]string{"X-API-Key": "secre"})
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, 0, store.resets)

	rec = serve(server, http.MethodPost, "/v1/admin/reset", map[string]string{"X-API-Key": "secret"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(server, http.MethodPost, "/v1/admin/reset?api_key=secret", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 2, store.resets)

	// Read routes stay open.
	rec = serve(server, http.MethodGet, "/v1/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_Probes(t *testing.T) {
	t.Parallel()

	store := newAPIFakeStore()
	server := newTestServerWithStore(store)

	rec := serve(server, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(server, http.MethodGet, "/readyz", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	store.err = errors.New("db down")
	rec = serve(server, http.MethodGet, "/readyz", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = serve(server, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_MetricsEndpoint(t *testing.T) {
	t.Parallel()

	server := newTestServer()
	serve(server, http.MethodGet, "/healthz", nil)

	rec := serve(server, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestRequestIDMiddlewareSetsHeader(t *testing.T) {
	t.Parallel()

	rec := serve(newTestServer(), http.MethodGet, "/healthz", nil)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRecoverMiddleware(t *testing.T) {
	t.Parallel()

	server := newTestServer()
	handler := server.recoverMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), "internal server error")
}

func serve(server *Server, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	return rec
}

type apiFakeStore struct {
	mu      sync.Mutex
	records map[int64]catalog.Record
	stats   catalog.Stats
	state   catalog.CrawlState
	resets  int
	err     error
}

func newAPIFakeStore() *apiFakeStore {
	return &apiFakeStore{records: make(map[int64]catalog.Record)}
}

func (s *apiFakeStore) GetRecord(_ context.Context, id int64) (catalog.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return catalog.Record{}, s.err
	}
	rec, ok := s.records[id]
	if !ok {
		return catalog.Record{}, catalog.ErrNotFound
	}
	return rec, nil
}

func (s *apiFakeStore) ListRecords(_ context.Context, afterID int64, limit int) ([]catalog.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	var out []catalog.Record
	for id, rec := range s.records {
		if id > afterID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *apiFakeStore) Stats(context.Context) (catalog.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats, s.err
}

func (s *apiFakeStore) LoadState(context.Context) (catalog.CrawlState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.err
}

func (s *apiFakeStore) Reset(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.resets++
	return nil
}

func newTestServer() *Server {
	return newTestServerWithStore(newAPIFakeStore())
}

func newTestServerWithStore(store CatalogStore) *Server {
	return NewServer(store, config.AuthConfig{}, zap.NewNop())
}
