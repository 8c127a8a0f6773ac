package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/steam-catalog-crawler/internal/catalog"
	"github.com/JakeFAU/steam-catalog-crawler/internal/config"
	"github.com/JakeFAU/steam-catalog-crawler/internal/metrics"
)

const (
	defaultGamesLimit = 100
	maxGamesLimit     = 1000
	storeTimeout      = 5 * time.Second
	requestTimeout    = 60 * time.Second
)

// CatalogStore is the subset of the catalog store the API reads from.
type CatalogStore interface {
	GetRecord(ctx context.Context, id int64) (catalog.Record, error)
	ListRecords(ctx context.Context, afterID int64, limit int) ([]catalog.Record, error)
	Stats(ctx context.Context) (catalog.Stats, error)
	LoadState(ctx context.Context) (catalog.CrawlState, error)
	Reset(ctx context.Context) error
}

// Server wires HTTP handlers to the catalog store.
type Server struct {
	router chi.Router
	store  CatalogStore
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(store CatalogStore, auth config.AuthConfig, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		store:  store,
		logger: logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(requestTimeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/stats", s.getStats)
		r.Route("/games", func(r chi.Router) {
			r.Get("/", s.listGames)
			r.Get("/{id}", s.getGame)
		})
		// Admin routes are destructive and only exist behind an API key.
		if auth.Enabled {
			r.Route("/admin", func(r chi.Router) {
				r.Use(apiKeyMiddleware(auth.APIKey))
				r.Post("/reset", s.reset)
			})
		}
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()
	if _, err := s.store.Stats(ctx); err != nil {
		s.logger.Warn("readiness check failed", zap.Error(err))
		s.writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// getGame handles GET /v1/games/{id}. It returns the enriched record, 400 for
// a malformed id, or 404 when the item is not a known game.
func (s *Server) getGame(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		s.writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	rec, err := s.store.GetRecord(ctx, id)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "game not found")
			return
		}
		s.logger.Error("get record failed", zap.Int64("item_id", id), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to load game")
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

// listGames handles GET /v1/games?after=&limit=. Records come back ordered by
// id; next_after is the cursor for the following page and is omitted once a
// page comes back short.
func (s *Server) listGames(w http.ResponseWriter, r *http.Request) {
	after, limit, err := parseCursor(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	records, err := s.store.ListRecords(ctx, after, limit)
	if err != nil {
		s.logger.Error("list records failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to list games")
		return
	}
	if records == nil {
		records = []catalog.Record{}
	}
	resp := gamesPage{Games: records}
	if len(records) == limit {
		next := records[len(records)-1].ID
		resp.NextAfter = &next
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) getStats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	stats, err := s.store.Stats(ctx)
	if err != nil {
		s.logger.Error("stats query failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to load stats")
		return
	}
	state, err := s.store.LoadState(ctx)
	if err != nil {
		s.logger.Error("load state failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to load crawl state")
		return
	}
	s.writeJSON(w, http.StatusOK, statsResponse{
		Stats:       stats,
		ProgressPct: stats.Progress(),
		State:       state,
	})
}

func (s *Server) reset(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()
	if err := s.store.Reset(ctx); err != nil {
		s.logger.Error("reset failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to reset catalog")
		return
	}
	s.logger.Warn("catalog reset via API")
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

type gamesPage struct {
	Games     []catalog.Record `json:"games"`
	NextAfter *int64           `json:"next_after,omitempty"`
}

type statsResponse struct {
	Stats       catalog.Stats      `json:"stats"`
	ProgressPct float64            `json:"progress_pct"`
	State       catalog.CrawlState `json:"state"`
}

func parseCursor(r *http.Request) (int64, int, error) {
	q := r.URL.Query()
	var after int64
	if raw := q.Get("after"); raw != "" {
		val, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid after")
		}
		after = val
	}
	limit := defaultGamesLimit
	if raw := q.Get("limit"); raw != "" {
		val, err := strconv.Atoi(raw)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		limit = min(val, maxGamesLimit)
	}
	return after, limit, nil
}

type requestIDKey struct{}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		reqID, _ := r.Context().Value(requestIDKey{}).(string)
		s.logger.Debug("request completed",
			zap.String("request_id", reqID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec), zap.String("path", r.URL.Path))
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if subtle.ConstantTimeCompare([]byte(key), []byte(expected)) != 1 {
				writeJSON(w, http.StatusForbidden, map[string]string{"error": "unauthorized"}, nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	writeJSON(w, status, payload, s.logger)
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg}, s.logger)
}

func writeJSON(w http.ResponseWriter, status int, payload any, logger *zap.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil && logger != nil {
		logger.Error("write JSON failed", zap.Error(err))
	}
}
