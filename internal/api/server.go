// Package api serves read-only HTTP access to the AIS database: the import
// ledger, vessel identities, reconciled tracks and process metrics.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ais_parser/internal/ais"
	"ais_parser/internal/logging"
	"ais_parser/internal/normalize"
	"ais_parser/internal/storage"
	"ais_parser/internal/validate"
)

// Store is the read side of the AIS database.
type Store interface {
	Status(ctx context.Context) ([]storage.TableStatus, error)
	Sources(ctx context.Context, limit int) ([]ais.SourceFile, error)
	ShipInfo(ctx context.Context, imo int64) (*storage.ShipInfo, error)
	MessagesForVessel(ctx context.Context, imo int64, useClean bool) ([]ais.Message, error)
}

// TrackStore summarises mirrored tracks.
type TrackStore interface {
	TrackSummaries(ctx context.Context, limit int) ([]storage.TrackSummary, error)
}

// Config holds configuration for the API server.
type Config struct {
	Addr    string
	APIKeys []string // Empty disables authentication.
	Timeout time.Duration
}

// Server provides REST access to the AIS database.
type Server struct {
	store   Store
	tracks  TrackStore
	addr    string
	timeout time.Duration
	apiKeys map[string]bool
}

// NewServer creates a server. tracks may be nil when no mirror is configured.
func NewServer(store Store, tracks TrackStore, cfg Config) *Server {
	keys := make(map[string]bool)
	for _, k := range cfg.APIKeys {
		if k != "" {
			keys[k] = true
		}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Server{
		store:   store,
		tracks:  tracks,
		addr:    cfg.Addr,
		timeout: cfg.Timeout,
		apiKeys: keys,
	}
}

// Router returns the configured chi router.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.timeout))
	r.Use(corsMiddleware)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required).
		r.Get("/health", s.handleHealth)

		r.Group(func(r chi.Router) {
			if len(s.apiKeys) > 0 {
				r.Use(s.authMiddleware)
			}
			r.Get("/status", s.handleStatus)
			r.Get("/sources", s.handleSources)
			r.Get("/ships/{imo}", s.handleShipInfo)
			r.Get("/ships/{imo}/messages", s.handleMessages)
			r.Get("/ships/{imo}/track", s.handleTrack)
			r.Get("/tracks", s.handleTracks)
		})
	})
	return r
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", s.addr).Bool("auth", len(s.apiKeys) > 0).Msg("api listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			logging.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("remote_addr", r.RemoteAddr).
				Str("request_id", middleware.GetReqID(r.Context())).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Msg("http request")
		}()

		next.ServeHTTP(ww, r)
	})
}

// corsMiddleware adds CORS headers for browser access.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-API-Key")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// authMiddleware validates API key authentication.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey := r.Header.Get("X-API-Key")

		// Fall back to Authorization: Bearer <key>.
		if apiKey == "" {
			if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
				apiKey = strings.TrimPrefix(auth, "Bearer ")
			}
		}

		if apiKey == "" {
			writeError(w, http.StatusUnauthorized, "API key required")
			return
		}
		if !s.apiKeys[apiKey] {
			writeError(w, http.StatusForbidden, "Invalid API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.store.Status(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// SourceResponse is one row of the import ledger.
type SourceResponse struct {
	Filename  string `json:"filename"`
	Ext       string `json:"ext"`
	Source    int16  `json:"source"`
	Invalid   int    `json:"invalid"`
	Clean     int    `json:"clean"`
	Dirty     int    `json:"dirty"`
	Timestamp string `json:"timestamp"`
}

func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(w, r, 20, 1000)
	if !ok {
		return
	}
	sources, err := s.store.Sources(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]SourceResponse, 0, len(sources))
	for _, f := range sources {
		out = append(out, SourceResponse{
			Filename:  f.Filename,
			Ext:       f.Ext,
			Source:    f.Source,
			Invalid:   f.Invalid,
			Clean:     f.Clean,
			Dirty:     f.Dirty,
			Timestamp: f.Timestamp.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleShipInfo(w http.ResponseWriter, r *http.Request) {
	imo, ok := imoParam(w, r)
	if !ok {
		return
	}
	info, err := s.store.ShipInfo(r.Context(), imo)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if info == nil || (len(info.Names) == 0 && len(info.MMSIs) == 0) {
		writeError(w, http.StatusNotFound, "No data found for IMO number")
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) vesselMessages(w http.ResponseWriter, r *http.Request) ([]ais.Message, bool) {
	imo, ok := imoParam(w, r)
	if !ok {
		return nil, false
	}
	useClean := r.URL.Query().Get("clean") == "true"
	msgs, err := s.store.MessagesForVessel(r.Context(), imo, useClean)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	if len(msgs) == 0 {
		writeError(w, http.StatusNotFound, "No messages found for IMO number")
		return nil, false
	}
	return msgs, true
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	if msgs, ok := s.vesselMessages(w, r); ok {
		writeJSON(w, http.StatusOK, msgs)
	}
}

func (s *Server) handleTrack(w http.ResponseWriter, r *http.Request) {
	if msgs, ok := s.vesselMessages(w, r); ok {
		w.Header().Set("Content-Type", "application/geo+json")
		writeJSON(w, http.StatusOK, TrackFeatures(msgs))
	}
}

func (s *Server) handleTracks(w http.ResponseWriter, r *http.Request) {
	if s.tracks == nil {
		writeError(w, http.StatusServiceUnavailable, "Track mirror not configured")
		return
	}
	limit, ok := queryLimit(w, r, 100, 10000)
	if !ok {
		return
	}
	tracks, err := s.tracks.TrackSummaries(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, tracks)
}

// Helper functions.

func imoParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := normalize.IMOString(chi.URLParam(r, "imo"))
	if !validate.IMOString(raw) {
		writeError(w, http.StatusBadRequest, "Invalid IMO number")
		return 0, false
	}
	imo, _ := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	return imo, true
}

func queryLimit(w http.ResponseWriter, r *http.Request, def, hi int) (int, bool) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return def, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 || n > hi {
		writeError(w, http.StatusBadRequest, "limit must be between 1 and "+strconv.Itoa(hi))
		return 0, false
	}
	return n, true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
