package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/grant-discovery/internal/config"
	"github.com/JakeFAU/grant-discovery/internal/discovery"
	"github.com/JakeFAU/grant-discovery/internal/grant"
	"github.com/JakeFAU/grant-discovery/internal/metrics"
)

// Syncer runs discovery and reports on the last run.
type Syncer interface {
	Sync(ctx context.Context, opts discovery.Options) (grant.SyncSummary, error)
	Latest(ctx context.Context) (grant.SyncSummary, error)
}

// Server wires HTTP handlers to the discovery controller and the grant store.
type Server struct {
	router  chi.Router
	syncer  Syncer
	store   grant.Store
	source  string
	logger  *zap.Logger
	running sync.Mutex
}

// NewServer constructs a Server with middleware and routes.
func NewServer(syncer Syncer, store grant.Store, source string, auth config.AuthConfig, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	s := &Server{
		syncer: syncer,
		store:  store,
		source: source,
		logger: logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if auth.Enabled {
			r.Use(apiKeyMiddleware(auth.APIKey))
		}
		// A sync crawls the whole listing, so it is not bound by the read timeout.
		r.Post("/sync", s.runSync)
		r.Group(func(r chi.Router) {
			r.Use(timeoutMiddleware(60 * time.Second))
			r.Get("/sync/latest", s.latestSync)
			r.Get("/grants", s.listGrants)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server started", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	s.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readyz reports ready once the store answers a query.
func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.store == nil || s.syncer == nil {
		s.writeError(w, http.StatusServiceUnavailable, "not configured")
		return
	}
	if _, err := s.store.FindIDs(r.Context(), s.source); err != nil {
		s.logger.Warn("readiness check failed", zap.Error(err))
		s.writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) runSync(w http.ResponseWriter, r *http.Request) {
	var opts discovery.Options
	if err := json.NewDecoder(r.Body).Decode(&opts); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if opts.Limit < 0 {
		s.writeError(w, http.StatusBadRequest, "limit must be >= 0")
		return
	}
	if _, err := grant.ParseScope(opts.Scope); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !s.running.TryLock() {
		s.writeError(w, http.StatusConflict, "a sync run is already in progress")
		return
	}
	defer s.running.Unlock()

	summary, err := s.syncer.Sync(r.Context(), opts)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, discovery.ErrIngestUnavailable):
			status = http.StatusUnprocessableEntity
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			status = http.StatusRequestTimeout
		}
		s.logger.Error("sync failed", zap.Error(err))
		s.writeError(w, status, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, summary)
}

func (s *Server) latestSync(w http.ResponseWriter, r *http.Request) {
	summary, err := s.syncer.Latest(r.Context())
	if err != nil {
		if errors.Is(err, grant.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "no sync run recorded")
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, summary)
}

type grantsResponse struct {
	Count  int                     `json:"count"`
	Grants []grant.NormalizedGrant `json:"grants"`
}

// listGrants returns the stored grants for the source, optionally filtered
// with ?status=open|closed|forthcoming|unknown.
func (s *Server) listGrants(w http.ResponseWriter, r *http.Request) {
	var want grant.Status
	if raw := r.URL.Query().Get("status"); raw != "" {
		status, ok := grant.ParseStatus(raw)
		if !ok {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", raw))
			return
		}
		want = status
	}
	stored, err := s.store.List(r.Context(), s.source)
	if err != nil {
		s.logger.Error("list grants failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to list grants")
		return
	}
	resp := grantsResponse{Grants: make([]grant.NormalizedGrant, 0, len(stored))}
	for _, sg := range stored {
		if want != "" && sg.Grant.Status != want {
			continue
		}
		resp.Grants = append(resp.Grants, sg.Grant)
	}
	resp.Count = len(resp.Grants)
	s.writeJSON(w, http.StatusOK, resp)
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
		s.logger.Info("request completed",
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
				s.logger.Error("panic recovered", zap.Any("error", rec))
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

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"error":"unauthorized"}` + "\n"))
				return
			}
			next.ServeHTTP(w, r)
		})
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

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
