package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"calrecon/internal/config"
	"calrecon/internal/ics"
	appLog "calrecon/internal/log"
	"calrecon/internal/runner"
)

// planCacheTTL bounds how often GET /api/plan re-reads every source.
const planCacheTTL = 30 * time.Second

// Server exposes reconciliation over HTTP.
//
//	GET  /health      liveness, never authenticated
//	GET  /api/plan    dry-run report (cached for planCacheTTL)
//	POST /api/run     apply a pass and return its report
//	GET  /api/config  effective configuration, credentials and feed secrets removed
type Server struct {
	cfg    *config.Config
	runner *runner.Runner
	mux    *http.ServeMux

	// Now is the clock used for passes; tests pin it.
	Now func() time.Time

	planMu    sync.RWMutex
	planCache *planCache
}

type planCache struct {
	report    runner.Report
	updatedAt time.Time
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, r *runner.Runner) *Server {
	s := &Server{
		cfg:    cfg,
		runner: r,
		mux:    http.NewServeMux(),
		Now:    time.Now,
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty username or password counts as disabled.
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="calrecon", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// StartServer serves on cfg.Listen until ctx is cancelled, then shuts down
// gracefully.
func StartServer(ctx context.Context, cfg *config.Config, r *runner.Runner) error {
	s := NewServer(cfg, r)
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/plan", s.handlePlan)
	s.mux.HandleFunc("/api/run", s.handleRun)
	s.mux.HandleFunc("/api/config", s.handleConfig)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handlePlan returns what a pass would do right now without writing.
//
// GET /api/plan?now=2025-03-05T12:00:00Z
//   - now: optional RFC3339 override; such requests bypass the cache.
func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	now, override, err := s.requestNow(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid now: "+err.Error())
		return
	}

	if !override {
		s.planMu.RLock()
		pc := s.planCache
		s.planMu.RUnlock()
		if pc != nil && time.Since(pc.updatedAt) < planCacheTTL {
			writeJSON(w, http.StatusOK, pc.report)
			return
		}
	}

	report, err := s.runner.Run(r.Context(), now, true)
	if err != nil {
		appLog.Error("api plan failed", err)
		writeError(w, http.StatusInternalServerError, "failed to build plan")
		return
	}

	if !override {
		s.planMu.Lock()
		s.planCache = &planCache{report: report, updatedAt: time.Now()}
		s.planMu.Unlock()
	}
	writeJSON(w, http.StatusOK, report)
}

// handleRun applies one pass. POST /api/run?now=... accepts the same
// override as /api/plan.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	now, _, err := s.requestNow(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid now: "+err.Error())
		return
	}

	appLog.Info("api run request", "now", now.Format(time.RFC3339))
	report, err := s.runner.Run(r.Context(), now, false)
	if err != nil {
		appLog.Error("api run failed", err)
		writeError(w, http.StatusInternalServerError, "reconcile pass failed")
		return
	}

	// Whatever was cached has just been applied.
	s.planMu.Lock()
	s.planCache = nil
	s.planMu.Unlock()

	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	view := *s.cfg
	view.BasicAuth = nil
	view.Sources = make([]config.SourceConfig, len(s.cfg.Sources))
	for i, src := range s.cfg.Sources {
		src.URL = ics.RedactURL(src.URL)
		view.Sources[i] = src
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) requestNow(r *http.Request) (time.Time, bool, error) {
	v := r.URL.Query().Get("now")
	if v == "" {
		return s.Now().In(s.cfg.Location()), false, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, false, err
	}
	return t.In(s.cfg.Location()), true, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
