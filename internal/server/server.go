// Package server exposes workspace build state over HTTP: package
// listing, build history, and synchronous build triggering.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	apperrors "github.com/3leaps/kiln/internal/errors"
	"github.com/3leaps/kiln/internal/version"
	"github.com/3leaps/kiln/pkg/build"
	"github.com/3leaps/kiln/pkg/buildsvc"
	"github.com/3leaps/kiln/pkg/history"
)

// Server serves the kiln HTTP API.
type Server struct {
	host string
	port int

	service *buildsvc.Service
	journal *history.Store
	logger  *zap.Logger

	once    sync.Once
	handler http.Handler
}

// New creates a server bound to host:port. Dependencies are attached
// with the With* methods before the first Handler or Run call.
func New(host string, port int) *Server {
	return &Server{
		host:   host,
		port:   port,
		logger: zap.NewNop(),
	}
}

// WithService attaches the build service. Returns the server for chaining.
func (s *Server) WithService(svc *buildsvc.Service) *Server {
	s.service = svc
	return s
}

// WithJournal attaches the history journal. Returns the server for chaining.
func (s *Server) WithJournal(j *history.Store) *Server {
	s.journal = j
	return s
}

// WithLogger attaches a structured logger. Returns the server for chaining.
func (s *Server) WithLogger(l *zap.Logger) *Server {
	if l != nil {
		s.logger = l
	}
	return s
}

// Port returns the configured port.
func (s *Server) Port() int {
	return s.port
}

// Addr returns the host:port the server binds to.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.host, strconv.Itoa(s.port))
}

// Handler returns the root HTTP handler. The route table is built once;
// dependencies attached after the first call are not picked up.
func (s *Server) Handler() http.Handler {
	s.once.Do(func() {
		s.handler = s.routes()
	})
	return s.handler
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.NotFound(apperrors.NotFoundHandler())
	r.MethodNotAllowed(apperrors.MethodNotAllowedHandler())

	r.Get("/healthz", s.handleHealth)
	r.Get("/version", s.handleVersion)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/packages", s.handleListPackages)
		r.Get("/builds", s.handleListBuilds)
		r.Post("/builds", s.handleTriggerBuild)
	})

	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)))
	})
}

// Run serves until the context is cancelled, then shuts down gracefully
// within the given timeout.
func (s *Server) Run(ctx context.Context, readTimeout, writeTimeout, idleTimeout, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:         s.Addr(),
		Handler:      s.Handler(),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, version.Get())
}

func (s *Server) handleListPackages(w http.ResponseWriter, r *http.Request) {
	if s.service == nil {
		apperrors.WriteError(w, http.StatusServiceUnavailable, apperrors.CodeInternal, "build service not configured")
		return
	}

	infos, err := s.service.ListPackages()
	if err != nil {
		apperrors.WriteError(w, http.StatusInternalServerError, apperrors.CodeInternal, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"packages": infos})
}

func (s *Server) handleListBuilds(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		apperrors.WriteError(w, http.StatusServiceUnavailable, apperrors.CodeInternal, "history journal not configured")
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			apperrors.WriteError(w, http.StatusBadRequest, apperrors.CodeBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	entries, err := s.journal.Recent(r.Context(), r.URL.Query().Get("package"), limit)
	if err != nil {
		apperrors.WriteError(w, http.StatusInternalServerError, apperrors.CodeInternal, err.Error())
		return
	}

	results := make([]*build.Result, 0, len(entries))
	for _, entry := range entries {
		results = append(results, entry.Result)
	}
	writeJSON(w, http.StatusOK, map[string]any{"builds": results})
}

// buildRequest is the POST /v1/builds payload.
type buildRequest struct {
	Package string       `json:"package"`
	Target  build.Target `json:"target,omitempty"`
	Clean   bool         `json:"clean,omitempty"`
}

func (s *Server) handleTriggerBuild(w http.ResponseWriter, r *http.Request) {
	if s.service == nil {
		apperrors.WriteError(w, http.StatusServiceUnavailable, apperrors.CodeInternal, "build service not configured")
		return
	}

	var req buildRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperrors.WriteError(w, http.StatusBadRequest, apperrors.CodeBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Package == "" {
		apperrors.WriteError(w, http.StatusBadRequest, apperrors.CodeBadRequest, "package is required")
		return
	}

	res, err := s.service.Run(r.Context(), buildsvc.Request{
		Package: req.Package,
		Options: build.Options{Target: req.Target, Clean: req.Clean},
	})
	if err != nil {
		apperrors.WriteError(w, http.StatusInternalServerError, apperrors.CodeInternal, err.Error())
		return
	}

	// A package that cannot be resolved is a caller problem, not a build
	// outcome worth a result payload.
	if res.Status == build.StatusFailure && len(res.Errors) > 0 && res.Errors[0].Code == "resolve_failed" {
		apperrors.WriteError(w, http.StatusUnprocessableEntity, apperrors.CodeBadRequest, res.Errors[0].Message)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
