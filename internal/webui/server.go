// Package webui serves analyzed call trees over a JSON API.
package webui

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hpc-analysis/internal/analyzer"
	"github.com/hpc-analysis/internal/formatter"
	"github.com/hpc-analysis/internal/repository"
	apperrors "github.com/hpc-analysis/pkg/errors"
	"github.com/hpc-analysis/pkg/utils"
)

//go:embed templates/*
var templatesFS embed.FS

// Server represents the web UI server.
type Server struct {
	addr     string
	analyzer analyzer.Analyzer
	runs     repository.RunRepository
	views    *formatter.Registry
	logger   utils.Logger
	server   *http.Server

	mu     sync.RWMutex
	cache  map[string]*analyzer.AnalysisResponse
	order  []string
	latest string
}

// Option configures a Server.
type Option func(*Server)

// WithAnalyzer sets the analyzer used by POST /api/runs.
func WithAnalyzer(a analyzer.Analyzer) Option {
	return func(s *Server) { s.analyzer = a }
}

// WithRunRepository persists analyzed runs and serves stored run records.
func WithRunRepository(repo repository.RunRepository) Option {
	return func(s *Server) { s.runs = repo }
}

// WithLogger sets the server logger.
func WithLogger(logger utils.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// NewServer creates a new web UI server.
func NewServer(addr string, opts ...Option) *Server {
	s := &Server{
		addr:   addr,
		views:  formatter.NewRegistry(),
		logger: &utils.NullLogger{},
		cache:  make(map[string]*analyzer.AnalysisResponse),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	return s
}

// AddRun caches an analyzed run and makes it the default run.
func (s *Server) AddRun(resp *analyzer.AnalysisResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cache[resp.RunUUID]; !ok {
		s.order = append(s.order, resp.RunUUID)
	}
	s.cache[resp.RunUUID] = resp
	s.latest = resp.RunUUID
}

// removeRun drops a run from the cache and reports whether it was cached.
func (s *Server) removeRun(runUUID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cache[runUUID]; !ok {
		return false
	}
	delete(s.cache, runUUID)
	for i, id := range s.order {
		if id == runUUID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	if s.latest == runUUID {
		s.latest = ""
		if n := len(s.order); n > 0 {
			s.latest = s.order[n-1]
		}
	}
	return true
}

// run returns a cached run. An empty id selects the latest run.
func (s *Server) run(runUUID string) (*analyzer.AnalysisResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if runUUID == "" {
		runUUID = s.latest
	}
	if runUUID == "" {
		return nil, apperrors.Wrap(apperrors.CodeNotFound, "no run loaded", apperrors.ErrNotFound)
	}
	resp, ok := s.cache[runUUID]
	if !ok {
		return nil, apperrors.Wrap(apperrors.CodeNotFound, fmt.Sprintf("run not loaded: %s", runUUID), apperrors.ErrNotFound)
	}
	return resp, nil
}

func (s *Server) cachedRuns() []*analyzer.AnalysisResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()
	runs := make([]*analyzer.AnalysisResponse, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		runs = append(runs, s.cache[s.order[i]])
	}
	return runs
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(corsMiddleware)

	r.Route("/api", func(r chi.Router) {
		r.Get("/runs", s.handleListRuns)
		r.Post("/runs", s.handleCreateRun)
		r.Get("/runs/{run}", s.handleGetRun)
		r.Delete("/runs/{run}", s.handleDeleteRun)
		r.Get("/columns", s.handleColumns)
		r.Get("/nodes", s.handleNodes)
		r.Get("/hotpath", s.handleHotPath)
	})

	r.Get("/", s.handleIndex)
	return r
}

// Start starts the web server and blocks until it stops. It returns nil
// at once when Shutdown already ran.
func (s *Server) Start() error {
	s.logger.Info("Starting web server at %s", s.addr)
	s.logger.Info("Press Ctrl+C to stop")

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	tmpl, err := template.ParseFS(templatesFS, "templates/index.html")
	if err != nil {
		http.Error(w, "Template error", http.StatusInternalServerError)
		s.logger.Error("Failed to parse template: %v", err)
		return
	}

	data := map[string]interface{}{
		"Runs":  s.cachedRuns(),
		"Views": s.views.Names(),
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, data); err != nil {
		s.logger.Error("Failed to execute template: %v", err)
	}
}
