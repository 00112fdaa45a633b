// Package server runs the phenotype dashboard: an HTML page backed by JSON
// figure endpoints over the latest cleaned snapshot.
package server

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
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/KaramelBytes/phenodash/internal/logging"
	"github.com/KaramelBytes/phenodash/internal/pipeline"
)

//go:embed templates/*.html
var templateFS embed.FS

// DocsURL is linked from the nav bar.
const DocsURL = "https://github.com/phytooracle/automation/blob/main/README.md"

// Config controls the dashboard.
type Config struct {
	Source          string
	Options         pipeline.Options
	RefreshInterval time.Duration
	GalleryDir      string
	// Genotypes populate the sidebar select; DefaultGenotype is preselected.
	Genotypes       []string
	DefaultGenotype string
	LowessFrac      float64
}

// DefaultGenotypes mirrors the workshop's sidebar.
func DefaultGenotypes() []string { return []string{"Aido", "Iceberg", "Xanadu"} }

// Snapshot is one successful pipeline run.
type Snapshot struct {
	Result   *pipeline.Result
	LoadedAt time.Time
}

// ErrNoSnapshot is returned by data endpoints before the first successful refresh.
var ErrNoSnapshot = errors.New("no data loaded yet")

// Server holds the latest snapshot and serves it.
type Server struct {
	cfg     Config
	src     pipeline.Source
	tmpl    *template.Template
	metrics *metrics
	router  chi.Router
	flight  singleflight.Group

	mu      sync.RWMutex
	snap    *Snapshot
	lastErr error
}

// New builds a server. No data is loaded until Refresh is called.
func New(cfg Config, src pipeline.Source) (*Server, error) {
	if len(cfg.Genotypes) == 0 {
		cfg.Genotypes = DefaultGenotypes()
	}
	if cfg.DefaultGenotype == "" {
		cfg.DefaultGenotype = cfg.Genotypes[0]
	}
	tmpl, err := template.New("").ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	s := &Server{cfg: cfg, src: src, tmpl: tmpl, metrics: newMetrics()}
	s.router = s.routes()
	return s, nil
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.observe)

	r.Get("/", s.handleIndex)
	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", s.metrics.handler())
	r.Route("/api", func(r chi.Router) {
		r.Get("/figures", s.handleFigureList)
		r.Get("/figures/{name}", s.handleFigure)
		r.Get("/table", s.handleTable)
		r.Get("/summary", s.handleSummary)
		r.Get("/gallery", s.handleGallery)
		r.Post("/refresh", s.handleRefresh)
	})
	if s.cfg.GalleryDir != "" {
		r.Handle("/gallery/*", http.StripPrefix("/gallery/", http.FileServer(http.Dir(s.cfg.GalleryDir))))
	}
	return r
}

// Current returns the latest snapshot and the error of the most recent failed
// refresh, if it came after that snapshot.
func (s *Server) Current() (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap, s.lastErr
}

// Refresh reruns the pipeline. On failure the previous snapshot stays live.
// Concurrent calls share one run, which is detached from any single caller's
// context; a caller whose ctx ends stops waiting while the run completes for
// the others.
func (s *Server) Refresh(ctx context.Context) (*Snapshot, error) {
	ch := s.flight.DoChan("refresh", func() (any, error) {
		opt := s.cfg.Options
		opt.RunID = uuid.NewString()
		res, err := pipeline.Run(context.WithoutCancel(ctx), s.src, s.cfg.Source, opt)
		s.metrics.observeRun(res, err)
		s.mu.Lock()
		defer s.mu.Unlock()
		if err != nil {
			s.lastErr = err
			logging.Errorw("refresh failed", "run_id", opt.RunID, "source", s.cfg.Source, "error", err)
			return nil, err
		}
		s.snap = &Snapshot{Result: res, LoadedAt: time.Now()}
		s.lastErr = nil
		return s.snap, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*Snapshot), nil
	}
}

// RefreshLoop refreshes every interval until ctx ends. A zero interval
// returns immediately.
func (s *Server) RefreshLoop(ctx context.Context) error {
	if s.cfg.RefreshInterval <= 0 {
		return nil
	}
	ticker := time.NewTicker(s.cfg.RefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			// Errors are logged and kept for /healthz; the loop carries on.
			_, _ = s.Refresh(ctx)
		}
	}
}
