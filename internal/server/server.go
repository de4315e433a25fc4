package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/melophiliacs/internal/auth"
	"github.com/desertthunder/melophiliacs/internal/kvs"
	"github.com/desertthunder/melophiliacs/internal/library"
	"github.com/desertthunder/melophiliacs/internal/metrics"
	"github.com/desertthunder/melophiliacs/internal/session"
	"github.com/desertthunder/melophiliacs/internal/shared"
	"github.com/go-chi/chi/v5"
)

// Middleware wraps an http.Handler and returns a new http.Handler with additional behavior.
type Middleware func(http.Handler) http.Handler

// Opts holds the collaborators a [Server] routes requests to.
type Opts struct {
	Config     *shared.Config
	Controller *auth.Controller
	Guard      *auth.Guard
	Library    *library.Aggregator
	Store      kvs.Store
	Metrics    *metrics.Metrics
	Logger     *log.Logger
}

// Server serves the melophiliacs HTTP API.
type Server struct {
	cfg        *shared.Config
	controller *auth.Controller
	guard      *auth.Guard
	library    *library.Aggregator
	store      kvs.Store
	metrics    *metrics.Metrics
	logger     *log.Logger
	cookies    session.CookieOptions
	router     *chi.Mux
	http       *http.Server
}

// New builds a Server and its routes.
func New(opts Opts) (*Server, error) {
	if opts.Config == nil || opts.Controller == nil || opts.Guard == nil || opts.Library == nil || opts.Store == nil {
		return nil, fmt.Errorf("%w: server needs config, auth controller, guard, library, and store", shared.ErrMissingConfig)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	s := &Server{
		cfg:        opts.Config,
		controller: opts.Controller,
		guard:      opts.Guard,
		library:    opts.Library,
		store:      opts.Store,
		metrics:    opts.Metrics,
		logger:     logger.With("component", "server"),
		cookies:    session.CookieOptions{Secure: !opts.Config.IsDevelopment()},
	}
	s.router = s.routes()
	s.http = &http.Server{
		Addr:         opts.Config.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  opts.Config.Server.ReadTimeout,
		WriteTimeout: opts.Config.Server.WriteTimeout,
	}
	return s, nil
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until [Server.Shutdown] is called.
func (s *Server) ListenAndServe() error {
	s.logger.Info("listening", "addr", s.http.Addr, "base_path", s.cfg.Server.BasePath, "env", s.cfg.App.Env)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	start := time.Now()
	err := s.http.Shutdown(ctx)
	s.logger.Info("server stopped", "duration", time.Since(start), "error", err)
	return err
}
