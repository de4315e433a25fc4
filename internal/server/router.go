package server

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// routes builds the router. API routes are mounted under the configured base path;
// the welcome, health, and metrics routes are not.
func (s *Server) routes() *chi.Mux {
	r := chi.NewRouter()

	stack := []Middleware{
		middleware.RequestID,
		middleware.RealIP,
		s.requestLogger,
		middleware.Recoverer,
		cors.Handler(cors.Options{
			AllowedOrigins:   s.cfg.CORS.AllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
			AllowCredentials: true,
			MaxAge:           300,
		}),
	}
	for _, mw := range stack {
		r.Use(mw)
	}

	r.Get("/", s.handleWelcome)
	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	api := func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Get("/login", s.handleLogin)
			r.Get("/callback", s.handleCallback)
			r.Post("/logout", s.handleLogout)
			r.With(s.requireSession).Get("/me", s.handleMe)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.requireSession)
			r.Get("/tracks/liked", s.handleLikedTracks)
			r.Get("/artists/top", s.handleTopArtists)
			r.Get("/albums/top", s.handleTopAlbums)
		})
	}

	if base := strings.TrimRight(s.cfg.Server.BasePath, "/"); base != "" {
		r.Route(base, api)
	} else {
		api(r)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "method not allowed"})
	})
	return r
}
