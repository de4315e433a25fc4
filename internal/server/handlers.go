package server

import (
	"context"
	"net/http"
	"time"

	"github.com/desertthunder/melophiliacs/internal/auth"
	"github.com/desertthunder/melophiliacs/internal/session"
)

const healthTimeout = 2 * time.Second

func (s *Server) handleWelcome(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Welcome to Melophiliacs API"})
}

// handleHealth reports whether the key-value store answers a ping.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		s.logger.Error("health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleLogin sets the state cookie and redirects to Spotify's consent page.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	redirect, err := s.controller.BeginLogin(r.Context(), r.URL.Query().Get("final_redirect_uri"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	session.SetCookie(w, session.StateCookieName, redirect.StateCookie, redirect.StateTTL, s.cookies)
	http.Redirect(w, r, redirect.AuthURL, http.StatusFound)
}

// handleCallback completes a login. The state cookie is expired on every response so it is single-use.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := auth.CallbackParams{
		Code:  q.Get("code"),
		State: q.Get("state"),
		Error: q.Get("error"),
	}
	if c, err := r.Cookie(session.StateCookieName); err == nil {
		params.StateCookie = c.Value
		params.HasStateCookie = true
		session.ClearCookie(w, session.StateCookieName, s.cookies)
	}

	result, err := s.controller.CompleteLogin(r.Context(), params)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	session.SetCookie(w, session.CookieName, result.Session.Token, s.cfg.Auth.SessionTTL, s.cookies)
	http.Redirect(w, r, result.FinalRedirect, http.StatusFound)
}

// handleLogout deletes the session and its cached data. It succeeds without a session.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.controller.Logout(r.Context(), session.TokenFromRequest(r)); err != nil {
		s.writeError(w, r, err)
		return
	}
	session.ClearCookie(w, session.CookieName, s.cookies)
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

type meResponse struct {
	Authenticated        bool  `json:"authenticated"`
	AccessTokenExpiresAt int64 `json:"access_token_expires_at"`
	ExpiresIn            int64 `json:"expires_in"`
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	writeJSON(w, http.StatusOK, meResponse{
		Authenticated:        true,
		AccessTokenExpiresAt: sess.AccessTokenExpiresAt.Unix(),
		ExpiresIn:            int64(sess.ExpiresIn(time.Now()).Seconds()),
	})
}

func (s *Server) handleLikedTracks(w http.ResponseWriter, r *http.Request) {
	items, err := s.library.SavedItems(r.Context(), sessionFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleTopArtists(w http.ResponseWriter, r *http.Request) {
	artists, err := s.library.TopArtists(r.Context(), sessionFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, artists)
}

func (s *Server) handleTopAlbums(w http.ResponseWriter, r *http.Request) {
	albums, err := s.library.TopAlbums(r.Context(), sessionFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, albums)
}
