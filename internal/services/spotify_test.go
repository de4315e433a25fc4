package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/melophiliacs/internal/metrics"
	"github.com/desertthunder/melophiliacs/internal/shared"
	tu "github.com/desertthunder/melophiliacs/internal/testing"
)

func newTestService(t *testing.T, srv *httptest.Server) *SpotifyService {
	t.Helper()
	svc, err := NewSpotifyService(shared.SpotifyConfig{
		ClientID:     "test_client_id",
		ClientSecret: "test_client_secret",
		RedirectURI:  "http://127.0.0.1:8000/api/v1/auth/callback",
		AuthURL:      srv.URL + "/authorize",
		TokenURL:     srv.URL + "/api/token",
		APIBaseURL:   srv.URL + "/v1",
	}, SpotifyOpts{HTTPClient: srv.Client(), Metrics: metrics.New()})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return svc
}

func tokenHandler(t *testing.T, status int, body map[string]any, seen *url.Values) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("failed to parse form: %v", err)
		}
		if seen != nil {
			*seen = r.PostForm
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(body)
	}
}

func TestSpotifyService(t *testing.T) {
	ctx := context.Background()

	t.Run("NewSpotifyService", func(t *testing.T) {
		t.Run("Missing Client ID", func(t *testing.T) {
			_, err := NewSpotifyService(shared.SpotifyConfig{ClientSecret: "s"}, SpotifyOpts{})
			if !errors.Is(err, shared.ErrMissingCredentials) {
				t.Errorf("expected ErrMissingCredentials, got %v", err)
			}
		})

		t.Run("Missing Client Secret", func(t *testing.T) {
			_, err := NewSpotifyService(shared.SpotifyConfig{ClientID: "id"}, SpotifyOpts{})
			if !errors.Is(err, shared.ErrMissingCredentials) {
				t.Errorf("expected ErrMissingCredentials, got %v", err)
			}
		})

		t.Run("Public Endpoints By Default", func(t *testing.T) {
			svc, err := NewSpotifyService(shared.SpotifyConfig{ClientID: "id", ClientSecret: "s"}, SpotifyOpts{})
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if svc.config.Endpoint.TokenURL != spotifyTokenURL || svc.baseURL != spotifyBaseURL {
				t.Errorf("unexpected endpoints %+v %s", svc.config.Endpoint, svc.baseURL)
			}
			if strings.Join(svc.config.Scopes, " ") != "user-library-read playlist-read-private" {
				t.Errorf("unexpected default scopes %v", svc.config.Scopes)
			}
		})
	})

	t.Run("AuthCodeURL", func(t *testing.T) {
		svc, _ := NewSpotifyService(shared.SpotifyConfig{ClientID: "id", ClientSecret: "s", RedirectURI: "http://x/cb"}, SpotifyOpts{})
		raw := svc.AuthCodeURL("nonce-123")

		u, err := url.Parse(raw)
		if err != nil {
			t.Fatalf("invalid url: %v", err)
		}
		q := u.Query()
		if q.Get("state") != "nonce-123" || q.Get("client_id") != "id" || q.Get("response_type") != "code" {
			t.Errorf("unexpected query %v", q)
		}
		if q.Get("scope") != "user-library-read playlist-read-private" {
			t.Errorf("unexpected scope %q", q.Get("scope"))
		}
		if q.Get("redirect_uri") != "http://x/cb" {
			t.Errorf("unexpected redirect_uri %q", q.Get("redirect_uri"))
		}
	})

	t.Run("Exchange", func(t *testing.T) {
		t.Run("Success", func(t *testing.T) {
			var form url.Values
			srv := httptest.NewServer(tokenHandler(t, 200, map[string]any{
				"access_token": "at", "refresh_token": "rt", "expires_in": 3600, "token_type": "Bearer",
			}, &form))
			defer srv.Close()

			token, err := newTestService(t, srv).Exchange(ctx, "the-code")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if token.AccessToken != "at" || token.RefreshToken != "rt" {
				t.Errorf("unexpected token %+v", token)
			}
			if until := time.Until(token.Expiry); until < 59*time.Minute || until > time.Hour {
				t.Errorf("unexpected expiry %v", token.Expiry)
			}
			if form.Get("code") != "the-code" || form.Get("grant_type") != "authorization_code" {
				t.Errorf("unexpected form %v", form)
			}
			if form.Get("client_secret") != "test_client_secret" {
				t.Error("expected client credentials in request body")
			}
		})

		t.Run("Missing Refresh Token", func(t *testing.T) {
			srv := httptest.NewServer(tokenHandler(t, 200, map[string]any{
				"access_token": "at", "expires_in": 3600, "token_type": "Bearer",
			}, nil))
			defer srv.Close()

			_, err := newTestService(t, srv).Exchange(ctx, "code")
			if !errors.Is(err, shared.ErrIncompleteTokenResponse) {
				t.Errorf("expected ErrIncompleteTokenResponse, got %v", err)
			}
		})

		t.Run("Missing Expiry", func(t *testing.T) {
			srv := httptest.NewServer(tokenHandler(t, 200, map[string]any{
				"access_token": "at", "refresh_token": "rt", "token_type": "Bearer",
			}, nil))
			defer srv.Close()

			_, err := newTestService(t, srv).Exchange(ctx, "code")
			if !errors.Is(err, shared.ErrIncompleteTokenResponse) {
				t.Errorf("expected ErrIncompleteTokenResponse, got %v", err)
			}
		})

		t.Run("Missing Access Token", func(t *testing.T) {
			srv := httptest.NewServer(tokenHandler(t, 200, map[string]any{
				"refresh_token": "rt", "expires_in": 3600,
			}, nil))
			defer srv.Close()

			_, err := newTestService(t, srv).Exchange(ctx, "code")
			if !errors.Is(err, shared.ErrIncompleteTokenResponse) {
				t.Errorf("expected ErrIncompleteTokenResponse, got %v", err)
			}
		})

		t.Run("Provider Rejects Code", func(t *testing.T) {
			srv := httptest.NewServer(tokenHandler(t, 400, map[string]any{"error": "invalid_grant"}, nil))
			defer srv.Close()

			_, err := newTestService(t, srv).Exchange(ctx, "code")
			var upstream *UpstreamError
			if !errors.As(err, &upstream) || upstream.Status != 400 {
				t.Fatalf("expected UpstreamError 400, got %v", err)
			}
			if !errors.Is(err, shared.ErrUpstream) {
				t.Error("expected UpstreamError to wrap ErrUpstream")
			}
		})

		t.Run("Unreachable", func(t *testing.T) {
			srv := httptest.NewServer(http.NotFoundHandler())
			svc := newTestService(t, srv)
			srv.Close()

			_, err := svc.Exchange(ctx, "code")
			if !errors.Is(err, shared.ErrUpstreamUnreachable) {
				t.Errorf("expected ErrUpstreamUnreachable, got %v", err)
			}
		})
	})

	t.Run("Refresh", func(t *testing.T) {
		t.Run("Keeps Refresh Token", func(t *testing.T) {
			var form url.Values
			srv := httptest.NewServer(tokenHandler(t, 200, map[string]any{
				"access_token": "new-at", "expires_in": 3600, "token_type": "Bearer",
			}, &form))
			defer srv.Close()

			token, err := newTestService(t, srv).Refresh(ctx, "old-rt")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if token.AccessToken != "new-at" || token.RefreshToken != "old-rt" {
				t.Errorf("unexpected token %+v", token)
			}
			if form.Get("grant_type") != "refresh_token" || form.Get("refresh_token") != "old-rt" {
				t.Errorf("unexpected form %v", form)
			}
		})

		t.Run("Rotated Refresh Token", func(t *testing.T) {
			srv := httptest.NewServer(tokenHandler(t, 200, map[string]any{
				"access_token": "new-at", "refresh_token": "new-rt", "expires_in": 3600,
			}, nil))
			defer srv.Close()

			token, err := newTestService(t, srv).Refresh(ctx, "old-rt")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if token.RefreshToken != "new-rt" {
				t.Errorf("expected rotated refresh token, got %q", token.RefreshToken)
			}
		})

		t.Run("Denied", func(t *testing.T) {
			srv := httptest.NewServer(tokenHandler(t, 400, map[string]any{"error": "invalid_grant"}, nil))
			defer srv.Close()

			_, err := newTestService(t, srv).Refresh(ctx, "revoked")
			if !errors.Is(err, shared.ErrRefreshDenied) {
				t.Errorf("expected ErrRefreshDenied, got %v", err)
			}
		})

		t.Run("Empty Refresh Token", func(t *testing.T) {
			svc, _ := NewSpotifyService(shared.SpotifyConfig{ClientID: "id", ClientSecret: "s"}, SpotifyOpts{})
			if _, err := svc.Refresh(ctx, ""); !errors.Is(err, shared.ErrRefreshDenied) {
				t.Errorf("expected ErrRefreshDenied, got %v", err)
			}
		})

		t.Run("Server Error Is Not Denial", func(t *testing.T) {
			srv := httptest.NewServer(tokenHandler(t, 503, map[string]any{"error": "temporarily_unavailable"}, nil))
			defer srv.Close()

			_, err := newTestService(t, srv).Refresh(ctx, "rt")
			if errors.Is(err, shared.ErrRefreshDenied) {
				t.Fatal("5xx must not force a new login")
			}
			if !errors.Is(err, shared.ErrUpstream) {
				t.Errorf("expected ErrUpstream, got %v", err)
			}
		})
	})

	t.Run("SavedTracks", func(t *testing.T) {
		t.Run("Decodes Page", func(t *testing.T) {
			var gotAuth, gotQuery string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/v1/me/tracks" {
					http.NotFound(w, r)
					return
				}
				gotAuth = r.Header.Get("Authorization")
				gotQuery = r.URL.RawQuery
				fmt.Fprint(w, `{"items":[{"added_at":"2024-05-01T10:00:00Z","track":{"id":"t1","name":"Song","artists":[{"id":"a1","name":"A"}],"album":{"id":"al1","name":"Album","total_tracks":10,"release_date":"2020","images":[{"url":"u","height":300,"width":300}]}}}],"total":130,"limit":50,"offset":50,"next":null,"previous":null}`)
			}))
			defer srv.Close()

			page, err := newTestService(t, srv).SavedTracks(ctx, "access", 50, 50)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if gotAuth != "Bearer access" {
				t.Errorf("unexpected auth header %q", gotAuth)
			}
			if gotQuery != "limit=50&offset=50" {
				t.Errorf("unexpected query %q", gotQuery)
			}
			if page.Total != 130 || len(page.Items) != 1 {
				t.Fatalf("unexpected page %+v", page)
			}
			track := page.Items[0].Track
			if track == nil || track.Album.Images[0].Width != 300 || track.Artists[0].Name != "A" {
				t.Errorf("unexpected track %+v", track)
			}
		})

		t.Run("Clamps Limit", func(t *testing.T) {
			var gotQuery string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotQuery = r.URL.RawQuery
				fmt.Fprint(w, `{"items":[],"total":0}`)
			}))
			defer srv.Close()

			if _, err := newTestService(t, srv).SavedTracks(ctx, "access", 500, -3); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if gotQuery != "limit=50&offset=0" {
				t.Errorf("unexpected query %q", gotQuery)
			}
		})

		t.Run("Upstream Status", func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Retry-After", "7")
				w.WriteHeader(http.StatusTooManyRequests)
			}))
			defer srv.Close()

			_, err := newTestService(t, srv).SavedTracks(ctx, "access", 50, 0)
			var upstream *UpstreamError
			if !errors.As(err, &upstream) {
				t.Fatalf("expected UpstreamError, got %v", err)
			}
			if upstream.Status != 429 || upstream.RetryAfter != 7*time.Second {
				t.Errorf("unexpected error %+v", upstream)
			}
		})

		t.Run("Malformed Body", func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, `{"items":`)
			}))
			defer srv.Close()

			_, err := newTestService(t, srv).SavedTracks(ctx, "access", 50, 0)
			if !errors.Is(err, shared.ErrUpstream) {
				t.Errorf("expected ErrUpstream, got %v", err)
			}
		})

		t.Run("Transport Failure", func(t *testing.T) {
			svc, _ := NewSpotifyService(shared.SpotifyConfig{ClientID: "id", ClientSecret: "s"}, SpotifyOpts{
				HTTPClient: &http.Client{Transport: tu.NewMockRoundTripper(nil, errors.New("connection reset"))},
			})

			_, err := svc.SavedTracks(ctx, "access", 50, 0)
			if !errors.Is(err, shared.ErrUpstreamUnreachable) {
				t.Errorf("expected ErrUpstreamUnreachable, got %v", err)
			}
		})

		t.Run("Body Read Failure", func(t *testing.T) {
			resp := &http.Response{StatusCode: http.StatusOK, Header: http.Header{}, Body: &tu.FCloser{}}
			svc, _ := NewSpotifyService(shared.SpotifyConfig{ClientID: "id", ClientSecret: "s"}, SpotifyOpts{
				HTTPClient: &http.Client{Transport: tu.NewMockRoundTripper(resp, nil)},
			})

			_, err := svc.SavedTracks(ctx, "access", 50, 0)
			var upstream *UpstreamError
			if !errors.As(err, &upstream) || upstream.Status != http.StatusOK {
				t.Errorf("expected decode UpstreamError, got %v", err)
			}
		})

		t.Run("Missing Access Token", func(t *testing.T) {
			svc, _ := NewSpotifyService(shared.SpotifyConfig{ClientID: "id", ClientSecret: "s"}, SpotifyOpts{})
			if _, err := svc.SavedTracks(ctx, "", 50, 0); !errors.Is(err, shared.ErrUnauthenticated) {
				t.Errorf("expected ErrUnauthenticated, got %v", err)
			}
		})
	})
}
