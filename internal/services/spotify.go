// Spotify Web API implementation of [Authorizer] and [Library]
//
// Spotify API response types live in the models package, based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/melophiliacs/internal/metrics"
	"github.com/desertthunder/melophiliacs/internal/models"
	"github.com/desertthunder/melophiliacs/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	spotifyAuthURL  = "https://accounts.spotify.com/authorize"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyBaseURL  = "https://api.spotify.com/v1"

	// MaxPageSize is the largest page the saved-tracks endpoint accepts.
	MaxPageSize = 50
)

var defaultScopes = []string{"user-library-read", "playlist-read-private"}

// SpotifyService talks to the Spotify accounts service and Web API.
type SpotifyService struct {
	config     *oauth2.Config
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
	metrics    *metrics.Metrics
	logger     *log.Logger
}

// SpotifyOpts contains optional collaborators for [NewSpotifyService].
type SpotifyOpts struct {
	HTTPClient *http.Client
	Metrics    *metrics.Metrics
	Logger     *log.Logger
}

// NewSpotifyService creates a Spotify client from configuration. Empty endpoints fall back to Spotify's public URLs.
func NewSpotifyService(cfg shared.SpotifyConfig, opts SpotifyOpts) (*SpotifyService, error) {
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("%w: missing client_id", shared.ErrMissingCredentials)
	}
	if cfg.ClientSecret == "" {
		return nil, fmt.Errorf("%w: missing client_secret", shared.ErrMissingCredentials)
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = defaultScopes
	}

	if opts.HTTPClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		opts.HTTPClient = &http.Client{Timeout: timeout}
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	return &SpotifyService{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   orDefault(cfg.AuthURL, spotifyAuthURL),
				TokenURL:  orDefault(cfg.TokenURL, spotifyTokenURL),
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		httpClient: opts.HTTPClient,
		baseURL:    strings.TrimRight(orDefault(cfg.APIBaseURL, spotifyBaseURL), "/"),
		limiter:    rate.NewLimiter(limit, burst),
		metrics:    opts.Metrics,
		logger:     opts.Logger.With("component", "spotify"),
	}, nil
}

// AuthCodeURL returns the OAuth2 authorization URL for user login.
func (s *SpotifyService) AuthCodeURL(state string) string {
	return s.config.AuthCodeURL(state)
}

// Exchange trades an authorization code for tokens.
//
// The token must carry an access token, a refresh token, and an expiry.
func (s *SpotifyService) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	start := time.Now()
	token, err := s.config.Exchange(s.clientContext(ctx), code)
	s.observeToken("token_exchange", err, start)
	if err != nil {
		return nil, classifyTokenError(err)
	}

	var missing []string
	if token.AccessToken == "" {
		missing = append(missing, "access_token")
	}
	if token.RefreshToken == "" {
		missing = append(missing, "refresh_token")
	}
	if token.Expiry.IsZero() {
		missing = append(missing, "expires_in")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing %s", shared.ErrIncompleteTokenResponse, strings.Join(missing, ", "))
	}

	return token, nil
}

// Refresh obtains a new access token for refreshToken.
//
// A 400 or 401 from the token endpoint means the refresh token was rejected and yields [shared.ErrRefreshDenied].
func (s *SpotifyService) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("%w: no refresh token", shared.ErrRefreshDenied)
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	start := time.Now()
	token, err := s.config.TokenSource(s.clientContext(ctx), &oauth2.Token{RefreshToken: refreshToken}).Token()
	s.observeToken("token_refresh", err, start)
	if err != nil {
		err = classifyTokenError(err)
		var upstream *UpstreamError
		if errors.As(err, &upstream) && (upstream.Status == http.StatusBadRequest || upstream.Status == http.StatusUnauthorized) {
			return nil, fmt.Errorf("%w: %v", shared.ErrRefreshDenied, upstream)
		}
		return nil, err
	}

	if token.AccessToken == "" || token.Expiry.IsZero() {
		return nil, fmt.Errorf("%w: refresh response missing access_token or expires_in", shared.ErrIncompleteTokenResponse)
	}
	if token.RefreshToken == "" {
		token.RefreshToken = refreshToken
	}
	return token, nil
}

// SavedTracks retrieves one page of the user's saved tracks.
func (s *SpotifyService) SavedTracks(ctx context.Context, accessToken string, limit, offset int) (*models.SavedItemsPage, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}

	endpoint := fmt.Sprintf("/me/tracks?limit=%d&offset=%d", limit, offset)

	var page models.SavedItemsPage
	if err := s.doRequest(ctx, accessToken, http.MethodGet, "saved_tracks", endpoint, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// doRequest performs an authenticated HTTP request to the Spotify API and decodes the JSON body into result.
func (s *SpotifyService) doRequest(ctx context.Context, accessToken, method, name, endpoint string, result any) error {
	if accessToken == "" {
		return fmt.Errorf("%w: missing access token", shared.ErrUnauthenticated)
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.metrics.ObserveUpstream(name, 0, time.Since(start))
		return fmt.Errorf("%w: %s %s: %v", shared.ErrUpstreamUnreachable, method, endpoint, err)
	}
	defer resp.Body.Close()
	s.metrics.ObserveUpstream(name, resp.StatusCode, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		upstream := &UpstreamError{Endpoint: name, Status: resp.StatusCode, Detail: readDetail(resp.Body)}
		if resp.StatusCode == http.StatusTooManyRequests {
			if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
				upstream.RetryAfter = time.Duration(secs) * time.Second
			}
		}
		s.logger.Warn("upstream request failed", "endpoint", name, "status", resp.StatusCode, "retry_after", upstream.RetryAfter)
		return upstream
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return &UpstreamError{Endpoint: name, Status: resp.StatusCode, Detail: "failed to decode response: " + err.Error()}
		}
	}

	return nil
}

func (s *SpotifyService) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
}

func (s *SpotifyService) observeToken(name string, err error, start time.Time) {
	status := http.StatusOK
	var re *oauth2.RetrieveError
	switch {
	case errors.As(err, &re) && re.Response != nil:
		status = re.Response.StatusCode
	case err != nil:
		status = 0
	}
	s.metrics.ObserveUpstream(name, status, time.Since(start))
}

// classifyTokenError maps errors from the oauth2 package onto the shared error set.
func classifyTokenError(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		status := 0
		if re.Response != nil {
			status = re.Response.StatusCode
		}
		return &UpstreamError{Endpoint: "token", Status: status, Detail: re.ErrorCode}
	}

	var ue *url.Error
	if errors.As(err, &ue) {
		return fmt.Errorf("%w: %v", shared.ErrUpstreamUnreachable, ue)
	}

	// oauth2 reports a 2xx body without access_token as a plain error
	return fmt.Errorf("%w: %v", shared.ErrIncompleteTokenResponse, err)
}

// readDetail returns a short prefix of an error body for diagnostics.
func readDetail(r io.Reader) string {
	body, _ := io.ReadAll(io.LimitReader(r, 256))
	return strings.TrimSpace(string(body))
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
