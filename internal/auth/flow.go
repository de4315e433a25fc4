// Package auth implements the Spotify login flow and the guard that resolves session tokens
// into authenticated sessions, refreshing their access tokens as they near expiry.
package auth

import (
	"context"
	"crypto/subtle"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/melophiliacs/internal/metrics"
	"github.com/desertthunder/melophiliacs/internal/services"
	"github.com/desertthunder/melophiliacs/internal/session"
	"github.com/desertthunder/melophiliacs/internal/shared"
	"github.com/gorilla/securecookie"
)

// DefaultStateTTL bounds how long a login may take between redirect and callback.
const DefaultStateTTL = 5 * time.Minute

// state is the payload of the signed state cookie.
type state struct {
	Nonce         string `json:"nonce"`
	FinalRedirect string `json:"final_redirect"`
}

// LoginRedirect is where to send the browser to start a login, and the state cookie to set first.
type LoginRedirect struct {
	AuthURL       string
	StateCookie   string
	StateTTL      time.Duration
	FinalRedirect string
}

// CallbackParams carries the query parameters and state cookie of a login callback.
type CallbackParams struct {
	Code           string
	State          string
	Error          string
	StateCookie    string
	HasStateCookie bool
}

// LoginResult is a completed login: the new session and where to send the browser.
type LoginResult struct {
	Session       *session.Session
	FinalRedirect string
}

// ControllerOpts configures a [Controller].
type ControllerOpts struct {
	Provider services.Authorizer
	Sessions *session.Store
	// CacheKeys lists the cached entries to remove with a session on logout.
	CacheKeys func(token string) []string
	Config    shared.AuthConfig
	Logger    *log.Logger
	Metrics   *metrics.Metrics
}

// Controller runs the authorization code flow and logout.
type Controller struct {
	provider  services.Authorizer
	sessions  *session.Store
	cacheKeys func(string) []string
	codec     *securecookie.SecureCookie
	cfg       shared.AuthConfig
	logger    *log.Logger
	metrics   *metrics.Metrics
}

// NewController creates a Controller. State cookies are signed with cfg.CookieSecret, or with a
// random per-process key when it is empty.
func NewController(opts ControllerOpts) (*Controller, error) {
	if opts.Provider == nil || opts.Sessions == nil {
		return nil, fmt.Errorf("%w: auth controller needs a provider and a session store", shared.ErrMissingConfig)
	}

	cfg := opts.Config
	if cfg.DefaultFinalRedirectURI == "" {
		return nil, fmt.Errorf("%w: a default final redirect is required", shared.ErrMissingConfig)
	}
	if cfg.StateTTL <= 0 {
		cfg.StateTTL = DefaultStateTTL
	}

	hashKey := []byte(cfg.CookieSecret)
	if len(hashKey) == 0 {
		hashKey = securecookie.GenerateRandomKey(32)
	}
	codec := securecookie.New(hashKey, nil)
	codec.SetSerializer(securecookie.JSONEncoder{})
	codec.MaxAge(int(cfg.StateTTL.Seconds()))

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	cacheKeys := opts.CacheKeys
	if cacheKeys == nil {
		cacheKeys = func(string) []string { return nil }
	}

	return &Controller{
		provider:  opts.Provider,
		sessions:  opts.Sessions,
		cacheKeys: cacheKeys,
		codec:     codec,
		cfg:       cfg,
		logger:    logger.With("component", "auth"),
		metrics:   opts.Metrics,
	}, nil
}

// BeginLogin starts a login that will finish at requestedFinalRedirect.
//
// A redirect outside the allow-list is replaced with the default one rather than rejected.
func (c *Controller) BeginLogin(ctx context.Context, requestedFinalRedirect string) (*LoginRedirect, error) {
	final := c.cfg.DefaultFinalRedirectURI
	if requestedFinalRedirect != "" {
		if c.allowed(requestedFinalRedirect) {
			final = requestedFinalRedirect
		} else {
			c.logger.Warn("final redirect not allowed, using default", "requested", requestedFinalRedirect, "default", final)
		}
	}

	nonce := shared.GenerateID()
	cookie, err := c.codec.Encode(session.StateCookieName, state{Nonce: nonce, FinalRedirect: final})
	if err != nil {
		return nil, fmt.Errorf("encoding oauth state: %w", err)
	}

	return &LoginRedirect{
		AuthURL:       c.provider.AuthCodeURL(nonce),
		StateCookie:   cookie,
		StateTTL:      c.cfg.StateTTL,
		FinalRedirect: final,
	}, nil
}

func (c *Controller) allowed(uri string) bool {
	for _, prefix := range c.cfg.AllowedFinalRedirectURIs {
		if prefix != "" && strings.HasPrefix(uri, prefix) {
			return true
		}
	}
	return false
}

// CompleteLogin validates a callback against its state cookie, exchanges the code, and creates a session.
func (c *Controller) CompleteLogin(ctx context.Context, p CallbackParams) (*LoginResult, error) {
	result, err := c.completeLogin(ctx, p)
	if err != nil {
		c.metrics.Login("failed")
		return nil, err
	}
	c.metrics.Login("succeeded")
	return result, nil
}

func (c *Controller) completeLogin(ctx context.Context, p CallbackParams) (*LoginResult, error) {
	if p.Error != "" {
		c.logger.Warn("authorization denied by provider", "error", p.Error)
		return nil, fmt.Errorf("%w: %s", shared.ErrProviderDenied, p.Error)
	}
	if p.Code == "" || p.State == "" {
		return nil, shared.ErrMissingParameters
	}
	if !p.HasStateCookie {
		c.logger.Warn("callback without state cookie")
		return nil, shared.ErrCSRFStateMissing
	}

	var st state
	if err := c.codec.Decode(session.StateCookieName, p.StateCookie, &st); err != nil {
		c.logger.Warn("state cookie rejected", "error", err)
		return nil, shared.ErrCSRFStateMalformed
	}
	if st.Nonce == "" || st.FinalRedirect == "" {
		c.logger.Warn("state cookie incomplete")
		return nil, shared.ErrCSRFStateMalformed
	}
	if subtle.ConstantTimeCompare([]byte(st.Nonce), []byte(p.State)) != 1 {
		c.logger.Warn("state parameter does not match cookie")
		return nil, shared.ErrCSRFMismatch
	}

	token, err := c.provider.Exchange(ctx, p.Code)
	if err != nil {
		c.logger.Error("code exchange failed", "error", err)
		return nil, err
	}

	sessionToken, err := session.GenerateToken()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrSessionPersist, err)
	}
	sess := &session.Session{
		Token:                sessionToken,
		AccessToken:          token.AccessToken,
		RefreshToken:         token.RefreshToken,
		AccessTokenExpiresAt: token.Expiry,
	}
	if err := c.sessions.Create(ctx, sess); err != nil {
		c.logger.Error("storing session failed", "session", session.Mask(sessionToken), "error", err)
		return nil, err
	}

	c.logger.Info("login completed", "session", session.Mask(sessionToken), "expires_at", token.Expiry)
	return &LoginResult{Session: sess, FinalRedirect: st.FinalRedirect}, nil
}

// Logout removes the session and everything cached for it. Logging out an unknown token is not an error.
func (c *Controller) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := c.sessions.Delete(ctx, token, c.cacheKeys(token)...); err != nil {
		c.logger.Error("logout failed", "session", session.Mask(token), "error", err)
		return err
	}
	c.logger.Info("logged out", "session", session.Mask(token))
	return nil
}
