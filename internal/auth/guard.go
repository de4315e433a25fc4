package auth

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/melophiliacs/internal/metrics"
	"github.com/desertthunder/melophiliacs/internal/services"
	"github.com/desertthunder/melophiliacs/internal/session"
	"github.com/desertthunder/melophiliacs/internal/shared"
	"golang.org/x/sync/singleflight"
)

// DefaultRefreshBuffer is how close to expiry an access token is refreshed.
const DefaultRefreshBuffer = 5 * time.Minute

// Guard resolves session tokens into sessions with a usable access token.
type Guard struct {
	provider services.Authorizer
	sessions *session.Store
	buffer   time.Duration
	logger   *log.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
	flight   singleflight.Group
}

func NewGuard(provider services.Authorizer, sessions *session.Store, buffer time.Duration, logger *log.Logger, m *metrics.Metrics) *Guard {
	if buffer <= 0 {
		buffer = DefaultRefreshBuffer
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Guard{
		provider: provider,
		sessions: sessions,
		buffer:   buffer,
		logger:   logger.With("component", "guard"),
		metrics:  m,
		now:      time.Now,
	}
}

// Authenticate loads the session for token, refreshing its access token first when it expires
// within the refresh buffer.
//
// A rejected refresh returns [shared.ErrRefreshDenied] and leaves the stored session unchanged.
func (g *Guard) Authenticate(ctx context.Context, token string) (*session.Session, error) {
	if token == "" {
		return nil, shared.ErrUnauthenticated
	}

	sess, found, err := g.sessions.Get(ctx, token)
	if err != nil {
		g.logger.Error("session lookup failed", "session", session.Mask(token), "error", err)
		return nil, err
	}
	if !found {
		return nil, shared.ErrInvalidSession
	}

	if sess.ExpiresIn(g.now()) >= g.buffer {
		return sess, nil
	}

	v, err, _ := g.flight.Do(token, func() (any, error) {
		return g.refresh(context.WithoutCancel(ctx), sess)
	})
	if err != nil {
		return nil, err
	}
	return v.(*session.Session), nil
}

func (g *Guard) refresh(ctx context.Context, sess *session.Session) (*session.Session, error) {
	masked := session.Mask(sess.Token)

	token, err := g.provider.Refresh(ctx, sess.RefreshToken)
	if err != nil {
		if errors.Is(err, shared.ErrRefreshDenied) {
			g.metrics.TokenRefresh("denied")
			g.logger.Warn("refresh token rejected", "session", masked)
		} else {
			g.metrics.TokenRefresh("failed")
			g.logger.Error("token refresh failed", "session", masked, "error", err)
		}
		return nil, err
	}

	patch := session.Patch{AccessToken: token.AccessToken, AccessTokenExpiresAt: token.Expiry}
	if token.RefreshToken != sess.RefreshToken {
		patch.RefreshToken = token.RefreshToken
	}

	updated, err := g.sessions.Update(ctx, sess.Token, patch)
	if err != nil {
		g.metrics.TokenRefresh("failed")
		g.logger.Error("storing refreshed token failed", "session", masked, "error", err)
		if errors.Is(err, shared.ErrInvalidSession) {
			return nil, err
		}
		if !errors.Is(err, shared.ErrSessionPersist) {
			err = errors.Join(shared.ErrSessionPersist, err)
		}
		return nil, err
	}

	g.metrics.TokenRefresh("refreshed")
	g.logger.Debug("access token refreshed", "session", masked, "expires_at", token.Expiry)
	return updated, nil
}
