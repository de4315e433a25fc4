// Package session manages opaque session tokens and the Spotify credentials stored behind them.
package session

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/desertthunder/melophiliacs/internal/shared"
)

// KeyPrefix namespaces session records in the key-value store.
const KeyPrefix = "session:"

// Session is the server-side state bound to an opaque session token.
type Session struct {
	Token                string
	AccessToken          string
	RefreshToken         string
	AccessTokenExpiresAt time.Time
	CreatedAt            time.Time
}

// ExpiresIn returns how long the access token remains valid at now. It is negative once expired.
func (s *Session) ExpiresIn(now time.Time) time.Duration {
	return s.AccessTokenExpiresAt.Sub(now)
}

// Patch holds the fields to change on an existing session. Empty fields keep their stored value.
//
// AccessToken and AccessTokenExpiresAt must be set together.
type Patch struct {
	AccessToken          string
	RefreshToken         string
	AccessTokenExpiresAt time.Time
}

func (p Patch) validate() error {
	if (p.AccessToken == "") != p.AccessTokenExpiresAt.IsZero() {
		return fmt.Errorf("%w: access token and expiry must be updated together", shared.ErrInvalidInput)
	}
	return nil
}

// record is the stored JSON form of a [Session].
type record struct {
	AccessToken  string `json:"spotify_access_token"`
	RefreshToken string `json:"spotify_refresh_token"`
	ExpiresAt    int64  `json:"spotify_access_token_expires_at"`
	CreatedAt    int64  `json:"created_at"`
}

func toRecord(s *Session) record {
	return record{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		ExpiresAt:    s.AccessTokenExpiresAt.Unix(),
		CreatedAt:    s.CreatedAt.Unix(),
	}
}

func (r record) session(token string) *Session {
	s := &Session{
		Token:                token,
		AccessToken:          r.AccessToken,
		RefreshToken:         r.RefreshToken,
		AccessTokenExpiresAt: time.Unix(r.ExpiresAt, 0),
	}
	if r.CreatedAt > 0 {
		s.CreatedAt = time.Unix(r.CreatedAt, 0)
	}
	return s
}

// GenerateToken returns a new session token: 32 random bytes, base64url encoded without padding.
func GenerateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("session: failed to generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Mask returns a log-safe fragment of a session or access token.
func Mask(token string) string {
	return shared.MaskSecret(token)
}
