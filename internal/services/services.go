package services

import (
	"context"
	"fmt"
	"time"

	"github.com/desertthunder/melophiliacs/internal/models"
	"github.com/desertthunder/melophiliacs/internal/shared"
	"golang.org/x/oauth2"
)

// Authorizer covers the OAuth operations of the upstream provider.
type Authorizer interface {
	// AuthCodeURL returns the consent URL carrying state.
	AuthCodeURL(state string) string

	// Exchange trades an authorization code for an access token, refresh token, and expiry.
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)

	// Refresh obtains a new access token. The returned token keeps the old refresh token unless a new one was issued.
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// Library covers read access to a user's saved tracks.
type Library interface {
	// SavedTracks fetches one page of saved tracks starting at offset.
	SavedTracks(ctx context.Context, accessToken string, limit, offset int) (*models.SavedItemsPage, error)
}

// UpstreamError reports a non-2xx response from Spotify.
type UpstreamError struct {
	Endpoint   string
	Status     int
	RetryAfter time.Duration // set from Retry-After on 429 responses
	Detail     string
}

func (e *UpstreamError) Error() string {
	msg := fmt.Sprintf("spotify API error: %s returned status %d", e.Endpoint, e.Status)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *UpstreamError) Unwrap() error {
	return shared.ErrUpstream
}
