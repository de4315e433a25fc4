package auth

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/desertthunder/melophiliacs/internal/kvs"
	"github.com/desertthunder/melophiliacs/internal/session"
	"github.com/desertthunder/melophiliacs/internal/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// fakeProvider stands in for Spotify's OAuth endpoints.
type fakeProvider struct {
	exchangeErr error
	refreshErr  error
	refreshed   *oauth2.Token
	gate        chan struct{}

	exchanges atomic.Int32
	refreshes atomic.Int32
}

func (f *fakeProvider) AuthCodeURL(state string) string {
	return "https://accounts.example/authorize?" + url.Values{"state": {state}}.Encode()
}

func (f *fakeProvider) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	f.exchanges.Add(1)
	if f.exchangeErr != nil {
		return nil, f.exchangeErr
	}
	return &oauth2.Token{AccessToken: "at-" + code, RefreshToken: "rt-" + code, Expiry: time.Now().Add(time.Hour)}, nil
}

func (f *fakeProvider) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	f.refreshes.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	if f.refreshed != nil {
		return f.refreshed, nil
	}
	return &oauth2.Token{AccessToken: "at-refreshed", RefreshToken: refreshToken, Expiry: time.Now().Add(time.Hour)}, nil
}

var testAuthConfig = shared.AuthConfig{
	DefaultFinalRedirectURI:  "http://localhost:5173/",
	AllowedFinalRedirectURIs: []string{"http://localhost:5173"},
	CookieSecret:             "0123456789abcdef0123456789abcdef",
}

type fixture struct {
	provider   *fakeProvider
	kv         *kvs.MemoryStore
	sessions   *session.Store
	controller *Controller
	guard      *Guard
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	kv := kvs.NewMemoryStore("", shared.MemoryConfig{})
	t.Cleanup(func() { kv.Close() })

	provider := &fakeProvider{}
	sessions := session.NewStore(kv, time.Hour)
	controller, err := NewController(ControllerOpts{
		Provider: provider,
		Sessions: sessions,
		CacheKeys: func(token string) []string {
			return []string{"saved_items:" + token, "top_artists:" + token, "top_albums:" + token}
		},
		Config: testAuthConfig,
	})
	require.NoError(t, err)

	return &fixture{
		provider:   provider,
		kv:         kv,
		sessions:   sessions,
		controller: controller,
		guard:      NewGuard(provider, sessions, 5*time.Minute, nil, nil),
	}
}

func nonceOf(t *testing.T, authURL string) string {
	t.Helper()
	u, err := url.Parse(authURL)
	require.NoError(t, err)
	return u.Query().Get("state")
}

// login runs a full begin/complete round trip and returns the new session.
func (f *fixture) login(t *testing.T) *session.Session {
	t.Helper()
	ctx := context.Background()
	begin, err := f.controller.BeginLogin(ctx, "")
	require.NoError(t, err)

	result, err := f.controller.CompleteLogin(ctx, CallbackParams{
		Code: "code", State: nonceOf(t, begin.AuthURL), StateCookie: begin.StateCookie, HasStateCookie: true,
	})
	require.NoError(t, err)
	return result.Session
}

func TestNewController(t *testing.T) {
	t.Run("Requires Collaborators", func(t *testing.T) {
		_, err := NewController(ControllerOpts{Config: testAuthConfig})
		assert.ErrorIs(t, err, shared.ErrMissingConfig)
	})

	t.Run("Requires Default Redirect", func(t *testing.T) {
		kv := kvs.NewMemoryStore("", shared.MemoryConfig{})
		defer kv.Close()
		_, err := NewController(ControllerOpts{Provider: &fakeProvider{}, Sessions: session.NewStore(kv, time.Hour)})
		assert.ErrorIs(t, err, shared.ErrMissingConfig)
	})
}

func TestBeginLogin(t *testing.T) {
	ctx := context.Background()

	t.Run("Allowed Redirect", func(t *testing.T) {
		f := newFixture(t)
		begin, err := f.controller.BeginLogin(ctx, "http://localhost:5173/stats")
		require.NoError(t, err)
		assert.Equal(t, "http://localhost:5173/stats", begin.FinalRedirect)
		assert.NotEmpty(t, nonceOf(t, begin.AuthURL))
		assert.NotEmpty(t, begin.StateCookie)
		assert.Equal(t, DefaultStateTTL, begin.StateTTL)
	})

	t.Run("Disallowed Redirect Falls Back", func(t *testing.T) {
		f := newFixture(t)
		begin, err := f.controller.BeginLogin(ctx, "https://evil.example/")
		require.NoError(t, err)
		assert.Equal(t, testAuthConfig.DefaultFinalRedirectURI, begin.FinalRedirect)
	})

	t.Run("Fresh Nonce Per Login", func(t *testing.T) {
		f := newFixture(t)
		a, err := f.controller.BeginLogin(ctx, "")
		require.NoError(t, err)
		b, err := f.controller.BeginLogin(ctx, "")
		require.NoError(t, err)
		assert.NotEqual(t, nonceOf(t, a.AuthURL), nonceOf(t, b.AuthURL))
	})

	t.Run("Cookie Does Not Expose Nonce As Plain Text", func(t *testing.T) {
		f := newFixture(t)
		begin, err := f.controller.BeginLogin(ctx, "")
		require.NoError(t, err)
		assert.NotContains(t, begin.StateCookie, nonceOf(t, begin.AuthURL))
	})
}

func TestCompleteLogin(t *testing.T) {
	ctx := context.Background()

	t.Run("Round Trip", func(t *testing.T) {
		f := newFixture(t)
		begin, err := f.controller.BeginLogin(ctx, "http://localhost:5173/stats")
		require.NoError(t, err)

		result, err := f.controller.CompleteLogin(ctx, CallbackParams{
			Code: "abc", State: nonceOf(t, begin.AuthURL), StateCookie: begin.StateCookie, HasStateCookie: true,
		})
		require.NoError(t, err)
		assert.Equal(t, "http://localhost:5173/stats", result.FinalRedirect)
		assert.Equal(t, "at-abc", result.Session.AccessToken)

		stored, found, err := f.sessions.Get(ctx, result.Session.Token)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, "rt-abc", stored.RefreshToken)
	})

	cases := []struct {
		name   string
		params func(begin *LoginRedirect, nonce string) CallbackParams
		want   error
	}{
		{
			name: "Provider Denied",
			params: func(b *LoginRedirect, n string) CallbackParams {
				return CallbackParams{Error: "access_denied", State: n, StateCookie: b.StateCookie, HasStateCookie: true}
			},
			want: shared.ErrProviderDenied,
		},
		{
			name: "Missing Code",
			params: func(b *LoginRedirect, n string) CallbackParams {
				return CallbackParams{State: n, StateCookie: b.StateCookie, HasStateCookie: true}
			},
			want: shared.ErrMissingParameters,
		},
		{
			name: "Missing State",
			params: func(b *LoginRedirect, n string) CallbackParams {
				return CallbackParams{Code: "abc", StateCookie: b.StateCookie, HasStateCookie: true}
			},
			want: shared.ErrMissingParameters,
		},
		{
			name: "Missing Cookie",
			params: func(b *LoginRedirect, n string) CallbackParams {
				return CallbackParams{Code: "abc", State: n}
			},
			want: shared.ErrCSRFStateMissing,
		},
		{
			name: "Tampered Cookie",
			params: func(b *LoginRedirect, n string) CallbackParams {
				c := []byte(b.StateCookie)
				c[len(c)/2] ^= 0x01
				return CallbackParams{Code: "abc", State: n, StateCookie: string(c), HasStateCookie: true}
			},
			want: shared.ErrCSRFStateMalformed,
		},
		{
			name: "Garbage Cookie",
			params: func(b *LoginRedirect, n string) CallbackParams {
				return CallbackParams{Code: "abc", State: n, StateCookie: "not-a-cookie", HasStateCookie: true}
			},
			want: shared.ErrCSRFStateMalformed,
		},
		{
			name: "Nonce Mismatch",
			params: func(b *LoginRedirect, n string) CallbackParams {
				return CallbackParams{Code: "abc", State: n + "x", StateCookie: b.StateCookie, HasStateCookie: true}
			},
			want: shared.ErrCSRFMismatch,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			begin, err := f.controller.BeginLogin(ctx, "")
			require.NoError(t, err)

			_, err = f.controller.CompleteLogin(ctx, tc.params(begin, nonceOf(t, begin.AuthURL)))
			assert.ErrorIs(t, err, tc.want)
			assert.Zero(t, f.provider.exchanges.Load(), "no exchange on a rejected callback")
			assert.Equal(t, 0, f.kv.Len(), "no session on a rejected callback")
		})
	}

	t.Run("Cookie From Another Process", func(t *testing.T) {
		f := newFixture(t)
		other, err := NewController(ControllerOpts{
			Provider: f.provider,
			Sessions: f.sessions,
			Config:   shared.AuthConfig{DefaultFinalRedirectURI: "http://localhost:5173/"},
		})
		require.NoError(t, err)

		begin, err := other.BeginLogin(ctx, "")
		require.NoError(t, err)
		_, err = f.controller.CompleteLogin(ctx, CallbackParams{
			Code: "abc", State: nonceOf(t, begin.AuthURL), StateCookie: begin.StateCookie, HasStateCookie: true,
		})
		assert.ErrorIs(t, err, shared.ErrCSRFStateMalformed)
	})

	t.Run("Exchange Failure", func(t *testing.T) {
		f := newFixture(t)
		f.provider.exchangeErr = shared.ErrIncompleteTokenResponse
		begin, err := f.controller.BeginLogin(ctx, "")
		require.NoError(t, err)

		_, err = f.controller.CompleteLogin(ctx, CallbackParams{
			Code: "abc", State: nonceOf(t, begin.AuthURL), StateCookie: begin.StateCookie, HasStateCookie: true,
		})
		assert.ErrorIs(t, err, shared.ErrIncompleteTokenResponse)
		assert.Equal(t, 0, f.kv.Len())
	})
}

func TestLogout(t *testing.T) {
	ctx := context.Background()

	t.Run("Removes Session And Cache", func(t *testing.T) {
		f := newFixture(t)
		sess := f.login(t)
		for _, slot := range []string{"saved_items:", "top_artists:", "top_albums:"} {
			require.NoError(t, f.kv.Set(ctx, slot+sess.Token, []byte("[]"), time.Hour))
		}
		require.Equal(t, 4, f.kv.Len())

		require.NoError(t, f.controller.Logout(ctx, sess.Token))
		assert.Equal(t, 0, f.kv.Len())

		_, err := f.guard.Authenticate(ctx, sess.Token)
		assert.ErrorIs(t, err, shared.ErrInvalidSession)
	})

	t.Run("Idempotent", func(t *testing.T) {
		f := newFixture(t)
		assert.NoError(t, f.controller.Logout(ctx, "unknown"))
		assert.NoError(t, f.controller.Logout(ctx, ""))
	})
}

func TestAuthenticate(t *testing.T) {
	ctx := context.Background()

	t.Run("Unauthenticated", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.guard.Authenticate(ctx, "")
		assert.ErrorIs(t, err, shared.ErrUnauthenticated)
	})

	t.Run("Unknown Token", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.guard.Authenticate(ctx, "nope")
		assert.ErrorIs(t, err, shared.ErrInvalidSession)
	})

	t.Run("Fresh Token Is Not Refreshed", func(t *testing.T) {
		f := newFixture(t)
		sess := f.login(t)

		got, err := f.guard.Authenticate(ctx, sess.Token)
		require.NoError(t, err)
		assert.Equal(t, sess.AccessToken, got.AccessToken)
		assert.Equal(t, sess.Token, got.Token)
		assert.Zero(t, f.provider.refreshes.Load())
	})

	t.Run("Refreshes Within Buffer", func(t *testing.T) {
		f := newFixture(t)
		sess := f.login(t)
		f.guard.now = func() time.Time { return sess.AccessTokenExpiresAt.Add(-time.Minute) }

		got, err := f.guard.Authenticate(ctx, sess.Token)
		require.NoError(t, err)
		assert.Equal(t, int32(1), f.provider.refreshes.Load())
		assert.Equal(t, "at-refreshed", got.AccessToken)

		stored, _, err := f.sessions.Get(ctx, sess.Token)
		require.NoError(t, err)
		assert.Equal(t, "at-refreshed", stored.AccessToken)
		assert.Equal(t, sess.RefreshToken, stored.RefreshToken)
	})

	t.Run("Stores Rotated Refresh Token", func(t *testing.T) {
		f := newFixture(t)
		sess := f.login(t)
		f.provider.refreshed = &oauth2.Token{AccessToken: "at2", RefreshToken: "rt2", Expiry: time.Now().Add(time.Hour)}
		f.guard.now = func() time.Time { return sess.AccessTokenExpiresAt }

		_, err := f.guard.Authenticate(ctx, sess.Token)
		require.NoError(t, err)

		stored, _, err := f.sessions.Get(ctx, sess.Token)
		require.NoError(t, err)
		assert.Equal(t, "rt2", stored.RefreshToken)
	})

	t.Run("Refresh Denied Leaves Session", func(t *testing.T) {
		f := newFixture(t)
		sess := f.login(t)
		f.provider.refreshErr = shared.ErrRefreshDenied
		f.guard.now = func() time.Time { return sess.AccessTokenExpiresAt.Add(time.Minute) }

		_, err := f.guard.Authenticate(ctx, sess.Token)
		assert.ErrorIs(t, err, shared.ErrRefreshDenied)

		stored, found, err := f.sessions.Get(ctx, sess.Token)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, sess.AccessToken, stored.AccessToken)
	})

	t.Run("Refresh Upstream Failure", func(t *testing.T) {
		f := newFixture(t)
		sess := f.login(t)
		f.provider.refreshErr = errors.Join(shared.ErrUpstreamUnreachable, errors.New("dial tcp: refused"))
		f.guard.now = func() time.Time { return sess.AccessTokenExpiresAt }

		_, err := f.guard.Authenticate(ctx, sess.Token)
		assert.ErrorIs(t, err, shared.ErrUpstreamUnreachable)
	})

	t.Run("Concurrent Requests Share One Refresh", func(t *testing.T) {
		f := newFixture(t)
		sess := f.login(t)
		f.provider.gate = make(chan struct{})
		f.guard.now = func() time.Time { return sess.AccessTokenExpiresAt.Add(-time.Minute) }

		var wg sync.WaitGroup
		for range 5 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				got, err := f.guard.Authenticate(ctx, sess.Token)
				assert.NoError(t, err)
				assert.Equal(t, "at-refreshed", got.AccessToken)
			}()
		}

		require.Eventually(t, func() bool { return f.provider.refreshes.Load() == 1 }, time.Second, time.Millisecond)
		time.Sleep(20 * time.Millisecond)
		close(f.provider.gate)
		wg.Wait()

		assert.Equal(t, int32(1), f.provider.refreshes.Load())
	})

	t.Run("Cancelled Caller Does Not Fail Joined Refresh", func(t *testing.T) {
		f := newFixture(t)
		sess := f.login(t)
		f.provider.gate = make(chan struct{})
		f.guard.now = func() time.Time { return sess.AccessTokenExpiresAt.Add(-time.Minute) }

		firstCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		firstErr := make(chan error, 1)
		go func() {
			_, err := f.guard.Authenticate(firstCtx, sess.Token)
			firstErr <- err
		}()
		require.Eventually(t, func() bool { return f.provider.refreshes.Load() == 1 }, time.Second, time.Millisecond)

		joined := make(chan *session.Session, 1)
		go func() {
			got, err := f.guard.Authenticate(ctx, sess.Token)
			assert.NoError(t, err)
			joined <- got
		}()

		time.Sleep(20 * time.Millisecond)
		cancel()
		close(f.provider.gate)

		got := <-joined
		require.NotNil(t, got)
		assert.Equal(t, "at-refreshed", got.AccessToken)
		assert.NoError(t, <-firstErr)
		assert.Equal(t, int32(1), f.provider.refreshes.Load())

		stored, found, err := f.sessions.Get(ctx, sess.Token)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, "at-refreshed", stored.AccessToken)
	})
}
