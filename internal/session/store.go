package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/desertthunder/melophiliacs/internal/kvs"
	"github.com/desertthunder/melophiliacs/internal/shared"
)

// Store persists sessions as JSON under "session:{token}".
//
// Every write re-applies the session lifetime as the record TTL.
type Store struct {
	kv  kvs.Store
	ttl time.Duration
	now func() time.Time
}

// NewStore creates a session store over kv with the given record lifetime.
func NewStore(kv kvs.Store, ttl time.Duration) *Store {
	return &Store{kv: kv, ttl: ttl, now: time.Now}
}

// Key returns the store key for a session token.
func Key(token string) string {
	return KeyPrefix + token
}

// Create stores a new session. The session must carry a token and a refresh token.
func (s *Store) Create(ctx context.Context, sess *Session) error {
	if sess.Token == "" {
		return fmt.Errorf("%w: session token is required", shared.ErrInvalidInput)
	}
	if sess.RefreshToken == "" {
		return fmt.Errorf("%w: refresh token is required", shared.ErrInvalidInput)
	}
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = s.now()
	}
	return s.put(ctx, sess)
}

// Get loads the session for token. found is false when no live record exists.
func (s *Store) Get(ctx context.Context, token string) (*Session, bool, error) {
	if token == "" {
		return nil, false, nil
	}

	data, found, err := s.kv.Get(ctx, Key(token))
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", shared.ErrStoreUnavailable, err)
	}
	if !found {
		return nil, false, nil
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, false, fmt.Errorf("%w: corrupt session record: %v", shared.ErrStoreUnavailable, err)
	}
	return rec.session(token), true, nil
}

// Update merges patch into the stored session and writes it back.
//
// A missing session yields [shared.ErrInvalidSession] so a logged-out session is never recreated.
func (s *Store) Update(ctx context.Context, token string, patch Patch) (*Session, error) {
	if err := patch.validate(); err != nil {
		return nil, err
	}

	sess, found, err := s.Get(ctx, token)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, shared.ErrInvalidSession
	}

	if patch.AccessToken != "" {
		sess.AccessToken = patch.AccessToken
		sess.AccessTokenExpiresAt = patch.AccessTokenExpiresAt
	}
	if patch.RefreshToken != "" {
		sess.RefreshToken = patch.RefreshToken
	}

	if err := s.put(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Delete removes the session and any extra keys in a single store call.
func (s *Store) Delete(ctx context.Context, token string, extraKeys ...string) error {
	keys := append([]string{Key(token)}, extraKeys...)
	if err := s.kv.Delete(ctx, keys...); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrSessionPersist, err)
	}
	return nil
}

func (s *Store) put(ctx context.Context, sess *Session) error {
	data, err := json.Marshal(toRecord(sess))
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrSessionPersist, err)
	}
	if err := s.kv.Set(ctx, Key(sess.Token), data, s.ttl); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrSessionPersist, err)
	}
	return nil
}
