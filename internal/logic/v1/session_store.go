package v1

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/duynhne/event-gate/internal/core/domain"
)

// DefaultSessionWindow is the validity window applied by Set and Refresh.
const DefaultSessionWindow = 24 * time.Hour

// sessionBlobVersion tags the persisted JSON layout. Blobs carrying any
// other version are discarded on read.
const sessionBlobVersion = 1

type sessionBlob struct {
	Version   int            `json:"version"`
	User      domain.Session `json:"user"`
	IssuedAt  time.Time      `json:"issuedAt"`
	ExpiresAt time.Time      `json:"expiresAt"`
}

// SessionStore is the single source of truth for who is signed in on one
// client. Expiry is checked on every read; nothing runs in the background.
type SessionStore struct {
	persist domain.SessionPersistence
	key     string
	window  time.Duration
	now     func() time.Time
}

// StoreOption configures a SessionStore or SessionManager.
type StoreOption func(*storeOptions)

type storeOptions struct {
	window time.Duration
	now    func() time.Time
}

// WithWindow overrides the validity window.
func WithWindow(d time.Duration) StoreOption {
	return func(o *storeOptions) {
		if d > 0 {
			o.window = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) StoreOption {
	return func(o *storeOptions) {
		if now != nil {
			o.now = now
		}
	}
}

func buildStoreOptions(opts []StoreOption) storeOptions {
	o := storeOptions{window: DefaultSessionWindow, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewSessionStore creates a store bound to one persistence key.
func NewSessionStore(persist domain.SessionPersistence, key string, opts ...StoreOption) *SessionStore {
	o := buildStoreOptions(opts)
	return &SessionStore{persist: persist, key: key, window: o.window, now: o.now}
}

// Key returns the persistence key of this store.
func (s *SessionStore) Key() string { return s.key }

// Set persists session with a fresh window starting now and returns the
// stored copy.
func (s *SessionStore) Set(ctx context.Context, session domain.Session) (*domain.Session, error) {
	now := s.now()
	session.IssuedAt = now
	session.ExpiresAt = now.Add(s.window)

	blob, err := json.Marshal(sessionBlob{
		Version:   sessionBlobVersion,
		User:      session,
		IssuedAt:  session.IssuedAt,
		ExpiresAt: session.ExpiresAt,
	})
	if err != nil {
		return nil, fmt.Errorf("encode session: %w", err)
	}
	if err := s.persist.Save(ctx, s.key, blob, s.window); err != nil {
		return nil, fmt.Errorf("persist session: %w", err)
	}
	return &session, nil
}

// Get returns the unexpired session, or nil. An expired or unreadable
// record is deleted before returning nil.
func (s *SessionStore) Get(ctx context.Context) (*domain.Session, error) {
	sess, stale, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	if stale {
		if err := s.persist.Delete(ctx, s.key); err != nil {
			return nil, fmt.Errorf("clear expired session: %w", err)
		}
		return nil, nil
	}
	return sess, nil
}

// IsValid reports whether an unexpired session is stored. It never
// modifies storage; persistence errors count as invalid.
func (s *SessionStore) IsValid(ctx context.Context) bool {
	sess, _, err := s.load(ctx)
	return err == nil && sess != nil
}

// Clear removes the stored session unconditionally.
func (s *SessionStore) Clear(ctx context.Context) error {
	if err := s.persist.Delete(ctx, s.key); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// Refresh re-persists the current session with a new window.
func (s *SessionStore) Refresh(ctx context.Context) (*domain.Session, error) {
	sess, err := s.Get(ctx)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, fmt.Errorf("refresh session: %w", ErrSessionExpired)
	}
	return s.Set(ctx, *sess)
}

// load reads the record. stale is true when a record exists but must be
// treated as absent (expired, unknown version, undecodable).
func (s *SessionStore) load(ctx context.Context) (sess *domain.Session, stale bool, err error) {
	raw, err := s.persist.Load(ctx, s.key)
	if err != nil {
		return nil, false, fmt.Errorf("load session: %w", err)
	}
	if raw == nil {
		return nil, false, nil
	}

	var blob sessionBlob
	if err := json.Unmarshal(raw, &blob); err != nil || blob.Version != sessionBlobVersion {
		return nil, true, nil
	}
	user := blob.User
	user.IssuedAt = blob.IssuedAt
	user.ExpiresAt = blob.ExpiresAt
	if user.ExpiredAt(s.now()) {
		return nil, true, nil
	}
	return &user, false, nil
}

// SessionManager hands out per-client stores sharing one persistence.
type SessionManager struct {
	persist domain.SessionPersistence
	opts    []StoreOption
}

// NewSessionManager creates a SessionManager.
func NewSessionManager(persist domain.SessionPersistence, opts ...StoreOption) *SessionManager {
	return &SessionManager{persist: persist, opts: opts}
}

// For returns the store of one client.
func (m *SessionManager) For(clientID string) *SessionStore {
	return NewSessionStore(m.persist, clientID, m.opts...)
}
