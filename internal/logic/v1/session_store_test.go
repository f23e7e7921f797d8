package v1

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duynhne/event-gate/internal/core/domain"
	"github.com/duynhne/event-gate/internal/core/repository"
)

// fakeClock is a settable time source.
type fakeClock struct{ t time.Time }

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func sampleSession() domain.Session {
	return domain.Session{
		UserID:        "uid-1",
		Email:         "ana@example.com",
		Role:          domain.RoleOrganizer,
		Profile:       domain.Profile{DisplayName: "Ana", Company: "Acme", Plan: "pro"},
		EmailVerified: true,
		ProfileSynced: true,
		IdentityToken: "id-tok",
		DatabaseToken: "db-tok",
	}
}

func newTestStore() (*SessionStore, *repository.MemorySessionPersistence, *fakeClock) {
	clock := newFakeClock()
	persist := repository.NewMemorySessionPersistence()
	return NewSessionStore(persist, "client-1", WithClock(clock.Now)), persist, clock
}

func TestSessionStore_SetThenGet(t *testing.T) {
	store, _, clock := newTestStore()
	ctx := context.Background()

	in := sampleSession()
	stored, err := store.Set(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, clock.Now(), stored.IssuedAt)
	assert.Equal(t, clock.Now().Add(DefaultSessionWindow), stored.ExpiresAt)

	got, err := store.Get(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)

	// Equal to the input except for the recomputed window.
	want := in
	want.IssuedAt = stored.IssuedAt
	want.ExpiresAt = stored.ExpiresAt
	assert.True(t, got.IssuedAt.Equal(want.IssuedAt))
	assert.True(t, got.ExpiresAt.Equal(want.ExpiresAt))
	got.IssuedAt, got.ExpiresAt = want.IssuedAt, want.ExpiresAt
	assert.Equal(t, want, *got)
}

func TestSessionStore_GetExpiredClearsStorage(t *testing.T) {
	store, persist, clock := newTestStore()
	ctx := context.Background()

	_, err := store.Set(ctx, sampleSession())
	require.NoError(t, err)

	clock.Advance(24*time.Hour + time.Second)

	got, err := store.Get(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, 0, persist.Len(), "expired record removed on read")
}

func TestSessionStore_ExpiryBoundary(t *testing.T) {
	store, _, clock := newTestStore()
	ctx := context.Background()

	_, err := store.Set(ctx, sampleSession())
	require.NoError(t, err)

	clock.Advance(DefaultSessionWindow - time.Nanosecond)
	assert.True(t, store.IsValid(ctx))

	clock.Advance(time.Nanosecond)
	assert.False(t, store.IsValid(ctx), "expiresAt == now is expired")
}

func TestSessionStore_IsValidDoesNotMutate(t *testing.T) {
	store, persist, clock := newTestStore()
	ctx := context.Background()

	_, err := store.Set(ctx, sampleSession())
	require.NoError(t, err)
	clock.Advance(25 * time.Hour)

	for i := 0; i < 5; i++ {
		assert.False(t, store.IsValid(ctx))
	}
	assert.Equal(t, 1, persist.Len(), "IsValid leaves the expired record in place")

	got, err := store.Get(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, 0, persist.Len(), "Get clears it")
}

func TestSessionStore_ExpiryIsIdempotent(t *testing.T) {
	store, _, clock := newTestStore()
	ctx := context.Background()

	_, err := store.Set(ctx, sampleSession())
	require.NoError(t, err)
	clock.Advance(48 * time.Hour)

	require.NoError(t, store.Clear(ctx))
	got, err := store.Get(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = store.Get(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSessionStore_Refresh(t *testing.T) {
	store, _, clock := newTestStore()
	ctx := context.Background()

	_, err := store.Set(ctx, sampleSession())
	require.NoError(t, err)

	clock.Advance(20 * time.Hour)
	refreshed, err := store.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, clock.Now().Add(DefaultSessionWindow), refreshed.ExpiresAt)

	clock.Advance(20 * time.Hour)
	assert.True(t, store.IsValid(ctx), "sliding renewal keeps the session alive")
}

func TestSessionStore_RefreshWithoutSession(t *testing.T) {
	store, _, _ := newTestStore()
	_, err := store.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestSessionStore_UnknownVersionIsAbsent(t *testing.T) {
	store, persist, _ := newTestStore()
	ctx := context.Background()

	require.NoError(t, persist.Save(ctx, "client-1", []byte(`{"version":7,"user":{"user_id":"x"},"expiresAt":"2999-01-01T00:00:00Z"}`), 0))
	got, err := store.Get(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, 0, persist.Len())

	require.NoError(t, persist.Save(ctx, "client-1", []byte(`not json`), 0))
	got, err = store.Get(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSessionStore_Window(t *testing.T) {
	clock := newFakeClock()
	store := NewSessionStore(repository.NewMemorySessionPersistence(), "k", WithClock(clock.Now), WithWindow(time.Hour))

	stored, err := store.Set(context.Background(), sampleSession())
	require.NoError(t, err)
	assert.Equal(t, clock.Now().Add(time.Hour), stored.ExpiresAt)
}

type failingPersistence struct{}

func (failingPersistence) Load(context.Context, string) ([]byte, error) {
	return nil, errors.New("boom")
}
func (failingPersistence) Save(context.Context, string, []byte, time.Duration) error {
	return errors.New("boom")
}
func (failingPersistence) Delete(context.Context, string) error { return errors.New("boom") }

func TestSessionStore_PersistenceErrors(t *testing.T) {
	store := NewSessionStore(failingPersistence{}, "k")
	ctx := context.Background()

	_, err := store.Set(ctx, sampleSession())
	assert.Error(t, err)
	_, err = store.Get(ctx)
	assert.Error(t, err)
	assert.False(t, store.IsValid(ctx))
	assert.Error(t, store.Clear(ctx))
}

func TestSessionManager_IsolatesClients(t *testing.T) {
	clock := newFakeClock()
	m := NewSessionManager(repository.NewMemorySessionPersistence(), WithClock(clock.Now))
	ctx := context.Background()

	_, err := m.For("a").Set(ctx, sampleSession())
	require.NoError(t, err)

	got, err := m.For("b").Get(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = m.For("a").Get(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "a", m.For("a").Key())
}
