package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tqwops/fieldops/core/session"
	inmemdb "github.com/tqwops/fieldops/storage/database/inmem"
	testutil "github.com/tqwops/fieldops/tests"
)

type nopLogger struct{}

func (nopLogger) Enable(bool)                  {}
func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

func setup(t *testing.T) (*session.Service, session.Store) {
	t.Helper()
	store := inmemdb.NewSessionStore()
	svc := session.NewService(store, testutil.NewConfig(), nopLogger{})
	return svc, store
}

func TestService_Login(t *testing.T) {
	ctx := context.Background()
	svc, store := setup(t)

	s1, err := svc.Login(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, s1.ID, 64) // 32 random bytes, hex
	assert.Equal(t, 1, s1.UserID)

	s2, err := svc.Login(ctx, 1)
	require.NoError(t, err)
	assert.NotEqual(t, s1.ID, s2.ID)
	assert.Greater(t, s2.ConnectionID, s1.ConnectionID)

	// the first session is now superseded, the new one is not
	old, err := store.GetSession(ctx, s1.ID)
	require.NoError(t, err)
	assert.True(t, old.Superseded)
	fresh, err := store.GetSession(ctx, s2.ID)
	require.NoError(t, err)
	assert.False(t, fresh.Superseded)
}

func TestService_Login_doesNotKickOtherUsers(t *testing.T) {
	ctx := context.Background()
	svc, store := setup(t)

	other, err := svc.Login(ctx, 2)
	require.NoError(t, err)
	_, err = svc.Login(ctx, 1)
	require.NoError(t, err)

	s, err := store.GetSession(ctx, other.ID)
	require.NoError(t, err)
	assert.False(t, s.Superseded)
}

func TestService_Authenticated(t *testing.T) {
	ctx := context.Background()
	svc, store := setup(t)

	s, err := svc.Login(ctx, 1)
	require.NoError(t, err)

	t.Run("live session", func(t *testing.T) {
		got, err := svc.Authenticated(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, s.ID, got.ID)
	})

	t.Run("unknown token", func(t *testing.T) {
		_, err := svc.Authenticated(ctx, "deadbeef")
		assert.ErrorIs(t, err, session.ErrNotFound)
	})

	t.Run("superseded session", func(t *testing.T) {
		_, err := svc.Login(ctx, 1) // second device
		require.NoError(t, err)
		_, err = svc.Authenticated(ctx, s.ID)
		assert.ErrorIs(t, err, session.ErrSuperseded)
	})

	t.Run("expired session is deleted", func(t *testing.T) {
		expired, err := svc.Login(ctx, 3)
		require.NoError(t, err)
		stale := time.Now().UTC().Add(-7 * time.Hour)
		require.NoError(t, store.TouchSession(ctx, expired.ID, stale))

		_, err = svc.Authenticated(ctx, expired.ID)
		assert.ErrorIs(t, err, session.ErrExpired)
		_, err = store.GetSession(ctx, expired.ID)
		assert.ErrorIs(t, err, session.ErrNotFound)
	})
}

func TestService_Ping(t *testing.T) {
	ctx := context.Background()
	svc, store := setup(t)

	t.Run("active session touches last activity", func(t *testing.T) {
		s, err := svc.Login(ctx, 1)
		require.NoError(t, err)
		stale := time.Now().UTC().Add(-time.Hour)
		require.NoError(t, store.TouchSession(ctx, s.ID, stale))

		status, err := svc.Ping(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, session.StatusActive, status)

		got, err := store.GetSession(ctx, s.ID)
		require.NoError(t, err)
		assert.True(t, got.LastActivity.After(stale))
	})

	t.Run("missing session reads as expired", func(t *testing.T) {
		status, err := svc.Ping(ctx, "deadbeef")
		require.NoError(t, err)
		assert.Equal(t, session.StatusExpired, status)
	})

	t.Run("kicked reported once then deleted", func(t *testing.T) {
		s, err := svc.Login(ctx, 2)
		require.NoError(t, err)
		_, err = svc.Login(ctx, 2) // takeover
		require.NoError(t, err)

		status, err := svc.Ping(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, session.StatusKicked, status)

		// the kicked session is gone; the next ping reads as expired
		status, err = svc.Ping(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, session.StatusExpired, status)
	})

	t.Run("expired session deleted", func(t *testing.T) {
		s, err := svc.Login(ctx, 3)
		require.NoError(t, err)
		stale := time.Now().UTC().Add(-7 * time.Hour)
		require.NoError(t, store.TouchSession(ctx, s.ID, stale))

		status, err := svc.Ping(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, session.StatusExpired, status)
		_, err = store.GetSession(ctx, s.ID)
		assert.ErrorIs(t, err, session.ErrNotFound)
	})
}

func TestService_Logout(t *testing.T) {
	ctx := context.Background()
	svc, store := setup(t)

	s, err := svc.Login(ctx, 1)
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, s.ID))
	_, err = store.GetSession(ctx, s.ID)
	assert.ErrorIs(t, err, session.ErrNotFound)

	// the beacon may race an explicit logout; a second call is fine
	assert.NoError(t, svc.Logout(ctx, s.ID))
}

func TestService_Sweeper(t *testing.T) {
	ctx := context.Background()

	store := inmemdb.NewSessionStore()
	conf := testutil.NewConfig()
	conf.Session.SweepInterval = 10 * time.Millisecond
	svc := session.NewService(store, conf, nopLogger{})

	live, err := svc.Login(ctx, 1)
	require.NoError(t, err)
	dead, err := svc.Login(ctx, 2)
	require.NoError(t, err)
	stale := time.Now().UTC().Add(-7 * time.Hour)
	require.NoError(t, store.TouchSession(ctx, dead.ID, stale))

	svc.StartSweeper()
	time.Sleep(50 * time.Millisecond)
	svc.Stop()

	_, err = store.GetSession(ctx, dead.ID)
	assert.ErrorIs(t, err, session.ErrNotFound)
	_, err = store.GetSession(ctx, live.ID)
	assert.NoError(t, err)
}
