package notification_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tqwops/fieldops/core/notification"
	"github.com/tqwops/fieldops/core/user"
	inmemdb "github.com/tqwops/fieldops/storage/database/inmem"
	testutil "github.com/tqwops/fieldops/tests"
)

type nopLogger struct{}

func (nopLogger) Enable(bool)                  {}
func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

type fakeBroadcaster struct {
	mu     sync.Mutex
	events []notification.Event
}

func (b *fakeBroadcaster) Broadcast(e notification.Event) {
	b.mu.Lock()
	b.events = append(b.events, e)
	b.mu.Unlock()
}

func setup(t *testing.T) (*notification.Service, *fakeBroadcaster, user.Repository) {
	t.Helper()

	db, err := inmemdb.Open()
	require.NoError(t, err)
	bcast := &fakeBroadcaster{}
	svc := notification.NewService(inmemdb.NewNotificationRepository(db), bcast, nopLogger{})
	return svc, bcast, inmemdb.NewUserRepository(db)
}

func TestService_Create(t *testing.T) {
	ctx := context.Background()
	svc, bcast, usrRepo := setup(t)

	boss := testutil.CreateUser(t, usrRepo, "Big Boss", "boss@tqw.cl", "12.345.678-5", user.PerfilSupervisor, "", true)

	nn := notification.NewNotification{
		Title:          "Corte programado",
		Content:        "Zona norte sin sistema el viernes",
		Priority:       notification.PriorityWarning,
		TargetProfiles: []string{user.PerfilTecnico, user.PerfilSupervisor},
	}
	notif, err := svc.Create(ctx, nn, boss)
	require.NoError(t, err)
	assert.NotZero(t, notif.ID)
	assert.Equal(t, boss.ID, notif.CreatedBy)
	assert.Equal(t, "Big Boss", notif.CreatedByName)

	// broadcast carries the full envelope
	require.Len(t, bcast.events, 1)
	event := bcast.events[0]
	assert.Equal(t, notification.EventTypeNotification, event.Type)
	assert.Equal(t, notification.TargetUserNotifications, event.Target)
	assert.Equal(t, nn.TargetProfiles, event.Profiles)
	require.NotNil(t, event.Notification)
	assert.Equal(t, notif.ID, event.Notification.ID)
}

func TestService_QueryForUser(t *testing.T) {
	ctx := context.Background()
	svc, _, usrRepo := setup(t)

	boss := testutil.CreateUser(t, usrRepo, "Big Boss", "boss@tqw.cl", "12.345.678-5", user.PerfilSupervisor, "", true)
	tech := testutil.CreateUser(t, usrRepo, "Tech One", "tech@tqw.cl", "9.876.543-3", "Tecnico Zona Sur", "", true)

	mk := func(title string, profiles ...string) notification.Notification {
		n, err := svc.Create(ctx, notification.NewNotification{
			Title:          title,
			Content:        "...",
			Priority:       notification.PriorityInfo,
			TargetProfiles: profiles,
		}, boss)
		require.NoError(t, err)
		return n
	}

	forTechs := mk("para tecnicos", user.PerfilTecnico)
	forBosses := mk("para supervisores", user.PerfilSupervisor)
	forAll := mk("para todos", user.PerfilTodos)

	techNotifs, err := svc.QueryForUser(ctx, tech)
	require.NoError(t, err)
	require.Len(t, techNotifs, 2)
	// newest first
	assert.Equal(t, forAll.ID, techNotifs[0].ID)
	assert.Equal(t, forTechs.ID, techNotifs[1].ID)

	bossNotifs, err := svc.QueryForUser(ctx, boss)
	require.NoError(t, err)
	require.Len(t, bossNotifs, 2)
	assert.Equal(t, forAll.ID, bossNotifs[0].ID)
	assert.Equal(t, forBosses.ID, bossNotifs[1].ID)
}

func TestService_readTracking(t *testing.T) {
	ctx := context.Background()
	svc, _, usrRepo := setup(t)

	boss := testutil.CreateUser(t, usrRepo, "Big Boss", "boss@tqw.cl", "12.345.678-5", user.PerfilSupervisor, "", true)
	tech := testutil.CreateUser(t, usrRepo, "Tech One", "tech@tqw.cl", "9.876.543-3", user.PerfilTecnico, "", true)

	var notifs []notification.Notification
	for _, title := range []string{"uno", "dos", "tres"} {
		n, err := svc.Create(ctx, notification.NewNotification{
			Title:          title,
			Content:        "...",
			Priority:       notification.PriorityInfo,
			TargetProfiles: []string{user.PerfilTodos},
		}, boss)
		require.NoError(t, err)
		notifs = append(notifs, n)
	}

	count, err := svc.UnreadCount(ctx, tech)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	// read state is per user
	require.NoError(t, svc.MarkRead(ctx, notifs[0].ID, tech))
	count, err = svc.UnreadCount(ctx, tech)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	count, err = svc.UnreadCount(ctx, boss)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	// marking again is a no-op
	require.NoError(t, svc.MarkRead(ctx, notifs[0].ID, tech))
	count, err = svc.UnreadCount(ctx, tech)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	t.Run("unknown notification", func(t *testing.T) {
		err := svc.MarkRead(ctx, 999, tech)
		assert.ErrorIs(t, err, notification.ErrNotFound)
	})

	require.NoError(t, svc.MarkAllRead(ctx, tech))
	count, err = svc.UnreadCount(ctx, tech)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}
