package client

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tqwops/fieldops/core/session"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeSessionAPI struct {
	mu          sync.Mutex
	pingStatus  session.Status
	pingErr     error
	pingCalls   int
	logoutCalls int
}

func (a *fakeSessionAPI) Ping(context.Context) (session.Status, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pingCalls++
	return a.pingStatus, a.pingErr
}

func (a *fakeSessionAPI) Logout(context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logoutCalls++
	return nil
}

func (a *fakeSessionAPI) logouts() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.logoutCalls
}

type monitorRecorder struct {
	mu       sync.Mutex
	warnings []time.Duration
	cleared  int
	ticks    []time.Duration
	logouts  []LogoutReason
}

func (r *monitorRecorder) hooks() (func(time.Duration), func(), func(time.Duration), func(LogoutReason)) {
	onWarning := func(remaining time.Duration) {
		r.mu.Lock()
		r.warnings = append(r.warnings, remaining)
		r.mu.Unlock()
	}
	onCleared := func() {
		r.mu.Lock()
		r.cleared++
		r.mu.Unlock()
	}
	onTick := func(remaining time.Duration) {
		r.mu.Lock()
		r.ticks = append(r.ticks, remaining)
		r.mu.Unlock()
	}
	onLogout := func(reason LogoutReason) {
		r.mu.Lock()
		r.logouts = append(r.logouts, reason)
		r.mu.Unlock()
	}
	return onWarning, onCleared, onTick, onLogout
}

func newTestMonitor(clock *fakeClock, api *fakeSessionAPI, rec *monitorRecorder) *Monitor {
	onWarning, onCleared, onTick, onLogout := rec.hooks()
	return NewMonitor(MonitorOptions{
		API:              api,
		Logger:           nopLogger{},
		OnWarning:        onWarning,
		OnWarningCleared: onCleared,
		OnCountdownTick:  onTick,
		OnLogout:         onLogout,
		Now:              clock.Now,
	})
}

type nopLogger struct{}

func (nopLogger) Enable(bool)                  {}
func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

func TestMonitor_staysActiveWithFrequentActivity(t *testing.T) {
	clock := newFakeClock()
	api := &fakeSessionAPI{pingStatus: session.StatusActive}
	rec := &monitorRecorder{}
	m := newTestMonitor(clock, api, rec)

	// activity every 10 minutes, checked every 30s worth of clock
	for i := 0; i < 12; i++ {
		clock.Advance(10 * time.Minute)
		m.RecordActivity()
		m.checkInactivity()
	}

	assert.Equal(t, StateActive, m.State())
	assert.Empty(t, rec.warnings)
	assert.Empty(t, rec.logouts)
}

func TestMonitor_warningShownOnceBetween25and30(t *testing.T) {
	clock := newFakeClock()
	api := &fakeSessionAPI{pingStatus: session.StatusActive}
	rec := &monitorRecorder{}
	m := newTestMonitor(clock, api, rec)

	clock.Advance(26 * time.Minute)
	m.checkInactivity()
	require.Equal(t, StateWarning, m.State())
	require.Len(t, rec.warnings, 1)
	// example: idle since t=0, warned at t=26min: ~4min remain
	assert.Equal(t, 4*time.Minute, rec.warnings[0])

	// further checks while Warning must not re-trigger the warning
	clock.Advance(time.Minute)
	m.checkInactivity()
	assert.Len(t, rec.warnings, 1)

	// countdown decreases monotonically
	var prev = 5 * time.Minute
	for i := 0; i < 3; i++ {
		clock.Advance(time.Second)
		m.countdownTick()
	}
	require.Len(t, rec.ticks, 3)
	for _, remaining := range rec.ticks {
		assert.Less(t, remaining, prev)
		prev = remaining
	}
	assert.Empty(t, rec.logouts)
}

func TestMonitor_activityCancelsWarningAndResetsClock(t *testing.T) {
	clock := newFakeClock()
	api := &fakeSessionAPI{pingStatus: session.StatusActive}
	rec := &monitorRecorder{}
	m := newTestMonitor(clock, api, rec)

	// t=26min: warning
	clock.Advance(26 * time.Minute)
	m.checkInactivity()
	require.Equal(t, StateWarning, m.State())

	// t=27min: mouse move
	clock.Advance(time.Minute)
	m.RecordActivity()
	assert.Equal(t, StateActive, m.State())
	assert.Equal(t, 1, rec.cleared)

	// a full fresh 25min idle period is required before re-warning
	clock.Advance(24 * time.Minute)
	m.checkInactivity()
	assert.Equal(t, StateActive, m.State())

	// t=27+25=52min: warning again
	clock.Advance(time.Minute)
	m.checkInactivity()
	assert.Equal(t, StateWarning, m.State())
	assert.Len(t, rec.warnings, 2)
}

func TestMonitor_logoutInvokedExactlyOnce(t *testing.T) {
	clock := newFakeClock()
	api := &fakeSessionAPI{pingStatus: session.StatusActive}
	rec := &monitorRecorder{}
	m := newTestMonitor(clock, api, rec)

	clock.Advance(26 * time.Minute)
	m.checkInactivity()
	require.Equal(t, StateWarning, m.State())

	// countdown-zero races the 30-min check; logout must fire once
	clock.Advance(4 * time.Minute)
	m.countdownTick()
	m.checkInactivity()
	m.countdownTick()

	assert.Equal(t, StateLoggedOut, m.State())
	require.Len(t, rec.logouts, 1)
	assert.Equal(t, ReasonInactivity, rec.logouts[0])
	assert.Equal(t, 1, api.logouts())

	// activity after logout is ignored
	m.RecordActivity()
	assert.Equal(t, StateLoggedOut, m.State())
}

func TestMonitor_pingKickedVsExpired(t *testing.T) {
	tests := []struct {
		name       string
		status     session.Status
		wantReason LogoutReason
	}{
		{name: "kicked by other device", status: session.StatusKicked, wantReason: ReasonKicked},
		{name: "expired", status: session.StatusExpired, wantReason: ReasonExpired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newFakeClock()
			api := &fakeSessionAPI{pingStatus: tt.status}
			rec := &monitorRecorder{}
			m := newTestMonitor(clock, api, rec)

			m.pingSession(context.Background())

			assert.Equal(t, StateLoggedOut, m.State())
			require.Len(t, rec.logouts, 1)
			assert.Equal(t, tt.wantReason, rec.logouts[0])
			// session is already gone server-side; no logout call
			assert.Equal(t, 0, api.logouts())
		})
	}
}

func TestMonitor_pingErrorsSwallowed(t *testing.T) {
	clock := newFakeClock()
	api := &fakeSessionAPI{pingErr: errors.New("connection refused")}
	rec := &monitorRecorder{}
	m := newTestMonitor(clock, api, rec)

	m.pingSession(context.Background())
	m.pingSession(context.Background())

	assert.Equal(t, StateActive, m.State())
	assert.Empty(t, rec.logouts)
	assert.Equal(t, 2, api.pingCalls)
}

func TestMonitor_activityThrottledWhileActive(t *testing.T) {
	clock := newFakeClock()
	api := &fakeSessionAPI{pingStatus: session.StatusActive}
	rec := &monitorRecorder{}
	m := newTestMonitor(clock, api, rec)

	start := clock.Now()
	clock.Advance(10 * time.Second)
	m.RecordActivity() // within throttle window: dropped

	m.mu.Lock()
	last := m.lastActivity
	m.mu.Unlock()
	assert.Equal(t, start, last)

	clock.Advance(25 * time.Second) // 35s since init
	m.RecordActivity()

	m.mu.Lock()
	last = m.lastActivity
	m.mu.Unlock()
	assert.Equal(t, clock.Now(), last)
}

func TestMonitor_startAndClose(t *testing.T) {
	clock := newFakeClock()
	api := &fakeSessionAPI{pingStatus: session.StatusActive}
	rec := &monitorRecorder{}

	onWarning, onCleared, onTick, onLogout := rec.hooks()
	m := NewMonitor(MonitorOptions{
		API:              api,
		Logger:           nopLogger{},
		OnWarning:        onWarning,
		OnWarningCleared: onCleared,
		OnCountdownTick:  onTick,
		OnLogout:         onLogout,
		CheckInterval:    5 * time.Millisecond,
		PingInterval:     5 * time.Millisecond,
		CountdownTick:    5 * time.Millisecond,
		Now:              clock.Now,
	})
	m.Start()
	time.Sleep(30 * time.Millisecond)
	m.Close()

	// timers ran, nothing fired with a fresh clock
	assert.Equal(t, StateActive, m.State())
	assert.Empty(t, rec.logouts)
	api.mu.Lock()
	assert.Greater(t, api.pingCalls, 0)
	api.mu.Unlock()

	// Close is idempotent
	m.Close()
}
