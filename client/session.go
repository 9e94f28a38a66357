package client

import (
	"context"
	"sync"
	"time"

	"github.com/tqwops/fieldops/core"
	"github.com/tqwops/fieldops/core/session"
)

// Monitor states.
type MonitorState int

const (
	StateActive MonitorState = iota
	StateWarning
	StateLoggedOut
)

func (s MonitorState) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateWarning:
		return "warning"
	case StateLoggedOut:
		return "logged-out"
	}
	return "unknown"
}

// LogoutReason tells the UI why the session ended, so a takeover can be
// surfaced differently from a plain expiry.
type LogoutReason string

const (
	ReasonInactivity LogoutReason = "inactivity"
	ReasonExpired    LogoutReason = "expired"
	ReasonKicked     LogoutReason = "kicked"
)

// SessionAPI is the server surface the monitor depends on.
type SessionAPI interface {
	Ping(ctx context.Context) (session.Status, error)
	Logout(ctx context.Context) error
}

type (
	// MonitorOptions configures a Monitor. Zero durations take the defaults;
	// Now is overridable so tests can drive the clock.
	MonitorOptions struct {
		API    SessionAPI
		Logger core.Logger

		// UI hooks; all optional, called from the monitor goroutine.
		OnWarning        func(remaining time.Duration)
		OnWarningCleared func()
		OnCountdownTick  func(remaining time.Duration)
		OnLogout         func(reason LogoutReason)

		WarningThreshold time.Duration // idle time before the warning shows
		HardLimit        time.Duration // idle time before forced logout
		ActivityThrottle time.Duration // min gap between recorded activities while Active
		CheckInterval    time.Duration // inactivity check cadence
		PingInterval     time.Duration // keep-alive cadence
		CountdownTick    time.Duration // countdown cadence while Warning

		Now func() time.Time
	}

	// Monitor tracks user activity, keeps the server session alive and logs
	// out on inactivity after a warning countdown.
	Monitor struct {
		opts MonitorOptions

		mu           sync.Mutex
		state        MonitorState
		lastActivity time.Time
		lastRecorded time.Time

		logoutOnce sync.Once
		stopOnce   sync.Once
		stop       chan struct{}
		wg         sync.WaitGroup
	}
)

const (
	defaultWarningThreshold = 25 * time.Minute
	defaultHardLimit        = 30 * time.Minute
	defaultActivityThrottle = 30 * time.Second
	defaultCheckInterval    = 30 * time.Second
	defaultPingInterval     = 5 * time.Minute
	defaultCountdownTick    = time.Second
)

func NewMonitor(opts MonitorOptions) *Monitor {
	if opts.WarningThreshold == 0 {
		opts.WarningThreshold = defaultWarningThreshold
	}
	if opts.HardLimit == 0 {
		opts.HardLimit = defaultHardLimit
	}
	if opts.ActivityThrottle == 0 {
		opts.ActivityThrottle = defaultActivityThrottle
	}
	if opts.CheckInterval == 0 {
		opts.CheckInterval = defaultCheckInterval
	}
	if opts.PingInterval == 0 {
		opts.PingInterval = defaultPingInterval
	}
	if opts.CountdownTick == 0 {
		opts.CountdownTick = defaultCountdownTick
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	m := &Monitor{
		opts: opts,
		stop: make(chan struct{}),
	}
	m.lastActivity = opts.Now()
	m.lastRecorded = m.lastActivity
	return m
}

// Start launches the monitor loop. The three cadences (inactivity check,
// keep-alive ping, warning countdown) run uncoordinated off one goroutine.
func (m *Monitor) Start() {
	m.wg.Add(1)
	go m.run()
}

func (m *Monitor) run() {
	defer m.wg.Done()

	checkTicker := time.NewTicker(m.opts.CheckInterval)
	defer checkTicker.Stop()
	pingTicker := time.NewTicker(m.opts.PingInterval)
	defer pingTicker.Stop()
	countdownTicker := time.NewTicker(m.opts.CountdownTick)
	defer countdownTicker.Stop()

	for {
		select {
		case <-checkTicker.C:
			m.checkInactivity()
		case <-pingTicker.C:
			m.pingSession(context.Background())
		case <-countdownTicker.C:
			m.countdownTick()
		case <-m.stop:
			return
		}
	}
}

// State returns the current lifecycle state.
func (m *Monitor) State() MonitorState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// RecordActivity resets the inactivity clock. While Active it is throttled;
// in Warning any activity cancels the warning immediately.
func (m *Monitor) RecordActivity() {
	m.mu.Lock()
	if m.state == StateLoggedOut {
		m.mu.Unlock()
		return
	}
	now := m.opts.Now()
	if m.state == StateActive && now.Sub(m.lastRecorded) < m.opts.ActivityThrottle {
		m.mu.Unlock()
		return
	}
	m.lastRecorded = now
	m.lastActivity = now

	cleared := m.state == StateWarning
	if cleared {
		m.state = StateActive
	}
	m.mu.Unlock()

	if cleared && m.opts.OnWarningCleared != nil {
		m.opts.OnWarningCleared()
	}
}

// checkInactivity drives the Active → Warning → LoggedOut transitions off
// wall-clock idle time.
func (m *Monitor) checkInactivity() {
	m.mu.Lock()
	if m.state == StateLoggedOut {
		m.mu.Unlock()
		return
	}
	now := m.opts.Now()
	idle := now.Sub(m.lastActivity)

	if idle >= m.opts.HardLimit {
		m.mu.Unlock()
		m.logout(ReasonInactivity)
		return
	}
	if idle >= m.opts.WarningThreshold && m.state == StateActive {
		m.state = StateWarning
		remaining := m.opts.HardLimit - idle
		m.mu.Unlock()
		if m.opts.OnWarning != nil {
			m.opts.OnWarning(remaining)
		}
		return
	}
	m.mu.Unlock()
}

// countdownTick reports the time left while Warning; hitting zero forces the
// logout even if the next inactivity check has not fired yet.
func (m *Monitor) countdownTick() {
	m.mu.Lock()
	if m.state != StateWarning {
		m.mu.Unlock()
		return
	}
	remaining := m.lastActivity.Add(m.opts.HardLimit).Sub(m.opts.Now())
	m.mu.Unlock()

	if remaining <= 0 {
		m.logout(ReasonInactivity)
		return
	}
	if m.opts.OnCountdownTick != nil {
		m.opts.OnCountdownTick(remaining)
	}
}

// pingSession keeps the server session alive and picks up takeover/expiry.
// Network errors are logged and swallowed; the local timer is the backstop.
func (m *Monitor) pingSession(ctx context.Context) {
	if m.State() == StateLoggedOut {
		return
	}
	status, err := m.opts.API.Ping(ctx)
	if err != nil {
		m.opts.Logger.Warn("session ping failed", err)
		return
	}
	switch status {
	case session.StatusKicked:
		m.logout(ReasonKicked)
	case session.StatusExpired:
		m.logout(ReasonExpired)
	}
}

// logout runs at most once, however many timers race into it.
func (m *Monitor) logout(reason LogoutReason) {
	m.logoutOnce.Do(func() {
		m.mu.Lock()
		m.state = StateLoggedOut
		m.mu.Unlock()

		// server-side cleanup is best-effort; kicked/expired sessions are
		// already gone
		if reason == ReasonInactivity {
			if err := m.opts.API.Logout(context.Background()); err != nil {
				m.opts.Logger.Warn("logout call failed", err)
			}
		}
		if m.opts.OnLogout != nil {
			m.opts.OnLogout(reason)
		}
		m.stopOnce.Do(func() { close(m.stop) })
	})
}

// SendLogoutBeacon fires the tab-close logout signal without waiting on it.
func (m *Monitor) SendLogoutBeacon() {
	go func() {
		if err := m.opts.API.Logout(context.Background()); err != nil {
			m.opts.Logger.Debug("logout beacon failed", err)
		}
	}()
}

// Close cancels every timer. It does not log the session out.
func (m *Monitor) Close() {
	m.stopOnce.Do(func() { close(m.stop) })
	m.wg.Wait()
}
