package client

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tqwops/fieldops/core"
	"github.com/tqwops/fieldops/core/notification"
)

// Cache keys invalidated when a matching notification arrives.
const (
	CacheKeyNotifications = "notifications"
	CacheKeyUnreadCount   = "notifications-unread"
)

// Toast severities.
const (
	ToastDefault     = "default"
	ToastWarning     = "warning"
	ToastDestructive = "destructive"
)

// Relay connection states.
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	}
	return "disconnected"
}

type (
	// WSDialer opens the push socket. *Client implements it.
	WSDialer interface {
		DialWS(ctx context.Context) (*websocket.Conn, error)
	}

	// Invalidator drops cached query results so the next read re-fetches.
	Invalidator interface {
		Invalidate(keys ...string)
	}

	// Sounder plays the notification sound. Failures are ignored.
	Sounder interface {
		Play() error
	}

	// Toaster shows a transient message to the user.
	Toaster interface {
		Toast(severity, title, content string)
	}

	// RelayOptions configures a Relay. Cache, Sound and Toast are optional;
	// a nil hook is skipped.
	RelayOptions struct {
		Dialer WSDialer
		Logger core.Logger

		// Perfil of the authenticated user, used to filter envelopes.
		Perfil string

		Cache Invalidator
		Sound Sounder
		Toast Toaster

		ReconnectDelay time.Duration
	}

	// Relay consumes the push socket, filters notification envelopes for the
	// user's perfil and reconnects after a fixed delay until closed.
	Relay struct {
		opts  RelayOptions
		state int32

		stopOnce sync.Once
		stop     chan struct{}
		wg       sync.WaitGroup

		mu   sync.Mutex
		conn *websocket.Conn
	}
)

const defaultReconnectDelay = 5 * time.Second

func NewRelay(opts RelayOptions) *Relay {
	if opts.ReconnectDelay == 0 {
		opts.ReconnectDelay = defaultReconnectDelay
	}
	return &Relay{
		opts: opts,
		stop: make(chan struct{}),
	}
}

// Start launches the connect/read/reconnect loop. A single goroutine owns the
// socket, so at most one reconnect is ever in flight.
func (r *Relay) Start() {
	r.wg.Add(1)
	go r.run()
}

func (r *Relay) State() ConnState {
	return ConnState(atomic.LoadInt32(&r.state))
}

func (r *Relay) setState(s ConnState) {
	atomic.StoreInt32(&r.state, int32(s))
}

func (r *Relay) run() {
	defer r.wg.Done()
	defer r.setState(StateDisconnected)

	for {
		select {
		case <-r.stop:
			return
		default:
		}

		r.setState(StateConnecting)
		conn, err := r.opts.Dialer.DialWS(context.Background())
		if err != nil {
			r.opts.Logger.Warn("ws connect failed", err)
			r.setState(StateDisconnected)
			if !r.wait() {
				return
			}
			continue
		}

		// a Close racing the dial must still tear this connection down
		r.mu.Lock()
		select {
		case <-r.stop:
			r.mu.Unlock()
			_ = conn.Close()
			return
		default:
		}
		r.conn = conn
		r.mu.Unlock()
		r.setState(StateConnected)

		r.readLoop(conn)

		r.mu.Lock()
		r.conn = nil
		r.mu.Unlock()
		_ = conn.Close()
		r.setState(StateDisconnected)

		if !r.wait() {
			return
		}
	}
}

// wait sleeps out the reconnect delay; false means the relay was closed.
func (r *Relay) wait() bool {
	select {
	case <-time.After(r.opts.ReconnectDelay):
		return true
	case <-r.stop:
		return false
	}
}

func (r *Relay) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-r.stop: // closed by us
			default:
				r.opts.Logger.Warn("ws read failed", err)
			}
			return
		}
		r.handleMessage(data)
	}
}

// handleMessage applies the envelope rules. Malformed payloads are logged and
// dropped; they never close the connection.
func (r *Relay) handleMessage(data []byte) {
	var event notification.Event
	if err := json.Unmarshal(data, &event); err != nil {
		r.opts.Logger.Warn("ws payload malformed", err, string(data))
		return
	}

	switch event.Type {
	case notification.EventTypeConnection:
		r.opts.Logger.Debug(event.Message)

	case notification.EventTypeRefresh:
		if event.Target != "" {
			r.invalidate(event.Target)
		}

	case notification.EventTypeNotification:
		if event.Target != notification.TargetUserNotifications || event.Notification == nil {
			return
		}
		if !notification.MatchesPerfil(event.Profiles, r.opts.Perfil) {
			return
		}
		r.deliver(*event.Notification)

	default:
		r.opts.Logger.Debug("ws event ignored", event.Type)
	}
}

// deliver runs the side effects of one matching notification: sound is
// best-effort, caches are invalidated exactly once, then the toast.
func (r *Relay) deliver(notif notification.Notification) {
	if r.opts.Sound != nil {
		_ = r.opts.Sound.Play()
	}
	r.invalidate(CacheKeyNotifications, CacheKeyUnreadCount)
	if r.opts.Toast != nil {
		r.opts.Toast.Toast(toastSeverity(notif.Priority), notif.Title, notif.Content)
	}
}

func (r *Relay) invalidate(keys ...string) {
	if r.opts.Cache != nil {
		r.opts.Cache.Invalidate(keys...)
	}
}

func toastSeverity(priority string) string {
	switch priority {
	case notification.PriorityError:
		return ToastDestructive
	case notification.PriorityWarning:
		return ToastWarning
	}
	return ToastDefault
}

// Close stops reconnection and tears down the current socket.
func (r *Relay) Close() {
	r.mu.Lock()
	r.stopOnce.Do(func() { close(r.stop) })
	if r.conn != nil {
		_ = r.conn.Close()
	}
	r.mu.Unlock()

	r.wg.Wait()
}
