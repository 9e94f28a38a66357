package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/tqwops/fieldops/core"
)

type (
	// Store persists session records. Implementations must be safe for
	// concurrent use.
	Store interface {
		CreateSession(ctx context.Context, s Session) error
		GetSession(ctx context.Context, id string) (Session, error)
		TouchSession(ctx context.Context, id string, at time.Time) error
		// SupersedeUserSessions flags every session of the user except exceptID.
		SupersedeUserSessions(ctx context.Context, userID int, exceptID string) error
		DeleteSession(ctx context.Context, id string) error
		DeleteExpiredSessions(ctx context.Context, lastActivityBefore time.Time) (int64, error)
	}

	Service struct {
		store  Store
		conf   *core.Config
		logger core.Logger

		connSeq int64

		stopOnce sync.Once
		stop     chan struct{}
		wg       sync.WaitGroup
	}
)

func NewService(store Store, conf *core.Config, logger core.Logger) *Service {
	return &Service{
		store:   store,
		conf:    conf,
		logger:  logger,
		connSeq: time.Now().UnixNano(),
		stop:    make(chan struct{}),
	}
}

// Login creates a fresh session for the user and supersedes every other live
// session they hold, so a login on a second device kicks the first.
func (svc *Service) Login(ctx context.Context, userID int) (Session, error) {
	token, err := newToken()
	if err != nil {
		return Session{}, err
	}

	now := time.Now().UTC()
	s := Session{
		ID:           token,
		UserID:       userID,
		ConnectionID: atomic.AddInt64(&svc.connSeq, 1),
		LoginTime:    now,
		LastActivity: now,
		CreatedAt:    now,
	}
	if err := svc.store.CreateSession(ctx, s); err != nil {
		return Session{}, errors.Wrap(err, "creating session")
	}
	if err := svc.store.SupersedeUserSessions(ctx, userID, s.ID); err != nil {
		return Session{}, errors.Wrap(err, "superseding user sessions")
	}
	return s, nil
}

// Authenticated resolves a session token into a live session, touching its
// last-activity timestamp. Returns ErrNotFound, ErrExpired or ErrSuperseded
// when the session cannot back an authenticated request.
func (svc *Service) Authenticated(ctx context.Context, id string) (Session, error) {
	s, err := svc.store.GetSession(ctx, id)
	if err != nil {
		return Session{}, err
	}
	if s.Superseded {
		return Session{}, ErrSuperseded
	}
	now := time.Now().UTC()
	if s.Expired(now, svc.conf.Session.MaxAge) {
		_ = svc.store.DeleteSession(ctx, id)
		return Session{}, ErrExpired
	}
	if err := svc.store.TouchSession(ctx, id, now); err != nil {
		// keep-alive failed; the session itself is still good
		svc.logger.Warn("touching session", err)
	}
	s.LastActivity = now
	return s, nil
}

// Ping is the keep-alive check behind GET /api/auth/session-ping.
// A missing session reads as expired; a kicked session is deleted once reported.
func (svc *Service) Ping(ctx context.Context, id string) (Status, error) {
	s, err := svc.store.GetSession(ctx, id)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return StatusExpired, nil
		}
		return StatusExpired, errors.Wrap(err, "getting session")
	}
	if s.Superseded {
		_ = svc.store.DeleteSession(ctx, id)
		return StatusKicked, nil
	}

	now := time.Now().UTC()
	if s.Expired(now, svc.conf.Session.MaxAge) {
		_ = svc.store.DeleteSession(ctx, id)
		return StatusExpired, nil
	}
	if err := svc.store.TouchSession(ctx, id, now); err != nil {
		svc.logger.Warn("touching session", err)
	}
	return StatusActive, nil
}

// Logout destroys the session. A missing session is not an error; the logout
// beacon on tab close may race a prior explicit logout.
func (svc *Service) Logout(ctx context.Context, id string) error {
	if err := svc.store.DeleteSession(ctx, id); err != nil && errors.Cause(err) != ErrNotFound {
		return errors.Wrap(err, "deleting session")
	}
	return nil
}

// StartSweeper runs the expired-session sweep until Stop is called.
func (svc *Service) StartSweeper() {
	svc.wg.Add(1)
	go func() {
		defer svc.wg.Done()

		ticker := time.NewTicker(svc.conf.Session.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				cutoff := time.Now().UTC().Add(-svc.conf.Session.MaxAge)
				n, err := svc.store.DeleteExpiredSessions(context.Background(), cutoff)
				if err != nil {
					svc.logger.Error("sweeping expired sessions", err)
					continue
				}
				if n > 0 {
					svc.logger.Debug("swept expired sessions", map[string]interface{}{"count": n})
				}
			case <-svc.stop:
				return
			}
		}
	}()
}

func (svc *Service) Stop() {
	svc.stopOnce.Do(func() { close(svc.stop) })
	svc.wg.Wait()
}
