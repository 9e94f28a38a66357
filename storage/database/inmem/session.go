package inmemdb

import (
	"context"
	"time"

	"github.com/tqwops/fieldops/core/session"
)

// SessionStore keeps sessions in process memory. Sessions are lost on
// restart, which matches the original dev fallback.
type SessionStore struct {
	sessions sessionTable
}

var _ session.Store = (*SessionStore)(nil) // interface compliance check

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: sessionTable{table: make(map[string]*session.Session)},
	}
}

func (s *SessionStore) CreateSession(_ context.Context, sess session.Session) error {
	s.sessions.Lock()
	defer s.sessions.Unlock()

	s.sessions.table[sess.ID] = &sess
	return nil
}

func (s *SessionStore) GetSession(_ context.Context, id string) (session.Session, error) {
	s.sessions.RLock()
	defer s.sessions.RUnlock()

	if sess, ok := s.sessions.table[id]; ok {
		return *sess, nil
	}
	return session.Session{}, session.ErrNotFound
}

func (s *SessionStore) TouchSession(_ context.Context, id string, at time.Time) error {
	s.sessions.Lock()
	defer s.sessions.Unlock()

	sess, ok := s.sessions.table[id]
	if !ok {
		return session.ErrNotFound
	}
	sess.LastActivity = at
	return nil
}

func (s *SessionStore) SupersedeUserSessions(_ context.Context, userID int, exceptID string) error {
	s.sessions.Lock()
	defer s.sessions.Unlock()

	for id, sess := range s.sessions.table {
		if sess.UserID == userID && id != exceptID {
			sess.Superseded = true
		}
	}
	return nil
}

func (s *SessionStore) DeleteSession(_ context.Context, id string) error {
	s.sessions.Lock()
	defer s.sessions.Unlock()

	if _, ok := s.sessions.table[id]; !ok {
		return session.ErrNotFound
	}
	delete(s.sessions.table, id)
	return nil
}

func (s *SessionStore) DeleteExpiredSessions(_ context.Context, lastActivityBefore time.Time) (int64, error) {
	s.sessions.Lock()
	defer s.sessions.Unlock()

	var n int64
	for id, sess := range s.sessions.table {
		if sess.LastActivity.Before(lastActivityBefore) {
			delete(s.sessions.table, id)
			n++
		}
	}
	return n, nil
}
