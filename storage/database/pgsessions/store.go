// Package pgsessions backs the session store with Postgres, matching the
// production setup where sessions outlive API restarts. The API falls back to
// the in-memory store when no session database is configured.
package pgsessions

import (
	"context"
	"database/sql"
	"net/url"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/tqwops/fieldops/core"
	"github.com/tqwops/fieldops/core/session"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    user_id INTEGER NOT NULL,
    connection_id BIGINT NOT NULL,
    superseded BOOLEAN NOT NULL DEFAULT FALSE,
    login_time TIMESTAMPTZ NOT NULL,
    last_activity TIMESTAMPTZ NOT NULL,
    created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS sessions_user_idx ON sessions (user_id);
`

type Store struct {
	db *sqlx.DB
}

var _ session.Store = (*Store)(nil) // interface compliance check

// Open connects to the session database and ensures its table exists.
func Open(conf *core.Config) (*Store, error) {
	sslMode := "require"
	if conf.SessionDatabase.DisableTLS {
		sslMode = "disable"
	}
	q := make(url.Values)
	q.Set("sslmode", sslMode)
	q.Set("timezone", "utc")

	u := url.URL{
		Scheme:   conf.SessionDatabase.Engine,
		User:     url.UserPassword(conf.SessionDatabase.User, conf.SessionDatabase.Password),
		Host:     conf.SessionDatabase.Address(),
		Path:     conf.SessionDatabase.Name,
		RawQuery: q.Encode(),
	}

	db, err := sqlx.Open("postgres", u.String())
	if err != nil {
		return nil, errors.Wrap(err, "opening session database")
	}
	if err := ping(db); err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, errors.Wrap(err, "creating sessions table")
	}
	return &Store{db: db}, nil
}

// ping waits for the database to be ready. Waits 100ms longer between each attempt.
func ping(db *sqlx.DB) error {
	var err error
	maxAttempts := 10
	for attempts := 1; attempts <= maxAttempts; attempts++ {
		err = db.Ping()
		if err == nil {
			break
		}
		time.Sleep(time.Duration(attempts) * 100 * time.Millisecond)
	}

	if err != nil {
		return errors.Wrap(err, "session DB ping timeout")
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) CreateSession(ctx context.Context, sess session.Session) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, connection_id, superseded, login_time, last_activity, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		sess.ID, sess.UserID, sess.ConnectionID, sess.Superseded,
		sess.LoginTime, sess.LastActivity, sess.CreatedAt,
	)
	return errors.Wrap(err, "inserting session")
}

func (s *Store) GetSession(ctx context.Context, id string) (session.Session, error) {
	var sess session.Session
	err := s.db.GetContext(ctx, &sess,
		`SELECT id, user_id, connection_id, superseded, login_time, last_activity, created_at
		 FROM sessions WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return session.Session{}, session.ErrNotFound
	}
	if err != nil {
		return session.Session{}, errors.Wrap(err, "getting session")
	}
	return sess, nil
}

func (s *Store) TouchSession(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE sessions SET last_activity = $1 WHERE id = $2", at, id)
	return errors.Wrap(err, "touching session")
}

func (s *Store) SupersedeUserSessions(ctx context.Context, userID int, exceptID string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE sessions SET superseded = TRUE WHERE user_id = $1 AND id <> $2", userID, exceptID)
	return errors.Wrap(err, "superseding user sessions")
}

func (s *Store) DeleteSession(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = $1", id)
	if err != nil {
		return errors.Wrap(err, "deleting session")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return session.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteExpiredSessions(ctx context.Context, lastActivityBefore time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM sessions WHERE last_activity < $1", lastActivityBefore)
	if err != nil {
		return 0, errors.Wrap(err, "deleting expired sessions")
	}
	n, _ := res.RowsAffected()
	return n, nil
}
