package session

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/pkg/errors"
)

var (
	// errors
	ErrNotFound   = errors.New("session not found")
	ErrExpired    = errors.New("session expired")
	ErrSuperseded = errors.New("session superseded by a newer login")
)

// Session is the server-side record backing an authenticated browser session.
type Session struct {
	ID     string `db:"id"`
	UserID int    `db:"user_id"`

	// ConnectionID increases with every login of the same user; a session
	// whose Superseded flag is set has been taken over by a newer login on
	// another device.
	ConnectionID int64 `db:"connection_id"`
	Superseded   bool  `db:"superseded"`

	LoginTime    time.Time `db:"login_time"`    // UTC
	LastActivity time.Time `db:"last_activity"` // UTC
	CreatedAt    time.Time `db:"created_at"`    // UTC
}

// ExpiresAt is the moment the session dies absent further activity.
func (s Session) ExpiresAt(maxAge time.Duration) time.Time {
	return s.LastActivity.Add(maxAge)
}

func (s Session) Expired(now time.Time, maxAge time.Duration) bool {
	return now.After(s.ExpiresAt(maxAge))
}

// Status is the outcome of a session keep-alive check.
type Status int

const (
	StatusActive Status = iota
	StatusExpired
	StatusKicked
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusExpired:
		return "expired"
	case StatusKicked:
		return "kicked"
	}
	return "unknown"
}

const tokenLength = 32

// newToken generates a secure random session token.
func newToken() (string, error) {
	b := make([]byte, tokenLength)
	if _, err := rand.Read(b); err != nil {
		return "", errors.Wrap(err, "generating session token")
	}
	return hex.EncodeToString(b), nil
}
