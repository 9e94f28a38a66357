// Package inmemdb holds in-memory implementations of the storage interfaces,
// used by tests and as the session-store fallback when no session database is
// configured.
package inmemdb

import (
	"sync"

	"github.com/tqwops/fieldops/core/notification"
	"github.com/tqwops/fieldops/core/session"
	"github.com/tqwops/fieldops/core/user"
)

type (
	DB struct {
		user  *userTable
		notif *notificationTable
		reads *readTable
	}

	userTable struct {
		sync.RWMutex
		table map[int]*user.User
		seq   int
	}

	notificationTable struct {
		sync.RWMutex
		table map[int]*notification.Notification
		seq   int
	}

	readTable struct {
		sync.RWMutex
		// notification ID -> set of user IDs that read it
		table map[int]map[int]struct{}
	}

	sessionTable struct {
		sync.RWMutex
		table map[string]*session.Session
	}
)

func Open() (*DB, error) {
	db := &DB{
		user:  &userTable{table: make(map[int]*user.User)},
		notif: &notificationTable{table: make(map[int]*notification.Notification)},
		reads: &readTable{table: make(map[int]map[int]struct{})},
	}
	return db, nil
}

// Reset drops all rows; test helper.
func (db *DB) Reset() {
	db.user.Lock()
	db.user.table = make(map[int]*user.User)
	db.user.seq = 0
	db.user.Unlock()

	db.notif.Lock()
	db.notif.table = make(map[int]*notification.Notification)
	db.notif.seq = 0
	db.notif.Unlock()

	db.reads.Lock()
	db.reads.table = make(map[int]map[int]struct{})
	db.reads.Unlock()
}
