package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/tqwops/fieldops/core"
	"github.com/tqwops/fieldops/core/notification"
	"github.com/tqwops/fieldops/core/user"
)

// NewConfig returns a Config suitable for tests.
func NewConfig() *core.Config {
	return &core.Config{
		Debug:     true,
		TestMode:  true,
		Env:       "TEST",
		AppName:   "Fieldops",
		SecretKey: "test-secret-key-not-for-prod",
		Server: core.ServerConfig{
			WSTicketExpiration: 30 * time.Second,
		},
		Session: core.SessionConfig{
			CookieName:    "tqw_session",
			MaxAge:        6 * time.Hour,
			SweepInterval: 10 * time.Minute,
		},
		Security: core.SecurityConfig{
			MaxLoginAttempts: 5,
			LockoutDuration:  15 * time.Minute,
			BcryptCost:       4,
		},
	}
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	nombre, email, rut, perfil, pwd string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()

	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Nombre:    nombre,
		Email:     email,
		RUT:       rut,
		Perfil:    perfil,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		// low cost keeps the test suite fast
		if err := usr.SetPassword(pwd, 4); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

func CreateNotification(
	t *testing.T,
	repo notification.Repository,
	title, content, priority string,
	profiles []string,
	createdBy user.User,
) notification.Notification {
	t.Helper()

	notif := notification.Notification{
		Title:          title,
		Content:        content,
		Priority:       priority,
		TargetProfiles: profiles,
		CreatedBy:      createdBy.ID,
		CreatedAt:      time.Now().UTC(),
	}
	notif, err := repo.CreateNotification(context.Background(), notif)
	if err != nil {
		t.Fatalf("CreateNotification() failed: %v", err)
	}
	return notif
}
