package user_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/tqwops/fieldops/core"
	"github.com/tqwops/fieldops/core/user"
	inmemdb "github.com/tqwops/fieldops/storage/database/inmem"
	testutil "github.com/tqwops/fieldops/tests"
)

func setup(t *testing.T) (*user.Service, user.Repository, *core.Config) {
	t.Helper()

	db, err := inmemdb.Open()
	require.NoError(t, err)
	repo := inmemdb.NewUserRepository(db)
	conf := testutil.NewConfig()
	return user.NewService(repo, conf), repo, conf
}

func TestService_Authenticate(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := setup(t)

	testutil.CreateUser(t, repo, "Jane Doe", "jdoe@tqw.cl", "12.345.678-5", user.PerfilSupervisor, "S3cur3-pass!", true)
	testutil.CreateUser(t, repo, "Gone Guy", "gone@tqw.cl", "9.876.543-3", user.PerfilTecnico, "S3cur3-pass!", false)

	t.Run("valid credentials", func(t *testing.T) {
		usr, err := svc.Authenticate(ctx, "jdoe@tqw.cl", "S3cur3-pass!")
		require.NoError(t, err)
		assert.Equal(t, "jdoe@tqw.cl", usr.Email)
		assert.True(t, usr.LastLogin.Valid)
	})

	t.Run("email is case-insensitive", func(t *testing.T) {
		_, err := svc.Authenticate(ctx, "JDoe@TQW.cl", "S3cur3-pass!")
		assert.NoError(t, err)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := svc.Authenticate(ctx, "jdoe@tqw.cl", "nope")
		assert.ErrorIs(t, err, user.ErrInvalidCredentials)
	})

	t.Run("unknown email", func(t *testing.T) {
		_, err := svc.Authenticate(ctx, "nobody@tqw.cl", "S3cur3-pass!")
		assert.ErrorIs(t, err, user.ErrInvalidCredentials)
	})

	t.Run("deactivated account", func(t *testing.T) {
		_, err := svc.Authenticate(ctx, "gone@tqw.cl", "S3cur3-pass!")
		assert.ErrorIs(t, err, user.ErrAccountDeactivated)
	})
}

func TestService_Authenticate_lockout(t *testing.T) {
	ctx := context.Background()
	svc, repo, conf := setup(t)

	testutil.CreateUser(t, repo, "Jane Doe", "jdoe@tqw.cl", "12.345.678-5", user.PerfilSupervisor, "S3cur3-pass!", true)

	// failures below the limit keep returning invalid credentials
	for i := 0; i < conf.Security.MaxLoginAttempts-1; i++ {
		_, err := svc.Authenticate(ctx, "jdoe@tqw.cl", "nope")
		require.ErrorIs(t, err, user.ErrInvalidCredentials)
	}

	// a success resets the counter
	_, err := svc.Authenticate(ctx, "jdoe@tqw.cl", "S3cur3-pass!")
	require.NoError(t, err)

	// the full run of failures locks the account
	for i := 0; i < conf.Security.MaxLoginAttempts; i++ {
		_, err := svc.Authenticate(ctx, "jdoe@tqw.cl", "nope")
		require.ErrorIs(t, err, user.ErrInvalidCredentials)
	}

	// even the right password is rejected while locked
	_, err = svc.Authenticate(ctx, "jdoe@tqw.cl", "S3cur3-pass!")
	assert.ErrorIs(t, err, user.ErrAccountLocked)

	// unknown emails are tracked too (no user enumeration via lockout)
	for i := 0; i < conf.Security.MaxLoginAttempts; i++ {
		_, err := svc.Authenticate(ctx, "nobody@tqw.cl", "nope")
		require.ErrorIs(t, err, user.ErrInvalidCredentials)
	}
	_, err = svc.Authenticate(ctx, "nobody@tqw.cl", "nope")
	assert.ErrorIs(t, err, user.ErrAccountLocked)
}

func TestService_Authenticate_lockoutExpires(t *testing.T) {
	ctx := context.Background()

	db, err := inmemdb.Open()
	require.NoError(t, err)
	repo := inmemdb.NewUserRepository(db)
	conf := testutil.NewConfig()
	conf.Security.LockoutDuration = 50 * time.Millisecond
	svc := user.NewService(repo, conf)

	testutil.CreateUser(t, repo, "Jane Doe", "jdoe@tqw.cl", "12.345.678-5", user.PerfilSupervisor, "S3cur3-pass!", true)

	for i := 0; i < conf.Security.MaxLoginAttempts; i++ {
		_, _ = svc.Authenticate(ctx, "jdoe@tqw.cl", "nope")
	}
	_, err = svc.Authenticate(ctx, "jdoe@tqw.cl", "S3cur3-pass!")
	require.ErrorIs(t, err, user.ErrAccountLocked)

	time.Sleep(60 * time.Millisecond)

	_, err = svc.Authenticate(ctx, "jdoe@tqw.cl", "S3cur3-pass!")
	assert.NoError(t, err)
}

func TestService_CreateAndUpdate(t *testing.T) {
	ctx := context.Background()
	svc, _, conf := setup(t)

	nu := user.NewUser{
		Email:           "tech@tqw.cl",
		RUT:             "12.345.678-5",
		Nombre:          "Tech One",
		Perfil:          user.PerfilTecnico,
		Area:            "Instalaciones",
		Password:        "S3cur3-pass!",
		PasswordConfirm: "S3cur3-pass!",
	}
	usr, err := svc.Create(ctx, nu)
	require.NoError(t, err)
	assert.NotZero(t, usr.ID)
	assert.True(t, usr.IsActive)
	assert.Equal(t, "Instalaciones", usr.Area.String)
	assert.NoError(t, usr.CheckPassword("S3cur3-pass!"))

	t.Run("hash uses the configured cost", func(t *testing.T) {
		cost, err := bcrypt.Cost(usr.PasswordHash)
		require.NoError(t, err)
		assert.Equal(t, conf.Security.BcryptCost, cost)
	})

	t.Run("duplicate email rejected", func(t *testing.T) {
		dup := nu
		dup.RUT = "9.876.543-3"
		_, err := svc.Create(ctx, dup)
		require.Error(t, err)
	})

	t.Run("duplicate rut rejected", func(t *testing.T) {
		dup := nu
		dup.Email = "other@tqw.cl"
		_, err := svc.Create(ctx, dup)
		require.Error(t, err)
	})

	t.Run("update perfil", func(t *testing.T) {
		uu := user.UpdateUser{Perfil: user.PerfilSupervisor}
		updated, err := svc.Update(ctx, usr.ID, uu)
		require.NoError(t, err)
		assert.Equal(t, user.PerfilSupervisor, updated.Perfil)
		assert.Equal(t, usr.Email, updated.Email)
	})
}
