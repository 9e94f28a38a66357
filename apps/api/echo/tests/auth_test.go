package tests

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tqwops/fieldops/core/session"
	"github.com/tqwops/fieldops/core/user"
	testutil "github.com/tqwops/fieldops/tests"
)

var errNotAuthenticated = httpErr{Error: "user not authenticated"}

func Test_authApi_login(t *testing.T) {
	app := setup(t)

	usr := testutil.CreateUser(t, app.usrRepo, "Jane Doe", "jdoe@tqw.cl", "12.345.678-5", user.PerfilSupervisor, "S3cur3-pass!", true)
	tech := testutil.CreateUser(t, app.usrRepo, "Tech One", "tech@tqw.cl", "9.876.543-3", user.PerfilTecnico, "S3cur3-pass!", true)
	testutil.CreateUser(t, app.usrRepo, "Gone Guy", "gone@tqw.cl", "7.654.321-6", user.PerfilTecnico, "S3cur3-pass!", false)

	creds := func(email, pwd string) []byte {
		return marchallObj(t, map[string]string{"email": email, "password": pwd})
	}

	tests := []httpTest{
		{
			name: "supervisor lands on /supervisor", method: http.MethodPost, path: "/api/auth/login",
			body: creds("jdoe@tqw.cl", "S3cur3-pass!"), wantCode: http.StatusOK,
			wantData: marchallObj(t, map[string]interface{}{"user": usr, "redirectTo": "/supervisor"}),
		},
		{
			name: "tecnico lands on /", method: http.MethodPost, path: "/api/auth/login",
			body: creds("tech@tqw.cl", "S3cur3-pass!"), wantCode: http.StatusOK,
			wantData: marchallObj(t, map[string]interface{}{"user": tech, "redirectTo": "/"}),
		},
		{
			name: "wrong password", method: http.MethodPost, path: "/api/auth/login",
			body: creds("jdoe@tqw.cl", "nope"), wantCode: http.StatusUnauthorized,
			wantData: marchallObj(t, httpErr{Error: "invalid credentials"}),
		},
		{
			name: "unknown email", method: http.MethodPost, path: "/api/auth/login",
			body: creds("nobody@tqw.cl", "S3cur3-pass!"), wantCode: http.StatusUnauthorized,
			wantData: marchallObj(t, httpErr{Error: "invalid credentials"}),
		},
		{
			name: "deactivated account", method: http.MethodPost, path: "/api/auth/login",
			body: creds("gone@tqw.cl", "S3cur3-pass!"), wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "account deactivated"}),
		},
		{
			name: "missing fields", method: http.MethodPost, path: "/api/auth/login",
			body: marchallObj(t, map[string]string{}), wantCode: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := app.exec(tt.method, tt.path, tt.cookie, tt.body)
			checkCodeAndData(t, tt, rec)
		})
	}

	t.Run("login sets an httpOnly session cookie", func(t *testing.T) {
		cookie := app.login(t, "jdoe@tqw.cl", "S3cur3-pass!")
		assert.True(t, cookie.HttpOnly)
		assert.NotEmpty(t, cookie.Value)
	})

	t.Run("lockout after repeated failures", func(t *testing.T) {
		for i := 0; i < app.conf.Security.MaxLoginAttempts; i++ {
			rec := app.exec(http.MethodPost, "/api/auth/login", nil, creds("tech@tqw.cl", "nope"))
			require.Equal(t, http.StatusUnauthorized, rec.Code)
		}
		rec := app.exec(http.MethodPost, "/api/auth/login", nil, creds("tech@tqw.cl", "S3cur3-pass!"))
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	})
}

func Test_authApi_me(t *testing.T) {
	app := setup(t)
	usr := testutil.CreateUser(t, app.usrRepo, "Jane Doe", "jdoe@tqw.cl", "12.345.678-5", user.PerfilSupervisor, "S3cur3-pass!", true)
	cookie := app.login(t, "jdoe@tqw.cl", "S3cur3-pass!")

	tests := []httpTest{
		{
			name: "no cookie", method: http.MethodGet, path: "/api/auth/me",
			wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errNotAuthenticated),
		},
		{
			name: "bogus cookie", method: http.MethodGet, path: "/api/auth/me",
			cookie:   &http.Cookie{Name: app.conf.Session.CookieName, Value: "deadbeef"},
			wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errNotAuthenticated),
		},
		{
			name: "authenticated", method: http.MethodGet, path: "/api/auth/me",
			cookie: cookie, wantCode: http.StatusOK,
			wantData: marchallObj(t, map[string]interface{}{"user": usr}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := app.exec(tt.method, tt.path, tt.cookie, tt.body)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_authApi_sessionPing(t *testing.T) {
	app := setup(t)
	testutil.CreateUser(t, app.usrRepo, "Jane Doe", "jdoe@tqw.cl", "12.345.678-5", user.PerfilSupervisor, "S3cur3-pass!", true)

	t.Run("no cookie reads as expired", func(t *testing.T) {
		rec := app.exec(http.MethodGet, "/api/auth/session-ping", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"sessionExpired":true}`, rec.Body.String())
	})

	t.Run("live session", func(t *testing.T) {
		cookie := app.login(t, "jdoe@tqw.cl", "S3cur3-pass!")
		rec := app.exec(http.MethodGet, "/api/auth/session-ping", cookie)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"sessionActive":true}`, rec.Body.String())
	})

	t.Run("kicked by a second login, reported once", func(t *testing.T) {
		first := app.login(t, "jdoe@tqw.cl", "S3cur3-pass!")
		_ = app.login(t, "jdoe@tqw.cl", "S3cur3-pass!") // other device

		rec := app.exec(http.MethodGet, "/api/auth/session-ping", first)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"sessionKicked":true}`, rec.Body.String())

		// the kicked session is destroyed after being reported
		rec = app.exec(http.MethodGet, "/api/auth/session-ping", first)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"sessionExpired":true}`, rec.Body.String())
	})

	t.Run("logged out session reads as expired", func(t *testing.T) {
		cookie := app.login(t, "jdoe@tqw.cl", "S3cur3-pass!")
		require.NoError(t, app.sessSvc.Logout(context.Background(), cookie.Value))

		rec := app.exec(http.MethodGet, "/api/auth/session-ping", cookie)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"sessionExpired":true}`, rec.Body.String())
	})
}

// downSessionStore fails every lookup, as when the session DB is unreachable.
type downSessionStore struct{ session.Store }

func (downSessionStore) GetSession(context.Context, string) (session.Session, error) {
	return session.Session{}, errors.New("connection refused")
}

func Test_authApi_sessionPing_storeDown(t *testing.T) {
	app := setupWithSessionStore(t, downSessionStore{})

	// a store failure must not read as expired; clients treat the 500 as a
	// transient error and keep their session
	cookie := &http.Cookie{Name: app.conf.Session.CookieName, Value: "deadbeef"}
	rec := app.exec(http.MethodGet, "/api/auth/session-ping", cookie)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Internal Server Error"}`, rec.Body.String())
	assert.Empty(t, rec.Result().Cookies(), "the session cookie must survive")
}

func Test_authApi_logout(t *testing.T) {
	app := setup(t)
	testutil.CreateUser(t, app.usrRepo, "Jane Doe", "jdoe@tqw.cl", "12.345.678-5", user.PerfilSupervisor, "S3cur3-pass!", true)
	cookie := app.login(t, "jdoe@tqw.cl", "S3cur3-pass!")

	rec := app.exec(http.MethodPost, "/api/auth/logout", cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())

	// the session is gone
	rec = app.exec(http.MethodGet, "/api/auth/me", cookie)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// the tab-close beacon may fire again; still fine
	rec = app.exec(http.MethodPost, "/api/auth/logout", cookie)
	assert.Equal(t, http.StatusOK, rec.Code)

	// and without any cookie at all
	rec = app.exec(http.MethodPost, "/api/auth/logout", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func Test_authApi_wsTicket(t *testing.T) {
	app := setup(t)
	testutil.CreateUser(t, app.usrRepo, "Jane Doe", "jdoe@tqw.cl", "12.345.678-5", user.PerfilSupervisor, "S3cur3-pass!", true)

	t.Run("auth required", func(t *testing.T) {
		rec := app.exec(http.MethodGet, "/api/auth/ws-ticket", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("authenticated", func(t *testing.T) {
		cookie := app.login(t, "jdoe@tqw.cl", "S3cur3-pass!")
		rec := app.exec(http.MethodGet, "/api/auth/ws-ticket", cookie)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Ticket string `json:"ticket"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.NotEmpty(t, resp.Ticket)
	})
}
