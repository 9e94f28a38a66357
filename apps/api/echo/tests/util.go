package tests

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/tqwops/fieldops/apps/api/echo"
	"github.com/tqwops/fieldops/core"
	"github.com/tqwops/fieldops/core/notification"
	"github.com/tqwops/fieldops/core/session"
	"github.com/tqwops/fieldops/core/user"
	inmemdb "github.com/tqwops/fieldops/storage/database/inmem"
	testutil "github.com/tqwops/fieldops/tests"
	"github.com/tqwops/fieldops/ws"
)

type testApp struct {
	server  echoapi.Server
	conf    *core.Config
	hub     *ws.Hub
	usrRepo user.Repository
	ntfRepo notification.Repository
	sessSvc *session.Service
}

type nopLogger struct{}

func (nopLogger) Enable(bool)                  {}
func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

func setup(t *testing.T) *testApp {
	return setupWithSessionStore(t, inmemdb.NewSessionStore())
}

func setupWithSessionStore(t *testing.T, store session.Store) *testApp {
	t.Helper()

	db, err := inmemdb.Open()
	require.NoError(t, err)

	conf := testutil.NewConfig()
	conf.Debug = false // keep error payloads in their wire shape

	logger := nopLogger{}
	usrRepo := inmemdb.NewUserRepository(db)
	ntfRepo := inmemdb.NewNotificationRepository(db)

	usrSvc := user.NewService(usrRepo, conf)
	sessSvc := session.NewService(store, conf, logger)
	hub := ws.NewHub(logger)
	t.Cleanup(hub.Close)
	notifSvc := notification.NewService(ntfRepo, hub, logger)

	server := echoapi.NewServer(&echoapi.Options{
		Conf:           conf,
		Logger:         logger,
		DisableReqLogs: true,
		UserSvc:        usrSvc,
		SessionSvc:     sessSvc,
		NotifSvc:       notifSvc,
		Hub:            hub,
	})
	return &testApp{
		server:  server,
		conf:    conf,
		hub:     hub,
		usrRepo: usrRepo,
		ntfRepo: ntfRepo,
		sessSvc: sessSvc,
	}
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	cookie   *http.Cookie
	wantCode int
	wantData []byte
}

func (app *testApp) exec(method, path string, cookie *http.Cookie, data ...[]byte) *httptest.ResponseRecorder {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	app.server.ServeHTTP(rec, req)
	return rec
}

// login runs the real login endpoint and returns the session cookie it set.
func (app *testApp) login(t *testing.T, email, pwd string) *http.Cookie {
	t.Helper()

	body := marchallObj(t, map[string]string{"email": email, "password": pwd})
	rec := app.exec(http.MethodPost, "/api/auth/login", nil, body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	for _, c := range rec.Result().Cookies() {
		if c.Name == app.conf.Session.CookieName {
			return c
		}
	}
	t.Fatal("login() did not set the session cookie")
	return nil
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	if j1 == nil || j2 == nil {
		return false, nil
	}
	return assert.ElementsMatch(t, j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}
