package echoapi

import (
	"context"
	"net/http"
	"sync"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/tqwops/fieldops/core"
	"github.com/tqwops/fieldops/core/notification"
	"github.com/tqwops/fieldops/core/session"
	"github.com/tqwops/fieldops/core/user"
	"github.com/tqwops/fieldops/ws"
)

type (
	Options struct {
		Addr           string
		Conf           *core.Config
		Logger         core.Logger
		DisableReqLogs bool

		UserSvc    *user.Service
		SessionSvc *session.Service
		NotifSvc   *notification.Service
		Hub        *ws.Hub
	}

	Server interface {
		http.Handler
		Start() error
		Stop(context.Context) error
		// ShutdownRequested is closed when a handler catches an error that
		// warrants a graceful shutdown.
		ShutdownRequested() <-chan struct{}
	}

	server struct {
		opts *Options
		app  *echo.Echo

		shutdownOnce sync.Once
		shutdown     chan struct{}
	}
)

var _ Server = (*server)(nil)

func NewServer(opts *Options) Server {
	s := &server{
		opts:     opts,
		app:      echo.New(),
		shutdown: make(chan struct{}),
	}
	s.setup()
	return s
}

func (s *server) setup() {
	conf := s.opts.Conf

	s.app.Pre(middleware.RemoveTrailingSlash())
	s.app.Use(securityHeaders)
	if !s.opts.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.opts.Logger, s.signalShutdown)
	s.app.Debug = conf.Debug
	s.app.HideBanner = true

	s.app.GET("/", home)

	api := s.app.Group("/api")
	authed := authRequired(conf, s.opts.SessionSvc, s.opts.UserSvc)

	registerAuthAPI(api, authed, s.opts)
	registerNotificationAPI(api, authed, s.opts)

	s.app.GET("/ws", newWSHandler(s.opts))
}

func (s *server) signalShutdown() {
	s.shutdownOnce.Do(func() { close(s.shutdown) })
}

func (s *server) ShutdownRequested() <-chan struct{} { return s.shutdown }

func (s *server) Start() error {
	return s.app.Start(s.opts.Addr)
}

func (s *server) Stop(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

// securityHeaders mirrors the headers the dashboard is served with behind the
// reverse proxy.
func securityHeaders(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		h := ctx.Response().Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		return next(ctx)
	}
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to the Fieldops API!")
}
