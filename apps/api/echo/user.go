package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/tqwops/fieldops/core"
	"github.com/tqwops/fieldops/core/session"
	"github.com/tqwops/fieldops/core/user"
)

type authApi struct {
	opts *Options
}

func registerAuthAPI(g *echo.Group, authed echo.MiddlewareFunc, opts *Options) {
	api := authApi{opts: opts}

	ag := g.Group("/auth")
	ag.POST("/login", api.login)
	ag.POST("/logout", api.logout)
	// session-ping never 401s. An expired or kicked session is a flag in the
	// response body, not an auth failure.
	ag.GET("/session-ping", api.sessionPing)

	ag.GET("/me", api.me, authed)
	ag.GET("/ws-ticket", api.wsTicket, authed)
}

func (api authApi) login(ctx echo.Context) error {
	var req LoginRequest
	if err := ctx.Bind(&req); err != nil {
		return err
	}
	if err := core.Validate.Struct(&req); err != nil {
		return err
	}

	reqCtx := ctx.Request().Context()
	usr, err := api.opts.UserSvc.Authenticate(reqCtx, req.Email, req.Password)
	if err != nil {
		switch errors.Cause(err) {
		case user.ErrNotFound, user.ErrInvalidCredentials:
			return errInvalidCredentials
		case user.ErrAccountDeactivated:
			return errAccountDeactivated
		case user.ErrAccountLocked:
			return errAccountLocked
		}
		return err
	}

	sess, err := api.opts.SessionSvc.Login(reqCtx, usr.ID)
	if err != nil {
		return err
	}
	setSessionCookie(ctx, api.opts.Conf, sess)

	return ctx.JSON(http.StatusOK, LoginResponse{
		User:       usr,
		RedirectTo: usr.HomePath(),
	})
}

// logout tolerates a missing or dead session; the tab-close beacon may fire
// after an explicit logout already destroyed it.
func (api authApi) logout(ctx echo.Context) error {
	if cookie, err := ctx.Cookie(api.opts.Conf.Session.CookieName); err == nil && cookie.Value != "" {
		if err := api.opts.SessionSvc.Logout(ctx.Request().Context(), cookie.Value); err != nil {
			api.opts.Logger.Warn("logout", err)
		}
	}
	clearSessionCookie(ctx, api.opts.Conf)
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: true})
}

func (api authApi) sessionPing(ctx echo.Context) error {
	cookie, err := ctx.Cookie(api.opts.Conf.Session.CookieName)
	if err != nil || cookie.Value == "" {
		return ctx.JSON(http.StatusOK, PingResponse{SessionExpired: true})
	}

	// a store failure must not read as "expired": the client treats ping
	// errors as transient and its local inactivity timer is the backstop
	status, err := api.opts.SessionSvc.Ping(ctx.Request().Context(), cookie.Value)
	if err != nil {
		return err
	}

	var resp PingResponse
	switch status {
	case session.StatusActive:
		resp.SessionActive = true
	case session.StatusKicked:
		clearSessionCookie(ctx, api.opts.Conf)
		resp.SessionKicked = true
	default:
		clearSessionCookie(ctx, api.opts.Conf)
		resp.SessionExpired = true
	}
	return ctx.JSON(http.StatusOK, resp)
}

func (api authApi) me(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, MeResponse{User: usr})
}

func (api authApi) wsTicket(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	ticket, err := newWSTicket(api.opts.Conf, usr)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, TicketResponse{Ticket: ticket})
}
