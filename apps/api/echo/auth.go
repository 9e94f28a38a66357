package echoapi

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/tqwops/fieldops/core"
	"github.com/tqwops/fieldops/core/session"
	"github.com/tqwops/fieldops/core/user"
)

const (
	userContextKey    = "user"
	sessionContextKey = "session"
)

// authRequired resolves the session cookie into a live session and its user,
// storing both in the request context. Requests without a valid session get a 401.
func authRequired(conf *core.Config, sessionSvc *session.Service, userSvc *user.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			cookie, err := ctx.Cookie(conf.Session.CookieName)
			if err != nil || cookie.Value == "" {
				return errUnauthorized
			}

			sess, err := sessionSvc.Authenticated(ctx.Request().Context(), cookie.Value)
			if err != nil {
				switch errors.Cause(err) {
				case session.ErrNotFound, session.ErrExpired, session.ErrSuperseded:
					clearSessionCookie(ctx, conf)
					return errUnauthorized
				}
				return err
			}

			usr, err := userSvc.GetByID(ctx.Request().Context(), sess.UserID)
			if err != nil {
				if errors.Cause(err) == user.ErrNotFound {
					clearSessionCookie(ctx, conf)
					return errUnauthorized
				}
				return err
			}
			if !usr.IsActive {
				return errAccountDeactivated
			}

			ctx.Set(userContextKey, usr)
			ctx.Set(sessionContextKey, sess)
			return next(ctx)
		}
	}
}

// supervisorRequired restricts a route to supervisors and admins.
// It must be registered after authRequired.
func supervisorRequired(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		usr, err := getContextUser(ctx)
		if err != nil {
			return err
		}
		if !(usr.IsSupervisor() || usr.IsAdmin()) {
			return errHttpForbidden
		}
		return next(ctx)
	}
}

func getContextUser(ctx echo.Context) (user.User, error) {
	usr, ok := ctx.Get(userContextKey).(user.User)
	if !ok {
		return user.User{}, errUnauthorized
	}
	return usr, nil
}

func getContextSession(ctx echo.Context) (session.Session, error) {
	sess, ok := ctx.Get(sessionContextKey).(session.Session)
	if !ok {
		return session.Session{}, errUnauthorized
	}
	return sess, nil
}

func setSessionCookie(ctx echo.Context, conf *core.Config, sess session.Session) {
	ctx.SetCookie(&http.Cookie{
		Name:     conf.Session.CookieName,
		Value:    sess.ID,
		Path:     "/",
		MaxAge:   int(conf.Session.MaxAge.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   conf.Env == "PROD",
	})
}

func clearSessionCookie(ctx echo.Context, conf *core.Config) {
	ctx.SetCookie(&http.Cookie{
		Name:     conf.Session.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   conf.Env == "PROD",
	})
}

// wsClaims is the payload of the short-lived ticket exchanged for a websocket
// connection. Browsers cannot set headers on the ws handshake, so the dashboard
// fetches a ticket over the authenticated API and passes it as a query param.
type wsClaims struct {
	jwt.StandardClaims
	Perfil string `json:"perfil"`
}

func newWSTicket(conf *core.Config, usr user.User) (string, error) {
	now := time.Now()
	claims := wsClaims{
		StandardClaims: jwt.StandardClaims{
			Subject:   strconv.Itoa(usr.ID),
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(conf.Server.WSTicketExpiration).Unix(),
		},
		Perfil: usr.Perfil,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(conf.SecretKey))
	if err != nil {
		return "", errors.Wrap(err, "signing ws ticket")
	}
	return signed, nil
}

func parseWSTicket(conf *core.Config, ticket string) (*wsClaims, error) {
	claims := new(wsClaims)
	token, err := jwt.ParseWithClaims(ticket, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(conf.SecretKey), nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "parsing ws ticket")
	}
	if !token.Valid {
		return nil, errors.New("invalid ws ticket")
	}
	return claims, nil
}
