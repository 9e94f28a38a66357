package echoapi

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The ticket already gates the handshake; the dashboard is served from
	// behind the same reverse proxy.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// newWSHandler upgrades /ws connections. The handshake requires a ticket
// minted by GET /api/auth/ws-ticket; expired or forged tickets are rejected
// before the upgrade.
func newWSHandler(opts *Options) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		ticket := ctx.QueryParam("ticket")
		if ticket == "" {
			return errUnauthorized
		}
		if _, err := parseWSTicket(opts.Conf, ticket); err != nil {
			opts.Logger.Debug("ws ticket rejected", err)
			return errUnauthorized
		}

		conn, err := upgrader.Upgrade(ctx.Response(), ctx.Request(), nil)
		if err != nil {
			// Upgrade already wrote the handshake error
			return nil
		}
		opts.Hub.HandleConn(conn)
		return nil
	}
}
