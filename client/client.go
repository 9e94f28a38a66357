// Package client is the Go consumer of the fieldops API: an HTTP client with
// cookie-session auth, the session lifecycle monitor and the notification
// relay used by dashboard front ends.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/tqwops/fieldops/core"
	"github.com/tqwops/fieldops/core/notification"
	"github.com/tqwops/fieldops/core/session"
	"github.com/tqwops/fieldops/core/user"
)

var (
	ErrUnauthenticated = errors.New("not authenticated")

	defaultTimeout = 10 * time.Second
)

type (
	Client struct {
		baseURL string
		http    *http.Client
		logger  core.Logger
	}

	loginResponse struct {
		User       user.User `json:"user"`
		RedirectTo string    `json:"redirectTo"`
	}

	pingResponse struct {
		SessionActive  bool `json:"sessionActive"`
		SessionExpired bool `json:"sessionExpired"`
		SessionKicked  bool `json:"sessionKicked"`
	}

	meResponse struct {
		User user.User `json:"user"`
	}

	ticketResponse struct {
		Ticket string `json:"ticket"`
	}

	countResponse struct {
		Count int `json:"count"`
	}

	errorResponse struct {
		Error string `json:"error"`
	}
)

func New(baseURL string, logger core.Logger) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, errors.Wrap(err, "creating cookie jar")
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Jar:     jar,
			Timeout: defaultTimeout,
		},
		logger: logger,
	}, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "encoding request body")
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return errors.Wrap(err, "creating request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp errorResponse
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		if resp.StatusCode == http.StatusUnauthorized {
			if errResp.Error != "" {
				return errors.Wrap(ErrUnauthenticated, errResp.Error)
			}
			return ErrUnauthenticated
		}
		if errResp.Error != "" {
			return errors.Errorf("%s %s: %s", method, path, errResp.Error)
		}
		return errors.Errorf("%s %s: %s", method, path, resp.Status)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return errors.Wrapf(err, "decoding %s %s response", method, path)
		}
	}
	return nil
}

// Login authenticates and stores the session cookie for subsequent calls.
// Returns the user and the landing route for their perfil.
func (c *Client) Login(ctx context.Context, email, password string) (user.User, string, error) {
	body := map[string]string{"email": email, "password": password}
	var resp loginResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", body, &resp); err != nil {
		return user.User{}, "", err
	}
	return resp.User, resp.RedirectTo, nil
}

func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/auth/logout", nil, nil)
}

// Me hydrates the authenticated user at load.
func (c *Client) Me(ctx context.Context) (user.User, error) {
	var resp meResponse
	if err := c.do(ctx, http.MethodGet, "/api/auth/me", nil, &resp); err != nil {
		return user.User{}, err
	}
	return resp.User, nil
}

// Ping calls the keep-alive endpoint and folds the response flags into a
// session.Status.
func (c *Client) Ping(ctx context.Context) (session.Status, error) {
	var resp pingResponse
	if err := c.do(ctx, http.MethodGet, "/api/auth/session-ping", nil, &resp); err != nil {
		return session.StatusExpired, err
	}
	switch {
	case resp.SessionActive:
		return session.StatusActive, nil
	case resp.SessionKicked:
		return session.StatusKicked, nil
	default:
		return session.StatusExpired, nil
	}
}

func (c *Client) WSTicket(ctx context.Context) (string, error) {
	var resp ticketResponse
	if err := c.do(ctx, http.MethodGet, "/api/auth/ws-ticket", nil, &resp); err != nil {
		return "", err
	}
	return resp.Ticket, nil
}

// DialWS fetches a fresh connect ticket and opens the push socket.
func (c *Client) DialWS(ctx context.Context) (*websocket.Conn, error) {
	ticket, err := c.WSTicket(ctx)
	if err != nil {
		return nil, err
	}

	u, err := url.Parse(c.baseURL + "/ws")
	if err != nil {
		return nil, errors.Wrap(err, "parsing ws url")
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	q := u.Query()
	q.Set("ticket", ticket)
	u.RawQuery = q.Encode()

	dialer := websocket.Dialer{
		Jar:              c.http.Jar,
		HandshakeTimeout: defaultTimeout,
	}
	conn, resp, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, errors.Wrapf(err, "dialing ws (%s)", resp.Status)
		}
		return nil, errors.Wrap(err, "dialing ws")
	}
	return conn, nil
}

func (c *Client) Notifications(ctx context.Context) ([]notification.Notification, error) {
	var notifs []notification.Notification
	if err := c.do(ctx, http.MethodGet, "/api/notifications/user", nil, &notifs); err != nil {
		return nil, err
	}
	return notifs, nil
}

func (c *Client) UnreadCount(ctx context.Context) (int, error) {
	var resp countResponse
	if err := c.do(ctx, http.MethodGet, "/api/notifications/unread-count", nil, &resp); err != nil {
		return 0, err
	}
	return resp.Count, nil
}

func (c *Client) MarkRead(ctx context.Context, id int) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/api/notifications/%d/read", id), nil, nil)
}

func (c *Client) MarkAllRead(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/notifications/read-all", nil, nil)
}

// CreateNotification publishes a notification (supervisor/admin only).
func (c *Client) CreateNotification(ctx context.Context, nn notification.NewNotification) (notification.Notification, error) {
	var notif notification.Notification
	if err := c.do(ctx, http.MethodPost, "/api/notifications", nn, &notif); err != nil {
		return notification.Notification{}, err
	}
	return notif, nil
}
