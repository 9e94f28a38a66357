package notification

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/tqwops/fieldops/core"
	"github.com/tqwops/fieldops/core/user"
)

// Priorities
const (
	PriorityInfo    = "info"
	PriorityWarning = "warning"
	PriorityError   = "error"
)

// Event types and targets pushed over the socket.
const (
	EventTypeConnection   = "connection"
	EventTypeNotification = "notification"
	EventTypeRefresh      = "refresh"

	TargetUserNotifications = "user-notifications"
	TargetDailyMonitor      = "monitor-diario"

	welcomeMessage = "Connected to TQW Real-time updates"
)

type Notification struct {
	ID             int       `json:"id" db:"id"`
	Title          string    `json:"title" db:"title"`
	Content        string    `json:"content" db:"content"`
	Priority       string    `json:"priority" db:"priority"`
	TargetProfiles []string  `json:"targetProfiles" db:"-"`
	CreatedBy      int       `json:"-" db:"created_by"`
	CreatedByName  string    `json:"createdByName" db:"created_by_name"`
	IsRead         bool      `json:"isRead" db:"is_read"`
	CreatedAt      time.Time `json:"createdAt" db:"created_at"` // UTC
}

// IsFor reports whether the notification addresses the given perfil.
func (n *Notification) IsFor(perfil string) bool {
	return MatchesPerfil(n.TargetProfiles, perfil)
}

// MatchesPerfil applies the targeting rule: a target entry matches when the
// user's perfil contains it case-insensitively, or when it is the literal
// TODOS wildcard.
func MatchesPerfil(profiles []string, perfil string) bool {
	lowered := strings.ToLower(perfil)
	for _, p := range profiles {
		if p == user.PerfilTodos || strings.Contains(lowered, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

// Event is the JSON envelope pushed to connected clients.
type Event struct {
	Type         string        `json:"type"`
	Target       string        `json:"target,omitempty"`
	Message      string        `json:"message,omitempty"`
	Profiles     []string      `json:"profiles,omitempty"`
	Notification *Notification `json:"notification,omitempty"`
}

func NewWelcomeEvent() Event {
	return Event{Type: EventTypeConnection, Message: welcomeMessage}
}

func NewNotificationEvent(n Notification) Event {
	return Event{
		Type:         EventTypeNotification,
		Target:       TargetUserNotifications,
		Profiles:     n.TargetProfiles,
		Notification: &n,
	}
}

func NewRefreshEvent(target string) Event {
	return Event{Type: EventTypeRefresh, Target: target}
}

// NewNotification contains information needed to create a new Notification.
type NewNotification struct {
	Title          string   `json:"title" validate:"required"`
	Content        string   `json:"content" validate:"required"`
	Priority       string   `json:"priority" validate:"omitempty,oneof=info warning error"`
	TargetProfiles []string `json:"targetProfiles" validate:"required,min=1,dive,required"`
}

func (nn *NewNotification) Validate(validate *validator.Validate) error {
	nn.Title = core.CleanString(nn.Title)
	nn.Content = core.CleanString(nn.Content)
	nn.Priority = core.CleanString(nn.Priority, true /* lower */)
	if nn.Priority == "" {
		nn.Priority = PriorityInfo
	}
	for i, p := range nn.TargetProfiles {
		nn.TargetProfiles[i] = core.CleanString(p)
	}
	return validate.Struct(nn)
}
