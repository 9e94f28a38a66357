package notification

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/tqwops/fieldops/core"
	"github.com/tqwops/fieldops/core/user"
)

var ErrNotFound = errors.New("notification not found")

type (
	Repository interface {
		CreateNotification(ctx context.Context, n Notification) (Notification, error)
		GetNotification(ctx context.Context, id int) (Notification, error)
		// QueryUserNotifications returns recent notifications, newest first,
		// with IsRead resolved for the given user.
		QueryUserNotifications(ctx context.Context, userID int) ([]Notification, error)
		MarkRead(ctx context.Context, id, userID int) error
		MarkAllRead(ctx context.Context, userID int, ids []int) error
	}

	// Broadcaster fans an event out to every connected client, best-effort.
	Broadcaster interface {
		Broadcast(e Event)
	}

	Service struct {
		repo   Repository
		bcast  Broadcaster
		logger core.Logger
	}
)

func NewService(repo Repository, bcast Broadcaster, logger core.Logger) *Service {
	return &Service{repo: repo, bcast: bcast, logger: logger}
}

// Create persists the notification and pushes it to connected clients.
// Delivery is best-effort: clients that are offline pick it up from the list
// endpoints on their next fetch.
func (svc *Service) Create(ctx context.Context, nn NewNotification, createdBy user.User) (Notification, error) {
	n := Notification{
		Title:          nn.Title,
		Content:        nn.Content,
		Priority:       nn.Priority,
		TargetProfiles: nn.TargetProfiles,
		CreatedBy:      createdBy.ID,
		CreatedByName:  createdBy.Nombre,
		CreatedAt:      time.Now().UTC(),
	}
	n, err := svc.repo.CreateNotification(ctx, n)
	if err != nil {
		return Notification{}, errors.Wrap(err, "creating notification")
	}

	svc.bcast.Broadcast(NewNotificationEvent(n))
	return n, nil
}

// QueryForUser returns the notifications addressed to the user's perfil,
// newest first.
func (svc *Service) QueryForUser(ctx context.Context, usr user.User) ([]Notification, error) {
	all, err := svc.repo.QueryUserNotifications(ctx, usr.ID)
	if err != nil {
		return nil, errors.Wrap(err, "querying notifications")
	}
	mine := make([]Notification, 0, len(all))
	for _, n := range all {
		if n.IsFor(usr.Perfil) {
			mine = append(mine, n)
		}
	}
	return mine, nil
}

func (svc *Service) UnreadCount(ctx context.Context, usr user.User) (int, error) {
	mine, err := svc.QueryForUser(ctx, usr)
	if err != nil {
		return 0, err
	}
	var count int
	for _, n := range mine {
		if !n.IsRead {
			count++
		}
	}
	return count, nil
}

// MarkRead records that the user read the notification. Marking an already
// read notification is a no-op.
func (svc *Service) MarkRead(ctx context.Context, id int, usr user.User) error {
	if _, err := svc.repo.GetNotification(ctx, id); err != nil {
		return err
	}
	return svc.repo.MarkRead(ctx, id, usr.ID)
}

func (svc *Service) MarkAllRead(ctx context.Context, usr user.User) error {
	mine, err := svc.QueryForUser(ctx, usr)
	if err != nil {
		return err
	}
	ids := make([]int, 0, len(mine))
	for _, n := range mine {
		if !n.IsRead {
			ids = append(ids, n.ID)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	return svc.repo.MarkAllRead(ctx, usr.ID, ids)
}
