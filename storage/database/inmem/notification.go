package inmemdb

import (
	"context"
	"sort"

	"github.com/tqwops/fieldops/core/notification"
)

type notificationRepository struct {
	notif *notificationTable
	reads *readTable
	users *userTable
}

var _ notification.Repository = (*notificationRepository)(nil) // interface compliance check

func NewNotificationRepository(db *DB) *notificationRepository {
	return &notificationRepository{notif: db.notif, reads: db.reads, users: db.user}
}

func (repo *notificationRepository) CreateNotification(_ context.Context, n notification.Notification) (notification.Notification, error) {
	repo.notif.Lock()
	defer repo.notif.Unlock()

	repo.notif.seq++
	n.ID = repo.notif.seq
	stored := n
	repo.notif.table[n.ID] = &stored
	return n, nil
}

func (repo *notificationRepository) GetNotification(_ context.Context, id int) (notification.Notification, error) {
	repo.notif.RLock()
	defer repo.notif.RUnlock()

	if n, ok := repo.notif.table[id]; ok {
		return *n, nil
	}
	return notification.Notification{}, notification.ErrNotFound
}

func (repo *notificationRepository) QueryUserNotifications(_ context.Context, userID int) ([]notification.Notification, error) {
	repo.notif.RLock()
	defer repo.notif.RUnlock()
	repo.reads.RLock()
	defer repo.reads.RUnlock()

	notifs := make([]notification.Notification, 0, len(repo.notif.table))
	for _, n := range repo.notif.table {
		cp := *n
		if readers, ok := repo.reads.table[n.ID]; ok {
			_, cp.IsRead = readers[userID]
		}
		cp.CreatedByName = repo.creatorName(n.CreatedBy)
		notifs = append(notifs, cp)
	}
	sort.Slice(notifs, func(i, j int) bool { return notifs[i].CreatedAt.After(notifs[j].CreatedAt) })
	return notifs, nil
}

func (repo *notificationRepository) creatorName(userID int) string {
	repo.users.RLock()
	defer repo.users.RUnlock()

	if usr, ok := repo.users.table[userID]; ok {
		return usr.Nombre
	}
	return ""
}

func (repo *notificationRepository) MarkRead(_ context.Context, id, userID int) error {
	repo.reads.Lock()
	defer repo.reads.Unlock()

	readers, ok := repo.reads.table[id]
	if !ok {
		readers = make(map[int]struct{})
		repo.reads.table[id] = readers
	}
	readers[userID] = struct{}{}
	return nil
}

func (repo *notificationRepository) MarkAllRead(ctx context.Context, userID int, ids []int) error {
	for _, id := range ids {
		if err := repo.MarkRead(ctx, id, userID); err != nil {
			return err
		}
	}
	return nil
}
