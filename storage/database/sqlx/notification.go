package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/tqwops/fieldops/core"
	"github.com/tqwops/fieldops/core/notification"
)

// listOrdering keeps the feed newest first.
var listOrdering = core.DBOrdering{Field: "n.created_at"}

// queryLimit caps the list endpoints; older notifications age out of the UI.
const queryLimit = 100

// profileSeparator joins target profiles into the target_profiles column.
const profileSeparator = ","

type notificationRepository struct {
	db *sqlx.DB
}

var _ notification.Repository = (*notificationRepository)(nil) // interface compliance check

func NewNotificationRepository(db *sqlx.DB) *notificationRepository {
	return &notificationRepository{db: db}
}

// notificationRow maps the joined list query.
type notificationRow struct {
	ID             int            `db:"id"`
	Title          string         `db:"title"`
	Content        string         `db:"content"`
	Priority       string         `db:"priority"`
	TargetProfiles string         `db:"target_profiles"`
	CreatedBy      int            `db:"created_by"`
	CreatedByName  sql.NullString `db:"created_by_name"`
	IsRead         bool           `db:"is_read"`
	CreatedAt      time.Time      `db:"created_at"`
}

func (row notificationRow) toModel() notification.Notification {
	return notification.Notification{
		ID:             row.ID,
		Title:          row.Title,
		Content:        row.Content,
		Priority:       row.Priority,
		TargetProfiles: splitProfiles(row.TargetProfiles),
		CreatedBy:      row.CreatedBy,
		CreatedByName:  row.CreatedByName.String,
		IsRead:         row.IsRead,
		CreatedAt:      row.CreatedAt,
	}
}

func splitProfiles(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, profileSeparator)
	profiles := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			profiles = append(profiles, p)
		}
	}
	return profiles
}

func (repo notificationRepository) CreateNotification(ctx context.Context, n notification.Notification) (notification.Notification, error) {
	res, err := repo.db.ExecContext(ctx,
		`INSERT INTO notifications (title, content, priority, target_profiles, created_by, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		n.Title, n.Content, n.Priority, strings.Join(n.TargetProfiles, profileSeparator), n.CreatedBy, n.CreatedAt,
	)
	if err != nil {
		return notification.Notification{}, errors.Wrap(err, "inserting notification")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return notification.Notification{}, errors.Wrap(err, "getting inserted notification id")
	}
	n.ID = int(id)
	return n, nil
}

func (repo notificationRepository) GetNotification(ctx context.Context, id int) (notification.Notification, error) {
	var row notificationRow
	err := repo.db.GetContext(ctx, &row,
		`SELECT n.id, n.title, n.content, n.priority, n.target_profiles, n.created_by,
		        u.nombre AS created_by_name, FALSE AS is_read, n.created_at
		 FROM notifications n
		 LEFT JOIN users u ON u.id = n.created_by
		 WHERE n.id = ?`, id)
	if err == sql.ErrNoRows {
		return notification.Notification{}, notification.ErrNotFound
	}
	if err != nil {
		return notification.Notification{}, errors.Wrap(err, "getting notification")
	}
	return row.toModel(), nil
}

func (repo notificationRepository) QueryUserNotifications(ctx context.Context, userID int) ([]notification.Notification, error) {
	var rows []notificationRow
	err := repo.db.SelectContext(ctx, &rows,
		`SELECT n.id, n.title, n.content, n.priority, n.target_profiles, n.created_by,
		        u.nombre AS created_by_name, (r.user_id IS NOT NULL) AS is_read, n.created_at
		 FROM notifications n
		 LEFT JOIN users u ON u.id = n.created_by
		 LEFT JOIN notification_reads r ON r.notification_id = n.id AND r.user_id = ?
		 ORDER BY `+listOrdering.String()+`
		 LIMIT ?`, userID, queryLimit)
	if err != nil {
		return nil, errors.Wrap(err, "querying user notifications")
	}

	notifs := make([]notification.Notification, 0, len(rows))
	for _, row := range rows {
		notifs = append(notifs, row.toModel())
	}
	return notifs, nil
}

func (repo notificationRepository) MarkRead(ctx context.Context, id, userID int) error {
	_, err := repo.db.ExecContext(ctx,
		"INSERT IGNORE INTO notification_reads (notification_id, user_id, read_at) VALUES (?, ?, ?)",
		id, userID, time.Now().UTC())
	return errors.Wrap(err, "marking notification read")
}

func (repo notificationRepository) MarkAllRead(ctx context.Context, userID int, ids []int) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning mark-all-read tx")
	}
	now := time.Now().UTC()
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx,
			"INSERT IGNORE INTO notification_reads (notification_id, user_id, read_at) VALUES (?, ?, ?)",
			id, userID, now); err != nil {
			_ = tx.Rollback()
			return errors.Wrap(err, "marking notification read")
		}
	}
	return errors.Wrap(tx.Commit(), "committing mark-all-read tx")
}
