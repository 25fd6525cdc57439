package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/dukerupert/errand/internal/model"
)

type NotificationStore struct {
	db *sql.DB
}

func NewNotificationStore(db *sql.DB) *NotificationStore {
	return &NotificationStore{db: db}
}

func scanNotification(scanner interface{ Scan(...any) error }) (*model.Notification, error) {
	var n model.Notification
	var taskID sql.NullString
	var metadata string
	var read int
	err := scanner.Scan(&n.ID, &n.UserID, &taskID, &n.Type, &n.Title, &n.Body, &metadata, &read, &n.CreatedAt)
	if err != nil {
		return nil, err
	}
	n.TaskID = stringPtr(taskID)
	n.Metadata = json.RawMessage(metadata)
	n.Read = read != 0
	return &n, nil
}

const notificationCols = `id, user_id, task_id, type, title, body, metadata, is_read, created_at`

// CreateBatch persists one row per notification in a single transaction and
// returns them with IDs assigned, in input order.
func (s *NotificationStore) CreateBatch(ctx context.Context, in []model.Notification) ([]model.Notification, error) {
	if len(in) == 0 {
		return nil, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	out := make([]model.Notification, 0, len(in))
	for _, n := range in {
		metadata := n.Metadata
		if len(metadata) == 0 {
			metadata = json.RawMessage(`{}`)
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO notifications (user_id, task_id, type, title, body, metadata, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			n.UserID, nullString(n.TaskID), n.Type, n.Title, n.Body, string(metadata), n.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("insert notification: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("last insert id: %w", err)
		}
		n.ID = id
		n.Metadata = metadata
		out = append(out, n)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return out, nil
}

// ListByUser returns a user's notifications, newest first.
func (s *NotificationStore) ListByUser(ctx context.Context, userID string, unreadOnly bool, limit int) ([]model.Notification, error) {
	query := `SELECT ` + notificationCols + ` FROM notifications WHERE user_id = ?`
	if unreadOnly {
		query += ` AND is_read = 0`
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var list []model.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		list = append(list, *n)
	}
	return list, rows.Err()
}

// MarkRead flags one notification read. It reports false when the row does
// not belong to userID.
func (s *NotificationStore) MarkRead(ctx context.Context, id int64, userID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = 1 WHERE id = ? AND user_id = ?`, id, userID,
	)
	if err != nil {
		return false, fmt.Errorf("mark notification read: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

func (s *NotificationStore) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = 1 WHERE user_id = ? AND is_read = 0`, userID,
	)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	return res.RowsAffected()
}

func (s *NotificationStore) CountUnread(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id = ? AND is_read = 0`, userID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return n, nil
}

// CountForTask counts rows of a given type for a task, across all users.
func (s *NotificationStore) CountForTask(ctx context.Context, taskID string, t model.NotificationType) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE task_id = ? AND type = ?`, taskID, t,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count task notifications: %w", err)
	}
	return n, nil
}
