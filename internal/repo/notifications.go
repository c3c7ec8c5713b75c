package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"jorfline/internal/domain"
)

const notificationColumns = `id,recipient,request_id,jorf_id,message,category,COALESCE(action_required,''),read_at,delivered_at,attempts,created_at`

func scanNotification(s rowScanner) (domain.Notification, error) {
	var n domain.Notification
	var readAt, deliveredAt sql.NullString
	err := s.Scan(&n.ID, &n.Recipient, &n.RequestID, &n.JorfID, &n.Message, &n.Category, &n.ActionRequired, &readAt, &deliveredAt, &n.Attempts, &n.CreatedAt)
	if err == sql.ErrNoRows {
		return n, ErrNotFound
	}
	if readAt.Valid {
		v := readAt.String
		n.ReadAt = &v
	}
	if deliveredAt.Valid {
		v := deliveredAt.String
		n.DeliveredAt = &v
	}
	return n, err
}

func (r Repo) InsertNotification(ctx context.Context, tx *sql.Tx, n domain.Notification) (domain.Notification, error) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	_, err := r.conn(tx).ExecContext(ctx, `INSERT INTO notifications(id,recipient,request_id,jorf_id,message,category,action_required,created_at) VALUES (?,?,?,?,?,?,?,?)`,
		n.ID, n.Recipient, n.RequestID, n.JorfID, n.Message, n.Category, nullable(n.ActionRequired), n.CreatedAt)
	if err != nil {
		return n, fmt.Errorf("insert notification: %w", err)
	}
	return n, nil
}

type NotificationFilter struct {
	Recipient  string
	RequestID  int64
	UnreadOnly bool
	Limit      int
}

// ListNotifications returns notifications newest first.
func (r Repo) ListNotifications(ctx context.Context, f NotificationFilter) ([]domain.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE 1=1`
	var args []any
	if f.Recipient != "" {
		query += ` AND recipient=?`
		args = append(args, f.Recipient)
	}
	if f.RequestID != 0 {
		query += ` AND request_id=?`
		args = append(args, f.RequestID)
	}
	if f.UnreadOnly {
		query += ` AND read_at IS NULL`
	}
	query += ` ORDER BY created_at DESC, rowid DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []domain.Notification{}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (r Repo) CountUnread(ctx context.Context, recipient string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM notifications WHERE recipient=? AND read_at IS NULL`, recipient).Scan(&n)
	return n, err
}

// MarkNotificationRead sets read_at once; it only touches the recipient's own row.
func (r Repo) MarkNotificationRead(ctx context.Context, id, recipient, ts string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE notifications SET read_at=COALESCE(read_at, ?) WHERE id=? AND recipient=?`, ts, id, recipient)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) MarkAllNotificationsRead(ctx context.Context, recipient, ts string) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `UPDATE notifications SET read_at=? WHERE recipient=? AND read_at IS NULL`, ts, recipient)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// RecordDelivery bumps the attempt counter and stamps delivered_at on success.
func (r Repo) RecordDelivery(ctx context.Context, id string, delivered bool, ts string) error {
	var err error
	if delivered {
		_, err = r.DB.ExecContext(ctx, `UPDATE notifications SET attempts=attempts+1, delivered_at=? WHERE id=?`, ts, id)
	} else {
		_, err = r.DB.ExecContext(ctx, `UPDATE notifications SET attempts=attempts+1 WHERE id=?`, id)
	}
	return err
}

// ListUndelivered returns notifications still owed to a delivery channel.
func (r Repo) ListUndelivered(ctx context.Context, maxAttempts, limit int) ([]domain.Notification, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE delivered_at IS NULL AND attempts < ? ORDER BY created_at, rowid LIMIT ?`, maxAttempts, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
