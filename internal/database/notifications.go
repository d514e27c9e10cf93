package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Alias1177/GlucoPredictor/models"
)

const notificationColumns = `id, user_id, type, title, message, is_read, data, created_at`

func scanNotification(row rowScanner) (*models.NotificationRecord, error) {
	var n models.NotificationRecord
	var data []byte
	if err := row.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &n.IsRead, &data, &n.CreatedAt); err != nil {
		return nil, err
	}
	if len(data) > 0 && string(data) != "null" {
		payload, err := models.UnmarshalPayload(n.Type, json.RawMessage(data))
		if err != nil {
			return nil, fmt.Errorf("notification %s payload: %w", n.ID, err)
		}
		n.Data = payload
	}
	return &n, nil
}

// SaveNotification validates and inserts n with its payload as JSONB
func (db *DB) SaveNotification(ctx context.Context, n *models.NotificationRecord) error {
	if err := n.Validate(); err != nil {
		return err
	}
	n.ID = newID(n.ID)
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}

	// a nil interface is sent as SQL NULL
	var data any
	if n.Data != nil {
		raw, err := models.MarshalPayload(n.Data)
		if err != nil {
			return err
		}
		data = string(raw)
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO notifications (`+notificationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, n.ID, n.UserID, n.Type, n.Title, n.Message, n.IsRead, data, n.CreatedAt)

	return err
}

// ListNotifications returns one page newest first together with the total match count
func (db *DB) ListNotifications(ctx context.Context, q models.NotificationQuery) ([]models.NotificationRecord, int, error) {
	where := []string{"user_id = $1"}
	args := []any{q.UserID}
	if q.UnreadOnly {
		where = append(where, "is_read = FALSE")
	}
	if !q.Since.IsZero() {
		args = append(args, q.Since)
		where = append(where, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	filter := strings.Join(where, " AND ")

	var total int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notifications WHERE `+filter, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE ` + filter + ` ORDER BY created_at DESC, id DESC`
	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if q.Offset > 0 {
		args = append(args, q.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []models.NotificationRecord{}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *n)
	}
	return out, total, rows.Err()
}

func (db *DB) CountUnread(ctx context.Context, userID string) (int, error) {
	var count int
	err := db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM notifications
		WHERE user_id = $1 AND is_read = FALSE
	`, userID).Scan(&count)
	return count, err
}

func (db *DB) MarkRead(ctx context.Context, id string) (*models.NotificationRecord, error) {
	n, err := scanNotification(db.QueryRowContext(ctx, `
		UPDATE notifications
		SET is_read = TRUE
		WHERE id = $1
		RETURNING `+notificationColumns, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	return n, err
}

func (db *DB) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	res, err := db.ExecContext(ctx, `
		UPDATE notifications
		SET is_read = TRUE
		WHERE user_id = $1 AND is_read = FALSE
	`, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (db *DB) DeleteNotification(ctx context.Context, id string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM notifications WHERE id = $1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return models.ErrNotFound
	}
	return nil
}
