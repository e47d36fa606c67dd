package postgres

import (
	"context"
	"fmt"
	"time"

	"ReadyCheckserver/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

type NotificationsStore struct {
	pool *pgxpool.Pool
}

func NewNotificationsStore(pool *pgxpool.Pool) *NotificationsStore {
	return &NotificationsStore{pool: pool}
}

const notificationColumns = `
	id, kind, recipient_id, sender_id, readycheck_id, message, read_at, created_at
`

func scanNotification(row pgx.Row) (domain.Notification, error) {
	var (
		n         domain.Notification
		idUUID    pgtype.UUID
		recipUUID pgtype.UUID
		sendUUID  pgtype.UUID
		rcUUID    pgtype.UUID
		readTS    pgtype.Timestamptz
	)
	err := row.Scan(
		&idUUID,
		&n.Kind,
		&recipUUID,
		&sendUUID,
		&rcUUID,
		&n.Message,
		&readTS,
		&n.CreatedAt,
	)
	if err != nil {
		return domain.Notification{}, err
	}

	n.ID = uuidOrEmpty(idUUID)
	n.RecipientID = uuidOrEmpty(recipUUID)
	n.SenderID = uuidOrEmpty(sendUUID)
	n.ReadyCheckID = uuidOrEmpty(rcUUID)
	n.Read = readTS.Valid
	return n, nil
}

func (s *NotificationsStore) CreateNotification(ctx context.Context, kind domain.NotificationKind, recipientID, senderID, readycheckID, message string) (domain.Notification, error) {
	q := `
		INSERT INTO notifications (kind, recipient_id, sender_id, readycheck_id, message)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING` + notificationColumns

	n, err := scanNotification(s.pool.QueryRow(ctx, q, kind, recipientID, nullIfEmpty(senderID), nullIfEmpty(readycheckID), message))
	if err != nil {
		return domain.Notification{}, fmt.Errorf("create notification: %w", err)
	}
	return n, nil
}

// MarkRead is idempotent: re-reading a read notification keeps the original read time.
func (s *NotificationsStore) MarkRead(ctx context.Context, id, recipientID string, when time.Time) error {
	const q = `
		UPDATE notifications
		SET read_at = coalesce(read_at, $3)
		WHERE id = $1 AND recipient_id = $2
	`

	ct, err := s.pool.Exec(ctx, q, id, recipientID, when)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *NotificationsStore) MarkAllRead(ctx context.Context, recipientID string, when time.Time) error {
	const q = `
		UPDATE notifications
		SET read_at = $2
		WHERE recipient_id = $1 AND read_at IS NULL
	`

	_, err := s.pool.Exec(ctx, q, recipientID, when)
	if err != nil {
		return fmt.Errorf("mark all notifications read: %w", err)
	}
	return nil
}

func (s *NotificationsStore) UnreadCount(ctx context.Context, recipientID string) (int, error) {
	const q = `
		SELECT count(*)
		FROM notifications
		WHERE recipient_id = $1 AND read_at IS NULL
	`

	var count int
	if err := s.pool.QueryRow(ctx, q, recipientID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return count, nil
}

func (s *NotificationsStore) ListNotifications(ctx context.Context, recipientID string, limit int) ([]domain.Notification, error) {
	q := `
		SELECT` + notificationColumns + `
		FROM notifications
		WHERE recipient_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := s.pool.Query(ctx, q, recipientID, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var out []domain.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return out, nil
}

func (s *NotificationsStore) DeleteNotification(ctx context.Context, id, recipientID string) error {
	const q = `DELETE FROM notifications WHERE id = $1 AND recipient_id = $2`

	ct, err := s.pool.Exec(ctx, q, id, recipientID)
	if err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
