package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"ReadyCheckserver/internal/domain"
	"ReadyCheckserver/internal/notifications"
	"ReadyCheckserver/internal/realtime"
)

type NotificationsStore interface {
	CreateNotification(ctx context.Context, kind domain.NotificationKind, recipientID, senderID, readycheckID, message string) (domain.Notification, error)
	MarkRead(ctx context.Context, id, recipientID string, when time.Time) error
	MarkAllRead(ctx context.Context, recipientID string, when time.Time) error
	UnreadCount(ctx context.Context, recipientID string) (int, error)
	ListNotifications(ctx context.Context, recipientID string, limit int) ([]domain.Notification, error)
	DeleteNotification(ctx context.Context, id, recipientID string) error
}

type NotificationUsersStore interface {
	GetUserByID(ctx context.Context, id string) (domain.User, error)
	SetPushToken(ctx context.Context, userID, token string) error
}

// PushSender delivers one message to one device address.
type PushSender interface {
	Send(ctx context.Context, token string, msg notifications.Message) error
}

// NotificationEvent is the realtime payload delivered to the recipient's user
// room when an inbox record is created.
type NotificationEvent struct {
	Kind         string              `json:"kind"`
	Notification domain.Notification `json:"notification"`
}

type NotificationsService struct {
	Store     NotificationsStore
	Users     NotificationUsersStore
	Sender    PushSender
	Broadcast Broadcaster
	Logger    *slog.Logger
	Now       func() time.Time
}

func (s *NotificationsService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *NotificationsService) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// Dispatch writes the durable unread record, then pushes best-effort. The
// in-app write is the durable channel: a push failure is logged and swallowed,
// never rolled back into the caller. Returns the created record id.
func (s *NotificationsService) Dispatch(ctx context.Context, kind domain.NotificationKind, senderID, recipientID, readycheckID, message string) (string, error) {
	n, err := s.Store.CreateNotification(ctx, kind, recipientID, senderID, readycheckID, message)
	if err != nil {
		return "", err
	}

	if s.Broadcast != nil {
		s.Broadcast.BroadcastEvent(realtime.UserRoom(recipientID), NotificationEvent{Kind: "notification", Notification: n})
	}

	s.push(ctx, n)
	return n.ID, nil
}

func (s *NotificationsService) push(ctx context.Context, n domain.Notification) {
	if s.Sender == nil || s.Users == nil {
		return
	}

	recipient, err := s.Users.GetUserByID(ctx, n.RecipientID)
	if err != nil {
		s.logger().Error("notifications: recipient lookup failed", "err", err, "user_id", n.RecipientID)
		return
	}
	if recipient.PushToken == "" {
		return
	}

	// Structured data for client deep-linking: the kind plus whichever of
	// readycheck/sender identifies the target screen.
	data := map[string]string{
		"type":            string(n.Kind),
		"notification_id": n.ID,
	}
	if n.ReadyCheckID != "" {
		data["readycheck_id"] = n.ReadyCheckID
	}
	if n.SenderID != "" {
		data["sender_id"] = n.SenderID
	}

	msg := notifications.Message{
		Data: data,
		Notification: &notifications.Notification{
			Title: pushTitle(n.Kind),
			Body:  n.Message,
		},
	}

	if err := s.Sender.Send(ctx, recipient.PushToken, msg); err != nil {
		if errors.Is(err, notifications.ErrInvalidToken) {
			if clearErr := s.Users.SetPushToken(ctx, n.RecipientID, ""); clearErr != nil {
				s.logger().Error("notifications: clear stale push token failed", "err", clearErr, "user_id", n.RecipientID)
			}
			return
		}
		s.logger().Error("notifications: push failed", "err", err, "user_id", n.RecipientID)
	}
}

func pushTitle(kind domain.NotificationKind) string {
	switch kind {
	case domain.NotificationFriendRequest:
		return "Friend request"
	case domain.NotificationFriendAccepted:
		return "Friend request accepted"
	case domain.NotificationEventInvite:
		return "ReadyCheck invite"
	case domain.NotificationRSVPChanged:
		return "RSVP update"
	default:
		return "ReadyCheck"
	}
}

// MarkRead is recipient-scoped and idempotent: marking an already-read record
// keeps the original read time and reports success.
func (s *NotificationsService) MarkRead(ctx context.Context, userID, notificationID string) error {
	return s.Store.MarkRead(ctx, notificationID, userID, s.now())
}

func (s *NotificationsService) MarkAllRead(ctx context.Context, userID string) error {
	return s.Store.MarkAllRead(ctx, userID, s.now())
}

// Delete dismisses one inbox record for its recipient. Recipient-scoped like
// MarkRead; a record belonging to someone else reads as not found.
func (s *NotificationsService) Delete(ctx context.Context, userID, notificationID string) error {
	return s.Store.DeleteNotification(ctx, notificationID, userID)
}

func (s *NotificationsService) UnreadCount(ctx context.Context, userID string) (int, error) {
	return s.Store.UnreadCount(ctx, userID)
}

func (s *NotificationsService) List(ctx context.Context, userID string, limit int) ([]domain.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	out, err := s.Store.ListNotifications(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []domain.Notification{}
	}
	return out, nil
}

// RegisterToken stores the user's single push address; a new registration
// replaces the previous one.
func (s *NotificationsService) RegisterToken(ctx context.Context, userID, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.NewValidationError(map[string]string{"token": "required"})
	}
	return s.Users.SetPushToken(ctx, userID, token)
}

func (s *NotificationsService) DeleteToken(ctx context.Context, userID string) error {
	return s.Users.SetPushToken(ctx, userID, "")
}
