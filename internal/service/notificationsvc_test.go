package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"ReadyCheckserver/internal/domain"
	"ReadyCheckserver/internal/notifications"
)

type stubNotificationsStore struct {
	t *testing.T

	createFunc      func(context.Context, domain.NotificationKind, string, string, string, string) (domain.Notification, error)
	markReadFunc    func(context.Context, string, string, time.Time) error
	markAllReadFunc func(context.Context, string, time.Time) error
	unreadCountFunc func(context.Context, string) (int, error)
	listFunc        func(context.Context, string, int) ([]domain.Notification, error)
	deleteFunc      func(context.Context, string, string) error
}

func (s *stubNotificationsStore) CreateNotification(ctx context.Context, kind domain.NotificationKind, recipientID, senderID, readycheckID, message string) (domain.Notification, error) {
	if s.createFunc != nil {
		return s.createFunc(ctx, kind, recipientID, senderID, readycheckID, message)
	}
	s.t.Fatalf("CreateNotification called unexpectedly")
	return domain.Notification{}, errors.New("unexpected call")
}

func (s *stubNotificationsStore) MarkRead(ctx context.Context, id, recipientID string, when time.Time) error {
	if s.markReadFunc != nil {
		return s.markReadFunc(ctx, id, recipientID, when)
	}
	s.t.Fatalf("MarkRead called unexpectedly")
	return errors.New("unexpected call")
}

func (s *stubNotificationsStore) MarkAllRead(ctx context.Context, recipientID string, when time.Time) error {
	if s.markAllReadFunc != nil {
		return s.markAllReadFunc(ctx, recipientID, when)
	}
	s.t.Fatalf("MarkAllRead called unexpectedly")
	return errors.New("unexpected call")
}

func (s *stubNotificationsStore) UnreadCount(ctx context.Context, recipientID string) (int, error) {
	if s.unreadCountFunc != nil {
		return s.unreadCountFunc(ctx, recipientID)
	}
	s.t.Fatalf("UnreadCount called unexpectedly")
	return 0, errors.New("unexpected call")
}

func (s *stubNotificationsStore) ListNotifications(ctx context.Context, recipientID string, limit int) ([]domain.Notification, error) {
	if s.listFunc != nil {
		return s.listFunc(ctx, recipientID, limit)
	}
	s.t.Fatalf("ListNotifications called unexpectedly")
	return nil, errors.New("unexpected call")
}

func (s *stubNotificationsStore) DeleteNotification(ctx context.Context, id, recipientID string) error {
	if s.deleteFunc != nil {
		return s.deleteFunc(ctx, id, recipientID)
	}
	s.t.Fatalf("DeleteNotification called unexpectedly")
	return errors.New("unexpected call")
}

type stubNotificationUsers struct {
	t *testing.T

	getUserByIDFunc  func(context.Context, string) (domain.User, error)
	setPushTokenFunc func(context.Context, string, string) error
}

func (s *stubNotificationUsers) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	if s.getUserByIDFunc != nil {
		return s.getUserByIDFunc(ctx, id)
	}
	s.t.Fatalf("GetUserByID called unexpectedly")
	return domain.User{}, errors.New("unexpected call")
}

func (s *stubNotificationUsers) SetPushToken(ctx context.Context, userID, token string) error {
	if s.setPushTokenFunc != nil {
		return s.setPushTokenFunc(ctx, userID, token)
	}
	s.t.Fatalf("SetPushToken called unexpectedly")
	return errors.New("unexpected call")
}

type stubPushSender struct {
	sent []string
	err  error
}

func (s *stubPushSender) Send(_ context.Context, token string, _ notifications.Message) error {
	s.sent = append(s.sent, token)
	return s.err
}

func created(kind domain.NotificationKind, recipientID, senderID, readycheckID, message string) (domain.Notification, error) {
	return domain.Notification{
		ID:           "notif-1",
		Kind:         kind,
		RecipientID:  recipientID,
		SenderID:     senderID,
		ReadyCheckID: readycheckID,
		Message:      message,
	}, nil
}

func TestDispatchWritesRecordAndPushes(t *testing.T) {
	store := &stubNotificationsStore{t: t, createFunc: func(_ context.Context, kind domain.NotificationKind, recipientID, senderID, readycheckID, message string) (domain.Notification, error) {
		return created(kind, recipientID, senderID, readycheckID, message)
	}}
	sender := &stubPushSender{}
	users := &stubNotificationUsers{t: t, getUserByIDFunc: func(_ context.Context, id string) (domain.User, error) {
		return domain.User{ID: id, PushToken: "device-token"}, nil
	}}

	svc := &NotificationsService{Store: store, Users: users, Sender: sender}

	id, err := svc.Dispatch(context.Background(), domain.NotificationEventInvite, "owner", "x", "rc-1", "invited")
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if id != "notif-1" {
		t.Fatalf("unexpected id: %s", id)
	}
	if len(sender.sent) != 1 || sender.sent[0] != "device-token" {
		t.Fatalf("push not sent: %v", sender.sent)
	}
}

func TestDispatchPushFailureSwallowed(t *testing.T) {
	store := &stubNotificationsStore{t: t, createFunc: func(_ context.Context, kind domain.NotificationKind, recipientID, senderID, readycheckID, message string) (domain.Notification, error) {
		return created(kind, recipientID, senderID, readycheckID, message)
	}}
	sender := &stubPushSender{err: errors.New("gateway down")}
	users := &stubNotificationUsers{t: t, getUserByIDFunc: func(_ context.Context, id string) (domain.User, error) {
		return domain.User{ID: id, PushToken: "device-token"}, nil
	}}

	svc := &NotificationsService{Store: store, Users: users, Sender: sender}

	if _, err := svc.Dispatch(context.Background(), domain.NotificationFriendRequest, "a", "b", "", "hi"); err != nil {
		t.Fatalf("push failure must not surface, got %v", err)
	}
}

func TestDispatchInvalidTokenClearsAddress(t *testing.T) {
	store := &stubNotificationsStore{t: t, createFunc: func(_ context.Context, kind domain.NotificationKind, recipientID, senderID, readycheckID, message string) (domain.Notification, error) {
		return created(kind, recipientID, senderID, readycheckID, message)
	}}
	sender := &stubPushSender{err: notifications.ErrInvalidToken}

	cleared := false
	users := &stubNotificationUsers{
		t: t,
		getUserByIDFunc: func(_ context.Context, id string) (domain.User, error) {
			return domain.User{ID: id, PushToken: "stale-token"}, nil
		},
		setPushTokenFunc: func(_ context.Context, userID, token string) error {
			if userID != "b" || token != "" {
				t.Fatalf("unexpected clear: %s %q", userID, token)
			}
			cleared = true
			return nil
		},
	}

	svc := &NotificationsService{Store: store, Users: users, Sender: sender}

	if _, err := svc.Dispatch(context.Background(), domain.NotificationFriendRequest, "a", "b", "", "hi"); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if !cleared {
		t.Fatalf("stale token not cleared")
	}
}

func TestDispatchWithoutTokenSkipsPush(t *testing.T) {
	store := &stubNotificationsStore{t: t, createFunc: func(_ context.Context, kind domain.NotificationKind, recipientID, senderID, readycheckID, message string) (domain.Notification, error) {
		return created(kind, recipientID, senderID, readycheckID, message)
	}}
	sender := &stubPushSender{}
	users := &stubNotificationUsers{t: t, getUserByIDFunc: func(_ context.Context, id string) (domain.User, error) {
		return domain.User{ID: id}, nil
	}}

	svc := &NotificationsService{Store: store, Users: users, Sender: sender}

	if _, err := svc.Dispatch(context.Background(), domain.NotificationFriendRequest, "a", "b", "", "hi"); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(sender.sent) != 0 {
		t.Fatalf("push sent without token")
	}
}

func TestDispatchStoreFailureAbortsPush(t *testing.T) {
	store := &stubNotificationsStore{t: t, createFunc: func(context.Context, domain.NotificationKind, string, string, string, string) (domain.Notification, error) {
		return domain.Notification{}, errors.New("insert failed")
	}}
	sender := &stubPushSender{}

	svc := &NotificationsService{Store: store, Users: &stubNotificationUsers{t: t}, Sender: sender}

	if _, err := svc.Dispatch(context.Background(), domain.NotificationFriendRequest, "a", "b", "", "hi"); err == nil {
		t.Fatalf("expected error from failed inbox write")
	}
	if len(sender.sent) != 0 {
		t.Fatalf("push attempted after failed inbox write")
	}
}

func TestMarkReadPassesRecipientScope(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	calls := 0
	store := &stubNotificationsStore{t: t, markReadFunc: func(_ context.Context, id, recipientID string, when time.Time) error {
		calls++
		if id != "notif-1" || recipientID != "user-1" || !when.Equal(now) {
			t.Fatalf("unexpected mark read args: %s %s %s", id, recipientID, when)
		}
		return nil
	}}

	svc := &NotificationsService{Store: store, Now: func() time.Time { return now }}

	// Idempotent at the store level: the service issues the same write twice
	// without error.
	if err := svc.MarkRead(context.Background(), "user-1", "notif-1"); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if err := svc.MarkRead(context.Background(), "user-1", "notif-1"); err != nil {
		t.Fatalf("second mark read: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 store calls, got %d", calls)
	}
}

func TestRegisterTokenValidates(t *testing.T) {
	users := &stubNotificationUsers{t: t, setPushTokenFunc: func(_ context.Context, userID, token string) error {
		if token != "tok-1" {
			t.Fatalf("unexpected token: %q", token)
		}
		return nil
	}}
	svc := &NotificationsService{Users: users}

	if err := svc.RegisterToken(context.Background(), "user-1", "  tok-1  "); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := svc.RegisterToken(context.Background(), "user-1", "   "); err == nil {
		t.Fatalf("expected validation error for empty token")
	}
}

func TestListDefaultsLimit(t *testing.T) {
	store := &stubNotificationsStore{t: t, listFunc: func(_ context.Context, recipientID string, limit int) ([]domain.Notification, error) {
		if limit != 50 {
			t.Fatalf("unexpected default limit: %d", limit)
		}
		return nil, nil
	}}
	svc := &NotificationsService{Store: store}

	out, err := svc.List(context.Background(), "user-1", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if out == nil {
		t.Fatalf("expected empty slice, got nil")
	}
}
