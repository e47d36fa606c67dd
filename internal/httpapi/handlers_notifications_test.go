package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ReadyCheckserver/internal/domain"
	"ReadyCheckserver/internal/service"
)

type stubNotificationsAPIStore struct {
	t *testing.T

	createFunc      func(context.Context, domain.NotificationKind, string, string, string, string) (domain.Notification, error)
	markReadFunc    func(context.Context, string, string, time.Time) error
	markAllReadFunc func(context.Context, string, time.Time) error
	unreadCountFunc func(context.Context, string) (int, error)
	listFunc        func(context.Context, string, int) ([]domain.Notification, error)
	deleteFunc      func(context.Context, string, string) error
}

func (s *stubNotificationsAPIStore) CreateNotification(ctx context.Context, kind domain.NotificationKind, recipientID, senderID, readycheckID, message string) (domain.Notification, error) {
	if s.createFunc != nil {
		return s.createFunc(ctx, kind, recipientID, senderID, readycheckID, message)
	}
	s.t.Fatalf("CreateNotification called unexpectedly")
	return domain.Notification{}, context.Canceled
}

func (s *stubNotificationsAPIStore) MarkRead(ctx context.Context, id, recipientID string, when time.Time) error {
	if s.markReadFunc != nil {
		return s.markReadFunc(ctx, id, recipientID, when)
	}
	s.t.Fatalf("MarkRead called unexpectedly")
	return context.Canceled
}

func (s *stubNotificationsAPIStore) MarkAllRead(ctx context.Context, recipientID string, when time.Time) error {
	if s.markAllReadFunc != nil {
		return s.markAllReadFunc(ctx, recipientID, when)
	}
	s.t.Fatalf("MarkAllRead called unexpectedly")
	return context.Canceled
}

func (s *stubNotificationsAPIStore) UnreadCount(ctx context.Context, recipientID string) (int, error) {
	if s.unreadCountFunc != nil {
		return s.unreadCountFunc(ctx, recipientID)
	}
	s.t.Fatalf("UnreadCount called unexpectedly")
	return 0, context.Canceled
}

func (s *stubNotificationsAPIStore) ListNotifications(ctx context.Context, recipientID string, limit int) ([]domain.Notification, error) {
	if s.listFunc != nil {
		return s.listFunc(ctx, recipientID, limit)
	}
	s.t.Fatalf("ListNotifications called unexpectedly")
	return nil, context.Canceled
}

func (s *stubNotificationsAPIStore) DeleteNotification(ctx context.Context, id, recipientID string) error {
	if s.deleteFunc != nil {
		return s.deleteFunc(ctx, id, recipientID)
	}
	s.t.Fatalf("DeleteNotification called unexpectedly")
	return context.Canceled
}

func TestNotificationsMarkReadScopedToCaller(t *testing.T) {
	store := &stubNotificationsAPIStore{
		t: t,
		markReadFunc: func(_ context.Context, id, recipientID string, _ time.Time) error {
			if id != "n-1" || recipientID != "user-1" {
				t.Fatalf("unexpected mark read args: %s %s", id, recipientID)
			}
			return nil
		},
	}

	api := &api{notificationsSvc: &service.NotificationsService{Store: store}}

	req := authedRequest(http.MethodPost, "/v1/notifications/n-1/read", "", domain.User{ID: "user-1"})
	req.SetPathValue("id", "n-1")
	rr := httptest.NewRecorder()
	api.handleNotificationsMarkRead(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
}

func TestNotificationsMarkReadUnknownNotFound(t *testing.T) {
	store := &stubNotificationsAPIStore{
		t: t,
		markReadFunc: func(_ context.Context, _, _ string, _ time.Time) error {
			return domain.ErrNotFound
		},
	}

	api := &api{notificationsSvc: &service.NotificationsService{Store: store}}

	req := authedRequest(http.MethodPost, "/v1/notifications/n-404/read", "", domain.User{ID: "user-1"})
	req.SetPathValue("id", "n-404")
	rr := httptest.NewRecorder()
	api.handleNotificationsMarkRead(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
}

func TestNotificationsDeleteScopedToCaller(t *testing.T) {
	store := &stubNotificationsAPIStore{
		t: t,
		deleteFunc: func(_ context.Context, id, recipientID string) error {
			if id != "n-1" || recipientID != "user-1" {
				t.Fatalf("unexpected delete args: %s %s", id, recipientID)
			}
			return nil
		},
	}

	api := &api{notificationsSvc: &service.NotificationsService{Store: store}}

	req := authedRequest(http.MethodDelete, "/v1/notifications/n-1", "", domain.User{ID: "user-1"})
	req.SetPathValue("id", "n-1")
	rr := httptest.NewRecorder()
	api.handleNotificationsDelete(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("unexpected status: %d", rr.Code)
	}

	// Someone else's record reads as not found.
	store.deleteFunc = func(_ context.Context, _, _ string) error { return domain.ErrNotFound }
	req = authedRequest(http.MethodDelete, "/v1/notifications/n-1", "", domain.User{ID: "user-2"})
	req.SetPathValue("id", "n-1")
	rr = httptest.NewRecorder()
	api.handleNotificationsDelete(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
}

func TestNotificationsListEnvelope(t *testing.T) {
	store := &stubNotificationsAPIStore{
		t: t,
		listFunc: func(_ context.Context, recipientID string, limit int) ([]domain.Notification, error) {
			if recipientID != "user-1" {
				t.Fatalf("unexpected recipient: %s", recipientID)
			}
			if limit != 10 {
				t.Fatalf("unexpected limit: %d", limit)
			}
			return []domain.Notification{{ID: "n-1", Kind: domain.NotificationFriendRequest, RecipientID: recipientID}}, nil
		},
	}

	api := &api{notificationsSvc: &service.NotificationsService{Store: store}}

	rr := httptest.NewRecorder()
	api.handleNotificationsList(rr, authedRequest(http.MethodGet, "/v1/notifications?limit=10", "", domain.User{ID: "user-1"}))

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}

	var got struct {
		Notifications []domain.Notification `json:"notifications"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(got.Notifications) != 1 || got.Notifications[0].ID != "n-1" {
		t.Fatalf("unexpected notifications: %#v", got.Notifications)
	}
}

func TestNotificationsUnreadCount(t *testing.T) {
	store := &stubNotificationsAPIStore{
		t: t,
		unreadCountFunc: func(_ context.Context, recipientID string) (int, error) {
			return 4, nil
		},
	}

	api := &api{notificationsSvc: &service.NotificationsService{Store: store}}

	rr := httptest.NewRecorder()
	api.handleNotificationsUnreadCount(rr, authedRequest(http.MethodGet, "/v1/notifications/unread-count", "", domain.User{ID: "user-1"}))

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	var got map[string]int
	if err := json.NewDecoder(rr.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got["unread"] != 4 {
		t.Fatalf("unexpected unread count: %d", got["unread"])
	}
}

type stubTokenUsers struct {
	setPushTokenFunc func(context.Context, string, string) error
}

func (s *stubTokenUsers) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	return domain.User{ID: id}, nil
}

func (s *stubTokenUsers) SetPushToken(ctx context.Context, userID, token string) error {
	if s.setPushTokenFunc != nil {
		return s.setPushTokenFunc(ctx, userID, token)
	}
	return nil
}

func TestNotificationsTokenUpsertAndDelete(t *testing.T) {
	var gotUser, gotToken string
	users := &stubTokenUsers{
		setPushTokenFunc: func(_ context.Context, userID, token string) error {
			gotUser, gotToken = userID, token
			return nil
		},
	}

	api := &api{notificationsSvc: &service.NotificationsService{Users: users}}

	rr := httptest.NewRecorder()
	api.handleNotificationsTokenUpsert(rr, authedRequest(http.MethodPut, "/v1/notifications/token", `{"token":"fcm-abc"}`, domain.User{ID: "user-1"}))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	if gotUser != "user-1" || gotToken != "fcm-abc" {
		t.Fatalf("unexpected token write: %s %s", gotUser, gotToken)
	}

	rr = httptest.NewRecorder()
	api.handleNotificationsTokenDelete(rr, authedRequest(http.MethodDelete, "/v1/notifications/token", "", domain.User{ID: "user-1"}))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	if gotToken != "" {
		t.Fatalf("expected token cleared, got %q", gotToken)
	}
}

func TestNotificationsTokenUpsertEmptyRejected(t *testing.T) {
	api := &api{notificationsSvc: &service.NotificationsService{Users: &stubTokenUsers{}}}

	rr := httptest.NewRecorder()
	api.handleNotificationsTokenUpsert(rr, authedRequest(http.MethodPut, "/v1/notifications/token", `{"token":"  "}`, domain.User{ID: "user-1"}))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
}
