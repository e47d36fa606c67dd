package service

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"

	"ReadyCheckserver/internal/domain"
	"ReadyCheckserver/internal/realtime"
)

// memUsers is an in-memory FriendUsersStore with the same idempotent set
// semantics as the postgres store.
type memUsers struct {
	mu    sync.Mutex
	users map[string]*domain.User

	failAddFriendFor  string
	failRemoveFor     string
	addFriendAttempts int
}

func newMemUsers(ids ...string) *memUsers {
	m := &memUsers{users: map[string]*domain.User{}}
	for _, id := range ids {
		m.users[id] = &domain.User{ID: id, Username: id, Status: domain.UserStatusActive}
	}
	return m
}

func (m *memUsers) GetUserByID(_ context.Context, id string) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	cp := *u
	cp.Friends = slices.Clone(u.Friends)
	cp.FriendRequests = slices.Clone(u.FriendRequests)
	return cp, nil
}

func (m *memUsers) GetUsersByIDs(ctx context.Context, ids []string) ([]domain.User, error) {
	var out []domain.User
	for _, id := range ids {
		u, err := m.GetUserByID(ctx, id)
		if err != nil {
			continue
		}
		out = append(out, u)
	}
	return out, nil
}

func (m *memUsers) ListRequestedBy(_ context.Context, requesterID string) ([]domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.User
	for _, u := range m.users {
		if slices.Contains(u.FriendRequests, requesterID) {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (m *memUsers) AddFriendRequest(_ context.Context, userID, requesterID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return domain.ErrNotFound
	}
	if !slices.Contains(u.FriendRequests, requesterID) {
		u.FriendRequests = append(u.FriendRequests, requesterID)
	}
	return nil
}

func (m *memUsers) RemoveFriendRequest(_ context.Context, userID, requesterID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return domain.ErrNotFound
	}
	u.FriendRequests = slices.DeleteFunc(u.FriendRequests, func(id string) bool { return id == requesterID })
	return nil
}

func (m *memUsers) AddFriend(_ context.Context, userID, friendID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addFriendAttempts++
	if userID == m.failAddFriendFor {
		return errors.New("write failed")
	}
	u, ok := m.users[userID]
	if !ok {
		return domain.ErrNotFound
	}
	if !slices.Contains(u.Friends, friendID) {
		u.Friends = append(u.Friends, friendID)
	}
	return nil
}

func (m *memUsers) RemoveFriend(_ context.Context, userID, friendID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if userID == m.failRemoveFor {
		return errors.New("write failed")
	}
	u, ok := m.users[userID]
	if !ok {
		return domain.ErrNotFound
	}
	u.Friends = slices.DeleteFunc(u.Friends, func(id string) bool { return id == friendID })
	return nil
}

type dispatchCall struct {
	kind         domain.NotificationKind
	senderID     string
	recipientID  string
	readycheckID string
	message      string
}

type stubDispatcher struct {
	mu    sync.Mutex
	calls []dispatchCall
	err   error
}

func (d *stubDispatcher) Dispatch(_ context.Context, kind domain.NotificationKind, senderID, recipientID, readycheckID, message string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, dispatchCall{kind, senderID, recipientID, readycheckID, message})
	if d.err != nil {
		return "", d.err
	}
	return "notif-1", nil
}

type broadcastCall struct {
	room    string
	payload any
}

type stubBroadcaster struct {
	mu      sync.Mutex
	events  []broadcastCall
	deleted []broadcastCall
}

func (b *stubBroadcaster) BroadcastEvent(room string, payload any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, broadcastCall{room: room, payload: payload})
}

func (b *stubBroadcaster) BroadcastDeleted(room, id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deleted = append(b.deleted, broadcastCall{room: room, payload: id})
}

func (b *stubBroadcaster) eventRooms() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	rooms := make([]string, 0, len(b.events))
	for _, c := range b.events {
		rooms = append(rooms, c.room)
	}
	return rooms
}

func newFriendsService(users *memUsers) (*FriendsService, *stubDispatcher, *stubBroadcaster) {
	d := &stubDispatcher{}
	b := &stubBroadcaster{}
	return &FriendsService{Users: users, Notifier: d, Broadcast: b}, d, b
}

func TestRequestThenAcceptRoundTrip(t *testing.T) {
	users := newMemUsers("alice", "bob")
	svc, dispatcher, _ := newFriendsService(users)

	if err := svc.Request(context.Background(), "alice", "bob"); err != nil {
		t.Fatalf("request: %v", err)
	}

	st, err := svc.Status(context.Background(), "bob", "alice")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st != domain.RelationshipRequestReceived {
		t.Fatalf("bob's status: got %s", st)
	}
	st, _ = svc.Status(context.Background(), "alice", "bob")
	if st != domain.RelationshipPending {
		t.Fatalf("alice's status: got %s", st)
	}

	if err := svc.Accept(context.Background(), "bob", "alice"); err != nil {
		t.Fatalf("accept: %v", err)
	}

	for _, pair := range [][2]string{{"alice", "bob"}, {"bob", "alice"}} {
		st, err := svc.Status(context.Background(), pair[0], pair[1])
		if err != nil {
			t.Fatalf("status %v: %v", pair, err)
		}
		if st != domain.RelationshipFriends {
			t.Fatalf("status %v: got %s", pair, st)
		}
	}

	if len(dispatcher.calls) != 2 {
		t.Fatalf("expected request + accepted notifications, got %d", len(dispatcher.calls))
	}
	if dispatcher.calls[0].kind != domain.NotificationFriendRequest || dispatcher.calls[0].recipientID != "bob" {
		t.Fatalf("unexpected first dispatch: %+v", dispatcher.calls[0])
	}
	if dispatcher.calls[1].kind != domain.NotificationFriendAccepted || dispatcher.calls[1].recipientID != "alice" {
		t.Fatalf("unexpected second dispatch: %+v", dispatcher.calls[1])
	}
}

func TestRequestDuplicateRejected(t *testing.T) {
	users := newMemUsers("alice", "bob")
	svc, _, _ := newFriendsService(users)

	if err := svc.Request(context.Background(), "alice", "bob"); err != nil {
		t.Fatalf("first request: %v", err)
	}
	err := svc.Request(context.Background(), "alice", "bob")
	if !errors.Is(err, domain.ErrDuplicateRequest) {
		t.Fatalf("expected duplicate request, got %v", err)
	}

	bob, _ := users.GetUserByID(context.Background(), "bob")
	if len(bob.FriendRequests) != 1 {
		t.Fatalf("state changed by failed duplicate: %v", bob.FriendRequests)
	}
}

func TestRequestAlreadyFriends(t *testing.T) {
	users := newMemUsers("alice", "bob")
	users.users["alice"].Friends = []string{"bob"}
	users.users["bob"].Friends = []string{"alice"}
	svc, _, _ := newFriendsService(users)

	err := svc.Request(context.Background(), "alice", "bob")
	if !errors.Is(err, domain.ErrAlreadyFriends) {
		t.Fatalf("expected already friends, got %v", err)
	}
}

func TestRequestSelfRejected(t *testing.T) {
	svc, _, _ := newFriendsService(newMemUsers("alice"))

	err := svc.Request(context.Background(), "alice", "alice")
	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRejectThenReRequestSucceeds(t *testing.T) {
	users := newMemUsers("alice", "bob")
	svc, _, _ := newFriendsService(users)

	if err := svc.Request(context.Background(), "alice", "bob"); err != nil {
		t.Fatalf("request: %v", err)
	}
	if err := svc.Reject(context.Background(), "bob", "alice"); err != nil {
		t.Fatalf("reject: %v", err)
	}
	// Rejecting again is a silent no-op.
	if err := svc.Reject(context.Background(), "bob", "alice"); err != nil {
		t.Fatalf("second reject: %v", err)
	}
	if err := svc.Request(context.Background(), "alice", "bob"); err != nil {
		t.Fatalf("re-request after reject: %v", err)
	}
}

func TestAcceptWithoutRequest(t *testing.T) {
	svc, _, _ := newFriendsService(newMemUsers("alice", "bob"))

	err := svc.Accept(context.Background(), "bob", "alice")
	if !errors.Is(err, domain.ErrNoSuchRequest) {
		t.Fatalf("expected no such request, got %v", err)
	}
}

func TestAcceptSecondWriteSurfacesPartialUpdate(t *testing.T) {
	users := newMemUsers("alice", "bob")
	users.users["bob"].FriendRequests = []string{"alice"}
	users.failAddFriendFor = "alice"
	svc, _, _ := newFriendsService(users)

	err := svc.Accept(context.Background(), "bob", "alice")
	if !errors.Is(err, domain.ErrPartialUpdate) {
		t.Fatalf("expected partial update, got %v", err)
	}

	// The first half landed; a retry must heal instead of failing.
	bob, _ := users.GetUserByID(context.Background(), "bob")
	if !slices.Contains(bob.Friends, "alice") {
		t.Fatalf("first half missing after partial failure")
	}

	users.failAddFriendFor = ""
	users.users["bob"].FriendRequests = []string{"alice"}
	if err := svc.Accept(context.Background(), "bob", "alice"); err != nil {
		t.Fatalf("retry after partial: %v", err)
	}
	alice, _ := users.GetUserByID(context.Background(), "alice")
	if !slices.Contains(alice.Friends, "bob") {
		t.Fatalf("retry did not heal asymmetry")
	}
}

func TestRemoveIsSymmetricAndSilent(t *testing.T) {
	users := newMemUsers("alice", "bob")
	users.users["alice"].Friends = []string{"bob"}
	users.users["bob"].Friends = []string{"alice"}
	svc, dispatcher, _ := newFriendsService(users)

	if err := svc.Remove(context.Background(), "alice", "bob"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	// Removing an absent friendship is a no-op.
	if err := svc.Remove(context.Background(), "alice", "bob"); err != nil {
		t.Fatalf("second remove: %v", err)
	}

	alice, _ := users.GetUserByID(context.Background(), "alice")
	bob, _ := users.GetUserByID(context.Background(), "bob")
	if len(alice.Friends) != 0 || len(bob.Friends) != 0 {
		t.Fatalf("friendship not fully removed: %v %v", alice.Friends, bob.Friends)
	}
	if len(dispatcher.calls) != 0 {
		t.Fatalf("unfriend must not notify, got %d dispatches", len(dispatcher.calls))
	}
}

func TestRequestBroadcastsToTargetUserRoom(t *testing.T) {
	users := newMemUsers("alice", "bob")
	svc, _, broadcaster := newFriendsService(users)

	if err := svc.Request(context.Background(), "alice", "bob"); err != nil {
		t.Fatalf("request: %v", err)
	}

	rooms := broadcaster.eventRooms()
	if !slices.Contains(rooms, realtime.UserRoom("bob")) {
		t.Fatalf("expected broadcast to bob's room, got %v", rooms)
	}
}

func TestRequestProceedsToBroadcastWhenDispatchFails(t *testing.T) {
	users := newMemUsers("alice", "bob")
	svc, dispatcher, broadcaster := newFriendsService(users)
	dispatcher.err = errors.New("inbox write failed")

	if err := svc.Request(context.Background(), "alice", "bob"); err != nil {
		t.Fatalf("request should swallow dispatch failure, got %v", err)
	}
	if len(broadcaster.eventRooms()) == 0 {
		t.Fatalf("broadcast skipped after dispatch failure")
	}
}

func TestOverviewHydratesAllSides(t *testing.T) {
	users := newMemUsers("alice", "bob", "carol", "dave")
	users.users["alice"].Friends = []string{"bob"}
	users.users["bob"].Friends = []string{"alice"}
	users.users["alice"].FriendRequests = []string{"carol"}
	users.users["dave"].FriendRequests = []string{"alice"}
	svc, _, _ := newFriendsService(users)

	ov, err := svc.Overview(context.Background(), "alice")
	if err != nil {
		t.Fatalf("overview: %v", err)
	}
	if len(ov.Friends) != 1 || ov.Friends[0].ID != "bob" {
		t.Fatalf("unexpected friends: %+v", ov.Friends)
	}
	if len(ov.Incoming) != 1 || ov.Incoming[0].ID != "carol" {
		t.Fatalf("unexpected incoming: %+v", ov.Incoming)
	}
	if len(ov.Outgoing) != 1 || ov.Outgoing[0].ID != "dave" {
		t.Fatalf("unexpected outgoing: %+v", ov.Outgoing)
	}
}
