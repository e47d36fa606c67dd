package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"ReadyCheckserver/internal/domain"
	"ReadyCheckserver/internal/realtime"
)

type FriendUsersStore interface {
	GetUserByID(ctx context.Context, id string) (domain.User, error)
	GetUsersByIDs(ctx context.Context, ids []string) ([]domain.User, error)
	ListRequestedBy(ctx context.Context, requesterID string) ([]domain.User, error)
	AddFriendRequest(ctx context.Context, userID, requesterID string) error
	RemoveFriendRequest(ctx context.Context, userID, requesterID string) error
	AddFriend(ctx context.Context, userID, friendID string) error
	RemoveFriend(ctx context.Context, userID, friendID string) error
}

// Dispatcher writes a durable inbox record and pushes best-effort.
type Dispatcher interface {
	Dispatch(ctx context.Context, kind domain.NotificationKind, senderID, recipientID, readycheckID, message string) (string, error)
}

// Broadcaster fans a state transition out to a room's live connections.
type Broadcaster interface {
	BroadcastEvent(room string, payload any)
	BroadcastDeleted(room, id string)
}

// FriendEvent is the realtime payload for relationship transitions, delivered
// to the affected user's room.
type FriendEvent struct {
	Kind string               `json:"kind"`
	User domain.FriendSummary `json:"user"`
}

type FriendsService struct {
	Users     FriendUsersStore
	Notifier  Dispatcher
	Broadcast Broadcaster
	Logger    *slog.Logger
	Timeout   time.Duration

	locks keyedMutex
}

func (s *FriendsService) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// Request adds fromID to the target's incoming request set. One-directional:
// the requester's own record is untouched.
func (s *FriendsService) Request(ctx context.Context, fromID, toID string) error {
	if fromID == toID {
		return domain.NewValidationError(map[string]string{"user_id": "cannot friend yourself"})
	}

	unlock := s.locks.Lock(pairKey(fromID, toID))
	defer unlock()

	ctx, cancel := opContext(ctx, s.Timeout)
	defer cancel()

	from, err := s.Users.GetUserByID(ctx, fromID)
	if err != nil {
		return mapDeadline(err)
	}
	target, err := s.Users.GetUserByID(ctx, toID)
	if err != nil {
		return mapDeadline(err)
	}
	if slices.Contains(from.Friends, toID) {
		return domain.ErrAlreadyFriends
	}
	if slices.Contains(target.FriendRequests, fromID) {
		return domain.ErrDuplicateRequest
	}

	if err := s.Users.AddFriendRequest(ctx, toID, fromID); err != nil {
		return mapDeadline(err)
	}

	s.dispatch(ctx, domain.NotificationFriendRequest, fromID, toID, "",
		displayName(from)+" sent you a friend request")
	s.Broadcast.BroadcastEvent(realtime.UserRoom(toID), FriendEvent{Kind: "friend_request", User: summarize(from)})
	return nil
}

// Accept completes the handshake: both request entries are cleared and each
// user lands in the other's friends set. The two-sided write is two idempotent
// single-record updates; if the second fails after the first lands, the error
// wraps ErrPartialUpdate so the caller knows a retry will heal the asymmetry.
func (s *FriendsService) Accept(ctx context.Context, accepterID, requesterID string) error {
	unlock := s.locks.Lock(pairKey(accepterID, requesterID))
	defer unlock()

	ctx, cancel := opContext(ctx, s.Timeout)
	defer cancel()

	accepter, err := s.Users.GetUserByID(ctx, accepterID)
	if err != nil {
		return mapDeadline(err)
	}
	if !slices.Contains(accepter.FriendRequests, requesterID) {
		return domain.ErrNoSuchRequest
	}
	requester, err := s.Users.GetUserByID(ctx, requesterID)
	if err != nil {
		return mapDeadline(err)
	}

	if err := s.Users.RemoveFriendRequest(ctx, accepterID, requesterID); err != nil {
		return mapDeadline(err)
	}
	// Stale reciprocal entry, if both sides requested each other.
	if slices.Contains(requester.FriendRequests, accepterID) {
		if err := s.Users.RemoveFriendRequest(ctx, requesterID, accepterID); err != nil {
			return partial("remove reciprocal request", mapDeadline(err))
		}
	}

	if err := s.Users.AddFriend(ctx, accepterID, requesterID); err != nil {
		return partial("add friend to accepter", mapDeadline(err))
	}
	if err := s.Users.AddFriend(ctx, requesterID, accepterID); err != nil {
		return partial("add friend to requester", mapDeadline(err))
	}

	s.dispatch(ctx, domain.NotificationFriendAccepted, accepterID, requesterID, "",
		displayName(accepter)+" accepted your friend request")
	s.Broadcast.BroadcastEvent(realtime.UserRoom(requesterID), FriendEvent{Kind: "friend_accepted", User: summarize(accepter)})
	s.Broadcast.BroadcastEvent(realtime.UserRoom(accepterID), FriendEvent{Kind: "friend_accepted", User: summarize(requester)})
	return nil
}

// Reject drops the incoming request. Idempotent and silent: no notification,
// no error when the request was never there, and nothing stops the requester
// from asking again later.
func (s *FriendsService) Reject(ctx context.Context, rejecterID, requesterID string) error {
	unlock := s.locks.Lock(pairKey(rejecterID, requesterID))
	defer unlock()

	ctx, cancel := opContext(ctx, s.Timeout)
	defer cancel()

	if err := s.Users.RemoveFriendRequest(ctx, rejecterID, requesterID); err != nil {
		return mapDeadline(err)
	}
	s.Broadcast.BroadcastEvent(realtime.UserRoom(rejecterID), FriendEvent{Kind: "friend_request_cleared", User: domain.FriendSummary{ID: requesterID}})
	return nil
}

// Remove unfriends both directions. Silent by design.
func (s *FriendsService) Remove(ctx context.Context, userID, friendID string) error {
	unlock := s.locks.Lock(pairKey(userID, friendID))
	defer unlock()

	ctx, cancel := opContext(ctx, s.Timeout)
	defer cancel()

	if err := s.Users.RemoveFriend(ctx, userID, friendID); err != nil {
		return mapDeadline(err)
	}
	if err := s.Users.RemoveFriend(ctx, friendID, userID); err != nil {
		return partial("remove friend from counterpart", mapDeadline(err))
	}

	s.Broadcast.BroadcastEvent(realtime.UserRoom(userID), FriendEvent{Kind: "friend_removed", User: domain.FriendSummary{ID: friendID}})
	s.Broadcast.BroadcastEvent(realtime.UserRoom(friendID), FriendEvent{Kind: "friend_removed", User: domain.FriendSummary{ID: userID}})
	return nil
}

// Status derives the viewer's relationship to the target.
func (s *FriendsService) Status(ctx context.Context, viewerID, targetID string) (domain.RelationshipStatus, error) {
	if viewerID == targetID {
		return domain.RelationshipSelf, nil
	}
	viewer, err := s.Users.GetUserByID(ctx, viewerID)
	if err != nil {
		return "", err
	}
	target, err := s.Users.GetUserByID(ctx, targetID)
	if err != nil {
		return "", err
	}
	return domain.RelationshipBetween(viewer, target), nil
}

// Hydrate turns an id set into presentation summaries, preserving input order.
func (s *FriendsService) Hydrate(ctx context.Context, ids []string) ([]domain.FriendSummary, error) {
	if len(ids) == 0 {
		return []domain.FriendSummary{}, nil
	}
	users, err := s.Users.GetUsersByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]domain.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}

	out := make([]domain.FriendSummary, 0, len(ids))
	for _, id := range ids {
		u, ok := byID[id]
		if !ok {
			continue
		}
		out = append(out, summarize(u))
	}
	return out, nil
}

// Overview assembles the hydrated friends list plus incoming and outgoing
// requests for one user. Request entries live on the receiving side only, so
// outgoing is a reverse lookup: every user whose request set contains userID.
func (s *FriendsService) Overview(ctx context.Context, userID string) (domain.FriendsOverview, error) {
	u, err := s.Users.GetUserByID(ctx, userID)
	if err != nil {
		return domain.FriendsOverview{}, err
	}

	friends, err := s.Hydrate(ctx, u.Friends)
	if err != nil {
		return domain.FriendsOverview{}, err
	}
	incoming, err := s.Hydrate(ctx, u.FriendRequests)
	if err != nil {
		return domain.FriendsOverview{}, err
	}

	requested, err := s.Users.ListRequestedBy(ctx, userID)
	if err != nil {
		return domain.FriendsOverview{}, err
	}
	outgoing := make([]domain.FriendSummary, 0, len(requested))
	for _, ru := range requested {
		outgoing = append(outgoing, summarize(ru))
	}

	return domain.FriendsOverview{
		Friends:  friends,
		Incoming: incoming,
		Outgoing: outgoing,
	}, nil
}

func (s *FriendsService) dispatch(ctx context.Context, kind domain.NotificationKind, senderID, recipientID, readycheckID, message string) {
	if s.Notifier == nil {
		return
	}
	if _, err := s.Notifier.Dispatch(ctx, kind, senderID, recipientID, readycheckID, message); err != nil {
		s.logger().Error("friends: dispatch failed", "err", err, "kind", kind, "recipient_id", recipientID)
	}
}

func partial(op string, err error) error {
	if errors.Is(err, domain.ErrTimeout) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, domain.ErrPartialUpdate, err)
}

func displayName(u domain.User) string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Username
}

func summarize(u domain.User) domain.FriendSummary {
	return domain.FriendSummary{
		ID:          u.ID,
		Username:    u.Username,
		DisplayName: u.DisplayName,
		AvatarURL:   u.AvatarURL,
	}
}
