package service

import (
	"context"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"time"

	"ReadyCheckserver/internal/domain"
	"ReadyCheckserver/internal/realtime"
)

type ReadyChecksStore interface {
	CreateReadyCheck(ctx context.Context, ownerID, title string, timing time.Time, description string, invitees []string) (domain.ReadyCheck, error)
	GetReadyCheck(ctx context.Context, id string) (domain.ReadyCheck, error)
	UpdateReadyCheck(ctx context.Context, id, title string, timing time.Time, description string, invitees []string, when time.Time) (domain.ReadyCheck, error)
	DeleteReadyCheck(ctx context.Context, id string) error
	SetRSVP(ctx context.Context, id, userID string, response domain.RSVP, when time.Time) (domain.ReadyCheck, error)
	ListOwned(ctx context.Context, ownerID string) ([]domain.ReadyCheck, error)
	ListInvited(ctx context.Context, userID string) ([]domain.ReadyCheck, error)
}

type ReadyCheckUsersStore interface {
	GetUserByID(ctx context.Context, id string) (domain.User, error)
}

// ReadyCheckInput is the client-supplied shape for create and update.
type ReadyCheckInput struct {
	Title       string
	Timing      time.Time
	Description string
	Invitees    []string
}

// ReadyCheckView is the full-state representation sent to clients, both over
// HTTP and as realtime payloads. Clients treat every received view as a
// refresh, never a delta.
type ReadyCheckView struct {
	ID          string                 `json:"id"`
	OwnerID     string                 `json:"owner_id"`
	Title       string                 `json:"title"`
	Timing      time.Time              `json:"timing"`
	Description string                 `json:"description,omitempty"`
	Invitees    []string               `json:"invitees"`
	RSVPs       map[string]domain.RSVP `json:"rsvps"`
	Groups      domain.RSVPGroups      `json:"groups"`
	TimeStatus  domain.TimeStatus      `json:"time_status"`
	Archived    bool                   `json:"archived"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

type ReadyCheckLists struct {
	Active   []ReadyCheckView `json:"active"`
	Archived []ReadyCheckView `json:"archived"`
}

type ReadyChecksService struct {
	Store     ReadyChecksStore
	Users     ReadyCheckUsersStore
	Notifier  Dispatcher
	Broadcast Broadcaster
	Logger    *slog.Logger
	Timeout   time.Duration
	Now       func() time.Time

	locks keyedMutex
}

func (s *ReadyChecksService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *ReadyChecksService) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func (s *ReadyChecksService) view(rc domain.ReadyCheck) ReadyCheckView {
	ts := domain.TimeStatusAt(rc.Timing, s.now())
	return ReadyCheckView{
		ID:          rc.ID,
		OwnerID:     rc.OwnerID,
		Title:       rc.Title,
		Timing:      rc.Timing,
		Description: rc.Description,
		Invitees:    rc.Invitees,
		RSVPs:       rc.RSVPs,
		Groups:      domain.DeriveGroups(rc),
		TimeStatus:  ts,
		Archived:    ts.Kind == domain.TimeExpired,
		CreatedAt:   rc.CreatedAt,
		UpdatedAt:   rc.UpdatedAt,
	}
}

func validateReadyCheckInput(ownerID string, in ReadyCheckInput) (ReadyCheckInput, error) {
	fields := map[string]string{}
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	if in.Title == "" {
		fields["title"] = "required"
	}
	if in.Timing.IsZero() {
		fields["timing"] = "required"
	}
	if len(fields) > 0 {
		return in, domain.NewValidationError(fields)
	}

	// The owner is a member implicitly; dedupe and drop a self-invite.
	seen := make(map[string]struct{}, len(in.Invitees))
	invitees := make([]string, 0, len(in.Invitees))
	for _, id := range in.Invitees {
		if id == ownerID || id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		invitees = append(invitees, id)
	}
	in.Invitees = invitees
	return in, nil
}

// Create persists a new ReadyCheck, notifies each invitee once, and fans the
// full payload out to home plus every invitee's user room.
func (s *ReadyChecksService) Create(ctx context.Context, ownerID string, in ReadyCheckInput) (ReadyCheckView, error) {
	in, err := validateReadyCheckInput(ownerID, in)
	if err != nil {
		return ReadyCheckView{}, err
	}

	ctx, cancel := opContext(ctx, s.Timeout)
	defer cancel()

	rc, err := s.Store.CreateReadyCheck(ctx, ownerID, in.Title, in.Timing, in.Description, in.Invitees)
	if err != nil {
		return ReadyCheckView{}, mapDeadline(err)
	}

	s.notifyInvitees(ctx, rc, rc.Invitees)

	v := s.view(rc)
	s.Broadcast.BroadcastEvent(realtime.HomeRoom, v)
	for _, id := range rc.Invitees {
		s.Broadcast.BroadcastEvent(realtime.UserRoom(id), v)
	}
	return v, nil
}

// Update is owner-only. The invitee set may only grow; each newly added
// invitee gets one invite notification.
func (s *ReadyChecksService) Update(ctx context.Context, ownerID, id string, in ReadyCheckInput) (ReadyCheckView, error) {
	in, err := validateReadyCheckInput(ownerID, in)
	if err != nil {
		return ReadyCheckView{}, err
	}

	ctx, cancel := opContext(ctx, s.Timeout)
	defer cancel()

	prev, err := s.Store.GetReadyCheck(ctx, id)
	if err != nil {
		return ReadyCheckView{}, mapDeadline(err)
	}
	if prev.OwnerID != ownerID {
		return ReadyCheckView{}, domain.ErrForbidden
	}
	for _, existing := range prev.Invitees {
		if !slices.Contains(in.Invitees, existing) {
			return ReadyCheckView{}, domain.NewValidationError(map[string]string{"invitees": "invitees cannot be removed"})
		}
	}

	rc, err := s.Store.UpdateReadyCheck(ctx, id, in.Title, in.Timing, in.Description, in.Invitees, s.now())
	if err != nil {
		return ReadyCheckView{}, mapDeadline(err)
	}

	var added []string
	for _, inv := range rc.Invitees {
		if !slices.Contains(prev.Invitees, inv) {
			added = append(added, inv)
		}
	}
	s.notifyInvitees(ctx, rc, added)

	v := s.view(rc)
	s.Broadcast.BroadcastEvent(realtime.EventRoom(rc.ID), v)
	s.Broadcast.BroadcastEvent(realtime.HomeRoom, v)
	for _, id := range added {
		s.Broadcast.BroadcastEvent(realtime.UserRoom(id), v)
	}
	return v, nil
}

// Delete is owner-only and broadcasts a tombstone so connected clients evict
// their cached copy.
func (s *ReadyChecksService) Delete(ctx context.Context, ownerID, id string) error {
	ctx, cancel := opContext(ctx, s.Timeout)
	defer cancel()

	rc, err := s.Store.GetReadyCheck(ctx, id)
	if err != nil {
		return mapDeadline(err)
	}
	if rc.OwnerID != ownerID {
		return domain.ErrForbidden
	}

	if err := s.Store.DeleteReadyCheck(ctx, id); err != nil {
		return mapDeadline(err)
	}

	s.Broadcast.BroadcastDeleted(realtime.EventRoom(id), id)
	s.Broadcast.BroadcastDeleted(realtime.HomeRoom, id)
	return nil
}

// SetResponse upserts the caller's ledger entry, last write wins. Concurrent
// calls for the same (readycheck, user) pair serialize on a keyed lock;
// different pairs never block each other.
func (s *ReadyChecksService) SetResponse(ctx context.Context, id, userID string, response domain.RSVP) (ReadyCheckView, error) {
	if _, ok := domain.ParseRSVP(string(response)); !ok {
		return ReadyCheckView{}, domain.NewValidationError(map[string]string{"response": "must be pending, accepted, tentative or declined"})
	}

	unlock := s.locks.Lock(id + "|" + userID)
	defer unlock()

	ctx, cancel := opContext(ctx, s.Timeout)
	defer cancel()

	rc, err := s.Store.GetReadyCheck(ctx, id)
	if err != nil {
		return ReadyCheckView{}, mapDeadline(err)
	}
	if !rc.IsInvited(userID) {
		return ReadyCheckView{}, domain.ErrNotInvited
	}

	rc, err = s.Store.SetRSVP(ctx, id, userID, response, s.now())
	if err != nil {
		return ReadyCheckView{}, mapDeadline(err)
	}

	// The owner responding to their own event is not news to the owner.
	if userID != rc.OwnerID {
		responder, err := s.Users.GetUserByID(ctx, userID)
		if err != nil {
			s.logger().Error("readychecks: responder lookup failed", "err", err, "user_id", userID)
		} else {
			s.dispatch(ctx, domain.NotificationRSVPChanged, userID, rc.OwnerID, rc.ID,
				displayName(responder)+" responded "+string(response)+" to "+rc.Title)
		}
	}

	v := s.view(rc)
	s.Broadcast.BroadcastEvent(realtime.EventRoom(rc.ID), v)
	s.Broadcast.BroadcastEvent(realtime.HomeRoom, v)
	return v, nil
}

// Get is member-only. A ReadyCheck is invisible to anyone who is neither the
// owner nor an invitee; the RSVP ledger is not public, and a non-member is
// told "not found" rather than that the id exists.
func (s *ReadyChecksService) Get(ctx context.Context, viewerID, id string) (ReadyCheckView, error) {
	rc, err := s.Store.GetReadyCheck(ctx, id)
	if err != nil {
		return ReadyCheckView{}, err
	}
	if !rc.IsInvited(viewerID) {
		return ReadyCheckView{}, domain.ErrNotFound
	}
	return s.view(rc), nil
}

// ListMine returns the caller's owned and invited ReadyChecks, split into
// active and archived by the shared timing rule. Active sorts soonest first,
// archived most recent first.
func (s *ReadyChecksService) ListMine(ctx context.Context, userID string) (ReadyCheckLists, error) {
	owned, err := s.Store.ListOwned(ctx, userID)
	if err != nil {
		return ReadyCheckLists{}, err
	}
	invited, err := s.Store.ListInvited(ctx, userID)
	if err != nil {
		return ReadyCheckLists{}, err
	}

	now := s.now()
	lists := ReadyCheckLists{Active: []ReadyCheckView{}, Archived: []ReadyCheckView{}}
	for _, rc := range append(owned, invited...) {
		if rc.IsArchivedAt(now) {
			lists.Archived = append(lists.Archived, s.view(rc))
		} else {
			lists.Active = append(lists.Active, s.view(rc))
		}
	}
	sort.Slice(lists.Active, func(i, j int) bool {
		return lists.Active[i].Timing.Before(lists.Active[j].Timing)
	})
	sort.Slice(lists.Archived, func(i, j int) bool {
		return lists.Archived[j].Timing.Before(lists.Archived[i].Timing)
	})
	return lists, nil
}

func (s *ReadyChecksService) notifyInvitees(ctx context.Context, rc domain.ReadyCheck, invitees []string) {
	if len(invitees) == 0 {
		return
	}

	message := "You have been invited to " + rc.Title
	owner, err := s.Users.GetUserByID(ctx, rc.OwnerID)
	if err != nil {
		s.logger().Error("readychecks: owner lookup failed", "err", err, "user_id", rc.OwnerID)
	} else {
		message = displayName(owner) + " invited you to " + rc.Title
	}

	// One record per recipient: read-status is per-recipient.
	for _, id := range invitees {
		s.dispatch(ctx, domain.NotificationEventInvite, rc.OwnerID, id, rc.ID, message)
	}
}

func (s *ReadyChecksService) dispatch(ctx context.Context, kind domain.NotificationKind, senderID, recipientID, readycheckID, message string) {
	if s.Notifier == nil {
		return
	}
	if _, err := s.Notifier.Dispatch(ctx, kind, senderID, recipientID, readycheckID, message); err != nil {
		s.logger().Error("readychecks: dispatch failed", "err", err, "kind", kind, "recipient_id", recipientID)
	}
}
