package domain

import "time"

// RSVP is a user's response to a ReadyCheck. A user with no ledger entry is
// implicitly pending.
type RSVP string

const (
	RSVPPending   RSVP = "pending"
	RSVPAccepted  RSVP = "accepted"
	RSVPTentative RSVP = "tentative"
	RSVPDeclined  RSVP = "declined"
)

func ParseRSVP(s string) (RSVP, bool) {
	switch RSVP(s) {
	case RSVPPending, RSVPAccepted, RSVPTentative, RSVPDeclined:
		return RSVP(s), true
	}
	return "", false
}

type ReadyCheck struct {
	ID          string
	OwnerID     string
	Title       string
	Timing      time.Time
	Description string
	Invitees    []string
	// RSVPs maps user id to response. Keys are always the owner or an
	// invitee; last write wins, no history.
	RSVPs     map[string]RSVP
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (rc ReadyCheck) IsInvited(userID string) bool {
	if userID == rc.OwnerID {
		return true
	}
	for _, id := range rc.Invitees {
		if id == userID {
			return true
		}
	}
	return false
}

// RSVPGroups partitions {owner} ∪ invitees by response. Pending collects
// explicit pending responses and users with no ledger entry. Order within a
// group follows owner-then-invitee-set order.
type RSVPGroups struct {
	Accepted  []string `json:"accepted"`
	Tentative []string `json:"tentative"`
	Declined  []string `json:"declined"`
	Pending   []string `json:"pending"`
}

func DeriveGroups(rc ReadyCheck) RSVPGroups {
	var g RSVPGroups

	members := make([]string, 0, len(rc.Invitees)+1)
	members = append(members, rc.OwnerID)
	for _, id := range rc.Invitees {
		if id != rc.OwnerID {
			members = append(members, id)
		}
	}

	for _, id := range members {
		switch rc.RSVPs[id] {
		case RSVPAccepted:
			g.Accepted = append(g.Accepted, id)
		case RSVPTentative:
			g.Tentative = append(g.Tentative, id)
		case RSVPDeclined:
			g.Declined = append(g.Declined, id)
		default:
			g.Pending = append(g.Pending, id)
		}
	}
	return g
}

type TimeStatusKind string

const (
	TimeExpired   TimeStatusKind = "expired"
	TimeDue       TimeStatusKind = "due"
	TimeRemaining TimeStatusKind = "remaining"
)

type TimeStatus struct {
	Kind    TimeStatusKind `json:"kind"`
	Days    int            `json:"days,omitempty"`
	Hours   int            `json:"hours,omitempty"`
	Minutes int            `json:"minutes,omitempty"`
	Seconds int            `json:"seconds,omitempty"`
}

// ArchiveAge is how long past its scheduled time a ReadyCheck stays "due"
// before it is considered archived.
const ArchiveAge = 24 * time.Hour

// TimeStatusAt is the canonical classification of a ReadyCheck's timing:
// expired strictly more than ArchiveAge past timing, due once timing has
// passed, remaining otherwise. All listing and countdown code must go through
// this function.
func TimeStatusAt(timing, now time.Time) TimeStatus {
	if now.Sub(timing) > ArchiveAge {
		return TimeStatus{Kind: TimeExpired}
	}
	if !now.Before(timing) {
		return TimeStatus{Kind: TimeDue}
	}

	d := timing.Sub(now)
	return TimeStatus{
		Kind:    TimeRemaining,
		Days:    int(d / (24 * time.Hour)),
		Hours:   int(d/time.Hour) % 24,
		Minutes: int(d/time.Minute) % 60,
		Seconds: int(d/time.Second) % 60,
	}
}

func (rc ReadyCheck) IsArchivedAt(now time.Time) bool {
	return TimeStatusAt(rc.Timing, now).Kind == TimeExpired
}
