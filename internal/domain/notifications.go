package domain

import "time"

type NotificationKind string

const (
	NotificationFriendRequest  NotificationKind = "friend_request"
	NotificationFriendAccepted NotificationKind = "friend_accepted"
	NotificationEventInvite    NotificationKind = "event_invite"
	NotificationRSVPChanged    NotificationKind = "rsvp_changed"
)

// Notification is an inbox record. Append-only except for the one-directional
// unread -> read transition.
type Notification struct {
	ID           string           `json:"id"`
	Kind         NotificationKind `json:"kind"`
	RecipientID  string           `json:"recipient_id"`
	SenderID     string           `json:"sender_id"`
	ReadyCheckID string           `json:"readycheck_id,omitempty"`
	Message      string           `json:"message"`
	Read         bool             `json:"read"`
	CreatedAt    time.Time        `json:"created_at"`
}
