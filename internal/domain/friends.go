package domain

import "slices"

type RelationshipStatus string

const (
	RelationshipSelf            RelationshipStatus = "self"
	RelationshipFriends         RelationshipStatus = "friends"
	RelationshipRequestReceived RelationshipStatus = "requestReceived"
	RelationshipPending         RelationshipStatus = "pending"
	RelationshipNone            RelationshipStatus = "none"
)

// RelationshipBetween derives the viewer's relationship to target. The checks
// run in priority order: an accepted friendship wins over a lingering request
// entry in either direction.
func RelationshipBetween(viewer, target User) RelationshipStatus {
	switch {
	case viewer.ID == target.ID:
		return RelationshipSelf
	case slices.Contains(viewer.Friends, target.ID):
		return RelationshipFriends
	case slices.Contains(viewer.FriendRequests, target.ID):
		return RelationshipRequestReceived
	case slices.Contains(target.FriendRequests, viewer.ID):
		return RelationshipPending
	default:
		return RelationshipNone
	}
}

type FriendsOverview struct {
	Friends  []FriendSummary `json:"friends"`
	Incoming []FriendSummary `json:"incoming_requests"`
	Outgoing []FriendSummary `json:"outgoing_requests"`
}
