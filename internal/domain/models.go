package domain

import "time"

type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusDisabled UserStatus = "disabled"
)

type User struct {
	ID          string
	Email       string
	Username    string
	DisplayName string
	AvatarURL   string
	Status      UserStatus
	PushToken   string
	// FriendshipEdge sets: ids only, the persisted form. Friends is the
	// symmetric closure; FriendRequests holds ids of users who requested
	// this user.
	Friends        []string
	FriendRequests []string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	LastLoginAt    *time.Time
}

type UserWithPassword struct {
	User
	PasswordHash string
}

// FriendSummary is the hydrated presentation form of a friendship edge.
type FriendSummary struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

type ExternalAccount struct {
	ID         string
	UserID     string
	Provider   string
	ProviderID string
	Email      string
	CreatedAt  time.Time
}

type Session struct {
	ID        string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
	RevokedAt *time.Time
}
