package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"ReadyCheckserver/internal/domain"
)

type userResponse struct {
	ID          string    `json:"id"`
	Email       string    `json:"email,omitempty"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	AvatarURL   string    `json:"avatar_url"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func writeUser(w http.ResponseWriter, status int, u domain.User) {
	WriteJSON(w, status, userResponse{
		ID:          u.ID,
		Email:       u.Email,
		Username:    u.Username,
		DisplayName: u.DisplayName,
		AvatarURL:   u.AvatarURL,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	})
}

func (a *api) handleUsersMe(w http.ResponseWriter, r *http.Request) {
	u, ok := CurrentUser(r.Context())
	if !ok {
		WriteDomainError(w, domain.ErrUnauthorized)
		return
	}

	writeUser(w, http.StatusOK, u)
}

func (a *api) handleUsersSearch(w http.ResponseWriter, r *http.Request) {
	u, ok := CurrentUser(r.Context())
	if !ok {
		WriteDomainError(w, domain.ErrUnauthorized)
		return
	}

	q := r.URL.Query().Get("q")
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, _ = strconv.Atoi(raw)
	}

	out, err := a.usersSvc.Search(r.Context(), q, limit, u.ID)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	if out == nil {
		out = []domain.FriendSummary{}
	}
	WriteJSON(w, http.StatusOK, map[string]any{"users": out})
}

type userProfileResponse struct {
	domain.FriendSummary
	RelationshipStatus domain.RelationshipStatus `json:"relationship_status"`
}

// handleUsersGet returns a public profile plus the viewer's relationship to
// it, which drives the add/accept/remove button on the client.
func (a *api) handleUsersGet(w http.ResponseWriter, r *http.Request) {
	u, ok := CurrentUser(r.Context())
	if !ok {
		WriteDomainError(w, domain.ErrUnauthorized)
		return
	}

	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		WriteDomainError(w, domain.NewValidationError(map[string]string{"id": "required"}))
		return
	}

	summaries, err := a.friendsSvc.Hydrate(r.Context(), []string{id})
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	if len(summaries) == 0 {
		WriteDomainError(w, domain.ErrNotFound)
		return
	}

	status, err := a.friendsSvc.Status(r.Context(), u.ID, id)
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, userProfileResponse{
		FriendSummary:      summaries[0],
		RelationshipStatus: status,
	})
}
