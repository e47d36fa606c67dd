package httpapi

import (
	"net/http"
	"strings"
	"time"

	"ReadyCheckserver/internal/domain"
	"ReadyCheckserver/internal/service"
)

type readycheckRequest struct {
	Title       string    `json:"title"`
	Timing      time.Time `json:"timing"`
	Description string    `json:"description"`
	Invitees    []string  `json:"invitees"`
}

func (req readycheckRequest) input() service.ReadyCheckInput {
	return service.ReadyCheckInput{
		Title:       req.Title,
		Timing:      req.Timing,
		Description: req.Description,
		Invitees:    req.Invitees,
	}
}

func (a *api) handleReadyChecksCreate(w http.ResponseWriter, r *http.Request) {
	u, ok := CurrentUser(r.Context())
	if !ok {
		WriteDomainError(w, domain.ErrUnauthorized)
		return
	}

	var req readycheckRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "bad_json", "invalid json")
		return
	}

	v, err := a.readychecksSvc.Create(r.Context(), u.ID, req.input())
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, v)
}

func (a *api) handleReadyChecksList(w http.ResponseWriter, r *http.Request) {
	u, ok := CurrentUser(r.Context())
	if !ok {
		WriteDomainError(w, domain.ErrUnauthorized)
		return
	}

	lists, err := a.readychecksSvc.ListMine(r.Context(), u.ID)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, lists)
}

func (a *api) handleReadyChecksGet(w http.ResponseWriter, r *http.Request) {
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

	v, err := a.readychecksSvc.Get(r.Context(), u.ID, id)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, v)
}

func (a *api) handleReadyChecksUpdate(w http.ResponseWriter, r *http.Request) {
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

	var req readycheckRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "bad_json", "invalid json")
		return
	}

	v, err := a.readychecksSvc.Update(r.Context(), u.ID, id, req.input())
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, v)
}

func (a *api) handleReadyChecksDelete(w http.ResponseWriter, r *http.Request) {
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

	if err := a.readychecksSvc.Delete(r.Context(), u.ID, id); err != nil {
		WriteDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type rsvpRequest struct {
	Response string `json:"response"`
}

func (a *api) handleReadyChecksRSVP(w http.ResponseWriter, r *http.Request) {
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

	var req rsvpRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "bad_json", "invalid json")
		return
	}

	v, err := a.readychecksSvc.SetResponse(r.Context(), id, u.ID, domain.RSVP(strings.ToLower(strings.TrimSpace(req.Response))))
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, v)
}
