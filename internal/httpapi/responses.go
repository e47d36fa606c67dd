package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"ReadyCheckserver/internal/domain"
)

type errorEnvelope struct {
	Error apiError `json:"error"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func WriteError(w http.ResponseWriter, status int, code, message string) {
	WriteJSON(w, status, errorEnvelope{Error: apiError{Code: code, Message: message}})
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func WriteDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		WriteError(w, http.StatusBadRequest, "validation_error", "invalid request")
	case errors.Is(err, domain.ErrUsernameTaken):
		WriteError(w, http.StatusConflict, "username_taken", "username already taken")
	case errors.Is(err, domain.ErrEmailTaken):
		WriteError(w, http.StatusConflict, "email_taken", "email already taken")
	case errors.Is(err, domain.ErrInvalidCredentials):
		WriteError(w, http.StatusUnauthorized, "invalid_credentials", "invalid login or password")
	case errors.Is(err, domain.ErrUnauthorized):
		WriteError(w, http.StatusUnauthorized, "unauthorized", "unauthorized")
	case errors.Is(err, domain.ErrForbidden):
		WriteError(w, http.StatusForbidden, "forbidden", "forbidden")
	case errors.Is(err, domain.ErrUserDisabled):
		WriteError(w, http.StatusForbidden, "user_disabled", "user is disabled")
	case errors.Is(err, domain.ErrExternalAccountExists):
		WriteError(w, http.StatusConflict, "external_account_exists", "account already linked")
	case errors.Is(err, domain.ErrAlreadyFriends):
		WriteError(w, http.StatusConflict, "already_friends", "already friends")
	case errors.Is(err, domain.ErrDuplicateRequest):
		WriteError(w, http.StatusConflict, "duplicate_request", "friend request already exists")
	case errors.Is(err, domain.ErrNoSuchRequest):
		WriteError(w, http.StatusNotFound, "no_such_request", "no such friend request")
	case errors.Is(err, domain.ErrNotInvited):
		WriteError(w, http.StatusForbidden, "not_invited", "not invited to this readycheck")
	case errors.Is(err, domain.ErrPartialUpdate):
		// Half-applied two-sided mutation. All sub-steps are idempotent, so
		// the client retries the same call to heal it.
		WriteError(w, http.StatusInternalServerError, "partial_update", "update partially applied, retry")
	case errors.Is(err, domain.ErrTimeout):
		WriteError(w, http.StatusGatewayTimeout, "timeout", "operation timed out, retry")
	case errors.Is(err, domain.ErrNotFound):
		WriteError(w, http.StatusNotFound, "not_found", "not found")
	default:
		WriteError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
