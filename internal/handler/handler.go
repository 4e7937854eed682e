package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"notemv-server/internal/domain"
	"notemv-server/internal/middleware"
	"notemv-server/internal/service"
	"notemv-server/internal/session"
	"notemv-server/pkg/hash"
	"notemv-server/pkg/response"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// IdentityResolver turns the authenticated user id into the identity used
// for access checks and presence.
type IdentityResolver interface {
	Identity(ctx context.Context, id string) (domain.Identity, error)
}

// decode reads a JSON body into v and runs struct validation on it.
func decode(w http.ResponseWriter, r *http.Request, validate *validator.Validate, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		response.BadRequest(w, "Invalid request body")
		return false
	}
	if err := validate.Struct(v); err != nil {
		response.BadRequest(w, err.Error())
		return false
	}
	return true
}

func currentIdentity(w http.ResponseWriter, r *http.Request, users IdentityResolver) (domain.Identity, bool) {
	userID := middleware.GetUserID(r)
	if userID == "" {
		response.Unauthorized(w, "Unauthorized")
		return domain.Identity{}, false
	}

	who, err := users.Identity(r.Context(), userID)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			response.Unauthorized(w, "Unknown user")
			return domain.Identity{}, false
		}
		writeError(w, zerolog.Ctx(r.Context()), err)
		return domain.Identity{}, false
	}
	return who, true
}

// statusFor maps service and session errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrAccessDenied),
		errors.Is(err, service.ErrOwnerRequired),
		errors.Is(err, session.ErrReadOnly):
		return http.StatusForbidden
	case errors.Is(err, service.ErrConfirmationRequired),
		errors.Is(err, service.ErrInvalidCollaborator),
		errors.Is(err, service.ErrInvalidFolder),
		errors.Is(err, session.ErrTitleRequired),
		errors.Is(err, session.ErrInvalidField),
		errors.Is(err, hash.ErrPasswordTooShort),
		errors.Is(err, hash.ErrPasswordTooLong):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrUserExists),
		errors.Is(err, service.ErrNotTrashed):
		return http.StatusConflict
	case errors.Is(err, service.ErrUploadsDisabled):
		return http.StatusServiceUnavailable
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// writeError writes err with its mapped status. Internal errors are logged
// and hidden from the client.
func writeError(w http.ResponseWriter, logger *zerolog.Logger, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error().Err(err).Msg("request failed")
		response.InternalError(w, "Internal server error")
		return
	}
	response.Error(w, status, err.Error())
}
