package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"docsplatform/internal/auth"
	"docsplatform/internal/models"
	"docsplatform/internal/observability/logging"
	"docsplatform/internal/resource"
	"docsplatform/internal/storage"
)

// ErrInvalidToken is returned by AuthenticateRequest for unknown or expired
// tokens.
var ErrInvalidToken = errors.New("invalid or expired token")

type loginResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      userResponse `json:"user"`
}

// AuthenticateRequest resolves the caller from the Authorization header. It
// returns ok=false when no token was presented.
func (h *Handler) AuthenticateRequest(r *http.Request) (models.User, bool, error) {
	token := auth.TokenFromHeader(r.Header.Get("Authorization"))
	if token == "" {
		return models.User{}, false, nil
	}
	userID, _, ok, err := h.Sessions.Validate(r.Context(), token)
	if err != nil {
		return models.User{}, true, fmt.Errorf("validate token: %w", err)
	}
	if !ok {
		return models.User{}, true, ErrInvalidToken
	}
	user, err := h.Store.GetUser(r.Context(), userID)
	if errors.Is(err, storage.ErrNotFound) {
		return models.User{}, true, ErrInvalidToken
	}
	if err != nil {
		return models.User{}, true, fmt.Errorf("load token user: %w", err)
	}
	return user, true, nil
}

// Login exchanges a username and password for an API token.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	payload, err := loginSchema.Decode(r.Body, false)
	if err != nil {
		resource.WriteError(w, err)
		return
	}
	input := payload.(*loginInput)

	user, err := h.Store.AuthenticateUser(r.Context(), input.Username, input.Password)
	if err != nil {
		if errors.Is(err, storage.ErrInvalidCredentials) || errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrPasswordLoginUnsupported) {
			resource.WriteError(w, resource.NewValidationError(resource.NonFieldErrors, "unable to log in with the provided credentials"))
			return
		}
		logging.WithContext(r.Context(), h.logger).Error("authenticate user", "error", err)
		resource.WriteError(w, err)
		return
	}

	token, expiresAt, err := h.Sessions.Create(r.Context(), user.ID)
	if err != nil {
		logging.WithContext(r.Context(), h.logger).Error("create token", "user_id", user.ID, "error", err)
		resource.WriteError(w, err)
		return
	}
	resource.WriteJSON(w, http.StatusOK, loginResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		User:      userResponse{Username: user.Username},
	})
}

// Logout revokes the presented token.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	token := auth.TokenFromHeader(r.Header.Get("Authorization"))
	if token == "" {
		resource.WriteError(w, resource.ErrNotAuthenticated)
		return
	}
	if err := h.Sessions.Revoke(r.Context(), token); err != nil {
		logging.WithContext(r.Context(), h.logger).Error("revoke token", "error", err)
		resource.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
