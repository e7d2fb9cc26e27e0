package handlers

import (
	"encoding/json"
	"net/http"

	"pipesync/internal/pkg/errors"
	"pipesync/internal/platform/auth"
	"pipesync/internal/platform/config"
)

type AuthHandler struct {
	users      []config.UserConfig
	sessionSvc *auth.SessionService
}

func NewAuthHandler(users []config.UserConfig, sessionSvc *auth.SessionService) *AuthHandler {
	return &AuthHandler{users: users, sessionSvc: sessionSvc}
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	SessionToken string `json:"session_token"`
}

// Login verifies a configured dashboard user and issues a session token for
// the management endpoints.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidFormat, "Invalid request body", nil)
		return
	}

	if !auth.VerifyUser(h.users, req.Username, req.Password) {
		errors.WriteError(w, http.StatusUnauthorized, errors.ErrCodeUnauthorized, "Invalid credentials", nil)
		return
	}

	token, err := h.sessionSvc.GenerateSessionToken(req.Username)
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to issue session token", nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(LoginResponse{SessionToken: token})
}
