package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"pipesync/internal/engine/oauth"
	pkgerrors "pipesync/internal/pkg/errors"
)

const stateCookie = "pipesync_oauth_state"

type OAuthHandler struct {
	manager *oauth.Manager
}

func NewOAuthHandler(manager *oauth.Manager) *OAuthHandler {
	return &OAuthHandler{manager: manager}
}

// Authorize redirects to the provider consent screen. The state parameter is
// mirrored in a short-lived cookie and checked on callback.
func (h *OAuthHandler) Authorize(w http.ResponseWriter, r *http.Request) {
	state := uuid.New().String()

	authURL, err := h.manager.AuthorizationURL(state, nil)
	if err != nil {
		pkgerrors.WriteError(w, http.StatusInternalServerError, pkgerrors.ErrCodeConfig, err.Error(), nil)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   int((10 * time.Minute).Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, authURL, http.StatusFound)
}

// Callback is hit by the provider redirect, so it carries no dashboard
// authorization. A token that fails its own connection test is rolled back
// inside the manager.
func (h *OAuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	if errParam := r.URL.Query().Get("error"); errParam != "" {
		log.Warn().Str("error", errParam).Msg("oauth consent denied")
		pkgerrors.WriteError(w, http.StatusBadRequest, pkgerrors.ErrCodeToken, "Authorization was denied: "+errParam, nil)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		pkgerrors.WriteError(w, http.StatusBadRequest, pkgerrors.ErrCodeToken, "Missing authorization code", nil)
		return
	}

	cookie, err := r.Cookie(stateCookie)
	if err != nil || cookie.Value == "" || cookie.Value != r.URL.Query().Get("state") {
		pkgerrors.WriteError(w, http.StatusBadRequest, pkgerrors.ErrCodeToken, "State mismatch", nil)
		return
	}
	// One-shot state.
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Value: "", Path: "/", MaxAge: -1})

	result, err := h.manager.CompleteCallback(r.Context(), code)
	if err != nil {
		pkgerrors.WriteError(w, http.StatusBadGateway, pkgerrors.ErrCodeToken, result.Message, result)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(struct {
		Status     string                 `json:"status"`
		Connection oauth.ConnectionResult `json:"connection"`
	}{
		Status:     "connected",
		Connection: result,
	})
}

// Status reports Configured/Authenticated state plus a live connection test
// when a token is stored.
func (h *OAuthHandler) Status(w http.ResponseWriter, r *http.Request) {
	status, err := h.manager.Status()
	if err != nil {
		pkgerrors.WriteError(w, http.StatusInternalServerError, pkgerrors.ErrCodeInternal, "Failed to load connection status", nil)
		return
	}

	response := struct {
		oauth.Status
		Connection *oauth.ConnectionResult `json:"connection,omitempty"`
	}{Status: status}

	if status.Authenticated {
		result := h.manager.TestConnection(r.Context())
		response.Connection = &result
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

func (h *OAuthHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.Disconnect(); err != nil {
		pkgerrors.WriteError(w, http.StatusInternalServerError, pkgerrors.ErrCodeInternal, "Failed to disconnect", nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "disconnected"})
}
