package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"pipesync/internal/platform/config"
	"pipesync/internal/platform/models"
	pkgerrors "pipesync/internal/pkg/errors"
)

var errMissingAccessToken = errors.New("token response missing access_token")

func statusError(code int) error {
	return fmt.Errorf("provider returned HTTP %d", code)
}

// Provider is the outbound side of the token lifecycle, implemented by Client
// against the real endpoints and by fakes in tests.
type Provider interface {
	ExchangeCode(ctx context.Context, code string) (*TokenResponse, error)
	RefreshToken(ctx context.Context, refreshToken string) (*TokenResponse, error)
	TestConnection(ctx context.Context, accessToken string) (*ConnectionInfo, error)
}

// TokenStore is the pluggable credential backend.
type TokenStore interface {
	Get() (*models.OAuthToken, error)
	Save(*models.OAuthToken) error
	Delete() error
}

// ConnectionResult mirrors what the status view shows: whether a lightweight
// authenticated call succeeded and as whom.
type ConnectionResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	User    string `json:"user,omitempty"`
	Company string `json:"company,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Status is the externally visible lifecycle state.
type Status struct {
	Configured    bool  `json:"configured"`
	Authenticated bool  `json:"authenticated"`
	NeedsRefresh  bool  `json:"needs_refresh,omitempty"`
	ExpiresAt     int64 `json:"expires_at,omitempty"`
}

// How many extra attempts a refresh gets when the provider is unreachable.
const refreshRetries = 2

// Manager owns the access/refresh token pair: obtains it via code exchange,
// hands out the current token, refreshes it, and clears it on disconnect.
// Refreshes are serialized; providers rotate the refresh token on use, so two
// concurrent refreshes would invalidate each other.
type Manager struct {
	cfg      config.OAuthConfig
	provider Provider
	store    TokenStore

	refreshMu sync.Mutex
	now       func() time.Time
	sleep     func(time.Duration)
}

func NewManager(cfg config.OAuthConfig, provider Provider, store TokenStore) *Manager {
	return &Manager{
		cfg:      cfg,
		provider: provider,
		store:    store,
		now:      time.Now,
		sleep:    time.Sleep,
	}
}

// AuthorizationURL builds the provider consent URL. The flow cannot start
// until client id, secret and redirect URL are all configured.
func (m *Manager) AuthorizationURL(state string, scopes []string) (string, error) {
	if !m.cfg.Configured() {
		return "", &pkgerrors.ConfigError{Reason: "oauth client_id, client_secret and redirect_url must be configured"}
	}

	params := url.Values{
		"client_id":     {m.cfg.ClientID},
		"redirect_uri":  {m.cfg.RedirectURL},
		"response_type": {"code"},
		"state":         {state},
	}
	if len(scopes) > 0 {
		params.Set("scope", strings.Join(scopes, " "))
	}
	return m.cfg.AuthURL + "?" + params.Encode(), nil
}

// ExchangeCode trades an authorization code for a token pair and stores it.
// On failure nothing changes and the error is surfaced, never retried.
func (m *Manager) ExchangeCode(ctx context.Context, code string) (*models.OAuthToken, error) {
	if !m.cfg.Configured() {
		return nil, &pkgerrors.ConfigError{Reason: "oauth client_id, client_secret and redirect_url must be configured"}
	}

	resp, err := m.provider.ExchangeCode(ctx, code)
	if err != nil {
		return nil, err
	}

	token := m.tokenFromResponse(resp, nil)
	if err := m.store.Save(token); err != nil {
		return nil, &pkgerrors.TokenError{Op: "store token", Err: err}
	}

	log.Info().Int64("expires_at", token.ExpiresAt).Msg("oauth token obtained")
	return token, nil
}

// CurrentToken returns the stored token, or nil when disconnected. A token
// past its expiry is still returned; callers needing a guaranteed-valid token
// must call Refresh first.
func (m *Manager) CurrentToken() (*models.OAuthToken, error) {
	return m.store.Get()
}

// ValidToken returns a token that is safe to use for API calls, refreshing
// first if the stored one has expired.
func (m *Manager) ValidToken(ctx context.Context) (*models.OAuthToken, error) {
	token, err := m.store.Get()
	if err != nil {
		return nil, err
	}
	if token == nil {
		return nil, &pkgerrors.TokenError{Op: "current token", Err: errors.New("not connected")}
	}
	if !token.NeedsRefresh(m.now()) {
		return token, nil
	}
	return m.Refresh(ctx)
}

// Refresh exchanges the refresh token for a new access token. Transient
// provider failures are retried a bounded number of times. On final failure
// the previous token stays stored for inspection, but the caller must treat
// it as invalid for API calls.
func (m *Manager) Refresh(ctx context.Context) (*models.OAuthToken, error) {
	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()

	token, err := m.store.Get()
	if err != nil {
		return nil, err
	}
	if token == nil {
		return nil, &pkgerrors.TokenError{Op: "refresh", Err: errors.New("no token to refresh")}
	}
	// Another caller may have refreshed while we waited for the lock.
	if !token.NeedsRefresh(m.now()) {
		return token, nil
	}

	var resp *TokenResponse
	for attempt := 0; ; attempt++ {
		resp, err = m.provider.RefreshToken(ctx, token.RefreshToken)
		if err == nil {
			break
		}

		var tokenErr *pkgerrors.TokenError
		if !errors.As(err, &tokenErr) || !tokenErr.Transient || attempt >= refreshRetries {
			log.Error().Err(err).Int("attempt", attempt).Msg("token refresh failed")
			return nil, err
		}
		m.sleep(time.Duration(attempt+1) * 500 * time.Millisecond)
	}

	refreshed := m.tokenFromResponse(resp, token)
	if err := m.store.Save(refreshed); err != nil {
		return nil, &pkgerrors.TokenError{Op: "store refreshed token", Err: err}
	}

	log.Info().Int64("expires_at", refreshed.ExpiresAt).Msg("oauth token refreshed")
	return refreshed, nil
}

// Disconnect clears the stored token. Disconnecting twice is not an error.
func (m *Manager) Disconnect() error {
	if err := m.store.Delete(); err != nil {
		return &pkgerrors.TokenError{Op: "disconnect", Err: err}
	}
	log.Info().Msg("oauth token cleared")
	return nil
}

// TestConnection verifies the stored token against the provider.
func (m *Manager) TestConnection(ctx context.Context) ConnectionResult {
	token, err := m.store.Get()
	if err != nil {
		return ConnectionResult{Success: false, Message: "failed to load token", Error: err.Error()}
	}
	if token == nil {
		return ConnectionResult{Success: false, Message: "not connected"}
	}

	info, err := m.provider.TestConnection(ctx, token.AccessToken)
	if err != nil {
		return ConnectionResult{Success: false, Message: "connection test failed", Error: err.Error()}
	}
	return ConnectionResult{
		Success: true,
		Message: "connected",
		User:    info.User,
		Company: info.Company,
	}
}

// CompleteCallback runs the full callback flow: exchange the code, store the
// token, then prove it works. A token that fails its own connection test is
// cleared again rather than left stored, so the status view never claims an
// authenticated state that every API call would contradict.
func (m *Manager) CompleteCallback(ctx context.Context, code string) (ConnectionResult, error) {
	if _, err := m.ExchangeCode(ctx, code); err != nil {
		return ConnectionResult{Success: false, Message: "code exchange failed", Error: err.Error()}, err
	}

	result := m.TestConnection(ctx)
	if !result.Success {
		if err := m.store.Delete(); err != nil {
			log.Error().Err(err).Msg("failed to roll back unusable token")
		}
		return result, &pkgerrors.TokenError{Op: "callback", Err: errors.New(result.Error)}
	}
	return result, nil
}

// Status reports the lifecycle state for the status view.
func (m *Manager) Status() (Status, error) {
	s := Status{Configured: m.cfg.Configured()}
	if !s.Configured {
		return s, nil
	}

	token, err := m.store.Get()
	if err != nil {
		return s, err
	}
	if token == nil {
		return s, nil
	}

	s.Authenticated = true
	s.ExpiresAt = token.ExpiresAt
	s.NeedsRefresh = token.NeedsRefresh(m.now())
	return s, nil
}

func (m *Manager) tokenFromResponse(resp *TokenResponse, previous *models.OAuthToken) *models.OAuthToken {
	now := m.now()
	token := &models.OAuthToken{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    now.Add(time.Duration(resp.ExpiresIn) * time.Second).Unix(),
		ObtainedAt:   now.Unix(),
	}
	// Providers may omit the refresh token when it has not rotated.
	if token.RefreshToken == "" && previous != nil {
		token.RefreshToken = previous.RefreshToken
	}
	return token
}
