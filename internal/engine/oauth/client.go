package oauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"pipesync/internal/platform/config"
	pkgerrors "pipesync/internal/pkg/errors"
)

// TokenResponse is the provider's token-endpoint reply for both the code
// exchange and the refresh grant.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	TokenType    string `json:"token_type"`
	Scope        string `json:"scope"`
}

// ConnectionInfo is who the token authenticates as, from the provider's
// current-user endpoint.
type ConnectionInfo struct {
	User    string `json:"user"`
	Company string `json:"company"`
}

// Client talks to the Pipedrive OAuth and REST endpoints. Every call is
// bounded by the configured HTTP timeout.
type Client struct {
	cfg  config.OAuthConfig
	http *http.Client
}

func NewClient(cfg config.OAuthConfig) *Client {
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.HTTPTimeout},
	}
}

func (c *Client) ExchangeCode(ctx context.Context, code string) (*TokenResponse, error) {
	form := url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {code},
		"redirect_uri": {c.cfg.RedirectURL},
	}
	return c.tokenRequest(ctx, "exchange", form)
}

func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	}
	return c.tokenRequest(ctx, "refresh", form)
}

func (c *Client) tokenRequest(ctx context.Context, op string, form url.Values) (*TokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &pkgerrors.TokenError{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	// The provider authenticates the app itself with client credentials.
	req.SetBasicAuth(c.cfg.ClientID, c.cfg.ClientSecret)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &pkgerrors.TokenError{Op: op, Err: err, Transient: true}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, &pkgerrors.TokenError{Op: op, Err: statusError(resp.StatusCode), Transient: true}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &pkgerrors.TokenError{Op: op, Err: statusError(resp.StatusCode)}
	}

	var token TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return nil, &pkgerrors.TokenError{Op: op, Err: err}
	}
	if token.AccessToken == "" {
		return nil, &pkgerrors.TokenError{Op: op, Err: errMissingAccessToken}
	}
	return &token, nil
}

// TestConnection makes a lightweight authenticated call to prove the token
// actually works.
func (c *Client) TestConnection(ctx context.Context, accessToken string) (*ConnectionInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.APIBaseURL+"/users/me", nil)
	if err != nil {
		return nil, &pkgerrors.TokenError{Op: "test connection", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &pkgerrors.TokenError{Op: "test connection", Err: err, Transient: true}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &pkgerrors.TokenError{Op: "test connection", Err: statusError(resp.StatusCode)}
	}

	var body struct {
		Success bool `json:"success"`
		Data    struct {
			Name        string `json:"name"`
			CompanyName string `json:"company_name"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, &pkgerrors.TokenError{Op: "test connection", Err: err}
	}

	return &ConnectionInfo{User: body.Data.Name, Company: body.Data.CompanyName}, nil
}
