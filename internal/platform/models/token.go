package models

import "time"

// OAuthToken is the single live credential pair for this installation.
// Exactly one row exists (id = 1); exchange replaces it, refresh replaces the
// access token and expiry, disconnect deletes it.
type OAuthToken struct {
	AccessToken  string `json:"-"`
	RefreshToken string `json:"-"`
	ExpiresAt    int64  `json:"expires_at"`
	ObtainedAt   int64  `json:"obtained_at"`
}

// NeedsRefresh reports whether the access token has reached its expiry.
// Callers that need a guaranteed-valid token must refresh before use.
func (t *OAuthToken) NeedsRefresh(now time.Time) bool {
	return now.Unix() >= t.ExpiresAt
}
