package middleware

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"

	apiContext "pipesync/internal/api/context"
	"pipesync/internal/engine/security"
	"pipesync/internal/pkg/errors"
	"pipesync/internal/platform/auth"
)

// Gate authorizes access to the management endpoints. Standard routes need a
// local-environment bypass or a valid dashboard session. The webhook health
// route additionally accepts a caller that passes webhook verification, so
// the platform itself can probe the endpoint without a human session.
type Gate struct {
	sessionSvc  *auth.SessionService
	policy      security.Policy
	environment string
}

func NewGate(sessionSvc *auth.SessionService, policy security.Policy, environment string) *Gate {
	return &Gate{sessionSvc: sessionSvc, policy: policy, environment: environment}
}

// Standard guards human-facing management routes.
func (g *Gate) Standard(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.environment == "local" {
			next(w, r)
			return
		}

		claims, ok := g.sessionClaims(r)
		if !ok {
			errors.WriteError(w, http.StatusForbidden, errors.ErrCodeForbidden, "Dashboard access denied", nil)
			return
		}

		ctx := context.WithValue(r.Context(), apiContext.Claims, claims)
		next(w, r.WithContext(ctx))
	}
}

// WebhookHealth guards the health endpoint with the dual-path rule: an
// authorized human session or a cryptographically verified webhook caller
// both pass, short-circuiting on the first success.
func (g *Gate) WebhookHealth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.environment == "local" {
			next(w, r)
			return
		}

		if claims, ok := g.sessionClaims(r); ok {
			ctx := context.WithValue(r.Context(), apiContext.Claims, claims)
			next(w, r.WithContext(ctx))
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			errors.WriteError(w, http.StatusForbidden, errors.ErrCodeForbidden, "Health access denied", nil)
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		// With zero sub-policies enabled the verifier passes everything,
		// which would leave health open. Require at least one enabled
		// sub-policy for the webhook-caller path.
		if g.policy.Enabled() && g.policy.Verify(r, body) == nil {
			next(w, r)
			return
		}

		errors.WriteError(w, http.StatusForbidden, errors.ErrCodeForbidden, "Health access denied", nil)
	}
}

func (g *Gate) sessionClaims(r *http.Request) (*auth.Claims, bool) {
	if g.sessionSvc == nil {
		return nil, false
	}

	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return nil, false
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return nil, false
	}

	claims, err := g.sessionSvc.ValidateToken(parts[1])
	if err != nil {
		return nil, false
	}
	return claims, true
}
