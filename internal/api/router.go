package api

import (
	"context"
	"net/http"

	"github.com/julienschmidt/httprouter"
	apiContext "pipesync/internal/api/context"
	"pipesync/internal/api/handlers"
	"pipesync/internal/api/middleware"
)

type Dependencies struct {
	WebhookHandler *handlers.WebhookHandler
	OAuthHandler   *handlers.OAuthHandler
	EntityHandler  *handlers.EntityHandler
	AuthHandler    *handlers.AuthHandler
	Gate           *middleware.Gate
	WebhookPath    string
}

func NewRouter(deps *Dependencies) *httprouter.Router {
	router := httprouter.New()

	gate := deps.Gate

	// Inbound webhook path: guarded by the verifier inside the handler, not
	// by the dashboard gate.
	router.POST(deps.WebhookPath, wrap(deps.WebhookHandler.Receive))
	router.GET(deps.WebhookPath+"/health",
		chain(deps.WebhookHandler.Health, gate.WebhookHealth))

	// Dashboard login
	router.POST("/dashboard/login", wrap(deps.AuthHandler.Login))

	// OAuth lifecycle. The callback must stay reachable by the provider.
	router.GET("/oauth/authorize",
		chain(deps.OAuthHandler.Authorize, gate.Standard))
	router.GET("/oauth/callback", wrap(deps.OAuthHandler.Callback))
	router.GET("/oauth/status",
		chain(deps.OAuthHandler.Status, gate.Standard))
	router.POST("/oauth/disconnect",
		chain(deps.OAuthHandler.Disconnect, gate.Standard))

	// Mirrored entity views
	router.GET("/entities/:type",
		chain(deps.EntityHandler.List, gate.Standard))
	router.GET("/entities/:type/:id",
		chain(deps.EntityHandler.Get, gate.Standard))

	return router
}

// Helper function to chain middlewares
func chain(handler http.HandlerFunc, middlewares ...func(http.HandlerFunc) http.HandlerFunc) httprouter.Handle {
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}
	return wrap(handler)
}

// Convert http.HandlerFunc to httprouter.Handle
func wrap(handler http.HandlerFunc) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		ctx := context.WithValue(r.Context(), apiContext.Params, ps)
		handler(w, r.WithContext(ctx))
	}
}
