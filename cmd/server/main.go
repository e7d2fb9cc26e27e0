package main

import (
	"fmt"
	"log"
	"net/http"

	zlog "github.com/rs/zerolog/log"

	"pipesync/internal/api"
	"pipesync/internal/api/handlers"
	"pipesync/internal/api/middleware"
	"pipesync/internal/engine/merge"
	"pipesync/internal/engine/oauth"
	"pipesync/internal/engine/security"
	"pipesync/internal/engine/webhook"
	"pipesync/internal/pkg/logger"
	"pipesync/internal/platform/auth"
	"pipesync/internal/platform/config"
	"pipesync/internal/platform/database"
	"pipesync/internal/platform/repositories"
)

func main() {
	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger.Init(cfg.Logging)

	db, err := database.Open(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	// Repositories
	entityRepo := repositories.NewEntityRepository(db)
	tokenRepo := repositories.NewTokenRepository(db)

	// Webhook pipeline
	policy := security.NewPolicy(cfg.Security)
	notifier := webhook.NewNotifier()
	notifier.Subscribe(func(n webhook.Notification) {
		zlog.Info().
			Str("notification", n.Type).
			Str("object_type", n.ObjectType).
			Str("object_id", n.ObjectID).
			Bool("inferred", n.Inferred).
			Msg("entity change")
	})

	var detector webhook.MergeDetector
	var mergeLookup handlers.MergeLookup
	if cfg.Merge.Enabled {
		d := merge.NewDetector(cfg.Merge.Window)
		detector = d
		mergeLookup = d
	}
	processor := webhook.NewProcessor(entityRepo, notifier, detector)

	// OAuth lifecycle
	oauthClient := oauth.NewClient(cfg.OAuth)
	oauthManager := oauth.NewManager(cfg.OAuth, oauthClient, tokenRepo)

	// Dashboard identity
	sessionSvc := auth.NewSessionService(cfg.Dashboard)
	gate := middleware.NewGate(sessionSvc, policy, cfg.Server.Environment)

	// Handlers
	webhookHandler := handlers.NewWebhookHandler(policy, processor)
	oauthHandler := handlers.NewOAuthHandler(oauthManager)
	entityHandler := handlers.NewEntityHandler(entityRepo, mergeLookup)
	authHandler := handlers.NewAuthHandler(cfg.Dashboard.Users, sessionSvc)

	router := api.NewRouter(&api.Dependencies{
		WebhookHandler: webhookHandler,
		OAuthHandler:   oauthHandler,
		EntityHandler:  entityHandler,
		AuthHandler:    authHandler,
		Gate:           gate,
		WebhookPath:    cfg.Server.WebhookPath,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	log.Printf("Server starting on %s", addr)
	if err := server.ListenAndServe(); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
