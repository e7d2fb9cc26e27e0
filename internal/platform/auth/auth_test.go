package auth

import (
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"pipesync/internal/platform/config"
)

func TestVerifyUser(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("correct-horse"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt failed: %v", err)
	}
	users := []config.UserConfig{
		{Username: "admin", PasswordHash: string(hash)},
	}

	tests := []struct {
		name     string
		username string
		password string
		expected bool
	}{
		{"Correct credentials", "admin", "correct-horse", true},
		{"Wrong password", "admin", "battery-staple", false},
		{"Unknown user", "ghost", "correct-horse", false},
		{"Empty password", "admin", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := VerifyUser(users, tt.username, tt.password); got != tt.expected {
				t.Errorf("VerifyUser() = %v, expected %v", got, tt.expected)
			}
		})
	}
}

func TestSessionService_RoundTrip(t *testing.T) {
	svc := NewSessionService(config.DashboardConfig{JWTSecret: "secret", SessionTTL: time.Hour})

	token, err := svc.GenerateSessionToken("admin")
	if err != nil {
		t.Fatalf("GenerateSessionToken failed: %v", err)
	}

	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}
	if claims.Username != "admin" {
		t.Errorf("Expected username admin, got %s", claims.Username)
	}
}

func TestSessionService_RejectsWrongSecret(t *testing.T) {
	issuer := NewSessionService(config.DashboardConfig{JWTSecret: "secret-a", SessionTTL: time.Hour})
	validator := NewSessionService(config.DashboardConfig{JWTSecret: "secret-b", SessionTTL: time.Hour})

	token, _ := issuer.GenerateSessionToken("admin")
	if _, err := validator.ValidateToken(token); err == nil {
		t.Error("Expected token signed with another secret to be rejected")
	}
}

func TestSessionService_RejectsExpiredToken(t *testing.T) {
	svc := NewSessionService(config.DashboardConfig{JWTSecret: "secret", SessionTTL: -time.Minute})

	token, _ := svc.GenerateSessionToken("admin")
	if _, err := svc.ValidateToken(token); err == nil {
		t.Error("Expected expired token to be rejected")
	}
}
