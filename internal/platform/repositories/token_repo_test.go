package repositories

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"pipesync/internal/platform/models"
)

func TestTokenRepository_SingletonLifecycle(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewTokenRepository(db)

	// Nothing stored yet.
	token, err := repo.Get()
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if token != nil {
		t.Fatalf("Expected no token, got %+v", token)
	}

	first := &models.OAuthToken{AccessToken: "at1", RefreshToken: "rt1", ExpiresAt: 100, ObtainedAt: 50}
	if err := repo.Save(first); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// Saving again replaces, never duplicates.
	second := &models.OAuthToken{AccessToken: "at2", RefreshToken: "rt2", ExpiresAt: 200, ObtainedAt: 150}
	if err := repo.Save(second); err != nil {
		t.Fatalf("Second save failed: %v", err)
	}

	var count int
	db.QueryRow(`SELECT COUNT(*) FROM oauth_tokens`).Scan(&count)
	if count != 1 {
		t.Errorf("Expected singleton row, got %d", count)
	}

	token, _ = repo.Get()
	if token.AccessToken != "at2" || token.ExpiresAt != 200 {
		t.Errorf("Expected replaced token, got %+v", token)
	}

	if err := repo.Delete(); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := repo.Delete(); err != nil {
		t.Errorf("Second delete must not error: %v", err)
	}
	token, _ = repo.Get()
	if token != nil {
		t.Error("Expected token cleared")
	}
}

func TestTokenRepository_GetPropagatesDBErrors(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock failed: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT access_token, refresh_token, expires_at, obtained_at FROM oauth_tokens").
		WillReturnError(sqlmock.ErrCancelled)

	repo := NewTokenRepository(db)
	if _, err := repo.Get(); err == nil {
		t.Error("Expected DB error to propagate")
	}
}
