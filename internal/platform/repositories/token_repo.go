package repositories

import (
	"database/sql"

	"pipesync/internal/platform/models"
)

// TokenRepository stores the singleton OAuth credential (row id = 1).
type TokenRepository struct {
	db *sql.DB
}

func NewTokenRepository(db *sql.DB) *TokenRepository {
	return &TokenRepository{db: db}
}

// Get returns the stored token, or nil when none is stored.
func (r *TokenRepository) Get() (*models.OAuthToken, error) {
	query := `SELECT access_token, refresh_token, expires_at, obtained_at FROM oauth_tokens WHERE id = 1`
	row := r.db.QueryRow(query)

	var t models.OAuthToken
	err := row.Scan(&t.AccessToken, &t.RefreshToken, &t.ExpiresAt, &t.ObtainedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Save replaces the stored token wholesale.
func (r *TokenRepository) Save(t *models.OAuthToken) error {
	query := `
		INSERT INTO oauth_tokens (id, access_token, refresh_token, expires_at, obtained_at)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(id)
		DO UPDATE SET access_token = excluded.access_token, refresh_token = excluded.refresh_token,
			expires_at = excluded.expires_at, obtained_at = excluded.obtained_at
	`
	_, err := r.db.Exec(query, t.AccessToken, t.RefreshToken, t.ExpiresAt, t.ObtainedAt)
	return err
}

// Delete clears the stored token. Deleting an absent token is not an error.
func (r *TokenRepository) Delete() error {
	_, err := r.db.Exec(`DELETE FROM oauth_tokens WHERE id = 1`)
	return err
}
