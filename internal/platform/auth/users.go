package auth

import (
	"golang.org/x/crypto/bcrypt"
	"pipesync/internal/platform/config"
)

// VerifyUser checks a dashboard login against the configured users. Config
// stores bcrypt hashes, never plaintext passwords.
func VerifyUser(users []config.UserConfig, username, password string) bool {
	for _, user := range users {
		if user.Username != username {
			continue
		}
		return bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) == nil
	}
	return false
}
