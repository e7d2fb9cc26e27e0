package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"pipesync/internal/platform/config"
)

type Claims struct {
	Username string `json:"usr"`
	jwt.RegisteredClaims
}

// SessionService issues and validates dashboard session tokens. This is the
// identity collaborator behind the management endpoints; it has nothing to do
// with the CRM OAuth tokens.
type SessionService struct {
	config config.DashboardConfig
}

func NewSessionService(cfg config.DashboardConfig) *SessionService {
	return &SessionService{config: cfg}
}

func (s *SessionService) GenerateSessionToken(username string) (string, error) {
	claims := Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.config.SessionTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "pipesync",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.config.JWTSecret))
}

func (s *SessionService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(s.config.JWTSecret), nil
	})

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, errors.New("invalid token")
}
