package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const tokenTTL = time.Hour

// Domain errors for auth flows.
var (
	ErrAuthDisabled  = errors.New("auth is not configured")
	ErrInvalidSecret = errors.New("invalid operator secret")
	ErrInvalidToken  = errors.New("invalid token")
)

// AuthService implements single-operator auth: the bcrypt hash of the
// operator secret lives in config, sign-in exchanges the secret for a JWT.
type AuthService struct {
	secretHash string
	signingKey string
}

func NewAuthService(secretHash, signingKey string) *AuthService {
	return &AuthService{secretHash: secretHash, signingKey: signingKey}
}

// GenerateToken validates the operator secret and returns a signed JWT.
func (s *AuthService) GenerateToken(secret string) (string, error) {
	if s.secretHash == "" || s.signingKey == "" {
		return "", ErrAuthDisabled
	}
	if err := bcrypt.CompareHashAndPassword([]byte(s.secretHash), []byte(secret)); err != nil {
		return "", ErrInvalidSecret
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "operator",
		ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
		IssuedAt:  jwt.NewNumericDate(now),
	})
	return token.SignedString([]byte(s.signingKey))
}

// ParseToken validates a bearer token.
func (s *AuthService) ParseToken(accessToken string) error {
	if s.signingKey == "" {
		return ErrAuthDisabled
	}
	token, err := jwt.Parse(accessToken, func(token *jwt.Token) (interface{}, error) {
		// Ensure HMAC signing is used
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.signingKey), nil
	})
	if err != nil {
		return err
	}
	if !token.Valid {
		return ErrInvalidToken
	}
	return nil
}
