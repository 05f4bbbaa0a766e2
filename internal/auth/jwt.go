// Package auth provides JWT token issuance and validation for the console
// API.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bissquit/crisis-command/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

// Validation errors.
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

// Config holds authenticator configuration.
type Config struct {
	SecretKey           string
	AccessTokenDuration time.Duration
}

// Claims are the JWT claims carried by console access tokens.
type Claims struct {
	Role domain.Role `json:"role"`
	jwt.RegisteredClaims
}

// Authenticator issues and validates HMAC-signed access tokens. It satisfies
// httputil.TokenValidator.
type Authenticator struct {
	config Config
}

// NewAuthenticator creates a new authenticator.
func NewAuthenticator(config Config) *Authenticator {
	if config.AccessTokenDuration == 0 {
		config.AccessTokenDuration = 15 * time.Minute
	}
	return &Authenticator{config: config}
}

// IssueToken creates a signed access token for the given user and role.
func (a *Authenticator) IssueToken(userID string, role domain.Role) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.config.AccessTokenDuration)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(a.config.SecretKey))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and verifies an access token, returning the subject
// and role.
func (a *Authenticator) ValidateToken(_ context.Context, tokenString string) (string, domain.Role, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(a.config.SecretKey), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", "", ErrExpiredToken
		}
		return "", "", ErrInvalidToken
	}
	if !token.Valid {
		return "", "", ErrInvalidToken
	}

	if !claims.Role.IsValid() {
		return "", "", ErrInvalidToken
	}
	return claims.Subject, claims.Role, nil
}
