// Package auth issues and verifies the operator tokens that guard mutating
// API routes.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "proscan"

var (
	ErrNoSecret     = errors.New("auth token secret is empty")
	ErrInvalidToken = errors.New("invalid token")
)

// Claims carried by an operator token.
type Claims struct {
	Operator string `json:"operator"`
	jwt.RegisteredClaims
}

// AuthToken signs and verifies HS256 operator tokens.
type AuthToken struct {
	secretKey []byte
	ttl       time.Duration
	now       func() time.Time
}

func NewAuthToken(secretKey string) *AuthToken {
	return &AuthToken{
		secretKey: []byte(secretKey),
		ttl:       12 * time.Hour,
		now:       time.Now,
	}
}

// WithTTL allows customising the expiration duration.
func (at *AuthToken) WithTTL(ttl time.Duration) *AuthToken {
	if ttl > 0 {
		at.ttl = ttl
	}
	return at
}

// Enabled reports whether a secret is configured.
func (at *AuthToken) Enabled() bool {
	return at != nil && len(at.secretKey) > 0
}

// GenerateToken issues a token for operator.
func (at *AuthToken) GenerateToken(operator string) (string, error) {
	if !at.Enabled() {
		return "", ErrNoSecret
	}
	now := at.now()
	claims := Claims{
		Operator: operator,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   operator,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(at.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(at.secretKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// VerifyToken validates the token and returns the operator it names.
func (at *AuthToken) VerifyToken(tokenString string) (string, error) {
	if !at.Enabled() {
		return "", ErrNoSecret
	}

	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return at.secretKey, nil
	},
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(at.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.Operator == "" {
		return "", ErrInvalidToken
	}
	return claims.Operator, nil
}
