package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/inspecto-app/inspecto/internal/pkg/env"
)

const issuer = "inspecto"

// ErrInvalidToken covers missing, malformed, expired and wrongly signed tokens.
var ErrInvalidToken = errors.New("auth: invalid token")

// Claims identify the user, their tenant and role.
type Claims struct {
	UserID   uint   `json:"uid"`
	TenantID uint   `json:"tid"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Secret returns the signing secret from JWT_SECRET.
func Secret() []byte {
	return []byte(env.GetEnv("JWT_SECRET", ""))
}

// IssueToken signs an HS256 token valid for ttl.
func IssueToken(secret []byte, userID, tenantID uint, role string, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("auth: JWT_SECRET is not configured")
	}
	now := time.Now()
	claims := Claims{
		UserID:   userID,
		TenantID: tenantID,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   fmt.Sprint(userID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// ParseToken validates a token string and returns its claims.
func ParseToken(secret []byte, tokenString string) (*Claims, error) {
	tokenString = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(tokenString), "Bearer "))
	if tokenString == "" || len(secret) == 0 {
		return nil, ErrInvalidToken
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.UserID == 0 || claims.TenantID == 0 {
		return nil, fmt.Errorf("%w: missing user or tenant", ErrInvalidToken)
	}
	return claims, nil
}
