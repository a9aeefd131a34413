// Package auth parses the signed bearer token into the request actor.
// Role and permission enforcement happens upstream; this only establishes
// who is acting.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/IamNotATuringMachine/DirectStock-sub002/internal/shared"
)

// Claims is the token payload carrying the actor identity.
type Claims struct {
	UserID int64  `json:"uid"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// IssueToken signs a token for the given actor. Used by tooling and tests;
// production tokens come from the identity provider sharing the secret.
func IssueToken(secret []byte, actor shared.Actor, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		UserID: actor.UserID,
		Role:   actor.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// ParseToken verifies the signature and expiry and returns the actor.
func ParseToken(secret []byte, token string) (shared.Actor, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return shared.Actor{}, err
	}
	if !parsed.Valid || claims.UserID == 0 {
		return shared.Actor{}, jwt.ErrTokenInvalidClaims
	}
	return shared.Actor{UserID: claims.UserID, Role: claims.Role}, nil
}
