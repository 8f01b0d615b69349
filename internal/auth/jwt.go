package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuer = "campusconnect"

var ErrMissingSubject = errors.New("token has no user id")

// Claims is the payload of a session token.
//
// Tokens are issued by the identity service; this service only verifies
// them. UserID is the one field the core needs: it answers "who is the
// caller" for every request and every websocket.
type Claims struct {
	UserID uuid.UUID `json:"user_id"`
	jwt.RegisteredClaims
}

// GenerateToken signs an HS256 token for userID that expires after ttl.
//
// Production tokens come from the identity service. This is used by tests
// and by local tooling that needs a valid bearer token.
func GenerateToken(userID uuid.UUID, secret string, ttl time.Duration) (string, error) {
	now := time.Now()

	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ParseToken validates a token string and returns its claims.
//
// It checks:
//  1. The signing method is HMAC. Tokens signed with "none" or RSA are
//     rejected before the signature is looked at.
//  2. The signature matches secret.
//  3. The token has not expired.
//  4. A user id is present.
func ParseToken(tokenString, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(secret), nil
		},
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	if claims.UserID == uuid.Nil {
		return nil, ErrMissingSubject
	}
	return claims, nil
}

// ResolveCaller turns a raw bearer credential into the caller's user id.
func ResolveCaller(tokenString, secret string) (uuid.UUID, error) {
	claims, err := ParseToken(tokenString, secret)
	if err != nil {
		return uuid.Nil, err
	}
	return claims.UserID, nil
}
