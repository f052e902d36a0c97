package utils

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// APIClaims are the claims carried by service tokens issued to the editing
// surface and other internal callers of the /api/v1 group.
type APIClaims struct {
	ClientID string `json:"client_id"`
	jwt.RegisteredClaims
}

// GenerateAPIToken issues a signed service token.
func GenerateAPIToken(clientID, secret string, ttl time.Duration) (string, error) {
	claims := APIClaims{
		ClientID: clientID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseAPIToken validates a service token and returns its claims.
func ParseAPIToken(tokenString, secret string) (*APIClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &APIClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*APIClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}
