package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// ChannelClaims are embedded in the bearer token a channel account-linking
// flow hands to the external platform (e.g. Alexa account linking).
type ChannelClaims struct {
	UserID        string `json:"user_id"`
	IntegrationID string `json:"integration_id"`
	jwt.RegisteredClaims
}

// SignChannelToken issues the account-linking token stored by the channel.
func SignChannelToken(userID, integrationID, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := ChannelClaims{
		UserID:        userID,
		IntegrationID: integrationID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ParseChannelToken verifies the token and returns (userID, integrationID).
func ParseChannelToken(token, secret string) (string, string, error) {
	parsed, err := jwt.ParseWithClaims(token, &ChannelClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(secret), nil
	})
	if err != nil {
		return "", "", err
	}
	claims, ok := parsed.Claims.(*ChannelClaims)
	if !ok || !parsed.Valid {
		return "", "", ErrInvalidToken
	}
	userID := claims.UserID
	if userID == "" {
		userID = claims.Subject
	}
	return userID, claims.IntegrationID, nil
}

// SignUserToken issues the dashboard API token used by the auth middleware.
func SignUserToken(userID string, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ParseUserToken verifies a dashboard API token and returns the user id.
func ParseUserToken(token, secret string) (string, error) {
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(secret), nil
	})
	if err != nil {
		return "", err
	}
	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
