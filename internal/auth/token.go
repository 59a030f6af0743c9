package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/marcuspat/devxplatform/internal/users"
)

// Claims carries the identity encoded in an access token.
type Claims struct {
	UserID   uuid.UUID
	Email    string
	Username string
}

// TokenManager issues and verifies HS256 access tokens.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenManager constructs a TokenManager.
func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	return &TokenManager{
		secret: []byte(secret),
		ttl:    ttl,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// TTL returns the configured token lifetime.
func (tm *TokenManager) TTL() time.Duration {
	return tm.ttl
}

// Issue creates a signed access token for the user.
func (tm *TokenManager) Issue(user *users.User) (string, error) {
	now := tm.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":      user.ID.String(),
		"email":    user.Email,
		"username": user.Username,
		"iat":      now.Unix(),
		"exp":      now.Add(tm.ttl).Unix(),
	})
	return token.SignedString(tm.secret)
}

// Parse verifies the token signature and expiry and extracts the claims.
func (tm *TokenManager) Parse(tokenStr string) (*Claims, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return tm.secret, nil
	}, jwt.WithTimeFunc(tm.now))
	if err != nil || !token.Valid {
		return nil, errors.New("invalid token")
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("invalid token claims")
	}
	sub, _ := mapClaims["sub"].(string)
	userID, err := uuid.Parse(sub)
	if err != nil {
		return nil, errors.New("invalid subject claim")
	}
	email, _ := mapClaims["email"].(string)
	username, _ := mapClaims["username"].(string)

	return &Claims{UserID: userID, Email: email, Username: username}, nil
}
