package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcuspat/devxplatform/internal/users"
)

func testUser() *users.User {
	return &users.User{
		ID:       uuid.New(),
		Email:    "dev@example.com",
		Username: "dev",
		IsActive: true,
	}
}

func TestTokenManagerRoundTrip(t *testing.T) {
	tm := NewTokenManager("test-secret", 30*time.Minute)
	user := testUser()

	token, err := tm.Issue(user)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := tm.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, user.Email, claims.Email)
	assert.Equal(t, user.Username, claims.Username)
}

func TestTokenManagerRejectsWrongSecret(t *testing.T) {
	issuer := NewTokenManager("secret-a", time.Minute)
	verifier := NewTokenManager("secret-b", time.Minute)

	token, err := issuer.Issue(testUser())
	require.NoError(t, err)

	_, err = verifier.Parse(token)
	require.Error(t, err)
}

func TestTokenManagerRejectsExpired(t *testing.T) {
	tm := NewTokenManager("test-secret", time.Minute)
	issued := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	tm.now = func() time.Time { return issued }

	token, err := tm.Issue(testUser())
	require.NoError(t, err)

	tm.now = func() time.Time { return issued.Add(2 * time.Minute) }
	_, err = tm.Parse(token)
	require.Error(t, err)
}

func TestTokenManagerRejectsGarbage(t *testing.T) {
	tm := NewTokenManager("test-secret", time.Minute)
	for _, token := range []string{"", "not-a-jwt", "a.b.c"} {
		_, err := tm.Parse(token)
		require.Error(t, err, "token %q", token)
	}
}

func TestTokenManagerRejectsUnsignedToken(t *testing.T) {
	tm := NewTokenManager("test-secret", time.Minute)
	// alg=none with an empty signature segment.
	unsigned := "eyJhbGciOiJub25lIiwidHlwIjoiSldUIn0.eyJzdWIiOiJ4In0."
	_, err := tm.Parse(unsigned)
	require.Error(t, err)
}
