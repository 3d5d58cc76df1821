package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vasu1712/buddychat/internal/apperrors"
)

func TestIssueAndVerify(t *testing.T) {
	a, err := NewAuthenticator("secret")
	require.NoError(t, err)

	tok, err := a.Issue("alice", time.Hour)
	require.NoError(t, err)

	uid, err := a.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, "alice", uid)
}

func TestVerifyRejects(t *testing.T) {
	a, _ := NewAuthenticator("secret")
	other, _ := NewAuthenticator("other-secret")

	foreign, err := other.Issue("alice", time.Hour)
	require.NoError(t, err)

	a.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, err := a.Issue("alice", time.Hour)
	require.NoError(t, err)
	a.now = time.Now

	noIssuer, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "alice"}).SignedString([]byte("secret"))
	require.NoError(t, err)

	for name, tok := range map[string]string{
		"empty":     "",
		"garbage":   "not-a-jwt",
		"foreign":   foreign,
		"expired":   expired,
		"no issuer": noIssuer,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := a.Verify(tok)
			assert.ErrorIs(t, err, apperrors.ErrUnauthenticated)
		})
	}
}

func TestContextUser(t *testing.T) {
	_, err := UserID(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrUnauthenticated)

	uid, err := UserID(WithUser(context.Background(), "bob"))
	require.NoError(t, err)
	assert.Equal(t, "bob", uid)
}

func TestNewAuthenticatorNeedsSecret(t *testing.T) {
	_, err := NewAuthenticator("")
	assert.Error(t, err)
}
