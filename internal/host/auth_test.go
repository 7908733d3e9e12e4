package host

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	c := newTestCore(t)
	user, token, err := c.CreateUser("Alice")
	require.NoError(t, err)

	authed, err := c.AuthenticateToken(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, authed.ID)
}

func TestAuthenticateTokenRejections(t *testing.T) {
	c := newTestCore(t)
	_, token, err := c.CreateUser("Alice")
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"whitespace", "   "},
		{"garbage", "not.a.token"},
		{"truncated", token[:len(token)/2]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.AuthenticateToken(tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestAuthenticateTokenFromOtherHost(t *testing.T) {
	c1 := newTestCore(t)
	c2 := newTestCore(t)

	_, token, err := c1.CreateUser("Alice")
	require.NoError(t, err)

	// each core has its own secret
	_, err = c2.AuthenticateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthenticateTokenForDeletedUser(t *testing.T) {
	c := newTestCore(t)
	user, token, err := c.CreateUser("Alice")
	require.NoError(t, err)

	c.DropUser(user.ID)
	_, err = c.AuthenticateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthenticateTokenRejectsUnsignedAlg(t *testing.T) {
	c := newTestCore(t)
	user, _, err := c.CreateUser("Alice")
	require.NoError(t, err)

	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, tokenClaims{UserID: user.ID})
	token, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = c.AuthenticateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
