package host

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/goteamwork/roomsync/internal/model"
)

const tokenExpiry = 24 * time.Hour

// ErrInvalidToken covers missing, malformed and expired bearer tokens.
var ErrInvalidToken = errors.New("invalid token")

// tokenClaims carries the authenticated user id inside HMAC tokens.
type tokenClaims struct {
	UserID string `json:"uid"`
	jwt.RegisteredClaims
}

func generateSecret() ([]byte, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	return []byte(hex.EncodeToString(buf)), nil
}

func (c *Core) issueToken(userID string) (string, error) {
	claims := tokenClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(tokenExpiry)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(c.jwtSecret)
}

// AuthenticateToken resolves a bearer token to the user it was issued
// for. Users deleted since issuance fail authentication.
func (c *Core) AuthenticateToken(tokenString string) (*model.User, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return nil, ErrInvalidToken
	}

	claims := &tokenClaims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return c.jwtSecret, nil
	})
	if err != nil || parsed == nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}

	c.mu.RLock()
	user, ok := c.users[claims.UserID]
	c.mu.RUnlock()
	if !ok {
		return nil, ErrInvalidToken
	}
	return user, nil
}
