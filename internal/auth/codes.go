// Package auth issues and verifies registration codes and applies the
// register/authenticate flow to the user store.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// CodeSubject marks registration codes.
const CodeSubject = "register"

var (
	// ErrMissingSecret is returned when no signing secret is configured.
	ErrMissingSecret = errors.New("cannot sign codes without a secret")
	// ErrInvalidCode is returned for malformed, forged or expired codes.
	ErrInvalidCode = errors.New("invalid registration code")
	// ErrUserMismatch is returned when a code belongs to another user.
	ErrUserMismatch = errors.New("registration code issued for another user")
)

// Claims is the payload of a registration code.
type Claims struct {
	UserID int64 `json:"user_id"`
	jwt.RegisteredClaims
}

// Codes signs registration codes with HS256.
type Codes struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewCodes creates a code issuer. A zero ttl issues codes without expiry.
func NewCodes(secret string, ttl time.Duration) *Codes {
	return &Codes{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue signs a registration code for userID.
func (c *Codes) Issue(userID int64) (string, error) {
	if len(c.secret) == 0 {
		return "", ErrMissingSecret
	}

	now := c.now()
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:       uuid.NewString(),
			Subject:  CodeSubject,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if c.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(c.ttl))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign registration code: %w", err)
	}
	return signed, nil
}

// Verify checks code and that it was issued for userID.
func (c *Codes) Verify(code string, userID int64) error {
	if len(c.secret) == 0 {
		return ErrMissingSecret
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(code, &claims, func(token *jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithSubject(CodeSubject),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidCode, err)
	}
	if claims.UserID != userID {
		return ErrUserMismatch
	}
	return nil
}
