// Package auth signs and verifies member tokens and turns them into
// principals for both HTTP requests and STOMP sessions.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("token is invalid")
	ErrExpiredToken = errors.New("token has expired")
)

// Identity is what a token asserts about a member.
type Identity struct {
	MemberID int64
	Email    string
	Nickname string
}

// Claims is the fixed token payload: {id, email, nickname, exp}.
type Claims struct {
	MemberID int64  `json:"id"`
	Email    string `json:"email"`
	Nickname string `json:"nickname"`
	jwt.RegisteredClaims
}

// Validate rejects payloads that verify but don't carry a full identity.
func (c Claims) Validate() error {
	if c.MemberID <= 0 {
		return errors.New("id claim is missing")
	}
	if c.Email == "" || c.Nickname == "" {
		return errors.New("email or nickname claim is missing")
	}
	return nil
}

func (c Claims) Identity() Identity {
	return Identity{MemberID: c.MemberID, Email: c.Email, Nickname: c.Nickname}
}

// Codec signs and verifies HS256 tokens with a shared secret.
type Codec struct {
	secret []byte
	issuer string
	now    func() time.Time
}

func NewCodec(secret, issuer string) *Codec {
	return &Codec{
		secret: []byte(secret),
		issuer: issuer,
		now:    time.Now,
	}
}

// Sign issues a token for id that expires after ttl.
func (c *Codec) Sign(id Identity, ttl time.Duration) (string, error) {
	now := c.now().UTC()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		MemberID: id.MemberID,
		Email:    id.Email,
		Nickname: id.Nickname,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})

	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("internal/auth: failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify checks the signature, shape and expiry of tokenString. Expiry is
// strict: a token is invalid from the instant now reaches exp.
func (c *Codec) Verify(tokenString string) (Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	}
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}

	var claims Claims
	token, err := jwt.ParseWithClaims(
		tokenString,
		&claims,
		func(t *jwt.Token) (any, error) { return c.secret, nil },
		opts...,
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, fmt.Errorf("internal/auth: %w", ErrExpiredToken)
		}
		return Claims{}, fmt.Errorf("internal/auth: %w: %v", ErrInvalidToken, err)
	}

	if !token.Valid {
		return Claims{}, fmt.Errorf("internal/auth: %w", ErrInvalidToken)
	}

	return claims, nil
}
