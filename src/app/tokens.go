package app

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type (
	// Claims carried by a session token. Subject is the user id.
	Claims struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		jwt.RegisteredClaims
	}

	TokenIssuer struct {
		secret []byte
		ttl    time.Duration
		now    func() time.Time
	}
)

func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue signs an HS256 token for user.
func (t *TokenIssuer) Issue(user *User) (string, error) {
	now := t.now()
	claims := Claims{
		Username: user.Username,
		Email:    user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", Internal("failed to sign token", err)
	}
	return signed, nil
}

// Verify checks signature, algorithm and expiry and returns the claims.
func (t *TokenIssuer) Verify(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(t.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, Unauthorizedf("token expired")
		}
		return nil, &Error{Kind: KindUnauthorized, Message: "invalid token", Err: err}
	}
	if !parsed.Valid || claims.Subject == "" {
		return nil, Unauthorizedf("invalid token")
	}
	return claims, nil
}

// ExpiresIn returns how long the claims remain valid, at least one second.
func (t *TokenIssuer) ExpiresIn(claims *Claims) time.Duration {
	if claims.ExpiresAt == nil {
		return t.ttl
	}
	left := claims.ExpiresAt.Sub(t.now())
	if left < time.Second {
		return time.Second
	}
	return left
}
