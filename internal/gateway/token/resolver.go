// Package token resolves connect-time session tokens into identities.
package token

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/roomcast/roomcast/internal/gateway"
)

// sessionClaims is the internal claims type used for JWT parsing.
type sessionClaims struct {
	jwt.RegisteredClaims
	Username string `json:"name"`
	Color    string `json:"color,omitempty"`
}

// Resolver validates HMAC-SHA256 session tokens issued by the auth service.
type Resolver struct {
	secret []byte
	now    func() time.Time
}

// NewResolver creates a Resolver verifying tokens against secret.
func NewResolver(secret []byte, now func() time.Time) *Resolver {
	if now == nil {
		now = time.Now
	}
	return &Resolver{secret: secret, now: now}
}

// ResolveIdentity parses and validates a session token. It returns the
// identity carried in the claims, or an error for malformed, mis-signed, or
// expired tokens.
func (r *Resolver) ResolveIdentity(_ context.Context, raw string) (*gateway.Identity, error) {
	if raw == "" {
		return nil, fmt.Errorf("empty token")
	}
	var claims sessionClaims
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(r.now),
		jwt.WithExpirationRequired(),
	)
	if _, err := parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return r.secret, nil
	}); err != nil {
		return nil, fmt.Errorf("parse session token: %w", err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("session token has no subject")
	}
	if claims.Username == "" {
		return nil, fmt.Errorf("session token has no username")
	}
	return &gateway.Identity{
		UserID:   claims.Subject,
		Username: claims.Username,
		Color:    claims.Color,
	}, nil
}

// Issue signs a session token for the identity. Used by tests and local
// tooling; production tokens come from the auth service with the same shape.
func (r *Resolver) Issue(id gateway.Identity, ttl time.Duration) (string, error) {
	now := r.now()
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Username: id.Username,
		Color:    id.Color,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(r.secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}
