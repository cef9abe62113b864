package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the fields the support backend puts into its tokens.
type Claims struct {
	UserID string `json:"id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// TokenInspector reads bearer tokens without verifying the signature. The
// console never holds the signing key; it only needs to know whether a
// token has expired before spending a request on it.
type TokenInspector struct {
	parser *jwt.Parser
	now    func() time.Time
	leeway time.Duration
}

// NewTokenInspector creates an inspector. leeway absorbs clock skew.
func NewTokenInspector(leeway time.Duration) *TokenInspector {
	return &TokenInspector{
		parser: jwt.NewParser(),
		now:    time.Now,
		leeway: leeway,
	}
}

// WithClock replaces the time source. Used by tests.
func (ti *TokenInspector) WithClock(now func() time.Time) *TokenInspector {
	ti.now = now
	return ti
}

// Inspect decodes the claims of tokenString.
func (ti *TokenInspector) Inspect(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, errors.New("empty token")
	}

	claims := &Claims{}
	if _, _, err := ti.parser.ParseUnverified(tokenString, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// Expired reports whether the token carries an expiry that has passed.
// Opaque tokens and tokens without exp are left for the server to judge.
func (ti *TokenInspector) Expired(tokenString string) bool {
	claims, err := ti.Inspect(tokenString)
	if err != nil || claims.ExpiresAt == nil {
		return false
	}
	return ti.now().After(claims.ExpiresAt.Add(ti.leeway))
}
