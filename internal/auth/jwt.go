// Package auth is the identity provider seen by the API: it issues and
// verifies HS256 bearer tokens carrying an opaque user id and an
// is-anonymous flag. Anonymous identities authenticate but are denied every
// mutating operation that needs a durable identity.
package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMissingToken is returned when no bearer token was presented.
	ErrMissingToken = errors.New("missing bearer token")
	// ErrInvalidToken covers malformed, expired and wrongly signed tokens.
	ErrInvalidToken = errors.New("invalid token")
)

// Identity is the authenticated caller.
type Identity struct {
	UID       string
	Anonymous bool
}

// Claims is the JWT payload.
type Claims struct {
	jwt.RegisteredClaims
	UID       string `json:"uid"`
	Anonymous bool   `json:"anon,omitempty"`
}

// Verifier validates tokens signed with a shared secret.
type Verifier struct {
	Secret []byte
	Issuer string
	// Now overrides the clock used for expiry checks (tests).
	Now func() time.Time
}

// NewVerifier returns a Verifier for secret. An empty issuer disables the
// issuer check.
func NewVerifier(secret, issuer string) *Verifier {
	return &Verifier{Secret: []byte(secret), Issuer: issuer}
}

// Verify parses tokenString and returns the identity it carries.
func (v *Verifier) Verify(tokenString string) (Identity, error) {
	if strings.TrimSpace(tokenString) == "" {
		return Identity{}, ErrMissingToken
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.Issuer))
	}
	if v.Now != nil {
		opts = append(opts, jwt.WithTimeFunc(v.Now))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return v.Secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		return Identity{}, ErrInvalidToken
	}
	uid := claims.UID
	if uid == "" {
		uid = claims.Subject
	}
	if uid == "" {
		return Identity{}, ErrInvalidToken
	}
	return Identity{UID: uid, Anonymous: claims.Anonymous}, nil
}

// IssueToken signs a token for id valid for ttl.
func IssueToken(id Identity, secret []byte, issuer string, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UID:       id.UID,
		Anonymous: id.Anonymous,
	})
	return token.SignedString(secret)
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	const prefix = "bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

// PeekIdentity reads the identity a token claims without checking its
// signature or expiry. Clients use it to key local state; servers must use
// Verifier.
func PeekIdentity(tokenString string) (Identity, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return Identity{}, ErrInvalidToken
	}
	uid := claims.UID
	if uid == "" {
		uid = claims.Subject
	}
	if uid == "" {
		return Identity{}, ErrInvalidToken
	}
	return Identity{UID: uid, Anonymous: claims.Anonymous}, nil
}
