// Package auth resolves the caller of a request into an Identity. Credential
// issuance lives outside this service; tokens are only verified here.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type Role string

const (
	RoleCustomer Role = "customer"
	RoleChef     Role = "chef"
	RoleAdmin    Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleChef, RoleAdmin:
		return true
	}
	return false
}

// Identity is who the caller is. The zero value is an anonymous caller.
type Identity struct {
	UserID        string `json:"user_id"`
	Role          Role   `json:"role"`
	Authenticated bool   `json:"authenticated"`
}

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid or expired token")
)

// Resolver turns a bearer token into an Identity.
type Resolver interface {
	Resolve(token string) (Identity, error)
}

// TokenFromRequest reads the bearer token from the Authorization header, or
// from the token query parameter for clients that cannot set headers
// (browser websockets).
func TokenFromRequest(r *http.Request) (string, error) {
	if h := r.Header.Get("Authorization"); h != "" {
		const prefix = "Bearer "
		if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
			return "", ErrMissingToken
		}
		return strings.TrimSpace(h[len(prefix):]), nil
	}
	if t := r.URL.Query().Get("token"); t != "" {
		return t, nil
	}
	return "", ErrMissingToken
}

// JWTResolver verifies HMAC-signed tokens carrying user_id (or sub) and role
// claims.
type JWTResolver struct {
	secret []byte
}

func NewJWTResolver(secret string) *JWTResolver {
	return &JWTResolver{secret: []byte(secret)}
}

func (j *JWTResolver) Resolve(token string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrMissingToken
	}
	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return j.secret, nil
	})
	if err != nil || !parsed.Valid {
		return Identity{}, ErrInvalidToken
	}

	userID, _ := claims["user_id"].(string)
	if userID == "" {
		userID, _ = claims["sub"].(string)
	}
	role, _ := claims["role"].(string)
	if userID == "" || !Role(role).Valid() {
		return Identity{}, ErrInvalidToken
	}
	return Identity{UserID: userID, Role: Role(role), Authenticated: true}, nil
}

// Issue signs a token for userID with the given role. Used by operators and
// tests; end-user login is handled elsewhere.
func (j *JWTResolver) Issue(userID string, role Role, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"user_id": userID,
		"role":    string(role),
		"exp":     time.Now().Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secret)
}
