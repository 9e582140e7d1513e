package auth

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTResolverRoundTrip(t *testing.T) {
	r := NewJWTResolver("s3cret")
	tok, err := r.Issue("chef-1", RoleChef, time.Hour)
	require.NoError(t, err)

	id, err := r.Resolve(tok)
	require.NoError(t, err)
	assert.Equal(t, Identity{UserID: "chef-1", Role: RoleChef, Authenticated: true}, id)
}

func TestJWTResolverRejects(t *testing.T) {
	r := NewJWTResolver("s3cret")

	expired, err := r.Issue("u", RoleCustomer, -time.Minute)
	require.NoError(t, err)
	other, err := NewJWTResolver("other").Issue("u", RoleCustomer, time.Hour)
	require.NoError(t, err)
	badRole, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": "u", "role": "fan", "exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	for name, tok := range map[string]string{
		"empty":      "",
		"garbage":    "not-a-jwt",
		"expired":    expired,
		"wrong key":  other,
		"wrong role": badRole,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := r.Resolve(tok)
			assert.Error(t, err)
		})
	}
}

func TestResolveAcceptsSubClaim(t *testing.T) {
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "admin-1", "role": "admin", "exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("k"))
	require.NoError(t, err)

	id, err := NewJWTResolver("k").Resolve(tok)
	require.NoError(t, err)
	assert.Equal(t, "admin-1", id.UserID)
	assert.Equal(t, RoleAdmin, id.Role)
}

func TestTokenFromRequest(t *testing.T) {
	req := httptest.NewRequest("GET", "/ws?token=q", nil)
	tok, err := TokenFromRequest(req)
	require.NoError(t, err)
	assert.Equal(t, "q", tok)

	req.Header.Set("Authorization", "Bearer h")
	tok, err = TokenFromRequest(req)
	require.NoError(t, err)
	assert.Equal(t, "h", tok)

	req.Header.Set("Authorization", "Basic xyz")
	_, err = TokenFromRequest(req)
	assert.ErrorIs(t, err, ErrMissingToken)

	_, err = TokenFromRequest(httptest.NewRequest("GET", "/ws", nil))
	assert.ErrorIs(t, err, ErrMissingToken)
}
