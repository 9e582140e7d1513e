package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sudo-init-do/chefbid/internal/auth"
	"github.com/sudo-init-do/chefbid/internal/domain"
)

func serve(t *testing.T, e *echo.Echo, token string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec.Code, body
}

func TestJWTAndRoles(t *testing.T) {
	resolver := auth.NewJWTResolver("k")
	e := echo.New()
	e.GET("/x", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"user_id": auth.FromContext(c).UserID})
	}, JWTMiddleware(resolver), RequireRoles(auth.RoleChef))

	code, _ := serve(t, e, "")
	assert.Equal(t, http.StatusUnauthorized, code)

	customer, err := resolver.Issue("cust-1", auth.RoleCustomer, time.Hour)
	require.NoError(t, err)
	code, body := serve(t, e, customer)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "NotAuthorized", body["error"])

	chef, err := resolver.Issue("chef-1", auth.RoleChef, time.Hour)
	require.NoError(t, err)
	code, body = serve(t, e, chef)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "chef-1", body["user_id"])
}

func TestAdminGuard(t *testing.T) {
	resolver := auth.NewJWTResolver("k")
	e := echo.New()
	e.GET("/x", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{})
	}, JWTMiddleware(resolver), AdminGuard)

	chef, err := resolver.Issue("chef-1", auth.RoleChef, time.Hour)
	require.NoError(t, err)
	code, _ := serve(t, e, chef)
	assert.Equal(t, http.StatusForbidden, code)

	admin, err := resolver.Issue("admin-1", auth.RoleAdmin, time.Hour)
	require.NoError(t, err)
	code, _ = serve(t, e, admin)
	assert.Equal(t, http.StatusOK, code)
}

func TestWriteError(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{domain.NewValidationError("title", "title is required"), http.StatusBadRequest, "ValidationError"},
		{fmt.Errorf("accept: %w", domain.ErrNotAuthorized), http.StatusForbidden, "NotAuthorized"},
		{domain.ErrOrderNotOpen, http.StatusBadRequest, "OrderNotOpen"},
		{domain.ErrDuplicateBid, http.StatusBadRequest, "DuplicateBid"},
		{domain.ErrNoAcceptedBid, http.StatusBadRequest, "NoAcceptedBid"},
		{domain.ErrInsufficientFunds, http.StatusBadRequest, "InsufficientFunds"},
		{domain.ErrConcurrencyConflict, http.StatusConflict, "ConcurrencyConflict"},
		{fmt.Errorf("order x: %w", domain.ErrNotFound), http.StatusNotFound, "NotFound"},
		{fmt.Errorf("connection reset"), http.StatusInternalServerError, "InternalError"},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			e := echo.New()
			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), rec)
			require.NoError(t, WriteError(c, tc.err))

			assert.Equal(t, tc.status, rec.Code)
			var body map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tc.code, body["error"])
		})
	}
}

func TestWriteErrorCarriesField(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), rec)
	require.NoError(t, WriteError(c, domain.NewValidationError("max_budget", "must be positive")))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "max_budget", body["field"])
	assert.Equal(t, "must be positive", body["message"])
}

func TestInternalErrorLoggedThroughRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	e := echo.New()
	e.Use(RequestLogger(zerolog.New(&buf)))
	e.GET("/x", func(c echo.Context) error {
		return WriteError(c, errors.New("pool exhausted"))
	})

	code, body := serve(t, e, "")
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "internal server error", body["message"])

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "error", line["level"])
	assert.Equal(t, "pool exhausted", line["error"])
	assert.Equal(t, "http", line["module"])
	assert.EqualValues(t, http.StatusInternalServerError, line["status"])
}
