package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sudo-init-do/chefbid/internal/auth"
	"github.com/sudo-init-do/chefbid/internal/reports"
	"github.com/sudo-init-do/chefbid/internal/store"
	"github.com/sudo-init-do/chefbid/internal/store/memory"
	"github.com/sudo-init-do/chefbid/internal/wallet"
)

type env struct {
	e      *echo.Echo
	st     *memory.Store
	ledger *wallet.Ledger
}

func newEnv(t *testing.T) *env {
	t.Helper()
	st := memory.New()
	ledger := wallet.New(st, wallet.Config{CommissionRate: decimal.RequireFromString("0.05"), PlatformAccountID: "platform"}, zerolog.Nop())
	h := NewHandler(reports.NewService(st, "platform"), ledger)

	e := echo.New()
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth.Set(c, auth.Identity{UserID: "admin-1", Role: auth.RoleAdmin, Authenticated: true})
			return next(c)
		}
	})
	e.GET("/admin-dashboard", h.Dashboard)
	e.GET("/admin/wallets", h.ListWallets)
	e.GET("/admin/wallets/:user_id/transactions", h.UserTransactions)
	e.POST("/admin/wallets/:user_id/adjust", h.Adjust)
	e.GET("/admin/ledger/verify", h.VerifyLedger)
	return &env{e: e, st: st, ledger: ledger}
}

func (v *env) do(t *testing.T, method, path, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	v.e.ServeHTTP(rec, req)
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return rec.Code, out
}

func TestAdjustAndList(t *testing.T) {
	v := newEnv(t)

	code, body := v.do(t, http.MethodPost, "/admin/wallets/chef-1/adjust", `{"type":"credit","amount":"25.00"}`)
	require.Equal(t, http.StatusOK, code, body)
	tx := body["transaction"].(map[string]any)
	assert.Equal(t, "Adjustment by admin-1", tx["description"])

	code, body = v.do(t, http.MethodPost, "/admin/wallets/chef-1/adjust", `{"type":"debit","amount":"30.00"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "InsufficientFunds", body["error"])

	code, body = v.do(t, http.MethodPost, "/admin/wallets/chef-1/adjust", `{"type":"credit","amount":"0.004"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "InvalidAmount", body["error"])

	code, body = v.do(t, http.MethodPost, "/admin/wallets/chef-1/adjust", `{"type":"commission","amount":"1"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "type", body["field"])

	code, body = v.do(t, http.MethodGet, "/admin/wallets", "")
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["wallets"], 1)

	code, body = v.do(t, http.MethodGet, "/admin/wallets/chef-1/transactions", "")
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["transactions"], 1)
}

func TestVerifyLedgerReportsDrift(t *testing.T) {
	v := newEnv(t)
	ctx := context.Background()
	_, err := v.ledger.Credit(ctx, "chef-1", decimal.NewFromInt(10), "seed")
	require.NoError(t, err)
	_, err = v.ledger.Credit(ctx, "chef-2", decimal.NewFromInt(5), "seed")
	require.NoError(t, err)

	code, body := v.do(t, http.MethodGet, "/admin/ledger/verify", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["consistent"])

	w, err := v.st.GetWallet(ctx, "chef-2")
	require.NoError(t, err)
	require.NoError(t, v.st.WithTx(ctx, func(tx store.Tx) error {
		return tx.SetBalance(ctx, w.ID, decimal.NewFromInt(99), time.Now())
	}))

	code, body = v.do(t, http.MethodGet, "/admin/ledger/verify", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["consistent"])

	code, body = v.do(t, http.MethodGet, "/admin/ledger/verify?user_id=chef-1", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["consistent"])

	code, _ = v.do(t, http.MethodGet, "/admin/ledger/verify?user_id=ghost", "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestDashboard(t *testing.T) {
	v := newEnv(t)
	_, err := v.ledger.EnsureWallet(context.Background(), "platform")
	require.NoError(t, err)

	code, body := v.do(t, http.MethodGet, "/admin-dashboard", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "0", body["platform_balance"])
	assert.EqualValues(t, 1, body["wallets"])
	assert.Contains(t, body["orders_by_status"], "open")
}
