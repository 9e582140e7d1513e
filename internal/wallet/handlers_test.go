package wallet

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sudo-init-do/chefbid/internal/auth"
)

func serveAs(t *testing.T, h echo.HandlerFunc, userID, method, body string) (int, map[string]any) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	auth.Set(c, auth.Identity{UserID: userID, Role: auth.RoleChef, Authenticated: true})

	require.NoError(t, h(c))
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return rec.Code, out
}

func TestBalanceCreatesWalletLazily(t *testing.T) {
	l, st := newLedger(t, "")
	h := NewHandler(l)

	code, body := serveAs(t, h.Balance, "chef-1", http.MethodGet, "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "chef-1", body["user_id"])
	assert.Equal(t, "0", body["balance"])
	assert.Empty(t, body["transactions"])

	_, err := st.GetWallet(context.Background(), "chef-1")
	require.NoError(t, err)
}

func TestWithdraw(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t, "")
	h := NewHandler(l)
	_, err := l.Credit(ctx, "chef-1", dec("30.00"), "Earnings from Order #o1")
	require.NoError(t, err)

	code, body := serveAs(t, h.Withdraw, "chef-1", http.MethodPost, `{"amount":"12.50"}`)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "17.50", body["balance"])

	code, body = serveAs(t, h.Withdraw, "chef-1", http.MethodPost, `{"amount":"100"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "InsufficientFunds", body["error"])

	code, body = serveAs(t, h.Withdraw, "chef-1", http.MethodPost, `{"amount":"-3"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "amount", body["field"])

	code, body = serveAs(t, h.Withdraw, "chef-1", http.MethodPost, `{"amount":"1.005"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "amount", body["field"])

	code, body = serveAs(t, h.Transactions, "chef-1", http.MethodGet, "")
	require.Equal(t, http.StatusOK, code)
	txs := body["transactions"].([]any)
	require.Len(t, txs, 2)
	assert.Equal(t, "debit", txs[0].(map[string]any)["type"])
	assert.Equal(t, "Withdrawal", txs[0].(map[string]any)["description"])
	requireConsistent(t, l)
}

func TestTransactionsWithoutWallet(t *testing.T) {
	l, _ := newLedger(t, "")
	code, body := serveAs(t, NewHandler(l).Transactions, "nobody", http.MethodGet, "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []any{}, body["transactions"])
}
