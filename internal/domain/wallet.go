package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType classifies a ledger entry.
type TransactionType string

const (
	TxCredit     TransactionType = "credit"
	TxDebit      TransactionType = "debit"
	TxCommission TransactionType = "commission"
)

// Wallet holds a user's cached balance. The balance always equals the
// signed fold of the wallet's transactions.
type Wallet struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Balance   decimal.Decimal `json:"balance"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Transaction is an append-only ledger entry.
type Transaction struct {
	ID          string          `json:"id"`
	WalletID    string          `json:"wallet_id"`
	Type        TransactionType `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	Reference   string          `json:"reference,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Signed returns the amount with the sign its type applies to a balance.
func (t Transaction) Signed() decimal.Decimal {
	if t.Type == TxDebit {
		return t.Amount.Neg()
	}
	return t.Amount
}

// ValidAmount reports whether d is a positive amount of whole cents, the
// precision every stored money column holds.
func ValidAmount(d decimal.Decimal) bool {
	return d.IsPositive() && d.Equal(d.Truncate(2))
}

// Fold replays txs into a balance.
func Fold(txs []Transaction) decimal.Decimal {
	sum := decimal.Zero
	for _, t := range txs {
		sum = sum.Add(t.Signed())
	}
	return sum
}
