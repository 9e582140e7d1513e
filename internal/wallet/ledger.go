// Package wallet owns user balances. Every balance change goes through the
// Ledger, which appends a transaction and moves the cached balance in the
// same store transaction.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/sudo-init-do/chefbid/internal/domain"
	"github.com/sudo-init-do/chefbid/internal/logging"
	"github.com/sudo-init-do/chefbid/internal/metrics"
	"github.com/sudo-init-do/chefbid/internal/store"
)

// Config is fixed at construction. An empty PlatformAccountID means
// commissions are not collected.
type Config struct {
	CommissionRate    decimal.Decimal
	PlatformAccountID string
}

type Ledger struct {
	store  store.Store
	cfg    Config
	logger zerolog.Logger
	now    func() time.Time
}

type Option func(*Ledger)

// WithClock overrides the time source used for transaction timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

func New(st store.Store, cfg Config, logger zerolog.Logger, opts ...Option) *Ledger {
	l := &Ledger{
		store:  st,
		cfg:    cfg,
		logger: logging.Component(logger, "ledger"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) Config() Config { return l.cfg }

// Settlement is the outcome of paying a chef for a completed order.
type Settlement struct {
	OrderID           string          `json:"order_id"`
	Gross             decimal.Decimal `json:"gross"`
	ChefEarnings      decimal.Decimal `json:"chef_earnings"`
	Commission        decimal.Decimal `json:"commission"`
	CommissionSkipped bool            `json:"commission_skipped"`
}

// Split divides gross into the chef's share and the platform commission,
// the commission rounded to cents.
func (l *Ledger) Split(gross decimal.Decimal) (earnings, commission decimal.Decimal) {
	commission = gross.Mul(l.cfg.CommissionRate).Round(2)
	return gross.Sub(commission), commission
}

// Settle credits the chef with the gross amount less commission and the
// platform wallet with the commission, inside the caller's transaction.
// When the platform wallet does not exist the commission leg is skipped and
// the chef is still paid.
func (l *Ledger) Settle(ctx context.Context, tx store.Tx, chefUserID string, gross decimal.Decimal, orderID string) (Settlement, error) {
	if !domain.ValidAmount(gross) {
		return Settlement{}, fmt.Errorf("settle order %s: %w", orderID, domain.ErrInvalidAmount)
	}
	earnings, commission := l.Split(gross)
	s := Settlement{OrderID: orderID, Gross: gross, ChefEarnings: earnings, Commission: commission}

	platform := l.cfg.PlatformAccountID
	users := []string{chefUserID}
	if platform != "" && platform != chefUserID {
		users = append(users, platform)
	}
	sort.Strings(users)

	wallets := make(map[string]*domain.Wallet, len(users))
	for _, userID := range users {
		var (
			w   domain.Wallet
			err error
		)
		if userID == chefUserID {
			w, err = l.lockOrCreate(ctx, tx, userID)
		} else {
			w, err = tx.LockWallet(ctx, userID)
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
		}
		if err != nil {
			return Settlement{}, fmt.Errorf("settle order %s: %w", orderID, err)
		}
		wallets[userID] = &w
	}

	ref := orderID
	if earnings.IsPositive() {
		if _, err := l.post(ctx, tx, wallets[chefUserID], domain.TxCredit, earnings, fmt.Sprintf("Earnings from Order #%s", orderID), ref); err != nil {
			return Settlement{}, fmt.Errorf("settle order %s: %w", orderID, err)
		}
	}

	pw, ok := wallets[platform]
	switch {
	case !commission.IsPositive():
	case platform == "" || !ok:
		s.CommissionSkipped = true
		metrics.CommissionSkipped.Inc()
		l.logger.Warn().
			Str("order_id", orderID).
			Str("platform_account_id", platform).
			Str("commission", commission.StringFixed(2)).
			Msg("platform wallet missing, commission leg skipped")
	default:
		if _, err := l.post(ctx, tx, pw, domain.TxCommission, commission, fmt.Sprintf("Commission from Order #%s", orderID), ref); err != nil {
			return Settlement{}, fmt.Errorf("settle order %s: %w", orderID, err)
		}
	}

	l.logger.Info().
		Str("order_id", orderID).
		Str("chef_id", chefUserID).
		Str("gross", gross.StringFixed(2)).
		Str("earnings", earnings.StringFixed(2)).
		Str("commission", commission.StringFixed(2)).
		Msg("order settled")
	return s, nil
}

// Credit adds amount to the user's wallet, creating the wallet if needed.
func (l *Ledger) Credit(ctx context.Context, userID string, amount decimal.Decimal, description string) (domain.Transaction, error) {
	return l.apply(ctx, userID, domain.TxCredit, amount, description)
}

// Debit removes amount from the user's wallet. It fails with
// ErrInsufficientFunds rather than letting the balance go negative.
func (l *Ledger) Debit(ctx context.Context, userID string, amount decimal.Decimal, description string) (domain.Transaction, error) {
	return l.apply(ctx, userID, domain.TxDebit, amount, description)
}

func (l *Ledger) apply(ctx context.Context, userID string, typ domain.TransactionType, amount decimal.Decimal, description string) (domain.Transaction, error) {
	if !domain.ValidAmount(amount) {
		return domain.Transaction{}, domain.ErrInvalidAmount
	}
	var out domain.Transaction
	err := store.WithRetry(ctx, l.store, func(tx store.Tx) error {
		w, err := l.lockOrCreate(ctx, tx, userID)
		if err != nil {
			return err
		}
		out, err = l.post(ctx, tx, &w, typ, amount, description, "")
		return err
	})
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("%s %s for user %s: %w", typ, amount, userID, err)
	}
	return out, nil
}

// post appends one transaction to w and moves its balance.
func (l *Ledger) post(ctx context.Context, tx store.Tx, w *domain.Wallet, typ domain.TransactionType, amount decimal.Decimal, description, ref string) (domain.Transaction, error) {
	if !domain.ValidAmount(amount) {
		return domain.Transaction{}, domain.ErrInvalidAmount
	}
	t := domain.Transaction{
		ID:          uuid.NewString(),
		WalletID:    w.ID,
		Type:        typ,
		Amount:      amount,
		Description: description,
		Reference:   ref,
		CreatedAt:   l.now().UTC(),
	}
	balance := w.Balance.Add(t.Signed())
	if balance.IsNegative() {
		return domain.Transaction{}, domain.ErrInsufficientFunds
	}
	if err := tx.AppendTransaction(ctx, t); err != nil {
		return domain.Transaction{}, err
	}
	if err := tx.SetBalance(ctx, w.ID, balance, t.CreatedAt); err != nil {
		return domain.Transaction{}, err
	}
	w.Balance = balance
	w.UpdatedAt = t.CreatedAt
	metrics.LedgerPostings.WithLabelValues(string(typ)).Inc()
	return t, nil
}

func (l *Ledger) lockOrCreate(ctx context.Context, tx store.Tx, userID string) (domain.Wallet, error) {
	w, err := tx.LockWallet(ctx, userID)
	if !errors.Is(err, domain.ErrNotFound) {
		return w, err
	}
	now := l.now().UTC()
	w = domain.Wallet{ID: uuid.NewString(), UserID: userID, Balance: decimal.Zero, CreatedAt: now, UpdatedAt: now}
	if err := tx.InsertWallet(ctx, w); err != nil {
		return domain.Wallet{}, err
	}
	return w, nil
}

// EnsureWallet returns the user's wallet, creating an empty one if needed.
func (l *Ledger) EnsureWallet(ctx context.Context, userID string) (domain.Wallet, error) {
	w, err := l.store.GetWallet(ctx, userID)
	if !errors.Is(err, domain.ErrNotFound) {
		return w, err
	}
	err = store.WithRetry(ctx, l.store, func(tx store.Tx) error {
		w, err = l.lockOrCreate(ctx, tx, userID)
		return err
	})
	if err != nil {
		return domain.Wallet{}, fmt.Errorf("ensure wallet for user %s: %w", userID, err)
	}
	return w, nil
}

// Details is a wallet with its transactions, newest first.
type Details struct {
	domain.Wallet
	Transactions []domain.Transaction `json:"transactions"`
}

// Wallet returns the user's wallet and history, creating the wallet lazily.
func (l *Ledger) Wallet(ctx context.Context, userID string) (Details, error) {
	w, err := l.EnsureWallet(ctx, userID)
	if err != nil {
		return Details{}, err
	}
	txs, err := l.store.ListTransactions(ctx, w.ID)
	if err != nil {
		return Details{}, err
	}
	if txs == nil {
		txs = []domain.Transaction{}
	}
	return Details{Wallet: w, Transactions: txs}, nil
}

// Wallets lists every wallet, for the admin view.
func (l *Ledger) Wallets(ctx context.Context) ([]domain.Wallet, error) {
	return l.store.ListWallets(ctx)
}

// Transactions returns the user's history, newest first. A user without a
// wallet has no history.
func (l *Ledger) Transactions(ctx context.Context, userID string) ([]domain.Transaction, error) {
	w, err := l.store.GetWallet(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return []domain.Transaction{}, nil
	}
	if err != nil {
		return nil, err
	}
	txs, err := l.store.ListTransactions(ctx, w.ID)
	if err != nil {
		return nil, err
	}
	if txs == nil {
		txs = []domain.Transaction{}
	}
	return txs, nil
}

// Audit compares a wallet's cached balance against the replayed log.
type Audit struct {
	WalletID     string          `json:"wallet_id"`
	UserID       string          `json:"user_id"`
	Balance      decimal.Decimal `json:"balance"`
	Replayed     decimal.Decimal `json:"replayed"`
	Transactions int             `json:"transactions"`
	Consistent   bool            `json:"consistent"`
}

// Verify replays the user's wallet.
func (l *Ledger) Verify(ctx context.Context, userID string) (Audit, error) {
	w, err := l.store.GetWallet(ctx, userID)
	if err != nil {
		return Audit{}, err
	}
	return l.audit(ctx, w)
}

// VerifyAll replays every wallet and returns one audit per wallet.
func (l *Ledger) VerifyAll(ctx context.Context) ([]Audit, error) {
	wallets, err := l.store.ListWallets(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Audit, 0, len(wallets))
	for _, w := range wallets {
		a, err := l.audit(ctx, w)
		if err != nil {
			return nil, err
		}
		if !a.Consistent {
			l.logger.Error().
				Str("wallet_id", a.WalletID).
				Str("balance", a.Balance.String()).
				Str("replayed", a.Replayed.String()).
				Msg("wallet balance does not match its transactions")
		}
		out = append(out, a)
	}
	return out, nil
}

func (l *Ledger) audit(ctx context.Context, w domain.Wallet) (Audit, error) {
	txs, err := l.store.ListTransactions(ctx, w.ID)
	if err != nil {
		return Audit{}, err
	}
	replayed := domain.Fold(txs)
	return Audit{
		WalletID:     w.ID,
		UserID:       w.UserID,
		Balance:      w.Balance,
		Replayed:     replayed,
		Transactions: len(txs),
		Consistent:   replayed.Equal(w.Balance),
	}, nil
}
