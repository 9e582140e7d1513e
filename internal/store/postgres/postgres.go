// Package postgres implements store.Store on a pgx connection pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/sudo-init-do/chefbid/internal/domain"
	"github.com/sudo-init-do/chefbid/internal/store"
)

const (
	uniqueViolation      = "23505"
	checkViolation       = "23514"
	serializationFailure = "40001"
	deadlockDetected     = "40P01"

	bidsOrderChefKey = "bids_order_chef_key"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is the Postgres-backed store.
type Store struct {
	queries
	pool *pgxpool.Pool
}

var _ store.Store = (*Store)(nil)

func New(pool *pgxpool.Pool) *Store {
	return &Store{queries: queries{q: pool}, pool: pool}
}

// WithTx runs fn in a READ COMMITTED transaction. Row locks taken through
// LockOrder and LockWallet serialize writers on the same order or wallet.
func (s *Store) WithTx(ctx context.Context, fn func(store.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", translate(err))
	}
	defer tx.Rollback(ctx)

	if err := fn(&txn{queries{q: tx}}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", translate(err))
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *Store) Close() { s.pool.Close() }

// translate maps driver errors onto domain errors.
func translate(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case uniqueViolation:
			if pgErr.ConstraintName == bidsOrderChefKey {
				return domain.ErrDuplicateBid
			}
			return fmt.Errorf("%w: %s", domain.ErrConcurrencyConflict, pgErr.ConstraintName)
		case checkViolation:
			if pgErr.TableName == "wallets" {
				return domain.ErrInsufficientFunds
			}
		case serializationFailure, deadlockDetected:
			return fmt.Errorf("%w: %s", domain.ErrConcurrencyConflict, pgErr.Message)
		}
	}
	return err
}

type queries struct {
	q querier
}

const orderColumns = `id, customer_id, title, description, max_budget, delivery_address,
    preferred_delivery_time, accepted_chef_id, status, created_at, updated_at`

func scanOrder(row pgx.Row) (domain.Order, error) {
	var o domain.Order
	var status string
	err := row.Scan(&o.ID, &o.CustomerID, &o.Title, &o.Description, &o.MaxBudget, &o.DeliveryAddress,
		&o.PreferredDeliveryTime, &o.AcceptedChefID, &status, &o.CreatedAt, &o.UpdatedAt)
	o.Status = domain.OrderStatus(status)
	return o, err
}

func (s queries) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	o, err := scanOrder(s.q.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		return domain.Order{}, fmt.Errorf("order %s: %w", id, translate(err))
	}
	return o, nil
}

func (s queries) ListOrders(ctx context.Context, f store.OrderFilter) ([]domain.Order, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+orderColumns+` FROM orders
         WHERE ($1 = '' OR customer_id = $1)
           AND ($2 = '' OR accepted_chef_id = $2)
           AND ($3 = '' OR status = $3)
         ORDER BY created_at DESC, id`,
		f.CustomerID, f.AcceptedChefID, string(f.Status))
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var out []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s queries) CountOrdersByStatus(ctx context.Context) (map[domain.OrderStatus]int, error) {
	rows, err := s.q.Query(ctx, `SELECT status, COUNT(*) FROM orders GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count orders: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.OrderStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan order count: %w", err)
		}
		counts[domain.OrderStatus(status)] = n
	}
	return counts, rows.Err()
}

const bidColumns = `id, order_id, chef_id, proposed_price, delivery_estimate_seconds, message, status, created_at, updated_at`

func scanBid(row pgx.Row) (domain.Bid, error) {
	var b domain.Bid
	var seconds int64
	var status string
	err := row.Scan(&b.ID, &b.OrderID, &b.ChefID, &b.ProposedPrice, &seconds, &b.Message, &status,
		&b.CreatedAt, &b.UpdatedAt)
	b.DeliveryEstimate = time.Duration(seconds) * time.Second
	b.Status = domain.BidStatus(status)
	return b, err
}

func (s queries) GetBid(ctx context.Context, id string) (domain.Bid, error) {
	b, err := scanBid(s.q.QueryRow(ctx, `SELECT `+bidColumns+` FROM bids WHERE id = $1`, id))
	if err != nil {
		return domain.Bid{}, fmt.Errorf("bid %s: %w", id, translate(err))
	}
	return b, nil
}

func (s queries) ListBids(ctx context.Context, f store.BidFilter) ([]domain.Bid, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+bidColumns+` FROM bids
         WHERE ($1 = '' OR order_id::text = $1)
           AND ($2 = '' OR chef_id = $2)
           AND ($3 = '' OR status = $3)
         ORDER BY created_at, id`,
		f.OrderID, f.ChefID, string(f.Status))
	if err != nil {
		return nil, fmt.Errorf("list bids: %w", err)
	}
	defer rows.Close()

	var out []domain.Bid
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return nil, fmt.Errorf("scan bid: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func scanWallet(row pgx.Row) (domain.Wallet, error) {
	var w domain.Wallet
	err := row.Scan(&w.ID, &w.UserID, &w.Balance, &w.CreatedAt, &w.UpdatedAt)
	return w, err
}

func (s queries) GetWallet(ctx context.Context, userID string) (domain.Wallet, error) {
	w, err := scanWallet(s.q.QueryRow(ctx,
		`SELECT id, user_id, balance, created_at, updated_at FROM wallets WHERE user_id = $1`, userID))
	if err != nil {
		return domain.Wallet{}, fmt.Errorf("wallet for user %s: %w", userID, translate(err))
	}
	return w, nil
}

func (s queries) ListWallets(ctx context.Context) ([]domain.Wallet, error) {
	rows, err := s.q.Query(ctx, `SELECT id, user_id, balance, created_at, updated_at FROM wallets ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("list wallets: %w", err)
	}
	defer rows.Close()

	var out []domain.Wallet
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, fmt.Errorf("scan wallet: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (s queries) ListTransactions(ctx context.Context, walletID string) ([]domain.Transaction, error) {
	rows, err := s.q.Query(ctx,
		`SELECT id, wallet_id, type, amount, description, reference, created_at
         FROM transactions WHERE wallet_id = $1 ORDER BY created_at DESC, id`, walletID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []domain.Transaction
	for rows.Next() {
		var t domain.Transaction
		var typ string
		if err := rows.Scan(&t.ID, &t.WalletID, &typ, &t.Amount, &t.Description, &t.Reference, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		t.Type = domain.TransactionType(typ)
		out = append(out, t)
	}
	return out, rows.Err()
}

const reviewColumns = `id, order_id, customer_id, chef_id, rating, comment, submitted_at, created_at, updated_at`

func scanReview(row pgx.Row) (domain.Review, error) {
	var r domain.Review
	err := row.Scan(&r.ID, &r.OrderID, &r.CustomerID, &r.ChefID, &r.Rating, &r.Comment, &r.SubmittedAt,
		&r.CreatedAt, &r.UpdatedAt)
	return r, err
}

func (s queries) GetReview(ctx context.Context, orderID string) (domain.Review, error) {
	r, err := scanReview(s.q.QueryRow(ctx, `SELECT `+reviewColumns+` FROM reviews WHERE order_id = $1`, orderID))
	if err != nil {
		return domain.Review{}, fmt.Errorf("review for order %s: %w", orderID, translate(err))
	}
	return r, nil
}

func (s queries) ListReviews(ctx context.Context, chefID string) ([]domain.Review, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+reviewColumns+` FROM reviews WHERE chef_id = $1 ORDER BY created_at DESC`, chefID)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	defer rows.Close()

	var out []domain.Review
	for rows.Next() {
		r, err := scanReview(rows)
		if err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s queries) ListNotifications(ctx context.Context, userID string) ([]domain.Notification, error) {
	rows, err := s.q.Query(ctx,
		`SELECT id, user_id, message, type, is_read, delivered_at, created_at
         FROM notifications WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var out []domain.Notification
	for rows.Next() {
		var n domain.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Message, &n.Type, &n.IsRead, &n.DeliveredAt, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s queries) ChefRollups(ctx context.Context) ([]domain.ChefRollup, error) {
	rows, err := s.q.Query(ctx, `
        WITH chefs AS (
            SELECT chef_id FROM bids
            UNION SELECT accepted_chef_id FROM orders WHERE accepted_chef_id IS NOT NULL
            UNION SELECT chef_id FROM reviews
        )
        SELECT c.chef_id,
               (SELECT COUNT(*) FROM bids b WHERE b.chef_id = c.chef_id),
               (SELECT COUNT(*) FROM orders o WHERE o.accepted_chef_id = c.chef_id AND o.status = 'completed'),
               (SELECT COUNT(*) FROM reviews r WHERE r.chef_id = c.chef_id AND r.submitted_at IS NOT NULL),
               (SELECT COALESCE(AVG(r.rating), 0) FROM reviews r WHERE r.chef_id = c.chef_id AND r.submitted_at IS NOT NULL)
        FROM chefs c
        ORDER BY c.chef_id`)
	if err != nil {
		return nil, fmt.Errorf("chef rollups: %w", err)
	}
	defer rows.Close()

	var out []domain.ChefRollup
	for rows.Next() {
		var cr domain.ChefRollup
		if err := rows.Scan(&cr.ChefID, &cr.TotalBids, &cr.CompletedOrders, &cr.ReviewCount, &cr.AvgRating); err != nil {
			return nil, fmt.Errorf("scan chef rollup: %w", err)
		}
		out = append(out, cr)
	}
	return out, rows.Err()
}

type txn struct {
	queries
}

func (t *txn) LockOrder(ctx context.Context, id string) (domain.Order, error) {
	o, err := scanOrder(t.q.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return domain.Order{}, fmt.Errorf("lock order %s: %w", id, translate(err))
	}
	return o, nil
}

func (t *txn) InsertOrder(ctx context.Context, o domain.Order) error {
	_, err := t.q.Exec(ctx,
		`INSERT INTO orders (`+orderColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		o.ID, o.CustomerID, o.Title, o.Description, o.MaxBudget, o.DeliveryAddress,
		o.PreferredDeliveryTime, o.AcceptedChefID, string(o.Status), o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", translate(err))
	}
	return nil
}

func (t *txn) UpdateOrder(ctx context.Context, o domain.Order) error {
	ct, err := t.q.Exec(ctx,
		`UPDATE orders SET accepted_chef_id = $2, status = $3, updated_at = $4 WHERE id = $1`,
		o.ID, o.AcceptedChefID, string(o.Status), o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update order: %w", translate(err))
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("update order %s: %w", o.ID, domain.ErrNotFound)
	}
	return nil
}

func (t *txn) InsertBid(ctx context.Context, b domain.Bid) error {
	_, err := t.q.Exec(ctx,
		`INSERT INTO bids (`+bidColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		b.ID, b.OrderID, b.ChefID, b.ProposedPrice, int64(b.DeliveryEstimate/time.Second), b.Message,
		string(b.Status), b.CreatedAt, b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert bid: %w", translate(err))
	}
	return nil
}

func (t *txn) UpdateBid(ctx context.Context, b domain.Bid) error {
	ct, err := t.q.Exec(ctx, `UPDATE bids SET status = $2, updated_at = $3 WHERE id = $1`,
		b.ID, string(b.Status), b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update bid: %w", translate(err))
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("update bid %s: %w", b.ID, domain.ErrNotFound)
	}
	return nil
}

func (t *txn) LockWallet(ctx context.Context, userID string) (domain.Wallet, error) {
	w, err := scanWallet(t.q.QueryRow(ctx,
		`SELECT id, user_id, balance, created_at, updated_at FROM wallets WHERE user_id = $1 FOR UPDATE`, userID))
	if err != nil {
		return domain.Wallet{}, fmt.Errorf("lock wallet for user %s: %w", userID, translate(err))
	}
	return w, nil
}

func (t *txn) InsertWallet(ctx context.Context, w domain.Wallet) error {
	_, err := t.q.Exec(ctx,
		`INSERT INTO wallets (id, user_id, balance, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		w.ID, w.UserID, w.Balance, w.CreatedAt, w.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert wallet: %w", translate(err))
	}
	return nil
}

func (t *txn) SetBalance(ctx context.Context, walletID string, balance decimal.Decimal, at time.Time) error {
	_, err := t.q.Exec(ctx, `UPDATE wallets SET balance = $2, updated_at = $3 WHERE id = $1`, walletID, balance, at)
	if err != nil {
		return fmt.Errorf("set balance: %w", translate(err))
	}
	return nil
}

func (t *txn) AppendTransaction(ctx context.Context, tr domain.Transaction) error {
	_, err := t.q.Exec(ctx,
		`INSERT INTO transactions (id, wallet_id, type, amount, description, reference, created_at)
         VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		tr.ID, tr.WalletID, string(tr.Type), tr.Amount, tr.Description, tr.Reference, tr.CreatedAt)
	if err != nil {
		return fmt.Errorf("append transaction: %w", translate(err))
	}
	return nil
}

func (t *txn) InsertReview(ctx context.Context, r domain.Review) error {
	_, err := t.q.Exec(ctx,
		`INSERT INTO reviews (`+reviewColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		r.ID, r.OrderID, r.CustomerID, r.ChefID, r.Rating, r.Comment, r.SubmittedAt, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert review: %w", translate(err))
	}
	return nil
}

func (t *txn) UpdateReview(ctx context.Context, r domain.Review) error {
	ct, err := t.q.Exec(ctx,
		`UPDATE reviews SET rating = $2, comment = $3, submitted_at = $4, updated_at = $5 WHERE order_id = $1`,
		r.OrderID, r.Rating, r.Comment, r.SubmittedAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update review: %w", translate(err))
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("update review for order %s: %w", r.OrderID, domain.ErrNotFound)
	}
	return nil
}

func (t *txn) InsertNotification(ctx context.Context, n domain.Notification) error {
	_, err := t.q.Exec(ctx,
		`INSERT INTO notifications (id, user_id, message, type, is_read, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		n.ID, n.UserID, n.Message, n.Type, n.IsRead, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert notification: %w", translate(err))
	}
	return nil
}

func (t *txn) MarkNotificationRead(ctx context.Context, userID, id string) error {
	ct, err := t.q.Exec(ctx, `UPDATE notifications SET is_read = TRUE WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", translate(err))
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("notification %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (t *txn) MarkNotificationDelivered(ctx context.Context, userID, id string, at time.Time) error {
	ct, err := t.q.Exec(ctx,
		`UPDATE notifications SET delivered_at = COALESCE(delivered_at, $3) WHERE id = $1 AND user_id = $2`,
		id, userID, at)
	if err != nil {
		return fmt.Errorf("mark notification delivered: %w", translate(err))
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("notification %s: %w", id, domain.ErrNotFound)
	}
	return nil
}
