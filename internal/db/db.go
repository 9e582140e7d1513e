package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Connect opens a pgx pool, verifies it and ensures the schema exists.
func Connect(ctx context.Context, dsn string, logger zerolog.Logger) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	if err = pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	logger.Info().Msg("connected to postgres")

	if err := EnsureSchema(ctx, pool, logger); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

var schema = []struct {
	name string
	ddl  string
}{
	{"wallets", `
        CREATE TABLE IF NOT EXISTS wallets (
            id UUID PRIMARY KEY,
            user_id TEXT NOT NULL UNIQUE,
            balance NUMERIC(12,2) NOT NULL DEFAULT 0 CHECK (balance >= 0),
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        )`},
	{"transactions", `
        CREATE TABLE IF NOT EXISTS transactions (
            id UUID PRIMARY KEY,
            wallet_id UUID NOT NULL REFERENCES wallets(id) ON DELETE CASCADE,
            type TEXT NOT NULL CHECK (type IN ('credit','debit','commission')),
            amount NUMERIC(12,2) NOT NULL CHECK (amount > 0),
            description TEXT NOT NULL DEFAULT '',
            reference TEXT NOT NULL DEFAULT '',
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );
        CREATE INDEX IF NOT EXISTS idx_transactions_wallet_created ON transactions(wallet_id, created_at)`},
	{"orders", `
        CREATE TABLE IF NOT EXISTS orders (
            id UUID PRIMARY KEY,
            customer_id TEXT NOT NULL,
            title TEXT NOT NULL,
            description TEXT NOT NULL,
            max_budget NUMERIC(12,2) NOT NULL CHECK (max_budget > 0),
            delivery_address TEXT NOT NULL,
            preferred_delivery_time TIMESTAMPTZ NOT NULL,
            accepted_chef_id TEXT NULL,
            status TEXT NOT NULL DEFAULT 'open',
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            CONSTRAINT orders_status_check CHECK (status IN (
                'open','accepted','preparing','delivered','completed','cancelled'
            )),
            CONSTRAINT orders_accepted_chef_check CHECK (
                (accepted_chef_id IS NOT NULL) = (status IN ('accepted','preparing','delivered','completed'))
            )
        );
        CREATE INDEX IF NOT EXISTS idx_orders_customer ON orders(customer_id);
        CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status)`},
	{"bids", `
        CREATE TABLE IF NOT EXISTS bids (
            id UUID PRIMARY KEY,
            order_id UUID NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
            chef_id TEXT NOT NULL,
            proposed_price NUMERIC(12,2) NOT NULL CHECK (proposed_price > 0),
            delivery_estimate_seconds BIGINT NOT NULL CHECK (delivery_estimate_seconds > 0),
            message TEXT NOT NULL DEFAULT '',
            status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending','accepted','declined','withdrawn')),
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            CONSTRAINT bids_order_chef_key UNIQUE (order_id, chef_id)
        );
        CREATE UNIQUE INDEX IF NOT EXISTS idx_bids_one_accepted ON bids(order_id) WHERE status = 'accepted';
        CREATE INDEX IF NOT EXISTS idx_bids_chef ON bids(chef_id)`},
	{"reviews", `
        CREATE TABLE IF NOT EXISTS reviews (
            id UUID PRIMARY KEY,
            order_id UUID NOT NULL UNIQUE REFERENCES orders(id) ON DELETE CASCADE,
            customer_id TEXT NOT NULL,
            chef_id TEXT NOT NULL,
            rating DOUBLE PRECISION NOT NULL DEFAULT 0 CHECK (rating >= 0 AND rating <= 5),
            comment TEXT NOT NULL DEFAULT '',
            submitted_at TIMESTAMPTZ NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );
        CREATE INDEX IF NOT EXISTS idx_reviews_chef ON reviews(chef_id)`},
	{"notifications", `
        CREATE TABLE IF NOT EXISTS notifications (
            id UUID PRIMARY KEY,
            user_id TEXT NOT NULL,
            message TEXT NOT NULL,
            type TEXT NOT NULL DEFAULT '',
            is_read BOOLEAN NOT NULL DEFAULT FALSE,
            delivered_at TIMESTAMPTZ NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );
        ALTER TABLE notifications ADD COLUMN IF NOT EXISTS delivered_at TIMESTAMPTZ NULL;
        CREATE INDEX IF NOT EXISTS idx_notifications_user_created ON notifications(user_id, created_at)`},
}

// EnsureSchema creates the tables the store needs. It is idempotent.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool, logger zerolog.Logger) error {
	for _, t := range schema {
		if _, err := pool.Exec(ctx, t.ddl); err != nil {
			return fmt.Errorf("ensure %s table: %w", t.name, err)
		}
		logger.Debug().Str("table", t.name).Msg("table ensured")
	}
	return nil
}
