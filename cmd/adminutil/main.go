// Command adminutil holds one-off operator tasks that run against the store
// directly: provisioning the platform wallet, auditing the ledger and minting
// tokens for local testing.
package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/sudo-init-do/chefbid/internal/config"
	"github.com/sudo-init-do/chefbid/internal/db"
	"github.com/sudo-init-do/chefbid/internal/logging"
	"github.com/sudo-init-do/chefbid/internal/store"
	"github.com/sudo-init-do/chefbid/internal/wallet"
)

var envFile string

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "env file read before the process environment")
	rootCmd.AddCommand(ensurePlatformWalletCmd)
	rootCmd.AddCommand(verifyLedgerCmd)
	rootCmd.AddCommand(issueTokenCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "adminutil",
	Short:         "Operator tasks for the chefbid marketplace",
	SilenceUsage: true,
}

// env is what every subcommand needs.
type env struct {
	cfg    config.Config
	logger zerolog.Logger
	store  store.Store
	ledger *wallet.Ledger
}

func (e *env) Close() { e.store.Close() }

func setup(ctx context.Context) (*env, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(os.Stderr, cfg.LogLevel, logging.FormatConsole)
	if err != nil {
		return nil, err
	}
	st, err := db.Open(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	ledger := wallet.New(st, wallet.Config{
		CommissionRate:    cfg.CommissionRate,
		PlatformAccountID: cfg.PlatformAccountID,
	}, logger)
	return &env{cfg: cfg, logger: logger, store: st, ledger: ledger}, nil
}
