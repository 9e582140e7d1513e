package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sudo-init-do/chefbid/internal/alerts"
	"github.com/sudo-init-do/chefbid/internal/wallet"
)

var platformID string

var ensurePlatformWalletCmd = &cobra.Command{
	Use:   "ensure-platform-wallet",
	Short: "Create the platform wallet that collects commissions, if missing",
	Long: `Commission is only collected once the platform wallet exists; settlements
made before that pay the chef in full. Run this once per environment.`,
	Args: cobra.NoArgs,
	RunE: ensurePlatformWallet,
}

var (
	verifyUserID string
	verifyAlert  bool
)

var verifyLedgerCmd = &cobra.Command{
	Use:   "verify-ledger",
	Short: "Replay wallet transactions and compare them with cached balances",
	Args:  cobra.NoArgs,
	RunE:  verifyLedger,
}

func init() {
	ensurePlatformWalletCmd.Flags().StringVar(&platformID, "account", "", "platform account id (default PLATFORM_ACCOUNT_ID)")
	verifyLedgerCmd.Flags().StringVar(&verifyUserID, "user", "", "only verify this user's wallet")
	verifyLedgerCmd.Flags().BoolVar(&verifyAlert, "alert", false, "enqueue an admin alert when drift is found (needs ALERTS_ENABLED)")
}

func ensurePlatformWallet(cmd *cobra.Command, _ []string) error {
	e, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer e.Close()

	id := platformID
	if id == "" {
		id = e.cfg.PlatformAccountID
	}
	if id == "" {
		return errors.New("no platform account: pass --account or set PLATFORM_ACCOUNT_ID")
	}
	w, err := e.ledger.EnsureWallet(cmd.Context(), id)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "platform wallet %s for %s, balance %s\n", w.ID, w.UserID, w.Balance.StringFixed(2))
	return nil
}

func verifyLedger(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	e, err := setup(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	var audits []wallet.Audit
	if verifyUserID != "" {
		a, err := e.ledger.Verify(ctx, verifyUserID)
		if err != nil {
			return fmt.Errorf("verify %s: %w", verifyUserID, err)
		}
		audits = []wallet.Audit{a}
	} else if audits, err = e.ledger.VerifyAll(ctx); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	var drifted []wallet.Audit
	for _, a := range audits {
		mark := "ok"
		if !a.Consistent {
			mark = "DRIFT"
			drifted = append(drifted, a)
		}
		fmt.Fprintf(out, "%-5s %s user=%s balance=%s replayed=%s txs=%d\n",
			mark, a.WalletID, a.UserID, a.Balance.StringFixed(2), a.Replayed.StringFixed(2), a.Transactions)
	}
	fmt.Fprintf(out, "%d wallets checked, %d drifted\n", len(audits), len(drifted))
	if len(drifted) == 0 {
		return nil
	}

	if verifyAlert {
		if !e.cfg.AlertsEnabled {
			e.logger.Warn().Msg("--alert ignored: ALERTS_ENABLED is off")
		} else {
			q := alerts.NewQueue(alerts.RedisOpt(e.cfg.RedisAddr), e.logger)
			defer q.Close()
			msg := fmt.Sprintf("%d of %d wallets do not match their transaction log; first: wallet %s (balance %s, replayed %s)",
				len(drifted), len(audits), drifted[0].WalletID, drifted[0].Balance.StringFixed(2), drifted[0].Replayed.StringFixed(2))
			if err := q.AdminAlert(ctx, alerts.SeverityCritical, "ledger drift", msg); err != nil {
				e.logger.Error().Err(err).Msg("admin alert not enqueued")
			}
		}
	}
	return fmt.Errorf("ledger drift in %d wallets", len(drifted))
}
