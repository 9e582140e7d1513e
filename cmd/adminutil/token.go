package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sudo-init-do/chefbid/internal/auth"
	"github.com/sudo-init-do/chefbid/internal/config"
)

var tokenTTL time.Duration

var issueTokenCmd = &cobra.Command{
	Use:   "issue-token [user-id] [customer|chef|admin]",
	Short: "Sign a bearer token with JWT_SECRET for local testing",
	Long: `Tokens are normally issued by the identity provider. This signs one with the
shared secret so the API and websocket can be exercised without it.`,
	Args: cobra.ExactArgs(2),
	RunE: issueToken,
}

func init() {
	issueTokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
}

func issueToken(cmd *cobra.Command, args []string) error {
	role := auth.Role(args[1])
	if !role.Valid() {
		return fmt.Errorf("unknown role %q", args[1])
	}
	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}
	token, err := auth.NewJWTResolver(cfg.JWTSecret).Issue(args[0], role, tokenTTL)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
