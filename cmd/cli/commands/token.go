package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/inferloop/modelregistry/internal/api"
)

type TokenOptions struct {
	Subject string
	Scopes  []string
	TTL     time.Duration
}

func NewTokenCmd(global *GlobalOptions) *cobra.Command {
	opts := &TokenOptions{}

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an API token signed with the configured secret",
		Example: `  # Token for a training pipeline that registers and promotes models
  modelreg token --subject ci-pipeline --scope registry:write --ttl 720h`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := global.loadConfig()
			if err != nil {
				return err
			}
			if cfg.Server.Auth.JWTSecret == "" {
				return fmt.Errorf("server.auth.jwt_secret is not configured")
			}

			ttl := opts.TTL
			if !cmd.Flags().Changed("ttl") {
				ttl = cfg.Server.Auth.TokenTTL
			}

			token, err := api.IssueToken([]byte(cfg.Server.Auth.JWTSecret), opts.Subject, opts.Scopes, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Subject, "subject", "", "Token subject (required)")
	cmd.Flags().StringSliceVar(&opts.Scopes, "scope", []string{api.ScopeWrite}, "Granted scopes")
	cmd.Flags().DurationVar(&opts.TTL, "ttl", 0, "Token lifetime (defaults to server.auth.token_ttl, 0 for no expiry)")
	cmd.MarkFlagRequired("subject")

	return cmd
}
