package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/inferloop/modelregistry/internal/config"
	"github.com/inferloop/modelregistry/internal/events"
	"github.com/inferloop/modelregistry/internal/migration"
	"github.com/inferloop/modelregistry/internal/server"
)

type MigrateOptions struct {
	From         string
	DryRun       bool
	SkipExisting bool
}

func NewMigrateCmd(global *GlobalOptions) *cobra.Command {
	opts := &MigrateOptions{}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Copy every model from another registry configuration",
		Long: `Copy all records and artifacts from the backends described by --from into
the configured backends. Versions, stages and ids are preserved, and the
version counter of each model continues where the source left off.`,
		Example: `  # Move a local sqlite registry into PostgreSQL and S3
  modelreg migrate --from ~/.modelregistry.yaml --config production.yaml

  # See what would be copied
  modelreg migrate --from old.yaml --dry-run`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd, global, opts)
		},
	}

	cmd.Flags().StringVar(&opts.From, "from", "", "Configuration file of the source registry (required)")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Report what would be copied without writing")
	cmd.Flags().BoolVar(&opts.SkipExisting, "skip-existing", false, "Skip models that already have records in the target")
	cmd.MarkFlagRequired("from")

	return cmd
}

func runMigrate(cmd *cobra.Command, global *GlobalOptions, opts *MigrateOptions) error {
	sourceCfg, err := config.Load(opts.From)
	if err != nil {
		return fmt.Errorf("failed to load source configuration: %w", err)
	}
	sourceCfg.Metrics.Enabled = false
	sourceCfg.Events.Backend = events.BackendNone

	logger := global.logger()
	source, err := server.Bootstrap(cmd.Context(), sourceCfg, logger)
	if err != nil {
		return fmt.Errorf("failed to open source registry: %w", err)
	}
	defer source.Close()

	return global.withRegistry(cmd.Context(), func(target *server.Components) error {
		migrator := migration.NewMigrator(
			migration.Backends{Records: source.Records, Artifacts: source.Artifacts},
			migration.Backends{Records: target.Records, Artifacts: target.Artifacts},
			migration.Options{DryRun: opts.DryRun, SkipExisting: opts.SkipExisting},
			logger,
		)

		result, err := migrator.Run(cmd.Context())
		if result != nil {
			if printErr := printJSON(cmd.OutOrStdout(), result); printErr != nil && err == nil {
				err = printErr
			}
		}
		return err
	})
}
