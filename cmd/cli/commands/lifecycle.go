package commands

import (
	"github.com/spf13/cobra"

	"github.com/inferloop/modelregistry/internal/server"
	"github.com/inferloop/modelregistry/pkg/models"
)

type PromoteOptions struct {
	Stage string
}

func NewPromoteCmd(global *GlobalOptions) *cobra.Command {
	opts := &PromoteOptions{}

	cmd := &cobra.Command{
		Use:   "promote RECORD_ID",
		Short: "Move a version to another stage",
		Long: `Promote a version to Production or Archived. Promoting to Production
archives the version currently in Production for the same name.`,
		Example: `  # Put a version into production
  modelreg promote 7c9e6679-7425-40de-944b-e07fc1f90ae7 --stage production`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stage, err := models.ParseStage(opts.Stage)
			if err != nil {
				return err
			}
			return global.withRegistry(cmd.Context(), func(c *server.Components) error {
				record, err := c.Registry.Promote(cmd.Context(), args[0], stage)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), record)
			})
		},
	}

	cmd.Flags().StringVarP(&opts.Stage, "stage", "s", string(models.StageProduction), "Target stage (production, archived)")

	return cmd
}

func NewArchiveCmd(global *GlobalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "archive RECORD_ID",
		Short: "Archive a version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return global.withRegistry(cmd.Context(), func(c *server.Components) error {
				record, err := c.Registry.Archive(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), record)
			})
		},
	}
}

type RecomputeOptions struct {
	HoldoutFile string
}

func NewRecomputeCmd(global *GlobalOptions) *cobra.Command {
	opts := &RecomputeOptions{}

	cmd := &cobra.Command{
		Use:   "recompute RECORD_ID",
		Short: "Re-evaluate a stored version against a new holdout",
		Example: `  # Refresh metrics after the holdout set changed
  modelreg recompute 7c9e6679-7425-40de-944b-e07fc1f90ae7 --holdout holdout-2024q3.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			holdout, err := loadDataset(opts.HoldoutFile)
			if err != nil {
				return err
			}
			return global.withRegistry(cmd.Context(), func(c *server.Components) error {
				record, err := c.Registry.RecomputeMetrics(cmd.Context(), args[0], holdout)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), record)
			})
		},
	}

	cmd.Flags().StringVar(&opts.HoldoutFile, "holdout", "", "Holdout dataset file (required)")
	cmd.MarkFlagRequired("holdout")

	return cmd
}
