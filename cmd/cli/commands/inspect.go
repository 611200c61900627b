package commands

import (
	"fmt"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/inferloop/modelregistry/internal/query"
	"github.com/inferloop/modelregistry/internal/server"
	"github.com/inferloop/modelregistry/pkg/errors"
	"github.com/inferloop/modelregistry/pkg/models"
)

type ListOptions struct {
	Output string
}

func NewListCmd(global *GlobalOptions) *cobra.Command {
	opts := &ListOptions{}

	cmd := &cobra.Command{
		Use:   "list [NAME]",
		Short: "List model names, or the versions of one model",
		Example: `  # Every registered model
  modelreg list

  # Version history of one model as JSON
  modelreg list sales_predictor --output json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return global.withRegistry(cmd.Context(), func(c *server.Components) error {
				if len(args) == 1 {
					return listVersions(cmd, c, args[0], opts)
				}
				return listNames(cmd, c, opts)
			})
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "table", "Output format (table, json)")

	return cmd
}

func listNames(cmd *cobra.Command, c *server.Components, opts *ListOptions) error {
	names, err := c.Registry.Names(cmd.Context())
	if err != nil {
		return err
	}
	sort.Strings(names)

	if opts.Output == "json" {
		return printJSON(cmd.OutOrStdout(), names)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tVERSIONS\tPRODUCTION")
	for _, name := range names {
		versions, err := c.Registry.ListVersions(cmd.Context(), name)
		if err != nil {
			return err
		}
		production := "-"
		for _, v := range versions {
			if v.Stage == models.StageProduction {
				production = fmt.Sprintf("v%d", v.Version)
			}
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\n", name, len(versions), production)
	}
	return tw.Flush()
}

func listVersions(cmd *cobra.Command, c *server.Components, name string, opts *ListOptions) error {
	versions, err := query.NewFacade(c.Registry).History(cmd.Context(), name)
	if err != nil {
		return err
	}

	if opts.Output == "json" {
		return printJSON(cmd.OutOrStdout(), versions)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tSTAGE\tTYPE\tID\tCREATED")
	for _, v := range versions {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", v.Version, v.Stage, v.ModelType, v.ID, v.CreatedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}

func NewGetCmd(global *GlobalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get RECORD_ID",
		Short: "Show one version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return global.withRegistry(cmd.Context(), func(c *server.Components) error {
				record, err := c.Registry.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), record)
			})
		},
	}
}

func NewProductionCmd(global *GlobalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "production NAME",
		Short: "Show the version of a model currently in Production",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return global.withRegistry(cmd.Context(), func(c *server.Components) error {
				record, ok, err := c.Registry.GetProduction(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if !ok {
					return errors.NewNotFoundError(errors.CodeRecordNotFound,
						fmt.Sprintf("model %q has no production version", args[0]))
				}
				return printJSON(cmd.OutOrStdout(), record)
			})
		},
	}
}

func NewCompareCmd(global *GlobalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "compare RECORD_A RECORD_B",
		Short: "Compare the shared metrics of two versions",
		Long: `Print every metric both versions carry with the delta B - A.
Versions of different model types cannot be compared.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return global.withRegistry(cmd.Context(), func(c *server.Components) error {
				diff, err := query.NewFacade(c.Registry).Diff(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}

				names := make([]string, 0, len(diff))
				for name := range diff {
					names = append(names, name)
				}
				sort.Strings(names)

				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "METRIC\tA\tB\tDELTA")
				for _, name := range names {
					m := diff[name]
					fmt.Fprintf(tw, "%s\t%.6g\t%.6g\t%+.6g\n", name, m.A, m.B, m.Delta)
				}
				return tw.Flush()
			})
		},
	}
}

func NewSnapshotCmd(global *GlobalOptions) *cobra.Command {
	opts := &ListOptions{}

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Show the Production version of every model",
		RunE: func(cmd *cobra.Command, args []string) error {
			return global.withRegistry(cmd.Context(), func(c *server.Components) error {
				snapshot, err := query.NewFacade(c.Registry).ProductionSnapshot(cmd.Context())
				if err != nil {
					return err
				}

				if opts.Output == "json" {
					return printJSON(cmd.OutOrStdout(), snapshot)
				}

				names := make([]string, 0, len(snapshot))
				for name := range snapshot {
					names = append(names, name)
				}
				sort.Strings(names)

				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "NAME\tVERSION\tID\tPROMOTED")
				for _, name := range names {
					record := snapshot[name]
					if record == nil {
						fmt.Fprintf(tw, "%s\t-\t-\t-\n", name)
						continue
					}
					promoted := "-"
					if record.PromotedAt != nil {
						promoted = record.PromotedAt.Format(time.RFC3339)
					}
					fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", name, record.Version, record.ID, promoted)
				}
				return tw.Flush()
			})
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "table", "Output format (table, json)")

	return cmd
}

type PredictOptions struct {
	FeaturesFile string
}

func NewPredictCmd(global *GlobalOptions) *cobra.Command {
	opts := &PredictOptions{}

	cmd := &cobra.Command{
		Use:   "predict RECORD_ID",
		Short: "Score feature rows with a stored version",
		Example: `  # features.json holds [[1.0, 2.0], [0.5, 3.0]]
  modelreg predict 7c9e6679-7425-40de-944b-e07fc1f90ae7 --features features.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var rows [][]float64
			if err := readJSONFile(opts.FeaturesFile, &rows); err != nil {
				return err
			}
			return global.withRegistry(cmd.Context(), func(c *server.Components) error {
				predictions, err := c.Registry.Predict(cmd.Context(), args[0], rows)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), predictions)
			})
		},
	}

	cmd.Flags().StringVarP(&opts.FeaturesFile, "features", "f", "", "JSON file with feature rows (required)")
	cmd.MarkFlagRequired("features")

	return cmd
}
