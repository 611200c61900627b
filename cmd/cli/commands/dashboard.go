package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/inferloop/modelregistry/internal/observability/metrics/dashboards"
)

type DashboardOptions struct {
	Namespace string
}

func NewDashboardCmd(global *GlobalOptions) *cobra.Command {
	opts := &DashboardOptions{}

	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Print a Grafana dashboard for the registry metrics",
		Example: `  # Import into Grafana
  modelreg dashboard > model-registry.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			namespace := opts.Namespace
			if namespace == "" {
				cfg, err := global.loadConfig()
				if err != nil {
					return err
				}
				namespace = cfg.Metrics.Namespace
			}

			content, err := dashboards.RegistryDashboard(namespace).ToJSON()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(content))
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Namespace, "namespace", "", "Metric namespace (defaults to metrics.namespace)")

	return cmd
}
