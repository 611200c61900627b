package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/inferloop/modelregistry/cmd/cli/commands"
)

// Version is set at build time
var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	global := &commands.GlobalOptions{}

	rootCmd := &cobra.Command{
		Use:   "modelreg",
		Short: "Model registry command-line interface",
		Long: `A command-line interface for registering, promoting, comparing and
inspecting versions of trained models.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&global.ConfigFile, "config", "", "config file (default is $HOME/.modelregistry.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&global.Verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(commands.NewRegisterCmd(global))
	rootCmd.AddCommand(commands.NewPromoteCmd(global))
	rootCmd.AddCommand(commands.NewArchiveCmd(global))
	rootCmd.AddCommand(commands.NewRecomputeCmd(global))
	rootCmd.AddCommand(commands.NewGetCmd(global))
	rootCmd.AddCommand(commands.NewListCmd(global))
	rootCmd.AddCommand(commands.NewProductionCmd(global))
	rootCmd.AddCommand(commands.NewCompareCmd(global))
	rootCmd.AddCommand(commands.NewSnapshotCmd(global))
	rootCmd.AddCommand(commands.NewPredictCmd(global))
	rootCmd.AddCommand(commands.NewFingerprintCmd())
	rootCmd.AddCommand(commands.NewTokenCmd(global))
	rootCmd.AddCommand(commands.NewMigrateCmd(global))
	rootCmd.AddCommand(commands.NewDashboardCmd(global))

	return rootCmd
}
