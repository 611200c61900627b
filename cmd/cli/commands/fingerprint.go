package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/inferloop/modelregistry/internal/evaluation"
)

func NewFingerprintCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fingerprint DATASET_FILE",
		Short: "Print the training fingerprint of a dataset",
		Long: `Print the fingerprint register derives from --training-data. Identical
datasets always produce the same fingerprint.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dataset, err := loadDataset(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), evaluation.Fingerprint(dataset))
			return nil
		},
	}
}
