package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/inferloop/modelregistry/internal/inference"
	"github.com/inferloop/modelregistry/internal/pipeline"
	"github.com/inferloop/modelregistry/internal/server"
	"github.com/inferloop/modelregistry/pkg/models"
)

type RegisterOptions struct {
	Name             string
	ModelType        string
	ModelFile        string
	HoldoutFile      string
	TrainingDataFile string
	Fingerprint      string
}

func NewRegisterCmd(global *GlobalOptions) *cobra.Command {
	opts := &RegisterOptions{}

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a trained model as a new Staging version",
		Long: `Evaluate a serialized model against a holdout dataset and register it as
the next version of the named model. New versions always start in Staging.`,
		Example: `  # Register a regression model
  modelreg register --name sales_predictor --type regression \
    --model model.json --holdout holdout.json --training-data train.json

  # Register an opaque model without metrics
  modelreg register --name embeddings --type other --model model.json --fingerprint job-42`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRegister(cmd, global, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Name, "name", "n", "", "Model name (required)")
	cmd.Flags().StringVarP(&opts.ModelType, "type", "t", "", "Model type: regression, classification or other (required)")
	cmd.Flags().StringVarP(&opts.ModelFile, "model", "m", "", "Serialized model file (required)")
	cmd.Flags().StringVar(&opts.HoldoutFile, "holdout", "", "Holdout dataset file")
	cmd.Flags().StringVar(&opts.TrainingDataFile, "training-data", "", "Training dataset file used to derive the fingerprint")
	cmd.Flags().StringVar(&opts.Fingerprint, "fingerprint", "", "Explicit training fingerprint")

	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("type")
	cmd.MarkFlagRequired("model")

	return cmd
}

func runRegister(cmd *cobra.Command, global *GlobalOptions, opts *RegisterOptions) error {
	modelType, err := models.ParseModelType(opts.ModelType)
	if err != nil {
		return err
	}

	artifact, err := os.ReadFile(opts.ModelFile)
	if err != nil {
		return fmt.Errorf("failed to read model: %w", err)
	}

	codec := inference.NewJSONCodec()
	model, err := codec.Decode(artifact)
	if err != nil {
		return err
	}

	result := pipeline.TrainingResult{
		Name:                opts.Name,
		ModelType:           modelType,
		Model:               model,
		TrainingFingerprint: opts.Fingerprint,
	}

	if opts.HoldoutFile != "" {
		if result.Holdout, err = loadDataset(opts.HoldoutFile); err != nil {
			return err
		}
	}
	if opts.TrainingDataFile != "" {
		training, err := loadDataset(opts.TrainingDataFile)
		if err != nil {
			return err
		}
		result.TrainingData = &training
	}

	return global.withRegistry(cmd.Context(), func(c *server.Components) error {
		submitter := pipeline.NewSubmitter(c.Registry, codec, global.logger())
		record, err := submitter.Submit(cmd.Context(), result)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), record)
	})
}
