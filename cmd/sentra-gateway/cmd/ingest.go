package cmd

import (
	"github.com/spf13/cobra"

	gwerrors "github.com/sentra-ai/sentra-gateway/internal/errors"
	"github.com/sentra-ai/sentra-gateway/internal/ingest"
	"github.com/sentra-ai/sentra-gateway/internal/lifecycle"
	"github.com/sentra-ai/sentra-gateway/internal/output"
)

func newIngestCmd() *cobra.Command {
	var showOutput bool

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Run the ingestion pipeline and invalidate the index",
		Long: `Run the text-extraction pipeline over the raw document directory,
then remove the index artifacts so the engine rebuilds on the next query.

The same file lock the server holds protects against overlapping runs,
so this is safe to invoke while the gateway is serving.`,
		Example: `  # Ingest with the built-in extractor
  sentra-gateway ingest

  # Show the pipeline's full output
  sentra-gateway ingest --show-output`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runIngest(cmd, showOutput)
		},
	}

	cmd.Flags().BoolVar(&showOutput, "show-output", false, "Print the pipeline's captured output")

	return cmd
}

func runIngest(cmd *cobra.Command, showOutput bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, cleanup, err := setupLogging(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	out := output.New(cmd.OutOrStdout())

	manager := lifecycle.NewManager(
		cfg.Paths.IndexPath(), cfg.Paths.MetadataPath(),
		cfg.Paths.DataDir, cfg.Paths.ArtifactsDir)

	coordinator := ingest.NewCoordinator(
		buildRunner(cfg, logger), manager,
		cfg.Paths.ArtifactsDir, cfg.Ingest.Timeout, logger)

	report, err := coordinator.Run(cmd.Context())
	if err != nil {
		if pipelineOutput := gwerrors.Output(err); pipelineOutput != "" {
			out.Error(gwerrors.Detail(err))
			out.Code(pipelineOutput)
			return err
		}
		return err
	}

	out.Success(report.Message)
	if showOutput && report.Output != "" {
		out.Code(report.Output)
	}
	return nil
}
