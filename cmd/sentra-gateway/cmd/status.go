package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sentra-ai/sentra-gateway/internal/engine"
	"github.com/sentra-ai/sentra-gateway/internal/lifecycle"
	"github.com/sentra-ai/sentra-gateway/internal/output"
)

func newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index and engine status",
		Long: `Display the current state of the gateway's shared artifacts:
whether the index is built, how many chunks it holds, its size on
disk and whether the engine binary is reachable.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runStatus(cmd *cobra.Command, jsonOutput bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	manager := lifecycle.NewManager(
		cfg.Paths.IndexPath(), cfg.Paths.MetadataPath(),
		cfg.Paths.DataDir, cfg.Paths.ArtifactsDir)

	state := manager.Status()
	health := manager.Healthy(engine.ResolveBinaryPath(cfg.Engine.Binary, cfg.Engine.WorkDir))

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			lifecycle.State
			lifecycle.Health
		}{state, health})
	}

	out := output.New(cmd.OutOrStdout())
	out.Header("Sentra Gateway Status")
	out.Newline()
	out.Field("status", string(health.Status))
	out.Field("index_loaded", fmt.Sprintf("%t", health.IndexLoaded))
	out.Field("binary_found", fmt.Sprintf("%t", health.BinaryFound))
	out.Field("chunks", fmt.Sprintf("%d", state.ChunkCount))
	out.Field("index_size", fmt.Sprintf("%d bytes", state.SizeBytes))
	out.Field("data_dir", health.DataDir)
	out.Field("artifacts_dir", health.ArtifactsDir)

	if !health.IndexLoaded {
		out.Newline()
		out.Warning("index not built, it will be rebuilt on the next query")
	}
	if !health.BinaryFound {
		out.Warning(fmt.Sprintf("engine binary %s not found", cfg.Engine.Binary))
	}
	return nil
}
