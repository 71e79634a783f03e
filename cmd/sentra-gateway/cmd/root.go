// Package cmd provides the CLI commands for the gateway.
package cmd

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/sentra-ai/sentra-gateway/internal/config"
	"github.com/sentra-ai/sentra-gateway/internal/logging"
	"github.com/sentra-ai/sentra-gateway/pkg/version"
)

var (
	configFile string
	debugMode  bool
)

// NewRootCmd creates the root command for the sentra-gateway CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sentra-gateway",
		Short: "HTTP gateway for the Sentra retrieval engine",
		Long: `sentra-gateway fronts the Sentra answer engine with a REST API:
query dispatch, document listing, ingestion and health reporting.

The engine itself stays an external process; the gateway manages its
invocation, the index artifacts and the ingestion pipeline around it.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			// .env is optional; missing files are fine
			_ = godotenv.Load()
			return nil
		},
	}

	cmd.SetVersionTemplate("sentra-gateway version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Config file path (default: sentra.yaml)")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newIngestCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	cmd := NewRootCmd()
	if err := cmd.Execute(); err != nil {
		cmd.PrintErrln("Error:", err)
		return err
	}
	return nil
}

// loadConfig loads the layered configuration honoring the --config and
// --debug flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	if debugMode {
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}

// setupLogging builds the slog logger from the loaded configuration.
func setupLogging(cfg *config.Config) (*slog.Logger, func(), error) {
	return logging.Setup(logging.Config{
		Level:         cfg.Logging.Level,
		FilePath:      cfg.Logging.File,
		MaxSizeMB:     cfg.Logging.MaxSizeMB,
		MaxFiles:      cfg.Logging.MaxFiles,
		WriteToStderr: true,
	})
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
