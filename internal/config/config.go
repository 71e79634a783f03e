// Package config loads and validates the gateway configuration.
//
// Configuration is layered: built-in defaults, then an optional YAML file
// (sentra.yaml), then SENTRA_* environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the config file name looked up in the working directory.
const DefaultConfigFile = "sentra.yaml"

// Config represents the complete gateway configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server" json:"server"`
	Paths     PathsConfig     `yaml:"paths" json:"paths"`
	Engine    EngineConfig    `yaml:"engine" json:"engine"`
	Ingest    IngestConfig    `yaml:"ingest" json:"ingest"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry" json:"telemetry"`
}

// ServerConfig configures the HTTP (and optional MCP) surface.
type ServerConfig struct {
	// Host is the bind address. Empty means all interfaces.
	Host string `yaml:"host" json:"host"`
	// Port is the HTTP listen port.
	Port int `yaml:"port" json:"port"`
	// MCP enables the MCP stdio transport alongside HTTP.
	MCP bool `yaml:"mcp" json:"mcp"`
}

// PathsConfig configures the on-disk layout shared with the engine.
type PathsConfig struct {
	// DataDir holds the plain-text documents the engine indexes.
	DataDir string `yaml:"data_dir" json:"data_dir"`
	// RawDir holds raw source files consumed by the extraction pipeline.
	RawDir string `yaml:"raw_dir" json:"raw_dir"`
	// ArtifactsDir holds the opaque index artifact and the metadata catalog.
	ArtifactsDir string `yaml:"artifacts_dir" json:"artifacts_dir"`
}

// IndexPath returns the path of the opaque index artifact.
func (p PathsConfig) IndexPath() string {
	return filepath.Join(p.ArtifactsDir, "index.bin")
}

// MetadataPath returns the path of the metadata catalog artifact.
func (p PathsConfig) MetadataPath() string {
	return filepath.Join(p.ArtifactsDir, "metadata.json")
}

// EngineConfig configures the external answer engine.
type EngineConfig struct {
	// Binary is the path to the engine executable.
	Binary string `yaml:"binary" json:"binary"`
	// WorkDir is the directory the engine runs in (it resolves data/
	// and artifacts/ relative to this).
	WorkDir string `yaml:"work_dir" json:"work_dir"`
	// Sentinel is the prompt marker preceding each answer in engine output.
	Sentinel string `yaml:"sentinel" json:"sentinel"`
	// ExitToken is the line that makes the engine exit its read loop.
	ExitToken string `yaml:"exit_token" json:"exit_token"`
	// Timeout bounds a single query dispatch.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
	// PoolSize is the number of long-lived engine workers. Zero disables
	// the pool and spawns one process per query.
	PoolSize int `yaml:"pool_size" json:"pool_size"`
}

// IngestConfig configures the text-extraction pipeline.
type IngestConfig struct {
	// Command is the external pipeline argv. Empty means the built-in
	// extractor is used.
	Command []string `yaml:"command" json:"command"`
	// Timeout bounds a pipeline run. Zero means no deadline.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level     string `yaml:"level" json:"level"`
	File      string `yaml:"file" json:"file"`
	MaxSizeMB int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files" json:"max_files"`
}

// TelemetryConfig configures the local query telemetry store.
type TelemetryConfig struct {
	// Enabled turns the SQLite-backed query log on.
	Enabled bool `yaml:"enabled" json:"enabled"`
	// DBPath is the telemetry database path.
	DBPath string `yaml:"db_path" json:"db_path"`
}

// DefaultConfig returns the configuration defaults, matching the engine's
// own conventions (data/, artifacts/ relative to its working directory).
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 8000,
		},
		Paths: PathsConfig{
			DataDir:      "data",
			RawDir:       "data_raw",
			ArtifactsDir: "artifacts",
		},
		Engine: EngineConfig{
			Binary:    "./sentra",
			WorkDir:   ".",
			Sentinel:  "SentraAI>",
			ExitToken: "exit",
			Timeout:   30 * time.Second,
			PoolSize:  0,
		},
		Ingest: IngestConfig{
			Timeout: 0,
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSizeMB: 10,
			MaxFiles:  5,
		},
		Telemetry: TelemetryConfig{
			Enabled: false,
			DBPath:  filepath.Join("artifacts", "telemetry.db"),
		},
	}
}

// Load reads configuration from the given path (or DefaultConfigFile when
// empty), applies environment overrides, and validates the result.
// A missing config file is not an error: defaults plus env apply.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	explicit := path != ""
	if path == "" {
		path = DefaultConfigFile
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case os.IsNotExist(err) && !explicit:
		// Defaults only.
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in [1, 65535], got %d", c.Server.Port)
	}
	if c.Engine.Sentinel == "" {
		return fmt.Errorf("engine.sentinel must not be empty")
	}
	if c.Engine.Timeout <= 0 {
		return fmt.Errorf("engine.timeout must be positive, got %s", c.Engine.Timeout)
	}
	if c.Engine.PoolSize < 0 {
		return fmt.Errorf("engine.pool_size must not be negative, got %d", c.Engine.PoolSize)
	}
	if c.Ingest.Timeout < 0 {
		return fmt.Errorf("ingest.timeout must not be negative, got %s", c.Ingest.Timeout)
	}
	return nil
}

// applyEnvOverrides applies SENTRA_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("SENTRA_HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("SENTRA_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("SENTRA_DATA_DIR"); v != "" {
		c.Paths.DataDir = v
	}
	if v := os.Getenv("SENTRA_RAW_DIR"); v != "" {
		c.Paths.RawDir = v
	}
	if v := os.Getenv("SENTRA_ARTIFACTS_DIR"); v != "" {
		c.Paths.ArtifactsDir = v
	}
	if v := os.Getenv("SENTRA_ENGINE_BINARY"); v != "" {
		c.Engine.Binary = v
	}
	if v := os.Getenv("SENTRA_ENGINE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Engine.Timeout = d
		}
	}
	if v := os.Getenv("SENTRA_ENGINE_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Engine.PoolSize = n
		}
	}
	if v := os.Getenv("SENTRA_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("SENTRA_LOG_FILE"); v != "" {
		c.Logging.File = v
	}
	if v := os.Getenv("SENTRA_TELEMETRY"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Telemetry.Enabled = b
		}
	}
}

// ListenAddr returns the host:port string the HTTP server binds to.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
