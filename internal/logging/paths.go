package logging

import (
	"os"
	"path/filepath"
)

// DefaultLogDir returns the default log directory (~/.sentra-gateway/logs/).
// Falls back to the temp directory if the home directory is unavailable.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".sentra-gateway", "logs")
	}
	return filepath.Join(home, ".sentra-gateway", "logs")
}

// DefaultLogPath returns the default gateway log path.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "gateway.log")
}
