// Package preflight validates the environment before the gateway serves
// traffic. The doctor command runs the full set; serve runs the critical
// subset and refuses to start on a required failure.
package preflight

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/sentra-ai/sentra-gateway/internal/catalog"
	"github.com/sentra-ai/sentra-gateway/internal/config"
	"github.com/sentra-ai/sentra-gateway/internal/engine"
	gwerrors "github.com/sentra-ai/sentra-gateway/internal/errors"
)

// CheckStatus represents the result of a preflight check.
type CheckStatus int

const (
	// StatusPass indicates the check passed successfully.
	StatusPass CheckStatus = iota
	// StatusWarn indicates a non-critical warning.
	StatusWarn
	// StatusFail indicates the check failed.
	StatusFail
)

// String returns the string representation of a CheckStatus.
func (s CheckStatus) String() string {
	switch s {
	case StatusPass:
		return "PASS"
	case StatusWarn:
		return "WARN"
	case StatusFail:
		return "FAIL"
	default:
		return "UNKNOWN"
	}
}

// CheckResult holds the result of a single preflight check.
type CheckResult struct {
	Name     string      `json:"name"`
	Status   CheckStatus `json:"status"`
	Message  string      `json:"message"`
	Details  string      `json:"details,omitempty"`
	Required bool        `json:"required"`
}

// IsCritical returns true if this is a required check that failed.
func (r CheckResult) IsCritical() bool {
	return r.Required && r.Status == StatusFail
}

// Checker performs preflight validation against a gateway configuration.
type Checker struct {
	cfg      *config.Config
	verbose  bool
	output   io.Writer
	lookPath func(string) (string, error)
}

// Option configures a Checker.
type Option func(*Checker)

// WithVerbose enables verbose output.
func WithVerbose(verbose bool) Option {
	return func(c *Checker) {
		c.verbose = verbose
	}
}

// WithOutput sets the output writer.
func WithOutput(w io.Writer) Option {
	return func(c *Checker) {
		c.output = w
	}
}

// New creates a Checker for the given configuration.
func New(cfg *config.Config, opts ...Option) *Checker {
	c := &Checker{
		cfg:      cfg,
		output:   os.Stdout,
		lookPath: exec.LookPath,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RunAll runs every preflight check and returns the results.
func (c *Checker) RunAll(_ context.Context) []CheckResult {
	return []CheckResult{
		c.CheckEngineBinary(),
		c.CheckDataDirs(),
		c.CheckWritePermissions(c.cfg.Paths.ArtifactsDir),
		c.CheckCatalog(),
		c.CheckDiskSpace(c.cfg.Paths.DataDir),
	}
}

// HasCriticalFailures returns true if any required check failed.
func (c *Checker) HasCriticalFailures(results []CheckResult) bool {
	for _, r := range results {
		if r.IsCritical() {
			return true
		}
	}
	return false
}

// SummaryStatus returns a summary status string for the results.
func (c *Checker) SummaryStatus(results []CheckResult) string {
	hasWarnings := false
	hasCriticalFailure := false

	for _, r := range results {
		if r.IsCritical() {
			hasCriticalFailure = true
		}
		if r.Status == StatusWarn || (r.Status == StatusFail && !r.Required) {
			hasWarnings = true
		}
	}

	if hasCriticalFailure {
		return "failed"
	}
	if hasWarnings {
		return "ready_with_warnings"
	}
	return "ready"
}

// PrintResults prints check results to the configured output.
func (c *Checker) PrintResults(results []CheckResult) {
	_, _ = fmt.Fprintln(c.output, "Sentra Gateway System Check")
	_, _ = fmt.Fprintln(c.output, "===========================")
	_, _ = fmt.Fprintln(c.output)

	for _, r := range results {
		_, _ = fmt.Fprintf(c.output, "[%s] %s: %s\n", r.Status, r.Name, r.Message)
		if c.verbose && r.Details != "" {
			_, _ = fmt.Fprintf(c.output, "      %s\n", r.Details)
		}
	}

	_, _ = fmt.Fprintln(c.output)
	_, _ = fmt.Fprintf(c.output, "Status: %s\n", strings.ToUpper(c.SummaryStatus(results)))

	var warnings, errors []string
	for _, r := range results {
		if r.IsCritical() {
			errors = append(errors, r.Name+": "+r.Message)
		} else if r.Status == StatusWarn {
			warnings = append(warnings, r.Name+": "+r.Message)
		}
	}

	if len(errors) > 0 {
		_, _ = fmt.Fprintln(c.output)
		_, _ = fmt.Fprintf(c.output, "%d error(s):\n", len(errors))
		for _, e := range errors {
			_, _ = fmt.Fprintf(c.output, "  - %s\n", e)
		}
	}

	if len(warnings) > 0 {
		_, _ = fmt.Fprintln(c.output)
		_, _ = fmt.Fprintf(c.output, "%d warning(s):\n", len(warnings))
		for _, w := range warnings {
			_, _ = fmt.Fprintf(c.output, "  - %s\n", w)
		}
	}
}

// CheckEngineBinary verifies the configured engine binary exists. A missing
// binary is a warning, not a failure: the gateway serves every endpoint
// except queries without it.
func (c *Checker) CheckEngineBinary() CheckResult {
	result := CheckResult{
		Name:     "engine_binary",
		Required: false,
	}

	binary := engine.ResolveBinaryPath(c.cfg.Engine.Binary, c.cfg.Engine.WorkDir)
	if strings.ContainsRune(binary, os.PathSeparator) {
		if info, err := os.Stat(binary); err == nil && !info.IsDir() {
			result.Status = StatusPass
			result.Message = binary
			return result
		}
	} else if resolved, err := c.lookPath(binary); err == nil {
		result.Status = StatusPass
		result.Message = resolved
		return result
	}

	result.Status = StatusWarn
	result.Message = fmt.Sprintf("%s not found", binary)
	result.Details = "build the engine first: g++ -std=c++17 main.cpp -o sentra"
	return result
}

// CheckDataDirs verifies the data and artifacts directories exist, creating
// the artifacts directory if needed.
func (c *Checker) CheckDataDirs() CheckResult {
	result := CheckResult{
		Name:     "data_dirs",
		Required: true,
	}

	if info, err := os.Stat(c.cfg.Paths.DataDir); err != nil || !info.IsDir() {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("data directory missing: %s", c.cfg.Paths.DataDir)
		return result
	}
	if err := os.MkdirAll(c.cfg.Paths.ArtifactsDir, 0o755); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot create artifacts directory: %v", err)
		return result
	}

	result.Status = StatusPass
	result.Message = "OK"
	return result
}

// CheckWritePermissions checks the gateway can write into a directory.
func (c *Checker) CheckWritePermissions(path string) CheckResult {
	result := CheckResult{
		Name:     "write_permissions",
		Required: true,
	}

	testFile := filepath.Join(path, ".sentra-preflight-test")
	f, err := os.Create(testFile)
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("permission denied: %v", err)
		return result
	}
	_ = f.Close()
	_ = os.Remove(testFile)

	result.Status = StatusPass
	result.Message = "OK"
	return result
}

// CheckCatalog verifies the metadata catalog parses if present. A missing
// catalog is normal before the first ingestion; a corrupt one is not.
func (c *Checker) CheckCatalog() CheckResult {
	result := CheckResult{
		Name:     "catalog",
		Required: false,
	}

	store := catalog.NewStore(c.cfg.Paths.MetadataPath())
	snapshot, err := store.Load()
	switch {
	case err == nil:
		result.Status = StatusPass
		result.Message = fmt.Sprintf("%d documents", snapshot.Count())
	case gwerrors.Is(err, gwerrors.CatalogMissing("", nil)):
		result.Status = StatusWarn
		result.Message = "no catalog yet, run ingestion first"
	default:
		result.Status = StatusFail
		result.Message = fmt.Sprintf("catalog unreadable: %v", err)
	}
	return result
}
