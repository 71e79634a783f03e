// Package ingest coordinates runs of the text-extraction pipeline and the
// index invalidation that follows a successful run.
package ingest

import (
	"bytes"
	"context"
	"log/slog"
	"os/exec"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"github.com/sentra-ai/sentra-gateway/internal/errors"
	"github.com/sentra-ai/sentra-gateway/internal/extract"
	"github.com/sentra-ai/sentra-gateway/internal/lifecycle"
)

// SuccessMessage is returned after a completed run; the rebuild itself
// happens inside the engine on the next query.
const SuccessMessage = "Ingestion complete. Index will rebuild on next query."

// LockFileName is the cross-process ingestion lock, kept next to the
// artifacts so every gateway instance sharing them contends on it.
const LockFileName = ".ingest.lock"

// Runner executes the extraction pipeline and returns its captured output.
type Runner interface {
	Run(ctx context.Context) (output string, err error)
}

// Report is the outcome of an ingestion run.
type Report struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Output  string `json:"output"`
}

// Coordinator serializes ingestion runs and invalidates the index after a
// success. Failed runs leave the artifacts untouched.
type Coordinator struct {
	runner  Runner
	manager *lifecycle.Manager
	lock    *flock.Flock
	timeout time.Duration
	logger  *slog.Logger

	running atomic.Bool
}

// NewCoordinator creates a coordinator. timeout bounds a pipeline run;
// zero means no deadline.
func NewCoordinator(runner Runner, manager *lifecycle.Manager, artifactsDir string, timeout time.Duration, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		runner:  runner,
		manager: manager,
		lock:    flock.New(filepath.Join(artifactsDir, LockFileName)),
		timeout: timeout,
		logger:  logger,
	}
}

// Running reports whether a run is currently in progress in this process.
func (c *Coordinator) Running() bool {
	return c.running.Load()
}

// Run executes the pipeline once. A run already in progress (in this
// process or in another one holding the lock file) yields a conflict
// error; runs are never queued or overlapped.
func (c *Coordinator) Run(ctx context.Context) (Report, error) {
	if !c.running.CompareAndSwap(false, true) {
		return Report{}, errors.Conflict("ingestion already running")
	}
	defer c.running.Store(false)

	locked, err := c.lock.TryLock()
	if err != nil {
		return Report{}, errors.Internal("acquire ingestion lock", err)
	}
	if !locked {
		return Report{}, errors.Conflict("ingestion already running in another process")
	}
	defer func() { _ = c.lock.Unlock() }()

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	c.logger.Info("ingestion started")
	started := time.Now()

	output, err := c.runner.Run(ctx)
	if err != nil {
		c.logger.Error("ingestion failed", "error", err, "elapsed", time.Since(started))
		return Report{}, errors.IngestionFailed("Ingestion failed: "+err.Error(), err).
			WithOutput(output)
	}

	// Only a successful run invalidates: a failed pipeline must not
	// destroy the last good index.
	if err := c.manager.Invalidate(); err != nil {
		return Report{}, err
	}

	c.logger.Info("ingestion complete", "elapsed", time.Since(started))
	return Report{
		Status:  "success",
		Message: SuccessMessage,
		Output:  output,
	}, nil
}

// ExternalPipeline runs a configured pipeline command, capturing its
// combined output for diagnostics.
type ExternalPipeline struct {
	Argv    []string
	WorkDir string

	// For testing: override command execution.
	execCommand func(ctx context.Context, name string, args ...string) *exec.Cmd
}

// NewExternalPipeline creates a runner for the given argv.
func NewExternalPipeline(argv []string, workDir string) *ExternalPipeline {
	return &ExternalPipeline{
		Argv:        argv,
		WorkDir:     workDir,
		execCommand: exec.CommandContext,
	}
}

// Run implements Runner. A non-zero exit is an error carrying stderr.
func (p *ExternalPipeline) Run(ctx context.Context) (string, error) {
	cmd := p.execCommand(ctx, p.Argv[0], p.Argv[1:]...)
	cmd.Dir = p.WorkDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		out := stderr.String()
		if out == "" {
			out = stdout.String()
		}
		return out, err
	}
	return stdout.String(), nil
}

// NativePipeline runs the built-in extractor when no external pipeline
// command is configured.
type NativePipeline struct {
	pipeline *extract.Pipeline
}

// NewNativePipeline creates a runner around the built-in extractor.
func NewNativePipeline(rawDir, outDir string, logger *slog.Logger) *NativePipeline {
	return &NativePipeline{pipeline: extract.NewPipeline(rawDir, outDir, logger)}
}

// Run implements Runner.
func (p *NativePipeline) Run(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	results, err := p.pipeline.Run()
	if err != nil {
		return "", err
	}
	return extract.Summary(results), nil
}
