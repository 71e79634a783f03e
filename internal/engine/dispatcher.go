// Package engine dispatches questions to the external answer engine through
// its line-oriented stdin/stdout protocol. The engine is opaque: the gateway
// writes a question plus an exit token and extracts the answer between the
// prompt sentinel and the next blank line.
package engine

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/sentra-ai/sentra-gateway/internal/errors"
)

// Defaults matching the reference engine.
const (
	// DefaultSentinel is the prompt marker preceding each answer.
	DefaultSentinel = "SentraAI>"
	// DefaultExitToken makes the engine leave its read loop.
	DefaultExitToken = "exit"
	// DefaultTimeout bounds a single dispatch.
	DefaultTimeout = 30 * time.Second
	// NoResponseAnswer is returned to clients when the engine produced no
	// parseable answer.
	NoResponseAnswer = "No response from engine"
)

// BuildHint tells the operator how to obtain the engine executable.
const BuildHint = "build the engine first: g++ -std=c++17 main.cpp -o sentra"

// Config configures a Dispatcher.
type Config struct {
	// Binary is the engine executable, a path or a name resolved via PATH.
	Binary string
	// WorkDir is the working directory for the engine process.
	WorkDir string
	// Sentinel is the prompt marker preceding each answer.
	Sentinel string
	// ExitToken terminates the engine's read loop.
	ExitToken string
	// Timeout bounds a single dispatch.
	Timeout time.Duration
}

// withDefaults fills zero fields with the reference defaults.
func (c Config) withDefaults() Config {
	if c.Sentinel == "" {
		c.Sentinel = DefaultSentinel
	}
	if c.ExitToken == "" {
		c.ExitToken = DefaultExitToken
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}

// Result is the outcome of a successful dispatch.
type Result struct {
	// Answer is the extracted answer text.
	Answer string `json:"answer"`
	// Sources lists originating source identifiers when the engine
	// reports them. The reference engine does not, so it is usually nil.
	Sources []string `json:"sources,omitempty"`
	// NoResponse marks that the engine produced no parseable answer.
	// This is not an error: the caller shows a generic message instead.
	NoResponse bool `json:"-"`
}

// Dispatcher invokes the engine as an isolated process per call.
type Dispatcher struct {
	cfg Config

	// For testing: override command execution and binary lookup.
	execCommand func(ctx context.Context, name string, args ...string) *exec.Cmd
	lookPath    func(file string) (string, error)
}

// NewDispatcher creates a process-per-query dispatcher.
func NewDispatcher(cfg Config) *Dispatcher {
	return &Dispatcher{
		cfg:         cfg.withDefaults(),
		execCommand: exec.CommandContext,
		lookPath:    exec.LookPath,
	}
}

// Dispatch sends a question to the engine and returns the extracted answer.
// Empty or whitespace-only questions are rejected before the engine is
// touched. On timeout the spawned process is killed, never leaked.
// No retries: a failed dispatch is reported as-is.
func (d *Dispatcher) Dispatch(ctx context.Context, question string) (Result, error) {
	if strings.TrimSpace(question) == "" {
		return Result{}, errors.Validation("question cannot be empty")
	}

	binary, err := d.resolveBinary()
	if err != nil {
		return Result{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	cmd := d.execCommand(ctx, binary)
	cmd.Dir = d.cfg.WorkDir
	cmd.Stdin = strings.NewReader(question + "\n" + d.cfg.ExitToken + "\n")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	if ctx.Err() != nil {
		// CommandContext has already killed the process.
		if ctx.Err() == context.DeadlineExceeded {
			return Result{}, errors.Timeout("query timeout", ctx.Err()).
				WithDetail("timeout", d.cfg.Timeout.String())
		}
		return Result{}, errors.Internal("query canceled", ctx.Err())
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			// The process never ran: missing binary, permissions, fork
			// failure. A non-zero exit falls through to parsing, since
			// the reference engine answers before exiting its loop.
			if errors.Is(runErr, exec.ErrNotFound) || os.IsNotExist(runErr) {
				return Result{}, d.unavailable(runErr)
			}
			return Result{}, errors.EngineFailure("engine invocation failed: "+runErr.Error(), runErr).
				WithOutput(stderr.String())
		}
	}

	return d.parse(stdout.String()), nil
}

// resolveBinary locates the engine executable, surfacing a remediation hint
// when it is missing.
func (d *Dispatcher) resolveBinary() (string, error) {
	binary := ResolveBinaryPath(d.cfg.Binary, d.cfg.WorkDir)
	if strings.ContainsRune(binary, os.PathSeparator) {
		if _, err := os.Stat(binary); err != nil {
			return "", d.unavailable(err)
		}
		return binary, nil
	}
	path, err := d.lookPath(binary)
	if err != nil {
		return "", d.unavailable(err)
	}
	return path, nil
}

// ResolveBinaryPath returns the path to stat for the given binary and
// engine working directory. The spawned process resolves relative paths
// against its working directory, not the gateway's, so presence checks
// must look in the same place. Bare names pass through for PATH lookup.
func ResolveBinaryPath(binary, workDir string) string {
	if binary == "" || !strings.ContainsRune(binary, os.PathSeparator) {
		return binary
	}
	if filepath.IsAbs(binary) {
		return binary
	}
	joined := filepath.Join(workDir, binary)
	if abs, err := filepath.Abs(joined); err == nil {
		return abs
	}
	return joined
}

func (d *Dispatcher) unavailable(cause error) error {
	return errors.EngineUnavailable("engine binary not found", cause).
		WithDetail("binary", d.cfg.Binary).
		WithSuggestion(BuildHint)
}

// parse extracts the answer from raw engine output: everything between the
// first sentinel occurrence and the next blank line, trimmed. No sentinel
// yields a NoResponse result, not an error.
func (d *Dispatcher) parse(output string) Result {
	idx := strings.Index(output, d.cfg.Sentinel)
	if idx < 0 {
		return Result{Answer: NoResponseAnswer, NoResponse: true}
	}

	answer := output[idx+len(d.cfg.Sentinel):]
	if end := strings.Index(answer, "\n\n"); end >= 0 {
		answer = answer[:end]
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return Result{Answer: NoResponseAnswer, NoResponse: true}
	}
	return Result{Answer: answer}
}
