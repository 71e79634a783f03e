// Package extract converts a directory of raw source files into the
// plain-text directory the engine indexes: one .txt output per accepted
// source, unsupported types skipped with a log line per decision.
package extract

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Action records what the pipeline did with one source file.
type Action string

const (
	// ActionExtracted means text was extracted from a binary format.
	ActionExtracted Action = "extracted"
	// ActionCopied means the file was already plain text and copied.
	ActionCopied Action = "copied"
	// ActionSkipped means the file type is unsupported.
	ActionSkipped Action = "skipped"
	// ActionFailed means extraction was attempted and failed.
	ActionFailed Action = "failed"
)

// FileResult is the per-file outcome of a pipeline run.
type FileResult struct {
	Source string `json:"source"`
	Output string `json:"output,omitempty"`
	Action Action `json:"action"`
	Err    string `json:"error,omitempty"`
}

// Pipeline converts raw files to plain text.
type Pipeline struct {
	rawDir string
	outDir string
	logger *slog.Logger
}

// NewPipeline creates a pipeline reading rawDir and writing outDir.
func NewPipeline(rawDir, outDir string, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{rawDir: rawDir, outDir: outDir, logger: logger}
}

// Run processes every regular file in the raw directory. Individual file
// failures do not abort the run; they are reported in the results. The run
// itself fails only when the directories cannot be used at all.
func (p *Pipeline) Run() ([]FileResult, error) {
	if err := os.MkdirAll(p.rawDir, 0o755); err != nil {
		return nil, fmt.Errorf("create raw directory: %w", err)
	}
	if err := os.MkdirAll(p.outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	entries, err := os.ReadDir(p.rawDir)
	if err != nil {
		return nil, fmt.Errorf("read raw directory: %w", err)
	}

	var results []FileResult
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		results = append(results, p.processFile(entry.Name()))
	}
	return results, nil
}

// processFile converts one raw file, choosing the handler by extension.
func (p *Pipeline) processFile(name string) FileResult {
	srcPath := filepath.Join(p.rawDir, name)
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	outPath := filepath.Join(p.outDir, stem+".txt")

	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		text, err := extractPDFText(srcPath)
		if err != nil {
			p.logger.Warn("pdf extraction failed", "file", name, "error", err)
			return FileResult{Source: name, Action: ActionFailed, Err: err.Error()}
		}
		if err := os.WriteFile(outPath, []byte(text), 0o644); err != nil {
			return FileResult{Source: name, Action: ActionFailed, Err: err.Error()}
		}
		p.logger.Info("extracted pdf", "file", name, "output", outPath)
		return FileResult{Source: name, Output: outPath, Action: ActionExtracted}

	case ".txt", ".md":
		data, err := os.ReadFile(srcPath)
		if err != nil {
			return FileResult{Source: name, Action: ActionFailed, Err: err.Error()}
		}
		if err := os.WriteFile(outPath, data, 0o644); err != nil {
			return FileResult{Source: name, Action: ActionFailed, Err: err.Error()}
		}
		p.logger.Info("copied text file", "file", name, "output", outPath)
		return FileResult{Source: name, Output: outPath, Action: ActionCopied}

	default:
		p.logger.Info("skipping unsupported file type", "file", name)
		return FileResult{Source: name, Action: ActionSkipped}
	}
}

// Summary renders a human-readable report of a run, used for the ingest
// endpoint's output field and the CLI.
func Summary(results []FileResult) string {
	var sb strings.Builder
	for _, r := range results {
		switch r.Action {
		case ActionExtracted:
			fmt.Fprintf(&sb, "[PDF] %s -> %s\n", r.Source, r.Output)
		case ActionCopied:
			fmt.Fprintf(&sb, "[TXT] %s -> %s\n", r.Source, r.Output)
		case ActionSkipped:
			fmt.Fprintf(&sb, "[SKIP] Unsupported file type: %s\n", r.Source)
		case ActionFailed:
			fmt.Fprintf(&sb, "[FAIL] %s: %s\n", r.Source, r.Err)
		}
	}
	return sb.String()
}
