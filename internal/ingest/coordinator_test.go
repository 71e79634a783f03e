package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentra-ai/sentra-gateway/internal/errors"
	"github.com/sentra-ai/sentra-gateway/internal/lifecycle"
)

// runnerFunc adapts a function to the Runner interface.
type runnerFunc func(ctx context.Context) (string, error)

func (f runnerFunc) Run(ctx context.Context) (string, error) { return f(ctx) }

type fixture struct {
	coordinator  *Coordinator
	manager      *lifecycle.Manager
	indexPath    string
	metadataPath string
}

func newFixture(t *testing.T, runner Runner, timeout time.Duration) *fixture {
	t.Helper()
	artifacts := t.TempDir()
	indexPath := filepath.Join(artifacts, "index.bin")
	metadataPath := filepath.Join(artifacts, "metadata.json")
	manager := lifecycle.NewManager(indexPath, metadataPath, filepath.Join(artifacts, "data"), artifacts)

	return &fixture{
		coordinator:  NewCoordinator(runner, manager, artifacts, timeout, nil),
		manager:      manager,
		indexPath:    indexPath,
		metadataPath: metadataPath,
	}
}

func (f *fixture) seedArtifacts(t *testing.T) {
	t.Helper()
	require.NoError(t, os.WriteFile(f.indexPath, []byte("index"), 0o644))
	require.NoError(t, os.WriteFile(f.metadataPath, []byte(`[{"id":"doc-0","source":"a.txt","content":"x"}]`), 0o644))
}

func TestRun_SuccessInvalidatesIndex(t *testing.T) {
	// Given: a ready index and a pipeline that succeeds
	f := newFixture(t, runnerFunc(func(ctx context.Context) (string, error) {
		return "[TXT] a.txt -> data/a.txt\n", nil
	}), 0)
	f.seedArtifacts(t)
	require.True(t, f.manager.Status().Ready)

	// When: running ingestion
	report, err := f.coordinator.Run(context.Background())
	require.NoError(t, err)

	// Then: artifacts are gone and the index is not ready until the
	// engine rebuilds on the next query
	assert.Equal(t, "success", report.Status)
	assert.Equal(t, SuccessMessage, report.Message)
	assert.Contains(t, report.Output, "[TXT]")
	assert.False(t, f.manager.Status().Ready)
	assert.NoFileExists(t, f.indexPath)
	assert.NoFileExists(t, f.metadataPath)
}

func TestRun_FailureLeavesIndexUntouched(t *testing.T) {
	f := newFixture(t, runnerFunc(func(ctx context.Context) (string, error) {
		return "stderr diagnostics", fmt.Errorf("exit status 1")
	}), 0)
	f.seedArtifacts(t)

	_, err := f.coordinator.Run(context.Background())

	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.IngestionFailed("", nil)))
	assert.Equal(t, "stderr diagnostics", errors.Output(err))
	// No partial invalidation on failure.
	assert.FileExists(t, f.indexPath)
	assert.FileExists(t, f.metadataPath)
	assert.True(t, f.manager.Status().Ready)
}

func TestRun_ConcurrentRunsRejected(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	f := newFixture(t, runnerFunc(func(ctx context.Context) (string, error) {
		close(started)
		<-release
		return "done", nil
	}), 0)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := f.coordinator.Run(context.Background())
		assert.NoError(t, err)
	}()

	<-started
	assert.True(t, f.coordinator.Running())

	// A second trigger while running must conflict, not queue.
	_, err := f.coordinator.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.Conflict("")))

	close(release)
	wg.Wait()
	assert.False(t, f.coordinator.Running())

	// After completion a new run is accepted again.
	_, err = f.coordinator.Run(context.Background())
	assert.NoError(t, err)
}

func TestRun_TimeoutCancelsPipeline(t *testing.T) {
	f := newFixture(t, runnerFunc(func(ctx context.Context) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}), 100*time.Millisecond)

	start := time.Now()
	_, err := f.coordinator.Run(context.Background())

	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.IngestionFailed("", nil)))
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestExternalPipeline_CapturesStderrOnFailure(t *testing.T) {
	p := NewExternalPipeline([]string{"/bin/sh", "-c", "echo diag >&2; exit 2"}, "")

	output, err := p.Run(context.Background())

	require.Error(t, err)
	assert.Contains(t, output, "diag")
}

func TestExternalPipeline_ReturnsStdoutOnSuccess(t *testing.T) {
	p := NewExternalPipeline([]string{"/bin/sh", "-c", "echo processed 3 files"}, "")

	output, err := p.Run(context.Background())

	require.NoError(t, err)
	assert.Contains(t, output, "processed 3 files")
}

func TestNativePipeline_RunsExtractor(t *testing.T) {
	base := t.TempDir()
	rawDir := filepath.Join(base, "raw")
	outDir := filepath.Join(base, "out")
	require.NoError(t, os.MkdirAll(rawDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(rawDir, "doc.txt"), []byte("content"), 0o644))

	p := NewNativePipeline(rawDir, outDir, nil)
	output, err := p.Run(context.Background())

	require.NoError(t, err)
	assert.Contains(t, output, "[TXT] doc.txt")
	assert.FileExists(t, filepath.Join(outDir, "doc.txt"))
}
