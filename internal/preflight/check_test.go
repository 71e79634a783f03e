package preflight

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentra-ai/sentra-gateway/internal/config"
)

type checkerFixture struct {
	cfg     *config.Config
	checker *Checker
	out     *bytes.Buffer
}

func newCheckerFixture(t *testing.T) *checkerFixture {
	t.Helper()
	root := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Paths.DataDir = filepath.Join(root, "data")
	cfg.Paths.RawDir = filepath.Join(root, "data_raw")
	cfg.Paths.ArtifactsDir = filepath.Join(root, "data", "artifacts")
	require.NoError(t, os.MkdirAll(cfg.Paths.ArtifactsDir, 0o755))

	out := &bytes.Buffer{}
	checker := New(cfg, WithOutput(out))
	return &checkerFixture{cfg: cfg, checker: checker, out: out}
}

func (f *checkerFixture) writeCatalog(t *testing.T, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(f.cfg.Paths.MetadataPath(), []byte(content), 0o644))
}

func TestCheckEngineBinary(t *testing.T) {
	t.Run("warns when the binary is missing", func(t *testing.T) {
		// Given a config pointing at a nonexistent binary path
		f := newCheckerFixture(t)
		f.cfg.Engine.Binary = filepath.Join(t.TempDir(), "sentra")

		// When the check runs
		result := f.checker.CheckEngineBinary()

		// Then it warns with the build hint but is not critical
		assert.Equal(t, StatusWarn, result.Status)
		assert.False(t, result.IsCritical())
		assert.Contains(t, result.Details, "g++ -std=c++17")
	})

	t.Run("passes when the binary exists on disk", func(t *testing.T) {
		f := newCheckerFixture(t)
		binary := filepath.Join(t.TempDir(), "sentra")
		require.NoError(t, os.WriteFile(binary, []byte("#!/bin/sh\n"), 0o755))
		f.cfg.Engine.Binary = binary

		result := f.checker.CheckEngineBinary()

		assert.Equal(t, StatusPass, result.Status)
		assert.Equal(t, binary, result.Message)
	})

	t.Run("resolves bare names through PATH", func(t *testing.T) {
		f := newCheckerFixture(t)
		f.cfg.Engine.Binary = "sentra"
		f.checker.lookPath = func(name string) (string, error) {
			return "/opt/bin/" + name, nil
		}

		result := f.checker.CheckEngineBinary()

		assert.Equal(t, StatusPass, result.Status)
		assert.Equal(t, "/opt/bin/sentra", result.Message)
	})
}

func TestCheckDataDirs(t *testing.T) {
	t.Run("fails when the data directory is missing", func(t *testing.T) {
		f := newCheckerFixture(t)
		f.cfg.Paths.DataDir = filepath.Join(t.TempDir(), "nope")

		result := f.checker.CheckDataDirs()

		assert.Equal(t, StatusFail, result.Status)
		assert.True(t, result.IsCritical())
	})

	t.Run("creates the artifacts directory when absent", func(t *testing.T) {
		f := newCheckerFixture(t)
		require.NoError(t, os.RemoveAll(f.cfg.Paths.ArtifactsDir))

		result := f.checker.CheckDataDirs()

		assert.Equal(t, StatusPass, result.Status)
		assert.DirExists(t, f.cfg.Paths.ArtifactsDir)
	})
}

func TestCheckWritePermissions(t *testing.T) {
	f := newCheckerFixture(t)

	result := f.checker.CheckWritePermissions(f.cfg.Paths.ArtifactsDir)

	assert.Equal(t, StatusPass, result.Status)
	// The probe file must not linger
	assert.NoFileExists(t, filepath.Join(f.cfg.Paths.ArtifactsDir, ".sentra-preflight-test"))
}

func TestCheckCatalog(t *testing.T) {
	t.Run("warns before first ingestion", func(t *testing.T) {
		f := newCheckerFixture(t)

		result := f.checker.CheckCatalog()

		assert.Equal(t, StatusWarn, result.Status)
		assert.Contains(t, result.Message, "ingestion")
	})

	t.Run("passes with a document count", func(t *testing.T) {
		f := newCheckerFixture(t)
		f.writeCatalog(t, `[{"id":"a","source":"a.txt","content":"hello"},{"id":"b","source":"b.txt","content":"world"}]`)

		result := f.checker.CheckCatalog()

		assert.Equal(t, StatusPass, result.Status)
		assert.Equal(t, "2 documents", result.Message)
	})

	t.Run("fails on a corrupt catalog", func(t *testing.T) {
		f := newCheckerFixture(t)
		f.writeCatalog(t, "{not json")

		result := f.checker.CheckCatalog()

		assert.Equal(t, StatusFail, result.Status)
	})
}

func TestCheckDiskSpace(t *testing.T) {
	f := newCheckerFixture(t)

	result := f.checker.CheckDiskSpace(f.cfg.Paths.DataDir)

	// A CI workspace always has more than 100MB free
	assert.Equal(t, StatusPass, result.Status)
	assert.Contains(t, result.Message, "free")
}

func TestRunAllAndSummary(t *testing.T) {
	t.Run("healthy environment is ready with warnings before ingestion", func(t *testing.T) {
		// Given a fresh workspace with no engine and no catalog
		f := newCheckerFixture(t)
		f.cfg.Engine.Binary = filepath.Join(t.TempDir(), "missing")

		// When all checks run
		results := f.checker.RunAll(context.Background())

		// Then nothing is critical but warnings surface
		assert.False(t, f.checker.HasCriticalFailures(results))
		assert.Equal(t, "ready_with_warnings", f.checker.SummaryStatus(results))
	})

	t.Run("missing data directory is a critical failure", func(t *testing.T) {
		f := newCheckerFixture(t)
		f.cfg.Paths.DataDir = filepath.Join(t.TempDir(), "nope")

		results := f.checker.RunAll(context.Background())

		assert.True(t, f.checker.HasCriticalFailures(results))
		assert.Equal(t, "failed", f.checker.SummaryStatus(results))
	})
}

func TestPrintResults(t *testing.T) {
	f := newCheckerFixture(t)
	results := []CheckResult{
		{Name: "engine_binary", Status: StatusWarn, Message: "sentra not found"},
		{Name: "data_dirs", Status: StatusPass, Message: "OK", Required: true},
		{Name: "disk_space", Status: StatusFail, Message: "too small", Required: true},
	}

	f.checker.PrintResults(results)
	out := f.out.String()

	assert.Contains(t, out, "[WARN] engine_binary: sentra not found")
	assert.Contains(t, out, "[PASS] data_dirs: OK")
	assert.Contains(t, out, "Status: FAILED")
	assert.Contains(t, out, "1 error(s):")
	assert.Contains(t, out, fmt.Sprintf("  - %s", "disk_space: too small"))
}
