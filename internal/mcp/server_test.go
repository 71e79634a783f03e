package mcp

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentra-ai/sentra-gateway/internal/config"
	"github.com/sentra-ai/sentra-gateway/internal/engine"
	gwerrors "github.com/sentra-ai/sentra-gateway/internal/errors"
	"github.com/sentra-ai/sentra-gateway/internal/lifecycle"
)

type engineFunc func(ctx context.Context, question string) (engine.Result, error)

func (f engineFunc) Dispatch(ctx context.Context, question string) (engine.Result, error) {
	return f(ctx, question)
}

type mcpFixture struct {
	cfg     *config.Config
	manager *lifecycle.Manager
	server  *Server
}

func newMCPFixture(t *testing.T, eng Engine) *mcpFixture {
	t.Helper()
	root := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Paths.DataDir = filepath.Join(root, "data")
	cfg.Paths.ArtifactsDir = filepath.Join(root, "data", "artifacts")
	cfg.Engine.Binary = filepath.Join(root, "missing-engine")
	require.NoError(t, os.MkdirAll(cfg.Paths.ArtifactsDir, 0o755))

	manager := lifecycle.NewManager(
		cfg.Paths.IndexPath(), cfg.Paths.MetadataPath(),
		cfg.Paths.DataDir, cfg.Paths.ArtifactsDir)

	server, err := NewServer(eng, manager, cfg, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	return &mcpFixture{cfg: cfg, manager: manager, server: server}
}

func (f *mcpFixture) buildIndex(t *testing.T) {
	t.Helper()
	docs := []map[string]string{
		{"id": "c1", "source": "a.txt", "content": "alpha"},
		{"id": "c2", "source": "b.txt", "content": "beta"},
	}
	payload, err := json.Marshal(docs)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(f.cfg.Paths.MetadataPath(), payload, 0o644))
	require.NoError(t, os.WriteFile(f.cfg.Paths.IndexPath(), []byte("blob"), 0o644))
}

func TestNewServerValidation(t *testing.T) {
	_, err := NewServer(nil, nil, nil, nil)
	assert.Error(t, err)
}

func TestAskTool(t *testing.T) {
	t.Run("returns the engine answer", func(t *testing.T) {
		// Given an engine with a fixed answer
		f := newMCPFixture(t, engineFunc(func(context.Context, string) (engine.Result, error) {
			return engine.Result{Answer: "Paris"}, nil
		}))

		// When the ask tool is called
		_, out, err := f.server.askHandler(context.Background(), nil, AskInput{Question: "capital of France?"})

		// Then the answer is returned
		require.NoError(t, err)
		assert.Equal(t, "Paris", out.Answer)
	})

	t.Run("propagates dispatch errors", func(t *testing.T) {
		f := newMCPFixture(t, engineFunc(func(context.Context, string) (engine.Result, error) {
			return engine.Result{}, gwerrors.Validation("Question cannot be empty")
		}))

		_, _, err := f.server.askHandler(context.Background(), nil, AskInput{Question: ""})

		assert.True(t, gwerrors.Is(err, gwerrors.Validation("")))
	})

	t.Run("waits for an active rebuild to finish", func(t *testing.T) {
		// Given an engine that reports every invocation
		invoked := make(chan struct{}, 1)
		f := newMCPFixture(t, engineFunc(func(context.Context, string) (engine.Result, error) {
			invoked <- struct{}{}
			return engine.Result{Answer: "after rebuild"}, nil
		}))

		// And an invalidation holding the exclusive section open
		held := make(chan struct{})
		release := make(chan struct{})
		sectionDone := make(chan struct{})
		go func() {
			_ = f.manager.WithRebuildAccess(func() error {
				close(held)
				<-release
				return nil
			})
			close(sectionDone)
		}()
		<-held

		// When the ask tool is called mid-section
		answers := make(chan AskOutput, 1)
		go func() {
			_, out, _ := f.server.askHandler(context.Background(), nil, AskInput{Question: "now?"})
			answers <- out
		}()

		// Then the engine must not run until the section is released
		select {
		case <-invoked:
			t.Fatal("engine ran while the exclusive section was held")
		case <-time.After(150 * time.Millisecond):
		}

		close(release)
		out := <-answers
		<-sectionDone
		assert.Equal(t, "after rebuild", out.Answer)
	})
}

func TestListDocumentsTool(t *testing.T) {
	t.Run("lists previews with the default limit", func(t *testing.T) {
		f := newMCPFixture(t, engineFunc(func(context.Context, string) (engine.Result, error) {
			return engine.Result{}, nil
		}))
		f.buildIndex(t)

		_, out, err := f.server.listDocumentsHandler(context.Background(), nil, ListDocumentsInput{})

		require.NoError(t, err)
		require.Len(t, out.Documents, 2)
		assert.Equal(t, "c1", out.Documents[0].ID)
	})

	t.Run("surfaces a missing catalog", func(t *testing.T) {
		f := newMCPFixture(t, engineFunc(func(context.Context, string) (engine.Result, error) {
			return engine.Result{}, nil
		}))

		_, _, err := f.server.listDocumentsHandler(context.Background(), nil, ListDocumentsInput{Limit: 5})

		assert.True(t, gwerrors.Is(err, gwerrors.CatalogMissing("", nil)))
	})
}

func TestStatusTool(t *testing.T) {
	f := newMCPFixture(t, engineFunc(func(context.Context, string) (engine.Result, error) {
		return engine.Result{}, nil
	}))
	f.buildIndex(t)

	_, out, err := f.server.statusHandler(context.Background(), nil, StatusInput{})

	require.NoError(t, err)
	// Binary is missing, so overall status is error even with a built index
	assert.Equal(t, "error", out.Status)
	assert.True(t, out.IndexLoaded)
	assert.False(t, out.BinaryFound)
	assert.Equal(t, 2, out.ChunkCount)
	assert.Positive(t, out.SizeBytes)
}

func TestServeRejectsUnknownTransport(t *testing.T) {
	f := newMCPFixture(t, engineFunc(func(context.Context, string) (engine.Result, error) {
		return engine.Result{}, nil
	}))

	err := f.server.Serve(context.Background(), "sse")

	assert.ErrorContains(t, err, "unknown transport")
}
