// Package mcp exposes the gateway's operations as MCP tools so AI clients
// can query the document index over a stdio transport.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sentra-ai/sentra-gateway/internal/catalog"
	"github.com/sentra-ai/sentra-gateway/internal/config"
	"github.com/sentra-ai/sentra-gateway/internal/engine"
	"github.com/sentra-ai/sentra-gateway/internal/lifecycle"
	"github.com/sentra-ai/sentra-gateway/pkg/version"
)

// Engine dispatches one question to the retrieval engine.
type Engine interface {
	Dispatch(ctx context.Context, question string) (engine.Result, error)
}

// Server bridges MCP clients with the gateway components.
type Server struct {
	mcp     *mcp.Server
	engine  Engine
	manager *lifecycle.Manager
	cfg     *config.Config
	logger  *slog.Logger
}

// NewServer creates the MCP server and registers its tools.
func NewServer(eng Engine, manager *lifecycle.Manager, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if eng == nil {
		return nil, errors.New("engine is required")
	}
	if manager == nil {
		return nil, errors.New("lifecycle manager is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		engine:  eng,
		manager: manager,
		cfg:     cfg,
		logger:  logger,
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "sentra-gateway",
			Version: version.Version,
		},
		nil,
	)
	s.registerTools()
	return s, nil
}

// registerTools registers all tools with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "ask",
		Description: "Ask the document index a question and get the engine's answer. Use for any question about the ingested documents.",
	}, s.askHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "list_documents",
		Description: "List indexed document chunks with content previews. Use to see what the index currently knows about.",
	}, s.listDocumentsHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "status",
		Description: "Check whether the index is built and the engine binary is available. Use before asking if answers look stale.",
	}, s.statusHandler)

	s.logger.Info("MCP tools registered", slog.Int("count", 3))
}

// AskInput defines the input schema for the ask tool.
type AskInput struct {
	Question string `json:"question" jsonschema:"the question to ask the document index"`
}

// AskOutput defines the output schema for the ask tool.
type AskOutput struct {
	Answer  string   `json:"answer" jsonschema:"the engine's answer text"`
	Sources []string `json:"sources,omitempty" jsonschema:"originating source identifiers when reported"`
}

func (s *Server) askHandler(ctx context.Context, _ *mcp.CallToolRequest, input AskInput) (
	*mcp.CallToolResult,
	AskOutput,
	error,
) {
	// Same access discipline as the HTTP query handler: the engine only
	// runs while no invalidation holds the exclusive section.
	var result engine.Result
	err := s.manager.WithReadAccess(func() error {
		var err error
		result, err = s.engine.Dispatch(ctx, input.Question)
		return err
	})
	if err != nil {
		return nil, AskOutput{}, err
	}
	return nil, AskOutput{Answer: result.Answer, Sources: result.Sources}, nil
}

// ListDocumentsInput defines the input schema for the list_documents tool.
type ListDocumentsInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"maximum number of chunks to return, default 50"`
}

// ListDocumentsOutput defines the output schema for the list_documents tool.
type ListDocumentsOutput struct {
	Documents []catalog.Preview `json:"documents" jsonschema:"chunk previews in catalog order"`
}

func (s *Server) listDocumentsHandler(_ context.Context, _ *mcp.CallToolRequest, input ListDocumentsInput) (
	*mcp.CallToolResult,
	ListDocumentsOutput,
	error,
) {
	limit := input.Limit
	if limit <= 0 {
		limit = 50
	}

	var previews []catalog.Preview
	err := s.manager.WithReadAccess(func() error {
		var err error
		previews, err = s.manager.Catalog().List(limit)
		return err
	})
	if err != nil {
		return nil, ListDocumentsOutput{}, err
	}
	if previews == nil {
		previews = []catalog.Preview{}
	}
	return nil, ListDocumentsOutput{Documents: previews}, nil
}

// StatusInput defines the input schema for the status tool (no parameters).
type StatusInput struct{}

// StatusOutput defines the output schema for the status tool.
type StatusOutput struct {
	Status      string `json:"status" jsonschema:"healthy, degraded or error"`
	IndexLoaded bool   `json:"index_loaded" jsonschema:"true when both index artifacts are present"`
	BinaryFound bool   `json:"binary_found" jsonschema:"true when the engine binary is available"`
	ChunkCount  int    `json:"chunk_count" jsonschema:"documents in the current catalog snapshot"`
	SizeBytes   int64  `json:"size_bytes" jsonschema:"size of the index artifact"`
}

func (s *Server) statusHandler(_ context.Context, _ *mcp.CallToolRequest, _ StatusInput) (
	*mcp.CallToolResult,
	StatusOutput,
	error,
) {
	health := s.manager.Healthy(engine.ResolveBinaryPath(s.cfg.Engine.Binary, s.cfg.Engine.WorkDir))
	state := s.manager.Status()
	return nil, StatusOutput{
		Status:      string(health.Status),
		IndexLoaded: health.IndexLoaded,
		BinaryFound: health.BinaryFound,
		ChunkCount:  state.ChunkCount,
		SizeBytes:   state.SizeBytes,
	}, nil
}

// Serve runs the MCP server over the given transport until the context is
// cancelled. Only stdio is supported.
func (s *Server) Serve(ctx context.Context, transport string) error {
	switch transport {
	case "stdio":
		s.logger.Info("Starting MCP server", slog.String("transport", transport))
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("MCP server stopped with error", slog.String("error", err.Error()))
			return err
		}
		s.logger.Info("MCP server stopped gracefully")
		return nil
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}
