package server

import (
	"encoding/json"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sentra-ai/sentra-gateway/internal/catalog"
	"github.com/sentra-ai/sentra-gateway/internal/engine"
	gwerrors "github.com/sentra-ai/sentra-gateway/internal/errors"
	"github.com/sentra-ai/sentra-gateway/internal/telemetry"
)

// DefaultDocumentLimit caps /api/documents when no limit is given.
const DefaultDocumentLimit = 50

type queryRequest struct {
	Question string `json:"question"`
}

type statsResponse struct {
	TotalDocuments int     `json:"total_documents"`
	IndexSizeMB    float64 `json:"index_size_mb"`
	DataFiles      int     `json:"data_files"`

	Telemetry *telemetry.Snapshot `json:"telemetry,omitempty"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) error {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return gwerrors.BadRequest("invalid request body")
	}

	// Dispatch holds shared access so the engine never runs against a
	// half-removed artifact pair while an invalidation is in progress.
	started := time.Now()
	var result engine.Result
	err := s.manager.WithReadAccess(func() error {
		var err error
		result, err = s.engine.Dispatch(r.Context(), req.Question)
		return err
	})
	s.record(req.Question, result, err, time.Since(started))
	if err != nil {
		return err
	}
	if result.NoResponse {
		s.metrics.MarkNoResponse()
	}

	return s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request) error {
	limit := DefaultDocumentLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return gwerrors.BadRequest("limit must be an integer")
		}
		limit = parsed
	}

	var previews []catalog.Preview
	err := s.manager.WithReadAccess(func() error {
		var err error
		previews, err = s.manager.Catalog().List(limit)
		return err
	})
	if err != nil {
		return err
	}
	if previews == nil {
		previews = []catalog.Preview{}
	}
	return s.writeJSON(w, http.StatusOK, previews)
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) error {
	report, err := s.coordinator.Run(r.Context())
	if err != nil {
		return err
	}
	return s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) error {
	health := s.manager.Healthy(engine.ResolveBinaryPath(s.cfg.Engine.Binary, s.cfg.Engine.WorkDir))
	return s.writeJSON(w, http.StatusOK, health)
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) error {
	state := s.manager.Status()

	resp := statsResponse{
		TotalDocuments: state.ChunkCount,
		IndexSizeMB:    roundMB(state.SizeBytes),
		DataFiles:      countTextFiles(s.cfg.Paths.DataDir),
	}
	if s.recorder != nil {
		resp.Telemetry = s.recorder.Snapshot()
	}
	return s.writeJSON(w, http.StatusOK, resp)
}

// record forwards the query outcome to telemetry when enabled.
func (s *Server) record(question string, result engine.Result, err error, latency time.Duration) {
	if s.recorder == nil {
		return
	}
	if strings.TrimSpace(question) == "" {
		return
	}
	s.recorder.Record(telemetry.QueryEvent{
		Question:   question,
		Answered:   err == nil && !result.NoResponse,
		NoResponse: result.NoResponse,
		Latency:    latency,
	})
}

// writeJSON encodes v with a JSON content type.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

// writeError maps a gateway error to its HTTP status with the FastAPI
// style {"detail": ...} body the UI expects.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := gwerrors.HTTPStatus(err)
	detail := gwerrors.Detail(err)
	if output := gwerrors.Output(err); output != "" {
		detail = detail + ": " + output
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"detail": detail})
}

// roundMB converts bytes to megabytes rounded to two decimals.
func roundMB(bytes int64) float64 {
	return math.Round(float64(bytes)/(1024*1024)*100) / 100
}

// countTextFiles counts the plain-text files the ingestion pipeline has
// produced in the data directory.
func countTextFiles(dir string) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	n := 0
	for _, entry := range entries {
		if !entry.IsDir() && filepath.Ext(entry.Name()) == ".txt" {
			n++
		}
	}
	return n
}
