// Package lifecycle owns the on-disk index artifacts shared between the
// engine (which builds them) and the gateway (which observes and invalidates
// them). It is the single mutual-exclusion boundary of the service: all
// artifact mutation happens inside its exclusive section.
package lifecycle

import (
	"os"
	"os/exec"
	"sync"

	"github.com/sentra-ai/sentra-gateway/internal/catalog"
	"github.com/sentra-ai/sentra-gateway/internal/errors"
)

// State is a point-in-time view of the index, recomputed on every Status
// call. It is never cached.
type State struct {
	// Ready reports whether both the index artifact and the metadata
	// catalog are present.
	Ready bool `json:"ready"`
	// ChunkCount is the document count of the current catalog snapshot.
	ChunkCount int `json:"chunk_count"`
	// SizeBytes is the size of the opaque index artifact, zero when absent.
	SizeBytes int64 `json:"size_bytes"`
}

// HealthStatus summarizes overall service health for the health endpoint.
type HealthStatus string

const (
	// StatusHealthy means the engine binary and both artifacts are present.
	StatusHealthy HealthStatus = "healthy"
	// StatusDegraded means the engine is present but the index is not
	// built; queries will trigger a rebuild.
	StatusDegraded HealthStatus = "degraded"
	// StatusError means the engine binary itself is missing.
	StatusError HealthStatus = "error"
)

// Health is the full health report derived from this component.
type Health struct {
	Status       HealthStatus `json:"status"`
	IndexLoaded  bool         `json:"index_loaded"`
	BinaryFound  bool         `json:"binary_found"`
	DataDir      string       `json:"data_dir"`
	ArtifactsDir string       `json:"artifacts_dir"`
}

// Manager tracks index presence and coordinates invalidation against
// concurrent query traffic. Readers block while an exclusive section
// (invalidate or rebuild) is active; there is no staleness signalling.
type Manager struct {
	indexPath    string
	metadataPath string
	dataDir      string
	artifactsDir string
	store        *catalog.Store

	mu sync.RWMutex

	// lookPath is swappable for tests.
	lookPath func(string) (string, error)
}

// NewManager creates a manager owning the given artifact paths.
func NewManager(indexPath, metadataPath, dataDir, artifactsDir string) *Manager {
	return &Manager{
		indexPath:    indexPath,
		metadataPath: metadataPath,
		dataDir:      dataDir,
		artifactsDir: artifactsDir,
		store:        catalog.NewStore(metadataPath),
		lookPath:     exec.LookPath,
	}
}

// Catalog returns the catalog store bound to the managed metadata artifact.
func (m *Manager) Catalog() *catalog.Store {
	return m.store
}

// IndexPath returns the opaque index artifact path.
func (m *Manager) IndexPath() string {
	return m.indexPath
}

// Status recomputes the index state from artifact presence and a fresh
// catalog read. It is a pure read and takes shared access, so it blocks
// only while an invalidation or rebuild is in flight.
func (m *Manager) Status() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.statusLocked()
}

// statusLocked computes State; the caller must hold at least shared access.
func (m *Manager) statusLocked() State {
	var st State

	info, err := os.Stat(m.indexPath)
	indexPresent := err == nil
	if indexPresent {
		st.SizeBytes = info.Size()
	}

	metaPresent := fileExists(m.metadataPath)
	st.Ready = indexPresent && metaPresent
	if metaPresent {
		st.ChunkCount = m.store.Count()
	}
	return st
}

// Invalidate deletes the index artifact and the metadata catalog, forcing
// the engine to rebuild on next use. Deletion order matters: the index
// artifact goes first and the catalog last, so a reader that still sees the
// catalog can at worst observe a not-ready index, never a half-deleted
// catalog. Idempotent: invalidating an absent index is not an error.
func (m *Manager) Invalidate() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := removeIfPresent(m.indexPath); err != nil {
		return errors.Internal("remove index artifact", err).WithDetail("path", m.indexPath)
	}
	if err := removeIfPresent(m.metadataPath); err != nil {
		return errors.Internal("remove metadata catalog", err).WithDetail("path", m.metadataPath)
	}
	return nil
}

// WithReadAccess runs fn while holding shared access. Queries and metadata
// reads use this so they never interleave with an active invalidation.
func (m *Manager) WithReadAccess(fn func() error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fn()
}

// WithRebuildAccess runs fn while holding the exclusive section.
func (m *Manager) WithRebuildAccess(fn func() error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn()
}

// Healthy derives the service health report from artifact and engine
// binary presence.
func (m *Manager) Healthy(engineBinary string) Health {
	m.mu.RLock()
	defer m.mu.RUnlock()

	binaryFound := m.binaryFound(engineBinary)
	indexLoaded := fileExists(m.indexPath) && fileExists(m.metadataPath)

	status := StatusHealthy
	switch {
	case !binaryFound:
		status = StatusError
	case !indexLoaded:
		status = StatusDegraded
	}

	return Health{
		Status:       status,
		IndexLoaded:  indexLoaded,
		BinaryFound:  binaryFound,
		DataDir:      m.dataDir,
		ArtifactsDir: m.artifactsDir,
	}
}

// binaryFound resolves the engine binary either as a direct path or via PATH.
func (m *Manager) binaryFound(binary string) bool {
	if binary == "" {
		return false
	}
	if fileExists(binary) {
		return true
	}
	_, err := m.lookPath(binary)
	return err == nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func removeIfPresent(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
