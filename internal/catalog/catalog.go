// Package catalog loads and normalizes the document-chunk catalog that backs
// the index. The catalog artifact is written by the engine; the gateway only
// ever reads it.
package catalog

import (
	"encoding/json"
	"os"
	"unicode/utf8"

	"github.com/sentra-ai/sentra-gateway/internal/errors"
)

// PreviewLength is the maximum content length returned by List, in runes.
const PreviewLength = 200

// Document is one retrievable chunk from the catalog.
type Document struct {
	ID      string `json:"id"`
	Source  string `json:"source"`
	Content string `json:"content"`
}

// Preview is the listing shape for a document: full content is never
// exposed here, only a bounded preview.
type Preview struct {
	ID             string `json:"id"`
	Source         string `json:"source"`
	ContentPreview string `json:"content_preview"`
}

// Snapshot is a point-in-time view of the catalog, in catalog order.
type Snapshot struct {
	Documents []Document
}

// Count returns the number of documents in the snapshot.
func (s *Snapshot) Count() int {
	if s == nil {
		return 0
	}
	return len(s.Documents)
}

// Store reads the catalog artifact. It holds no cached state: every Load
// re-reads from disk, so an invalidated catalog is never served stale.
type Store struct {
	path string
}

// NewStore creates a store bound to the given metadata artifact path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the metadata artifact path.
func (s *Store) Path() string {
	return s.path
}

// rawDocument tolerates entries with missing fields: absent content (or id,
// or source) degrades to the empty string rather than failing the load.
type rawDocument struct {
	ID      *string `json:"id"`
	Source  *string `json:"source"`
	Content *string `json:"content"`
}

func (r rawDocument) normalize() Document {
	var d Document
	if r.ID != nil {
		d.ID = *r.ID
	}
	if r.Source != nil {
		d.Source = *r.Source
	}
	if r.Content != nil {
		d.Content = *r.Content
	}
	return d
}

// wrappedCatalog is the object wire shape: {"documents": [...]}.
type wrappedCatalog struct {
	Documents []rawDocument `json:"documents"`
}

// Load parses the catalog artifact and normalizes both accepted wire shapes
// (bare array, or {"documents": [...]}) to one Snapshot. A missing artifact
// yields a catalog-missing error; invalid JSON yields catalog-corrupt.
func (s *Store) Load() (*Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.CatalogMissing("catalog not found: index not built yet", err).
				WithDetail("path", s.path)
		}
		return nil, errors.Internal("read catalog", err).WithDetail("path", s.path)
	}

	docs, err := decode(data)
	if err != nil {
		return nil, errors.CatalogCorrupt("catalog is not valid JSON", err).
			WithDetail("path", s.path)
	}

	snapshot := &Snapshot{Documents: make([]Document, 0, len(docs))}
	for _, raw := range docs {
		snapshot.Documents = append(snapshot.Documents, raw.normalize())
	}
	return snapshot, nil
}

// decode resolves the tagged union at the deserialization boundary: callers
// past this point never branch on wire shape again.
func decode(data []byte) ([]rawDocument, error) {
	var bare []rawDocument
	if err := json.Unmarshal(data, &bare); err == nil {
		return bare, nil
	}

	var wrapped wrappedCatalog
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, err
	}
	return wrapped.Documents, nil
}

// Count loads the catalog and returns its document count.
// Any load failure counts as zero.
func (s *Store) Count() int {
	snapshot, err := s.Load()
	if err != nil {
		return 0
	}
	return snapshot.Count()
}

// List returns up to limit document previews in catalog order. Content
// longer than PreviewLength runes is truncated with a trailing "...";
// shorter content is returned unmodified. limit <= 0 yields an empty slice.
func (s *Store) List(limit int) ([]Preview, error) {
	snapshot, err := s.Load()
	if err != nil {
		return nil, err
	}

	if limit <= 0 {
		return []Preview{}, nil
	}
	if limit > len(snapshot.Documents) {
		limit = len(snapshot.Documents)
	}

	previews := make([]Preview, 0, limit)
	for _, doc := range snapshot.Documents[:limit] {
		previews = append(previews, Preview{
			ID:             doc.ID,
			Source:         doc.Source,
			ContentPreview: truncate(doc.Content, PreviewLength),
		})
	}
	return previews, nil
}

// truncate cuts s to max runes, appending "..." only when a cut happened.
func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max]) + "..."
}
