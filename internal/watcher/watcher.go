// Package watcher observes the artifacts directory so index transitions
// (rebuilt by the engine, invalidated after ingestion) show up in the logs
// and notify interested components without polling.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounceWindow coalesces the burst of writes the engine makes when
// it rebuilds the index.
const DefaultDebounceWindow = 200 * time.Millisecond

// Transition describes a change to the index artifacts.
type Transition int

const (
	// TransitionRebuilt indicates the index artifacts were written.
	TransitionRebuilt Transition = iota
	// TransitionInvalidated indicates the index artifacts were removed.
	TransitionInvalidated
)

// String returns a human-readable representation of the transition.
func (t Transition) String() string {
	switch t {
	case TransitionRebuilt:
		return "REBUILT"
	case TransitionInvalidated:
		return "INVALIDATED"
	default:
		return "UNKNOWN"
	}
}

// Event is one debounced artifact transition.
type Event struct {
	Transition Transition
	Path       string
	Timestamp  time.Time
}

// ArtifactsWatcher watches the artifacts directory for index file changes.
// Events for the index and metadata files are debounced and published on
// Events; everything else in the directory is ignored.
type ArtifactsWatcher struct {
	dir      string
	window   time.Duration
	logger   *slog.Logger
	events   chan Event
	fsw      *fsnotify.Watcher
	mu       sync.Mutex
	pending  map[string]Event
	timer    *time.Timer
	stopOnce sync.Once
	stopped  chan struct{}
}

// New creates a watcher for the given artifacts directory. The directory
// must exist before Start is called.
func New(dir string, logger *slog.Logger) (*ArtifactsWatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	return &ArtifactsWatcher{
		dir:     dir,
		window:  DefaultDebounceWindow,
		logger:  logger,
		events:  make(chan Event, 64),
		fsw:     fsw,
		pending: make(map[string]Event),
		stopped: make(chan struct{}),
	}, nil
}

// Events returns the debounced transition channel. Closed when the watcher
// stops.
func (w *ArtifactsWatcher) Events() <-chan Event {
	return w.events
}

// Start watches until the context is cancelled or Stop is called.
func (w *ArtifactsWatcher) Start(ctx context.Context) error {
	if err := w.fsw.Add(w.dir); err != nil {
		return fmt.Errorf("watch artifacts directory: %w", err)
	}
	w.logger.Info("watching artifacts", "dir", w.dir)

	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return ctx.Err()
		case <-w.stopped:
			return nil
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", "error", err)
		}
	}
}

// Stop stops the watcher. Safe to call multiple times.
func (w *ArtifactsWatcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		err = w.fsw.Close()
		// The mutex orders this against any in-flight flush, so nothing
		// sends on events after it closes.
		w.mu.Lock()
		if w.timer != nil {
			w.timer.Stop()
			w.timer = nil
		}
		close(w.stopped)
		close(w.events)
		w.mu.Unlock()
	})
	return err
}

// indexArtifact reports whether the path is one of the two files the engine
// and ingestion manage.
func indexArtifact(path string) bool {
	switch filepath.Base(path) {
	case "index.bin", "metadata.json":
		return true
	}
	return false
}

func (w *ArtifactsWatcher) handle(event fsnotify.Event) {
	if !indexArtifact(event.Name) {
		return
	}

	transition := TransitionRebuilt
	if event.Op.Has(fsnotify.Remove) || event.Op.Has(fsnotify.Rename) {
		transition = TransitionInvalidated
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	select {
	case <-w.stopped:
		return
	default:
	}
	// Last transition per file wins within the window
	w.pending[event.Name] = Event{
		Transition: transition,
		Path:       event.Name,
		Timestamp:  time.Now(),
	}
	if w.timer == nil {
		w.timer = time.AfterFunc(w.window, w.flush)
	} else {
		w.timer.Reset(w.window)
	}
}

// flush publishes the coalesced events after the debounce window.
// Runs under the mutex so it cannot race a concurrent Stop.
func (w *ArtifactsWatcher) flush() {
	w.mu.Lock()
	defer w.mu.Unlock()

	select {
	case <-w.stopped:
		return
	default:
	}

	for _, e := range w.pending {
		w.logger.Info("index artifact changed",
			"file", filepath.Base(e.Path),
			"transition", e.Transition.String())
		select {
		case w.events <- e:
		default:
			// Slow consumer, drop rather than block the flush
		}
	}
	w.pending = make(map[string]Event)
	w.timer = nil
}
