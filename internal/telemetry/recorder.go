// Package telemetry records query traffic for local analysis. All data stays
// on disk next to the gateway. Recording is best-effort and may never fail or
// slow down a request.
package telemetry

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// QueryEvent captures one dispatched question and its outcome.
type QueryEvent struct {
	Question   string
	Answered   bool
	NoResponse bool
	Latency    time.Duration
	Timestamp  time.Time
}

// TermCount pairs a question term with its observed frequency.
type TermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// RecentQueriesLimit caps how many recent questions a snapshot surfaces.
const RecentQueriesLimit = 10

// Snapshot is an immutable view of the in-memory aggregates, plus the most
// recent persisted questions when a store is attached.
type Snapshot struct {
	TotalQueries    int64       `json:"total_queries"`
	AnsweredCount   int64       `json:"answered_count"`
	NoResponseCount int64       `json:"no_response_count"`
	RepeatCount     int64       `json:"repeat_count"`
	RepeatRate      float64     `json:"repeat_rate"`
	TopTerms        []TermCount `json:"top_terms"`
	RecentQueries   []string    `json:"recent_queries,omitempty"`
	Since           time.Time   `json:"since"`
}

// Store defines persistence for query events. A nil store keeps everything
// in memory only.
type Store interface {
	SaveEvent(event QueryEvent) error
	RecentQuestions(limit int) ([]string, error)
	Close() error
}

// Config tunes the recorder's buffers.
type Config struct {
	TopTermsCapacity        int // default 100
	RecentQuestionsCapacity int // default 500, used for repeat detection
	QueueDepth              int // default 256, pending events before drop
}

// DefaultConfig returns the recorder defaults.
func DefaultConfig() Config {
	return Config{
		TopTermsCapacity:        100,
		RecentQuestionsCapacity: 500,
		QueueDepth:              256,
	}
}

// Recorder aggregates query events in memory and persists them through an
// optional store. Record never blocks the caller: events go through a
// bounded queue and are dropped with a log line when it is full.
type Recorder struct {
	mu sync.RWMutex

	totalQueries    int64
	answeredCount   int64
	noResponseCount int64
	repeatCount     int64
	topTerms        *lru.Cache[string, int64]
	recentQuestions *lru.Cache[string, struct{}]
	startTime       time.Time

	store  Store
	logger *slog.Logger

	queue  chan queueEntry
	done   chan struct{}
	closed bool
}

// queueEntry is either an event to apply or a flush barrier (sync != nil).
type queueEntry struct {
	event QueryEvent
	sync  chan struct{}
}

// NewRecorder creates a recorder with default configuration.
func NewRecorder(store Store, logger *slog.Logger) *Recorder {
	return NewRecorderWithConfig(store, logger, DefaultConfig())
}

// NewRecorderWithConfig creates a recorder with explicit buffer sizes.
func NewRecorderWithConfig(store Store, logger *slog.Logger, cfg Config) *Recorder {
	if cfg.TopTermsCapacity <= 0 {
		cfg.TopTermsCapacity = 100
	}
	if cfg.RecentQuestionsCapacity <= 0 {
		cfg.RecentQuestionsCapacity = 500
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = 256
	}
	if logger == nil {
		logger = slog.Default()
	}

	topTerms, _ := lru.New[string, int64](cfg.TopTermsCapacity)
	recentQuestions, _ := lru.New[string, struct{}](cfg.RecentQuestionsCapacity)

	r := &Recorder{
		topTerms:        topTerms,
		recentQuestions: recentQuestions,
		startTime:       time.Now(),
		store:           store,
		logger:          logger,
		queue:           make(chan queueEntry, cfg.QueueDepth),
		done:            make(chan struct{}),
	}
	go r.drain()
	return r
}

// Record enqueues one event. Never blocks, never returns an error.
func (r *Recorder) Record(event QueryEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	// The read lock excludes Close, so the queue cannot be closed under us.
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	select {
	case r.queue <- queueEntry{event: event}:
	default:
		r.logger.Warn("telemetry queue full, dropping event")
	}
}

// drain consumes the queue until Close.
func (r *Recorder) drain() {
	for entry := range r.queue {
		if entry.sync != nil {
			close(entry.sync)
			continue
		}
		r.apply(entry.event)
	}
	close(r.done)
}

func (r *Recorder) apply(event QueryEvent) {
	r.mu.Lock()
	r.totalQueries++
	if event.NoResponse {
		r.noResponseCount++
	} else if event.Answered {
		r.answeredCount++
	}

	for _, term := range ExtractTerms(event.Question) {
		count, _ := r.topTerms.Get(term)
		r.topTerms.Add(term, count+1)
	}

	key := hashQuestion(event.Question)
	if _, seen := r.recentQuestions.Get(key); seen {
		r.repeatCount++
	}
	r.recentQuestions.Add(key, struct{}{})
	r.mu.Unlock()

	if r.store != nil {
		if err := r.store.SaveEvent(event); err != nil {
			r.logger.Warn("telemetry persist failed", "error", err)
		}
	}
}

// Snapshot returns the current aggregates.
func (r *Recorder) Snapshot() *Snapshot {
	r.mu.RLock()

	var terms []TermCount
	for _, key := range r.topTerms.Keys() {
		if count, ok := r.topTerms.Peek(key); ok {
			terms = append(terms, TermCount{Term: key, Count: count})
		}
	}
	sortTermsDesc(terms)

	var repeatRate float64
	if r.totalQueries > 0 {
		repeatRate = float64(r.repeatCount) / float64(r.totalQueries)
	}

	snap := &Snapshot{
		TotalQueries:    r.totalQueries,
		AnsweredCount:   r.answeredCount,
		NoResponseCount: r.noResponseCount,
		RepeatCount:     r.repeatCount,
		RepeatRate:      repeatRate,
		TopTerms:        terms,
		Since:           r.startTime,
	}
	r.mu.RUnlock()

	if r.store != nil {
		recent, err := r.store.RecentQuestions(RecentQueriesLimit)
		if err != nil {
			r.logger.Warn("telemetry recent questions failed", "error", err)
		} else {
			snap.RecentQueries = recent
		}
	}
	return snap
}

// Flush blocks until every event recorded before the call has been applied
// and persisted. Intended for tests and shutdown.
func (r *Recorder) Flush() {
	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return
	}
	barrier := make(chan struct{})
	r.queue <- queueEntry{sync: barrier}
	r.mu.RUnlock()
	<-barrier
}

// Close stops the drain goroutine and closes the store.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	close(r.queue)
	<-r.done

	if r.store != nil {
		return r.store.Close()
	}
	return nil
}

// ExtractTerms splits a question into lowercased terms of length >= 3.
func ExtractTerms(question string) []string {
	question = strings.ToLower(strings.TrimSpace(question))
	if question == "" {
		return nil
	}
	var terms []string
	for _, w := range strings.Fields(question) {
		if len(w) >= 3 {
			terms = append(terms, w)
		}
	}
	return terms
}

// hashQuestion normalizes and hashes a question for repeat detection.
func hashQuestion(question string) string {
	normalized := strings.ToLower(strings.TrimSpace(question))
	hash := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(hash[:16])
}

func sortTermsDesc(terms []TermCount) {
	for i := 0; i < len(terms); i++ {
		for j := i + 1; j < len(terms); j++ {
			if terms[j].Count > terms[i].Count {
				terms[i], terms[j] = terms[j], terms[i]
			}
		}
	}
}
