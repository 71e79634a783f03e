package telemetry

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRecorder(t *testing.T, store Store) *Recorder {
	t.Helper()
	r := NewRecorder(store, slog.New(slog.DiscardHandler))
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestRecorderAggregates(t *testing.T) {
	t.Run("counts answered and no-response separately", func(t *testing.T) {
		// Given a recorder without a store
		r := newTestRecorder(t, nil)

		// When mixed outcomes are recorded
		r.Record(QueryEvent{Question: "what is the refund policy", Answered: true, Latency: 20 * time.Millisecond})
		r.Record(QueryEvent{Question: "who signs the contract", Answered: true})
		r.Record(QueryEvent{Question: "gibberish", NoResponse: true})
		r.Flush()

		// Then the snapshot partitions the outcomes
		snap := r.Snapshot()
		assert.Equal(t, int64(3), snap.TotalQueries)
		assert.Equal(t, int64(2), snap.AnsweredCount)
		assert.Equal(t, int64(1), snap.NoResponseCount)
	})

	t.Run("detects repeated questions ignoring case and whitespace", func(t *testing.T) {
		r := newTestRecorder(t, nil)

		r.Record(QueryEvent{Question: "What is the refund policy?", Answered: true})
		r.Record(QueryEvent{Question: "  what is the refund policy?  ", Answered: true})
		r.Record(QueryEvent{Question: "something else", Answered: true})
		r.Flush()

		snap := r.Snapshot()
		assert.Equal(t, int64(1), snap.RepeatCount)
		assert.InDelta(t, 1.0/3.0, snap.RepeatRate, 0.001)
	})

	t.Run("tracks top terms by frequency", func(t *testing.T) {
		r := newTestRecorder(t, nil)

		r.Record(QueryEvent{Question: "refund policy details", Answered: true})
		r.Record(QueryEvent{Question: "refund window", Answered: true})
		r.Flush()

		snap := r.Snapshot()
		require.NotEmpty(t, snap.TopTerms)
		assert.Equal(t, "refund", snap.TopTerms[0].Term)
		assert.Equal(t, int64(2), snap.TopTerms[0].Count)
	})
}

func TestRecorderConcurrentRecord(t *testing.T) {
	// Given 50 goroutines recording simultaneously
	r := NewRecorderWithConfig(nil, slog.New(slog.DiscardHandler), Config{QueueDepth: 128})
	t.Cleanup(func() { _ = r.Close() })

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r.Record(QueryEvent{Question: fmt.Sprintf("question %d", i), Answered: true})
		}(i)
	}
	wg.Wait()
	r.Flush()

	// Then no events are lost while the queue has room
	assert.Equal(t, int64(50), r.Snapshot().TotalQueries)
}

func TestRecorderAfterClose(t *testing.T) {
	r := NewRecorder(nil, slog.New(slog.DiscardHandler))
	require.NoError(t, r.Close())

	// Recording and flushing after close are no-ops, not panics
	r.Record(QueryEvent{Question: "late", Answered: true})
	r.Flush()
	require.NoError(t, r.Close())

	assert.Equal(t, int64(0), r.Snapshot().TotalQueries)
}

func TestExtractTerms(t *testing.T) {
	tests := []struct {
		name     string
		question string
		want     []string
	}{
		{"lowercases and keeps long terms", "Refund Policy", []string{"refund", "policy"}},
		{"drops short words", "is it on my desk", []string{"desk"}},
		{"empty question", "   ", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractTerms(tt.question))
		})
	}
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	// Given a store on a fresh database file
	path := filepath.Join(t.TempDir(), "telemetry.db")
	store, err := OpenSQLiteStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	// When events are saved
	for i := 0; i < 3; i++ {
		err := store.SaveEvent(QueryEvent{
			Question:  fmt.Sprintf("question %d", i),
			Answered:  true,
			Latency:   15 * time.Millisecond,
			Timestamp: time.Now(),
		})
		require.NoError(t, err)
	}

	// Then they come back newest first
	count, err := store.EventCount()
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	questions, err := store.RecentQuestions(2)
	require.NoError(t, err)
	require.Len(t, questions, 2)
	assert.Equal(t, "question 2", questions[0])
	assert.Equal(t, "question 1", questions[1])
}

func TestSQLiteStoreReopen(t *testing.T) {
	// Given a database written by a previous process
	path := filepath.Join(t.TempDir(), "telemetry.db")
	store, err := OpenSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, store.SaveEvent(QueryEvent{Question: "persisted", Answered: true, Timestamp: time.Now()}))
	require.NoError(t, store.Close())

	// When it is reopened
	reopened, err := OpenSQLiteStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	// Then prior events survive
	questions, err := reopened.RecentQuestions(10)
	require.NoError(t, err)
	assert.Equal(t, []string{"persisted"}, questions)
}

func TestRecorderPersistsThroughStore(t *testing.T) {
	// Given a recorder wired to a SQLite store
	path := filepath.Join(t.TempDir(), "telemetry.db")
	store, err := OpenSQLiteStore(path)
	require.NoError(t, err)
	r := newTestRecorder(t, store)

	// When an event is recorded and flushed
	r.Record(QueryEvent{Question: "does it persist", Answered: true})
	r.Flush()

	// Then the event reached the database
	questions, err := store.RecentQuestions(1)
	require.NoError(t, err)
	assert.Equal(t, []string{"does it persist"}, questions)
}

func TestSnapshotSurfacesRecentQueries(t *testing.T) {
	// Given a recorder wired to a SQLite store with a few queries applied
	path := filepath.Join(t.TempDir(), "telemetry.db")
	store, err := OpenSQLiteStore(path)
	require.NoError(t, err)
	r := newTestRecorder(t, store)

	r.Record(QueryEvent{Question: "first", Answered: true})
	r.Record(QueryEvent{Question: "second", Answered: true})
	r.Flush()

	// When a snapshot is taken
	snap := r.Snapshot()

	// Then the persisted questions appear newest first
	assert.Equal(t, []string{"second", "first"}, snap.RecentQueries)
}

func TestSnapshotWithoutStoreHasNoRecentQueries(t *testing.T) {
	r := newTestRecorder(t, nil)

	r.Record(QueryEvent{Question: "memory only", Answered: true})
	r.Flush()

	snap := r.Snapshot()
	assert.Equal(t, int64(1), snap.TotalQueries)
	assert.Empty(t, snap.RecentQueries)
}
