package metrics

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstrumentRecordsOutcome(t *testing.T) {
	t.Run("success increments the success series once", func(t *testing.T) {
		// Given a fresh metric set
		m := New(nil)

		// When a handler completes without error
		err := m.Instrument("query", func() error { return nil })

		// Then only the success series moves
		require.NoError(t, err)
		assert.Equal(t, 1.0, m.RequestCount("query", OutcomeSuccess))
		assert.Equal(t, 0.0, m.RequestCount("query", OutcomeError))
	})

	t.Run("error increments the error series and passes the error through", func(t *testing.T) {
		m := New(nil)
		wantErr := fmt.Errorf("engine exploded")

		err := m.Instrument("query", func() error { return wantErr })

		require.ErrorIs(t, err, wantErr)
		assert.Equal(t, 0.0, m.RequestCount("query", OutcomeSuccess))
		assert.Equal(t, 1.0, m.RequestCount("query", OutcomeError))
	})

	t.Run("endpoints are partitioned", func(t *testing.T) {
		m := New(nil)

		_ = m.Instrument("query", func() error { return nil })
		_ = m.Instrument("ingest", func() error { return fmt.Errorf("boom") })

		assert.Equal(t, 1.0, m.RequestCount("query", OutcomeSuccess))
		assert.Equal(t, 1.0, m.RequestCount("ingest", OutcomeError))
		assert.Equal(t, 0.0, m.RequestCount("ingest", OutcomeSuccess))
	})
}

func TestInstrumentConcurrent(t *testing.T) {
	// Given 40 concurrent requests, half failing
	m := New(nil)
	const n = 40

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = m.Instrument("query", func() error {
				if i%2 == 1 {
					return fmt.Errorf("fail %d", i)
				}
				return nil
			})
		}(i)
	}
	wg.Wait()

	// Then every request lands in exactly one series
	assert.Equal(t, float64(n/2), m.RequestCount("query", OutcomeSuccess))
	assert.Equal(t, float64(n/2), m.RequestCount("query", OutcomeError))
}

func TestGaugesReadLiveState(t *testing.T) {
	// Given gauges bound to mutable index state
	var mu sync.Mutex
	chunks, size := 3, int64(1024)
	m := New(func() (int, int64) {
		mu.Lock()
		defer mu.Unlock()
		return chunks, size
	})

	// When the exposition endpoint is scraped
	body := scrape(t, m)
	assert.Contains(t, body, "gateway_index_chunks 3")
	assert.Contains(t, body, "gateway_index_size_bytes 1024")

	// And the state changes between scrapes
	mu.Lock()
	chunks, size = 7, 4096
	mu.Unlock()

	// Then the next scrape reflects the new values, not a cached snapshot
	body = scrape(t, m)
	assert.Contains(t, body, "gateway_index_chunks 7")
	assert.Contains(t, body, "gateway_index_size_bytes 4096")
}

func TestNoResponseCounter(t *testing.T) {
	m := New(nil)

	m.MarkNoResponse()
	m.MarkNoResponse()

	body := scrape(t, m)
	assert.Contains(t, body, "gateway_engine_no_response_total 2")
}

func TestHandlerServesTextExposition(t *testing.T) {
	m := New(func() (int, int64) { return 0, 0 })
	_ = m.Instrument("query", func() error { return nil })
	m.Observe("health", nil, 5*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `gateway_requests_total{endpoint="query",status="success"} 1`)
	assert.Contains(t, body, `gateway_requests_total{endpoint="health",status="success"} 1`)
	assert.Contains(t, body, `gateway_request_duration_seconds_count{endpoint="health"} 1`)
}

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}
