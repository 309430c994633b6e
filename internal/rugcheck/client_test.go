package rugcheck

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rayscout/rayscout/internal/metrics"
	"github.com/rayscout/rayscout/pkg/logger"
)

type recordedError struct {
	context string
	err     error
}

type fakeRecorder struct {
	mu      sync.Mutex
	entries []recordedError
}

func (f *fakeRecorder) Record(context string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, recordedError{context, err})
}

func (f *fakeRecorder) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

const reportJSON = `{
  "tokenProgram": "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA",
  "tokenType": "",
  "score": 25001,
  "risks": [
    {"name": "Mutable metadata", "value": "", "description": "Token metadata can be changed by the owner", "score": 100, "level": "warn"},
    {"name": "Freeze Authority still enabled", "value": "", "description": "Tokens can be frozen", "score": 7500, "level": "danger"}
  ]
}`

func oracle(t *testing.T, handler http.HandlerFunc) (*Client, *fakeRecorder, *metrics.ScoutMetrics) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	rec := &fakeRecorder{}
	m := metrics.NewScoutMetrics()
	c := NewClient(logger.NewNop(), rec, WithBaseURL(server.URL), WithDelay(0), WithMetrics(m))
	return c, rec, m
}

func TestCheck_OK(t *testing.T) {
	c, rec, m := oracle(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tokens/mint123/report/summary", r.URL.Path)
		assert.Equal(t, "Solana-Token-Bot/1.0", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(reportJSON))
	})

	report := c.Check(context.Background(), "mint123")
	require.NotNil(t, report)
	assert.Equal(t, int64(25001), report.Score)
	require.Len(t, report.Risks, 2)
	assert.Equal(t, "danger", report.Risks[1].Level)
	assert.Equal(t, 1, report.DangerCount())
	assert.Equal(t, "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA", report.TokenProgram)

	assert.Zero(t, rec.count())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OracleRequests.WithLabelValues(metrics.OutcomeOK)))
}

func TestCheck_ExpectedFailuresAreQuiet(t *testing.T) {
	for _, tc := range []struct {
		status  int
		outcome string
	}{
		{http.StatusNotFound, metrics.OutcomeNotFound},
		{http.StatusTooManyRequests, metrics.OutcomeRateLimited},
	} {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			c, rec, m := oracle(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			})

			assert.Nil(t, c.Check(context.Background(), "mint"))
			assert.Zero(t, rec.count(), "expected outcomes never reach the error log")
			assert.Equal(t, 1.0, testutil.ToFloat64(m.OracleRequests.WithLabelValues(tc.outcome)))
		})
	}
}

func TestCheck_UnexpectedFailuresAreRecorded(t *testing.T) {
	tests := map[string]http.HandlerFunc{
		"server error": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		},
		"malformed body": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("{"))
		},
	}
	for name, handler := range tests {
		t.Run(name, func(t *testing.T) {
			c, rec, m := oracle(t, handler)

			assert.Nil(t, c.Check(context.Background(), "mint9"))
			require.Equal(t, 1, rec.count())
			assert.True(t, strings.HasPrefix(rec.entries[0].context, "RugCheck API error for mint9"))
			assert.Equal(t, 1.0, testutil.ToFloat64(m.OracleRequests.WithLabelValues(metrics.OutcomeError)))
		})
	}
}

func TestCheck_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	rec := &fakeRecorder{}
	c := NewClient(logger.NewNop(), rec, WithBaseURL(server.URL), WithDelay(0), WithTimeout(50*time.Millisecond))

	assert.Nil(t, c.Check(context.Background(), "slow"))
	assert.Equal(t, 1, rec.count())
}

func TestCheck_AppliesDelayBeforeEveryCall(t *testing.T) {
	c, _, _ := oracle(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	var delays []time.Duration
	c.delay = 1500 * time.Millisecond
	c.sleepFor = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}

	c.Check(context.Background(), "a")
	c.Check(context.Background(), "b")
	assert.Equal(t, []time.Duration{1500 * time.Millisecond, 1500 * time.Millisecond}, delays)
}

func TestCheck_CancelledDuringDelay(t *testing.T) {
	var hits atomic.Int32
	c, rec, _ := oracle(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	})
	c.delay = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Nil(t, c.Check(ctx, "mint"))
	assert.Zero(t, hits.Load())
	assert.Zero(t, rec.count())
}

func TestCheckBatch(t *testing.T) {
	c, _, _ := oracle(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "/missing/") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(reportJSON))
	})

	var progress [][2]int
	reports := c.CheckBatch(context.Background(), []string{"a", "missing", "c"}, func(done, total int) {
		progress = append(progress, [2]int{done, total})
	})

	require.Len(t, reports, 3)
	assert.NotNil(t, reports[0])
	assert.Nil(t, reports[1])
	assert.NotNil(t, reports[2])
	assert.Equal(t, [][2]int{{1, 3}, {2, 3}, {3, 3}}, progress)
}
