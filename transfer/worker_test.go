package transfer

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/reviewdeck/go-transferutils/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetriesAreBounded(t *testing.T) {
	tests := []struct {
		name        string
		maxAttempts int
	}{
		{name: "default attempts", maxAttempts: 4},
		{name: "single attempt", maxAttempts: 1},
		{name: "two attempts", maxAttempts: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := testConfig()
			config.MaxAttempts = tt.maxAttempts
			transport := newScriptedTransport(respond(http.StatusServiceUnavailable, "unavailable", 100))
			r := newTestRegistry(t, transport, config)

			id, err := r.StartTransfer(testFile(1000), "42", "")
			require.NoError(t, err)

			tr := waitTerminal(t, r, id)
			waitIdle(t, r)

			assert.Equal(t, StatusFailed, tr.Status)
			assert.Equal(t, KindServer, tr.ErrorKind)
			assert.Equal(t, tt.maxAttempts, tr.AttemptCount)
			assert.Equal(t, tt.maxAttempts, tr.MaxAttempts)
			assert.Contains(t, tr.Error, "HTTP 503")
			assert.Equal(t, tt.maxAttempts, transport.calls())
			assert.Equal(t, int32(1), transport.maxConcurrent())
		})
	}
}

func TestTransientClientStatusesAreRetried(t *testing.T) {
	transport := newScriptedTransport(respond(http.StatusTooManyRequests, "slow down"), succeed())
	r := newTestRegistry(t, transport, testConfig())

	id, err := r.StartTransfer(testFile(10), "42", "")
	require.NoError(t, err)

	tr := waitTerminal(t, r, id)
	assert.Equal(t, StatusCompleted, tr.Status)
	assert.Equal(t, 2, tr.AttemptCount)
}

func TestCancelDuringBackoff(t *testing.T) {
	config := testConfig()
	config.Backoff = ConstantBackoff(time.Hour)
	transport := newScriptedTransport(dropConnection())
	r := newTestRegistry(t, transport, config)

	id, err := r.StartTransfer(testFile(10), "42", "")
	require.NoError(t, err)

	waitForStatus(t, r, id, func(tr Transfer) bool {
		return strings.Contains(tr.Message, "retrying (attempt 2/4) in 1h0m0s")
	})

	r.Cancel(id)

	tr := waitTerminal(t, r, id)
	assert.Equal(t, KindCancelled, tr.ErrorKind)
	assert.Equal(t, 1, tr.AttemptCount)
	assert.Equal(t, 1, transport.calls())
}

func TestSuccessReportedBeforeCancelWins(t *testing.T) {
	started := make(chan struct{}, 1)
	proceed := make(chan struct{})
	transport := newScriptedTransport(func(ctx context.Context, req network.Request, onProgress network.ProgressFunc) network.Outcome {
		started <- struct{}{}
		<-proceed
		return network.SuccessOutcome(http.StatusCreated, "")
	})
	r := newTestRegistry(t, transport, patientConfig())

	id, err := r.StartTransfer(testFile(10), "42", "")
	require.NoError(t, err)
	receive(t, started)

	r.Cancel(id)
	close(proceed)

	tr := waitTerminal(t, r, id)
	assert.Equal(t, StatusCompleted, tr.Status)
	assert.Empty(t, tr.ErrorKind)
}

func TestSupersededAttemptCannotReportProgress(t *testing.T) {
	var mu sync.Mutex
	var stale network.ProgressFunc
	started := make(chan struct{}, 1)

	transport := newScriptedTransport(
		func(ctx context.Context, req network.Request, onProgress network.ProgressFunc) network.Outcome {
			mu.Lock()
			stale = onProgress
			mu.Unlock()
			return network.NetworkErrorOutcome(context.DeadlineExceeded)
		},
		hang(started),
	)
	r := newTestRegistry(t, transport, patientConfig())

	id, err := r.StartTransfer(testFile(1000), "42", "")
	require.NoError(t, err)
	receive(t, started)

	mu.Lock()
	report := stale
	mu.Unlock()
	require.NotNil(t, report)
	report(900, 1000)

	tr, ok := r.Get(id)
	require.True(t, ok)
	assert.Equal(t, 2, tr.AttemptCount)
	assert.Equal(t, float64(0), tr.Progress)
}

func TestProgressNeverMovesBackwardsWithinAnAttempt(t *testing.T) {
	transport := newScriptedTransport(succeed(500, 300, 800, 200, 1000))
	r := newTestRegistry(t, transport, testConfig())

	c := &collector{}
	defer r.Subscribe(c.record)()

	id, err := r.StartTransfer(testFile(1000), "42", "")
	require.NoError(t, err)
	waitTerminal(t, r, id)
	c.waitFor(t, func(transfers []Transfer) bool {
		tr, ok := findTransfer(transfers, id)
		return ok && tr.Status == StatusCompleted
	})

	var progress []float64
	for _, state := range c.history(id) {
		progress = append(progress, state.Progress)
	}
	assert.NotContains(t, progress, float64(30))
	assert.NotContains(t, progress, float64(20))
	for i := 1; i < len(progress); i++ {
		assert.GreaterOrEqual(t, progress[i], progress[i-1])
	}
}

func TestSteadyProgressKeepsWatchdogQuiet(t *testing.T) {
	config := testConfig()
	config.StallThreshold = 200 * time.Millisecond
	transport := newScriptedTransport(trickle(40*time.Millisecond, 12))
	r := newTestRegistry(t, transport, config)

	id, err := r.StartTransfer(testFile(1000), "42", "")
	require.NoError(t, err)

	tr := waitTerminal(t, r, id)
	assert.Equal(t, StatusCompleted, tr.Status)
	assert.Equal(t, 1, tr.AttemptCount)
	assert.Equal(t, 1, transport.calls())
}

func TestAttemptTimeoutAbortsProgressingUpload(t *testing.T) {
	config := testConfig()
	config.MaxAttempts = 1
	config.AttemptTimeout = 150 * time.Millisecond
	transport := newScriptedTransport(trickle(10*time.Millisecond, 1000))
	r := newTestRegistry(t, transport, config)

	id, err := r.StartTransfer(testFile(100000), "42", "")
	require.NoError(t, err)

	tr := waitTerminal(t, r, id)
	assert.Equal(t, StatusFailed, tr.Status)
	assert.Equal(t, KindAttemptTimeout, tr.ErrorKind)
	assert.Contains(t, tr.Error, "attempt deadline exceeded")
}

func TestStatsCountAttempts(t *testing.T) {
	transport := newScriptedTransport(dropConnection(), respond(http.StatusBadGateway, ""), succeed())
	r := newTestRegistry(t, transport, testConfig())

	id, err := r.StartTransfer(testFile(10), "42", "")
	require.NoError(t, err)
	waitTerminal(t, r, id)
	waitIdle(t, r)

	stats := r.Stats()
	assert.Equal(t, int64(3), stats.Attempts)
	assert.Equal(t, int64(1), stats.Succeeded)
	assert.Equal(t, int64(1), stats.Failures[KindNetwork])
	assert.Equal(t, int64(1), stats.Failures[KindServer])
}
