package transfer

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bitrise-io/go-utils/v2/analytics"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/reviewdeck/go-transferutils/network"
	"github.com/stretchr/testify/require"
)

type step func(ctx context.Context, req network.Request, onProgress network.ProgressFunc) network.Outcome

// scriptedTransport plays one step per Send call, the last step repeats.
type scriptedTransport struct {
	mu       sync.Mutex
	steps    []step
	requests []network.Request

	active    int32
	maxActive int32
}

func newScriptedTransport(steps ...step) *scriptedTransport {
	return &scriptedTransport{steps: steps}
}

func (s *scriptedTransport) Send(ctx context.Context, req network.Request, onProgress network.ProgressFunc) network.Outcome {
	active := atomic.AddInt32(&s.active, 1)
	defer atomic.AddInt32(&s.active, -1)
	for {
		prev := atomic.LoadInt32(&s.maxActive)
		if active <= prev || atomic.CompareAndSwapInt32(&s.maxActive, prev, active) {
			break
		}
	}

	s.mu.Lock()
	i := len(s.requests)
	s.requests = append(s.requests, req)
	if i >= len(s.steps) {
		i = len(s.steps) - 1
	}
	next := s.steps[i]
	s.mu.Unlock()

	return next(ctx, req, onProgress)
}

func (s *scriptedTransport) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func (s *scriptedTransport) request(i int) network.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[i]
}

func (s *scriptedTransport) maxConcurrent() int32 {
	return atomic.LoadInt32(&s.maxActive)
}

func succeed(progress ...int64) step {
	return func(ctx context.Context, req network.Request, onProgress network.ProgressFunc) network.Outcome {
		for _, sent := range progress {
			onProgress(sent, req.File.Size())
		}
		return network.SuccessOutcome(http.StatusCreated, `{"id":1}`)
	}
}

func respond(statusCode int, body string, progress ...int64) step {
	return func(ctx context.Context, req network.Request, onProgress network.ProgressFunc) network.Outcome {
		for _, sent := range progress {
			onProgress(sent, req.File.Size())
		}
		return network.FailureOutcome(statusCode, body)
	}
}

func dropConnection(progress ...int64) step {
	return func(ctx context.Context, req network.Request, onProgress network.ProgressFunc) network.Outcome {
		for _, sent := range progress {
			onProgress(sent, req.File.Size())
		}
		return network.NetworkErrorOutcome(errors.New("connection reset by peer"))
	}
}

// hang reports the given progress and then blocks until the attempt is aborted.
func hang(started chan<- struct{}, progress ...int64) step {
	return func(ctx context.Context, req network.Request, onProgress network.ProgressFunc) network.Outcome {
		for _, sent := range progress {
			onProgress(sent, req.File.Size())
		}
		select {
		case started <- struct{}{}:
		default:
		}
		<-ctx.Done()
		return network.NetworkErrorOutcome(ctx.Err())
	}
}

// trickle reports progress every interval, count times, then succeeds.
func trickle(interval time.Duration, count int) step {
	return func(ctx context.Context, req network.Request, onProgress network.ProgressFunc) network.Outcome {
		size := req.File.Size()
		for i := 1; i <= count; i++ {
			select {
			case <-ctx.Done():
				return network.NetworkErrorOutcome(ctx.Err())
			case <-time.After(interval):
			}
			onProgress(size*int64(i)/int64(count+1), size)
		}
		return network.SuccessOutcome(http.StatusCreated, "")
	}
}

func testConfig() Config {
	return Config{
		MaxAttempts:      4,
		StallThreshold:   150 * time.Millisecond,
		WatchdogInterval: 10 * time.Millisecond,
		AttemptTimeout:   5 * time.Second,
		Backoff:          ConstantBackoff(5 * time.Millisecond),
	}
}

// patientConfig never stall-aborts within a test's lifetime.
func patientConfig() Config {
	config := testConfig()
	config.StallThreshold = time.Minute
	config.WatchdogInterval = 50 * time.Millisecond
	return config
}

func newTestRegistry(t *testing.T, transport network.Transport, config Config) *Registry {
	t.Helper()

	r, err := New(transport, network.ProjectFilesURL("https://review.example.com"), config, log.NewLogger())
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = r.Shutdown(ctx)
	})
	return r
}

func testFile(size int) *network.BytesFile {
	return network.NewBytesFile("clip.mp4", []byte(strings.Repeat("x", size)))
}

func waitForStatus(t *testing.T, r *Registry, id string, done func(Transfer) bool) Transfer {
	t.Helper()

	var got Transfer
	require.Eventually(t, func() bool {
		tr, ok := r.Get(id)
		if !ok {
			return false
		}
		got = tr
		return done(tr)
	}, 5*time.Second, 5*time.Millisecond)
	return got
}

func waitTerminal(t *testing.T, r *Registry, id string) Transfer {
	t.Helper()
	return waitForStatus(t, r, id, func(tr Transfer) bool { return tr.Status.Terminal() })
}

// collector records every snapshot a subscriber receives.
type collector struct {
	mu        sync.Mutex
	snapshots [][]Transfer
}

func (c *collector) record(transfers []Transfer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshots = append(c.snapshots, transfers)
}

func (c *collector) all() [][]Transfer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]Transfer(nil), c.snapshots...)
}

func (c *collector) latest() []Transfer {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.snapshots) == 0 {
		return nil
	}
	return c.snapshots[len(c.snapshots)-1]
}

// history returns the consecutive states of one transfer as seen by the subscriber.
func (c *collector) history(id string) []Transfer {
	var states []Transfer
	for _, snapshot := range c.all() {
		for _, tr := range snapshot {
			if tr.ID == id {
				states = append(states, tr)
			}
		}
	}
	return states
}

func (c *collector) waitFor(t *testing.T, cond func([]Transfer) bool) {
	t.Helper()
	require.Eventually(t, func() bool {
		return cond(c.latest())
	}, 5*time.Second, 5*time.Millisecond)
}

func findTransfer(transfers []Transfer, id string) (Transfer, bool) {
	for _, tr := range transfers {
		if tr.ID == id {
			return tr, true
		}
	}
	return Transfer{}, false
}

type unreadableFile struct{}

func (unreadableFile) ReadAt([]byte, int64) (int, error) { return 0, errors.New("permission denied") }
func (unreadableFile) Name() string                      { return "locked.mov" }
func (unreadableFile) Size() int64                       { return 10 }

type trackedEvent struct {
	name       string
	properties analytics.Properties
}

type fakeTracker struct {
	mu     sync.Mutex
	events []trackedEvent
}

func (f *fakeTracker) Enqueue(eventName string, properties ...analytics.Properties) {
	f.mu.Lock()
	defer f.mu.Unlock()

	merged := analytics.Properties{}
	for _, p := range properties {
		for k, v := range p {
			merged[k] = v
		}
	}
	f.events = append(f.events, trackedEvent{name: eventName, properties: merged})
}

func (f *fakeTracker) Wait() {}

func (f *fakeTracker) recorded() []trackedEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]trackedEvent(nil), f.events...)
}
