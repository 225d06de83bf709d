package transfer

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// watchdog aborts an attempt that makes no progress for stallThreshold,
// or that runs longer than deadline in total.
type watchdog struct {
	interval       time.Duration
	stallThreshold time.Duration
	deadline       time.Duration
	abort          context.CancelCauseFunc

	started      time.Time
	lastProgress atomic.Int64

	stopCh   chan struct{}
	stopOnce sync.Once
	finished chan struct{}
}

func newWatchdog(config Config, abort context.CancelCauseFunc) *watchdog {
	return &watchdog{
		interval:       config.WatchdogInterval,
		stallThreshold: config.StallThreshold,
		deadline:       config.AttemptTimeout,
		abort:          abort,
		stopCh:         make(chan struct{}),
		finished:       make(chan struct{}),
	}
}

func (w *watchdog) start(ctx context.Context) {
	w.started = time.Now()
	w.lastProgress.Store(w.started.UnixNano())
	go w.run(ctx)
}

// touch resets the stall clock.
func (w *watchdog) touch() {
	w.lastProgress.Store(time.Now().UnixNano())
}

func (w *watchdog) run(ctx context.Context) {
	defer close(w.finished)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case now := <-ticker.C:
			if err := w.check(now); err != nil {
				w.abort(err)
				return
			}
		}
	}
}

// check returns the abort cause if the attempt must be stopped at the given time.
func (w *watchdog) check(now time.Time) error {
	if now.Sub(w.started) >= w.deadline {
		return fmt.Errorf("%w (%s)", ErrAttemptTimeout, w.deadline)
	}

	if now.Sub(time.Unix(0, w.lastProgress.Load())) >= w.stallThreshold {
		return fmt.Errorf("%w for %s", ErrStalled, w.stallThreshold)
	}

	return nil
}

// stop returns once the watchdog goroutine has exited; no abort happens afterwards.
func (w *watchdog) stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
	<-w.finished
}
