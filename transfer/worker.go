package transfer

import (
	"context"
	"io"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/reviewdeck/go-transferutils/network"
)

// worker drives one transfer through its attempts.
type worker struct {
	registry  *Registry
	id        string
	transport network.Transport
	request   network.Request
	config    Config
	logger    log.Logger
	cancel    context.CancelFunc
	closer    io.Closer
}

func (w *worker) run(ctx context.Context) {
	defer w.registry.workerDone()
	defer w.release()

	for number := 1; ; number++ {
		if ctx.Err() != nil {
			w.registry.fail(w.id, cancelledError())
			return
		}

		if !w.registry.beginAttempt(w.id, number) {
			w.logger.Debugf("Transfer %s is gone, stopping", w.id)
			return
		}

		w.logger.Debugf("Transfer %s: starting attempt %d/%d", w.id, number, w.config.MaxAttempts)

		a := &attempt{
			number:     number,
			transferID: w.id,
			transport:  w.transport,
			request:    w.request,
			config:     w.config,
			registry:   w.registry,
		}
		result := a.run(ctx)
		w.registry.endAttempt(w.id, number)

		if result.err == nil {
			w.registry.stats.Success(result.duration)
			w.registry.complete(w.id, result.outcome, result.duration)
			return
		}
		w.registry.stats.Failure(result.err.Kind)

		if !result.err.Retryable() || number >= w.config.MaxAttempts {
			w.registry.fail(w.id, result.err)
			return
		}

		delay := w.config.Backoff.Delay(result.err.Kind, number)
		w.logger.Warnf("Transfer %s attempt %d/%d failed: %s, retrying after %s",
			w.id, number, w.config.MaxAttempts, result.err, delay)
		if !w.registry.retrying(w.id, result.err, number+1, delay) {
			return
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			w.registry.fail(w.id, cancelledError())
			return
		case <-timer.C:
		}
	}
}

func (w *worker) release() {
	w.cancel()
	if w.closer == nil {
		return
	}
	if err := w.closer.Close(); err != nil {
		w.logger.Warnf("Failed to close %s: %s", w.request.File.Name(), err)
	}
}
