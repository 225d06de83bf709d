package transfer

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/reviewdeck/go-transferutils/network"
)

type attemptResult struct {
	outcome  network.Outcome
	err      *Error
	duration time.Duration
}

// attempt is one Transport.Send supervised by a watchdog.
type attempt struct {
	number     int
	transferID string
	transport  network.Transport
	request    network.Request
	config     Config
	registry   *Registry

	mu          sync.Mutex
	closed      bool
	lastPercent float64
}

func (a *attempt) run(parent context.Context) attemptResult {
	ctx, abort := context.WithCancelCause(parent)
	defer abort(nil)

	wd := newWatchdog(a.config, abort)
	start := time.Now()
	wd.start(ctx)

	outcome := a.transport.Send(ctx, a.request, func(sent, total int64) {
		wd.touch()
		a.progress(sent, total)
	})

	wd.stop()
	a.close()

	result := attemptResult{outcome: outcome, duration: time.Since(start)}
	if outcome.Kind == network.Success {
		return result
	}

	cause := context.Cause(ctx)
	switch {
	case parent.Err() != nil:
		result.err = cancelledError()
	case errors.Is(cause, ErrStalled):
		result.err = &Error{Kind: KindStalled, Err: cause}
	case errors.Is(cause, ErrAttemptTimeout):
		result.err = &Error{Kind: KindAttemptTimeout, Err: cause}
	default:
		result.err = classifyOutcome(outcome)
	}

	return result
}

func (a *attempt) progress(sent, total int64) {
	if total <= 0 {
		return
	}
	percent := toPercent(sent, total)

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed || percent <= a.lastPercent {
		return
	}
	a.lastPercent = percent
	a.registry.setProgress(a.transferID, a.number, percent)
}

// close gates out any progress reported after Send returned.
func (a *attempt) close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
}

// toPercent converts bytes to a percentage rounded down to one decimal.
func toPercent(sent, total int64) float64 {
	p := float64(sent) * 100 / float64(total)
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return math.Floor(p*10) / 10
}
