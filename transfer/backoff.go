package transfer

import "time"

// Backoff decides how long to wait before the next attempt after a retryable failure.
// attempt is the number of the attempt that just failed, starting at 1.
type Backoff interface {
	Delay(kind Kind, attempt int) time.Duration
}

// ScaledBackoff waits a per kind base delay multiplied by the failed attempt's number, capped by Max.
type ScaledBackoff struct {
	Base    map[Kind]time.Duration
	Default time.Duration
	Max     time.Duration
}

// DefaultBackoff returns the backoff used when none is configured:
// 3s after network errors, 5s after stalls and timeouts, 8s after server errors, capped at 30s.
func DefaultBackoff() ScaledBackoff {
	return ScaledBackoff{
		Base: map[Kind]time.Duration{
			KindNetwork:        3 * time.Second,
			KindStalled:        5 * time.Second,
			KindAttemptTimeout: 5 * time.Second,
			KindServer:         8 * time.Second,
		},
		Default: 5 * time.Second,
		Max:     30 * time.Second,
	}
}

// Delay ...
func (b ScaledBackoff) Delay(kind Kind, attempt int) time.Duration {
	base, ok := b.Base[kind]
	if !ok {
		base = b.Default
	}
	if attempt < 1 {
		attempt = 1
	}

	d := base * time.Duration(attempt)
	if b.Max > 0 && d > b.Max {
		d = b.Max
	}
	return d
}

// ConstantBackoff waits the same duration before every retry.
type ConstantBackoff time.Duration

// Delay ...
func (b ConstantBackoff) Delay(Kind, int) time.Duration {
	return time.Duration(b)
}
