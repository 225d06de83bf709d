package transfer

import (
	"sync"
	"time"
)

// Stats tracks attempt outcomes across all transfers of a registry.
type Stats struct {
	mu        sync.Mutex
	attempts  int64
	succeeded int64
	sum       time.Duration
	failures  map[Kind]int64
}

// StatsSnapshot ...
type StatsSnapshot struct {
	Attempts  int64
	Succeeded int64
	Average   time.Duration
	Failures  map[Kind]int64
}

// NewStats creates a new Stats instance.
func NewStats() *Stats {
	return &Stats{failures: map[Kind]int64{}}
}

// Success records a successful attempt and its duration.
func (s *Stats) Success(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	s.succeeded++
	s.sum += d
}

// Failure records a failed attempt.
func (s *Stats) Failure(kind Kind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	s.failures[kind]++
}

// Average returns the average duration of successful attempts.
func (s *Stats) Average() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.averageLocked()
}

func (s *Stats) averageLocked() time.Duration {
	if s.succeeded == 0 {
		return 0
	}
	return s.sum / time.Duration(s.succeeded)
}

// Snapshot ...
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	failures := make(map[Kind]int64, len(s.failures))
	for k, v := range s.failures {
		failures[k] = v
	}
	return StatsSnapshot{
		Attempts:  s.attempts,
		Succeeded: s.succeeded,
		Average:   s.averageLocked(),
		Failures:  failures,
	}
}
