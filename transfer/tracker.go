package transfer

import (
	"sync"
	"time"

	"github.com/bitrise-io/go-utils/v2/analytics"
)

const (
	eventTransferCompleted = "transfer_completed"
	eventTransferFailed    = "transfer_failed"
)

// NewTracker returns a Subscriber that enqueues one analytics event for every transfer reaching a terminal status.
func NewTracker(tracker analytics.Tracker) Subscriber {
	var mu sync.Mutex
	tracked := map[string]bool{}

	return func(transfers []Transfer) {
		mu.Lock()
		defer mu.Unlock()

		for _, t := range transfers {
			if !t.Status.Terminal() || tracked[t.ID] {
				continue
			}
			tracked[t.ID] = true
			trackTransfer(tracker, t)
		}
	}
}

func trackTransfer(tracker analytics.Tracker, t Transfer) {
	properties := analytics.Properties{
		"transfer_id":   t.ID,
		"destination":   t.Destination,
		"size_bytes":    t.Size,
		"attempt_count": t.AttemptCount,
		"duration_s":    t.FinishedAt.Sub(t.CreatedAt).Truncate(time.Second).Seconds(),
	}

	if t.Status == StatusCompleted {
		tracker.Enqueue(eventTransferCompleted, properties)
		return
	}

	properties["error_kind"] = string(t.ErrorKind)
	properties["error"] = t.Error
	tracker.Enqueue(eventTransferFailed, properties)
}
