package analytics

import (
	"fmt"

	"github.com/bitrise-io/go-utils/v2/analytics"
	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/bitrise-io/go-utils/v2/log"
)

type TrackerFactory func(log.Logger, ...analytics.Properties) analytics.Tracker

const (
	SessionIDEnvKey = "TRANSFER_SESSION_ID"
	SessionID       = "session_id"
)

// NewSessionTracker creates a tracker that attaches the current session's ID to every event.
func NewSessionTracker(repository env.Repository, trackerFactory TrackerFactory, logger log.Logger) (analytics.Tracker, error) {
	sessionID := repository.Get(SessionIDEnvKey)
	if sessionID == "" {
		return nil, fmt.Errorf("no session ID found")
	}
	return trackerFactory(logger, analytics.Properties{SessionID: sessionID}), nil
}

func NewDefaultSessionTracker(repository env.Repository, logger log.Logger) (analytics.Tracker, error) {
	return NewSessionTracker(repository, analytics.NewDefaultTracker, logger)
}
