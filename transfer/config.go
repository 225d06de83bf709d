package transfer

import (
	"fmt"
	"time"
)

// Config holds configuration for the transfer registry.
type Config struct {
	// MaxAttempts is the total number of attempts per transfer, including the first one.
	// Default: 4
	MaxAttempts int

	// StallThreshold is the time without upload progress after which an attempt is aborted.
	// Default: 30 seconds
	StallThreshold time.Duration

	// WatchdogInterval is how often a running attempt is checked for stalls and its deadline.
	// Default: 5 seconds
	WatchdogInterval time.Duration

	// AttemptTimeout bounds a single attempt regardless of progress.
	// Default: 1 hour
	AttemptTimeout time.Duration

	// Backoff decides the wait before a retry.
	// If nil, DefaultBackoff is used.
	Backoff Backoff

	// LargeFileThreshold is the size from which uploads are flagged as large files to the endpoint.
	// Zero disables the flag.
	// Default: 100 MB
	LargeFileThreshold int64

	// FileField is the multipart field carrying the file.
	// Default: "file"
	FileField string
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:        4,
		StallThreshold:     30 * time.Second,
		WatchdogInterval:   5 * time.Second,
		AttemptTimeout:     time.Hour,
		Backoff:            DefaultBackoff(),
		LargeFileThreshold: 100 * 1000 * 1000,
		FileField:          "file",
	}
}

// Validate ...
func (c Config) Validate() error {
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1, got %d", c.MaxAttempts)
	}
	if c.StallThreshold <= 0 {
		return fmt.Errorf("stall threshold must be positive, got %s", c.StallThreshold)
	}
	if c.WatchdogInterval <= 0 {
		return fmt.Errorf("watchdog interval must be positive, got %s", c.WatchdogInterval)
	}
	if c.WatchdogInterval > c.StallThreshold {
		return fmt.Errorf("watchdog interval (%s) must not exceed the stall threshold (%s)", c.WatchdogInterval, c.StallThreshold)
	}
	if c.AttemptTimeout <= 0 {
		return fmt.Errorf("attempt timeout must be positive, got %s", c.AttemptTimeout)
	}
	if c.LargeFileThreshold < 0 {
		return fmt.Errorf("large file threshold must not be negative, got %d", c.LargeFileThreshold)
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.Backoff == nil {
		c.Backoff = DefaultBackoff()
	}
	if c.FileField == "" {
		c.FileField = "file"
	}
	return c
}
