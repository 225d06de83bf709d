package transfer

import "time"

// Status ...
type Status string

const (
	StatusPending   Status = "pending"
	StatusInFlight  Status = "in_flight"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further transition can leave the status.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Transfer is a point in time snapshot of one file upload.
type Transfer struct {
	ID           string    `json:"id"`
	Filename     string    `json:"filename"`
	OriginalName string    `json:"original_name"`
	Destination  string    `json:"destination"`
	Size         int64     `json:"size"`
	Progress     float64   `json:"progress"`
	Status       Status    `json:"status"`
	Message      string    `json:"message,omitempty"`
	Error        string    `json:"error,omitempty"`
	ErrorKind    Kind      `json:"error_kind,omitempty"`
	AttemptCount int       `json:"attempt_count"`
	MaxAttempts  int       `json:"max_attempts"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	FinishedAt   time.Time `json:"finished_at,omitempty"`
}

// Active reports whether the transfer still has work to do.
func (t Transfer) Active() bool {
	return !t.Status.Terminal()
}
