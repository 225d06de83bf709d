package transfer

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/reviewdeck/go-transferutils/network"
)

// Kind classifies why an attempt failed.
type Kind string

const (
	KindNetwork        Kind = "network_error"
	KindStalled        Kind = "stall_timeout"
	KindAttemptTimeout Kind = "attempt_timeout"
	KindServer         Kind = "server_error"
	KindClient         Kind = "client_error"
	KindCancelled      Kind = "cancelled"
)

// Retryable reports whether a failure of this kind may succeed on a new attempt.
func (k Kind) Retryable() bool {
	switch k {
	case KindNetwork, KindStalled, KindAttemptTimeout, KindServer:
		return true
	default:
		return false
	}
}

func (k Kind) describe() string {
	switch k {
	case KindNetwork:
		return "network error"
	case KindStalled:
		return "stalled connection"
	case KindAttemptTimeout:
		return "attempt timed out"
	case KindServer:
		return "server error"
	case KindClient:
		return "rejected"
	case KindCancelled:
		return "cancelled"
	default:
		return string(k)
	}
}

var (
	// ErrNilFile ...
	ErrNilFile = errors.New("no file given")
	// ErrEmptyFile is returned by StartTransfer for zero length payloads.
	ErrEmptyFile = errors.New("file is empty")
	// ErrUnreadableFile is returned by StartTransfer when the payload can not be read.
	ErrUnreadableFile = errors.New("file is not readable")

	// ErrCancelled ...
	ErrCancelled = errors.New("cancelled")
	// ErrStalled is the cause of an attempt aborted for making no progress.
	ErrStalled = errors.New("no upload progress")
	// ErrAttemptTimeout is the cause of an attempt aborted for exceeding its deadline.
	ErrAttemptTimeout = errors.New("attempt deadline exceeded")
)

// Error describes a failed attempt.
type Error struct {
	Kind       Kind
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.Kind == KindCancelled:
		return e.Kind.describe()
	case e.StatusCode != 0 && e.Message != "":
		return fmt.Sprintf("%s: HTTP %d: %s", e.Kind.describe(), e.StatusCode, e.Message)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: HTTP %d", e.Kind.describe(), e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s", e.Kind.describe(), e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Kind.describe(), e.Message)
	default:
		return e.Kind.describe()
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable ...
func (e *Error) Retryable() bool {
	return e.Kind.Retryable()
}

// ClassifyStatus maps a non-success HTTP status to a failure kind.
// 408, 425 and 429 are transient even though they are client errors.
func ClassifyStatus(statusCode int) Kind {
	switch statusCode {
	case http.StatusRequestTimeout, http.StatusTooEarly, http.StatusTooManyRequests:
		return KindServer
	}
	if statusCode >= 400 && statusCode < 500 {
		return KindClient
	}
	return KindServer
}

// classifyOutcome converts a non-success transport outcome into an attempt error.
func classifyOutcome(outcome network.Outcome) *Error {
	switch outcome.Kind {
	case network.Failure:
		return &Error{
			Kind:       ClassifyStatus(outcome.StatusCode),
			StatusCode: outcome.StatusCode,
			Message:    outcome.Body,
		}
	case network.NetworkError:
		return &Error{Kind: KindNetwork, Err: outcome.Err}
	default:
		return nil
	}
}

func cancelledError() *Error {
	return &Error{Kind: KindCancelled, Err: ErrCancelled}
}
