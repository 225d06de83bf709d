package network

import (
	"context"
	"fmt"
)

// DefaultFileField is the multipart field name carrying the file bytes.
const DefaultFileField = "file"

// Form fields sent along with the file.
const (
	FieldName         = "name"
	FieldOriginalName = "original_name"
	FieldLargeFile    = "large_file"
	FieldDescription  = "description"
)

// ProgressFunc receives the number of payload bytes sent so far and the total payload size.
type ProgressFunc func(sent, total int64)

// Request describes a single whole-file upload.
type Request struct {
	URL       string
	File      File
	FileField string
	Fields    map[string]string
}

func (r Request) fileField() string {
	if r.FileField == "" {
		return DefaultFileField
	}
	return r.FileField
}

// OutcomeKind ...
type OutcomeKind int

const (
	// Success means the endpoint accepted the payload.
	Success OutcomeKind = iota
	// Failure means the endpoint answered with a non-success status.
	Failure
	// NetworkError means no usable response was received.
	NetworkError
)

func (k OutcomeKind) String() string {
	switch k {
	case Success:
		return "success"
	case Failure:
		return "failure"
	case NetworkError:
		return "network error"
	default:
		return fmt.Sprintf("outcome(%d)", int(k))
	}
}

// Outcome is the terminal result of Transport.Send.
type Outcome struct {
	Kind       OutcomeKind
	StatusCode int
	Body       string
	Err        error
}

// SuccessOutcome ...
func SuccessOutcome(statusCode int, body string) Outcome {
	return Outcome{Kind: Success, StatusCode: statusCode, Body: body}
}

// FailureOutcome ...
func FailureOutcome(statusCode int, body string) Outcome {
	return Outcome{Kind: Failure, StatusCode: statusCode, Body: body}
}

// NetworkErrorOutcome ...
func NetworkErrorOutcome(err error) Outcome {
	return Outcome{Kind: NetworkError, Err: err}
}

func (o Outcome) String() string {
	switch o.Kind {
	case Success:
		return fmt.Sprintf("HTTP %d", o.StatusCode)
	case Failure:
		return fmt.Sprintf("HTTP %d: %s", o.StatusCode, o.Body)
	default:
		return fmt.Sprintf("network error: %v", o.Err)
	}
}

// Transport performs exactly one upload per Send call and reports exactly one Outcome.
// Implementations must not retry, must honour ctx cancellation as an abort
// and may call onProgress any number of times before returning.
type Transport interface {
	Send(ctx context.Context, req Request, onProgress ProgressFunc) Outcome
}

// TransportFunc adapts an ordinary function to the Transport interface.
type TransportFunc func(ctx context.Context, req Request, onProgress ProgressFunc) Outcome

// Send ...
func (f TransportFunc) Send(ctx context.Context, req Request, onProgress ProgressFunc) Outcome {
	return f(ctx, req, onProgress)
}
