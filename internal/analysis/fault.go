package analysis

import (
	"context"
	"errors"
	"fmt"
)

// FaultKind classifies why a session failed.
type FaultKind int

const (
	// ConnectionFault: the event channel could not be established.
	ConnectionFault FaultKind = iota + 1
	// TransportFault: the triggering request came back with a non-success status.
	TransportFault
	// RemoteAnalysisFault: the service reported an error notice, or sent
	// something we could not decode.
	RemoteAnalysisFault
	// LocalFault: the triggering request failed before any response arrived.
	LocalFault
	// CanceledFault: the caller cancelled the session.
	CanceledFault
	// TimeoutFault: the opt-in analysis timeout elapsed.
	TimeoutFault
)

var faultKindNames = map[FaultKind]string{
	ConnectionFault:     "connection",
	TransportFault:      "transport",
	RemoteAnalysisFault: "remote_analysis",
	LocalFault:          "local",
	CanceledFault:       "canceled",
	TimeoutFault:        "timeout",
}

func (k FaultKind) String() string {
	if s, ok := faultKindNames[k]; ok {
		return s
	}
	return "unknown"
}

// MalformedEventDetail is the detail used when the channel delivers a payload
// that cannot be decoded.
const MalformedEventDetail = "malformed event from analysis service"

// MalformedResponseDetail is the detail used when a successful trigger
// response carries a body that cannot be decoded.
const MalformedResponseDetail = "malformed response from analysis service"

var (
	ErrEmptySubject      = errors.New("analysis subject is required")
	ErrAlreadySubscribed = errors.New("channel already has a subscriber")
	ErrInvalidTransition = errors.New("invalid session transition")
	ErrCoordinatorClosed = errors.New("coordinator closed")
)

// ErrStaleEvent marks an event whose generation is no longer current. It is
// swallowed by the coordinator and never reaches a session.
var ErrStaleEvent = errors.New("stale event discarded")

// Fault is the error detail attached to a Failed session.
type Fault struct {
	Kind   FaultKind
	Detail string
	Err    error
}

func (f *Fault) Error() string {
	if f.Detail == "" && f.Err != nil {
		return fmt.Sprintf("%s fault: %v", f.Kind, f.Err)
	}
	return fmt.Sprintf("%s fault: %s", f.Kind, f.Detail)
}

func (f *Fault) Unwrap() error { return f.Err }

// NewFault builds a Fault, defaulting the detail to the wrapped error text.
func NewFault(kind FaultKind, detail string, err error) *Fault {
	if detail == "" && err != nil {
		detail = err.Error()
	}
	return &Fault{Kind: kind, Detail: detail, Err: err}
}

// StatusError is returned by a Trigger when the service answered with a
// non-success status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("analysis request failed with status %d", e.Code)
	}
	return fmt.Sprintf("analysis request failed with status %d: %s", e.Code, e.Body)
}

// classifyTriggerError maps a trigger failure onto the fault taxonomy.
func classifyTriggerError(err error) *Fault {
	var f *Fault
	if errors.As(err, &f) {
		return f
	}
	var se *StatusError
	if errors.As(err, &se) {
		return NewFault(TransportFault, se.Error(), err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewFault(LocalFault, "analysis request timed out", err)
	}
	return NewFault(LocalFault, fmt.Sprintf("analysis request did not complete: %v", err), err)
}
