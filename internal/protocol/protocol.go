// Package protocol defines the wire format shared by the analysis service and
// its clients: the triggering HTTP request and the websocket event envelope.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Paths served by the analysis service.
const (
	PathRun     = "/run_financial_analysis"
	PathWS      = "/ws"
	PathRuns    = "/api/runs"
	PathHealth  = "/healthz"
	PathMetrics = "/metrics"
)

// SessionParam is the websocket query parameter naming the session a
// subscriber wants notices for.
const SessionParam = "session"

// TokenHeader is an alternative to the Authorization bearer header.
const TokenHeader = "X-Research-Token"

type MessageType string

const (
	MsgProgress MessageType = "analysis_progress"
	MsgComplete MessageType = "analysis_complete"
	MsgError    MessageType = "analysis_error"
)

// IsTerminal reports whether a message of this type ends a session's stream.
func (t MessageType) IsTerminal() bool {
	return t == MsgComplete || t == MsgError
}

// Envelope wraps every websocket message.
type Envelope struct {
	Type      MessageType     `json:"type"`
	Seq       uint64          `json:"seq"`
	SessionID string          `json:"sessionId"`
	Payload   json.RawMessage `json:"payload"`
}

type ProgressPayload struct {
	Message string `json:"message"`
}

type CompletePayload struct {
	Result string `json:"result"`
}

type ErrorPayload struct {
	Error string `json:"error"`
}

// RunRequest is the body of POST /run_financial_analysis.
type RunRequest struct {
	Company   string `json:"company"`
	SessionID string `json:"sessionId,omitempty"`
}

// RunResponse is the success body of POST /run_financial_analysis.
type RunResponse struct {
	Result string `json:"result"`
}

// ErrorResponse is the failure body of POST /run_financial_analysis.
type ErrorResponse struct {
	Error string `json:"error"`
}

// RunInfo describes an in-flight run on the service.
type RunInfo struct {
	SessionID string `json:"sessionId"`
	Company   string `json:"company"`
	StartedAt int64  `json:"startedAt"`
	Notices   int    `json:"notices"`
}

// NewEnvelope marshals payload into an envelope of the given type.
func NewEnvelope(t MessageType, sessionID string, seq uint64, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", t, err)
	}
	return Envelope{Type: t, Seq: seq, SessionID: sessionID, Payload: raw}, nil
}

// Event is a decoded envelope. Exactly one of the payload fields is set,
// matching Type.
type Event struct {
	Type      MessageType
	SessionID string
	Seq       uint64
	Progress  string
	Result    string
	Error     string
}

// Decode parses raw websocket data into an Event. Unknown types and payloads
// that do not match their type are errors.
func Decode(data []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Event{}, fmt.Errorf("decode envelope: %w", err)
	}
	ev := Event{Type: env.Type, SessionID: env.SessionID, Seq: env.Seq}
	switch env.Type {
	case MsgProgress:
		var p ProgressPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return Event{}, fmt.Errorf("decode progress payload: %w", err)
		}
		ev.Progress = p.Message
	case MsgComplete:
		var p CompletePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return Event{}, fmt.Errorf("decode complete payload: %w", err)
		}
		ev.Result = p.Result
	case MsgError:
		var p ErrorPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return Event{}, fmt.Errorf("decode error payload: %w", err)
		}
		ev.Error = p.Error
	default:
		return Event{}, fmt.Errorf("unknown message type %q", env.Type)
	}
	return ev, nil
}
