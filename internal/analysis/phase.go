// Package analysis owns the lifecycle of a stock-research analysis session:
// one triggering HTTP request racing an event channel of progress notices,
// reconciled into a single observable snapshot.
package analysis

import (
	"encoding/json"
	"fmt"
)

type Phase int

const (
	Idle Phase = iota
	Connecting
	Analyzing
	Completed
	Failed
)

var phaseNames = map[Phase]string{
	Idle:       "idle",
	Connecting: "connecting",
	Analyzing:  "analyzing",
	Completed:  "completed",
	Failed:     "failed",
}

var phaseFromName = map[string]Phase{
	"idle":       Idle,
	"connecting": Connecting,
	"analyzing":  Analyzing,
	"completed":  Completed,
	"failed":     Failed,
}

func (p Phase) String() string {
	if s, ok := phaseNames[p]; ok {
		return s
	}
	return "unknown"
}

// IsTerminal reports whether no further transition is possible for the
// session instance holding this phase.
func (p Phase) IsTerminal() bool {
	return p == Completed || p == Failed
}

// IsActive reports whether the session is waiting on the service.
func (p Phase) IsActive() bool {
	return p == Connecting || p == Analyzing
}

func (p Phase) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

func (p *Phase) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	v, ok := phaseFromName[s]
	if !ok {
		return fmt.Errorf("unknown phase %q", s)
	}
	*p = v
	return nil
}
