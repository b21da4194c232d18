package analysis

import (
	"fmt"
	"time"
)

// Session is one analysis request. A new subject always gets a new Session;
// fields are never reset in place. Session is not safe for concurrent
// mutation; the Coordinator serializes all transitions.
type Session struct {
	generation uint64
	id         string
	subject    string
	phase      Phase
	progress   ProgressLog
	result     string
	fault      *Fault
	startedAt  time.Time
	finishedAt time.Time
}

// Snapshot is an immutable copy of a Session's observable state.
type Snapshot struct {
	Generation uint64    `json:"generation"`
	ID         string    `json:"id,omitempty"`
	Subject    string    `json:"subject,omitempty"`
	Phase      Phase     `json:"phase"`
	Progress   []string  `json:"progress"`
	Result     string    `json:"result,omitempty"`
	Fault      *Fault    `json:"-"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
}

// HasResult reports whether the snapshot carries a final report.
func (s Snapshot) HasResult() bool { return s.Phase == Completed }

// Elapsed is the wall time from submit to the terminal transition, or to now
// while the session is still active.
func (s Snapshot) Elapsed(now time.Time) time.Duration {
	if s.StartedAt.IsZero() {
		return 0
	}
	if !s.FinishedAt.IsZero() {
		return s.FinishedAt.Sub(s.StartedAt)
	}
	return now.Sub(s.StartedAt)
}

func idleSession() *Session {
	return &Session{phase: Idle}
}

// newSession applies the submit transition: a fresh instance in Connecting
// with an empty progress log.
func newSession(generation uint64, id, subject string, now time.Time) *Session {
	return &Session{
		generation: generation,
		id:         id,
		subject:    subject,
		phase:      Connecting,
		startedAt:  now,
	}
}

func (s *Session) Generation() uint64 { return s.generation }
func (s *Session) ID() string         { return s.id }
func (s *Session) Subject() string    { return s.subject }
func (s *Session) Phase() Phase       { return s.phase }

// Progress exposes the session's progress log for lazy reads.
func (s *Session) Progress() *ProgressLog { return &s.progress }

func (s *Session) Snapshot() Snapshot {
	snap := Snapshot{
		Generation: s.generation,
		ID:         s.id,
		Subject:    s.subject,
		Phase:      s.phase,
		Progress:   s.progress.Slice(),
		StartedAt:  s.startedAt,
		FinishedAt: s.finishedAt,
	}
	switch s.phase {
	case Completed:
		snap.Result = s.result
	case Failed:
		snap.Fault = s.fault
		if s.fault != nil {
			snap.Error = s.fault.Detail
		}
	}
	return snap
}

func (s *Session) transitionErr(event string) error {
	return fmt.Errorf("%w: %s while %s", ErrInvalidTransition, event, s.phase)
}

// opened applies channelOpened.
func (s *Session) opened() error {
	if s.phase != Connecting {
		return s.transitionErr("channel opened")
	}
	s.phase = Analyzing
	return nil
}

func (s *Session) appendProgress(msg string) error {
	if s.phase != Analyzing {
		return s.transitionErr("progress")
	}
	s.progress.Append(msg)
	return nil
}

// complete sets the result. A successful trigger response can beat the
// channel's open notification; in that case the session passes through
// Analyzing on its way to Completed.
func (s *Session) complete(result string, now time.Time) error {
	if s.phase == Connecting {
		s.phase = Analyzing
	}
	if s.phase != Analyzing {
		return s.transitionErr("complete")
	}
	s.phase = Completed
	s.result = result
	s.finishedAt = now
	return nil
}

func (s *Session) fail(f *Fault, now time.Time) error {
	if !s.phase.IsActive() {
		return s.transitionErr("error")
	}
	s.phase = Failed
	s.fault = f
	s.finishedAt = now
	return nil
}
