package service

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/systemtwo/research/internal/protocol"
)

var ErrRunInProgress = errors.New("a run for this session is already in progress")

type run struct {
	sessionID string
	company   string
	startedAt time.Time
	notices   int
}

// Runs tracks in-flight analysis runs by session ID.
type Runs struct {
	mu   sync.RWMutex
	runs map[string]*run
}

func NewRuns() *Runs {
	return &Runs{runs: make(map[string]*run)}
}

// Start registers a run. A session ID can only have one run in flight.
func (r *Runs) Start(sessionID, company string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.runs[sessionID]; ok {
		return ErrRunInProgress
	}
	r.runs[sessionID] = &run{sessionID: sessionID, company: company, startedAt: now}
	return nil
}

func (r *Runs) Notice(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if run, ok := r.runs[sessionID]; ok {
		run.notices++
	}
}

func (r *Runs) Finish(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.runs, sessionID)
}

// List returns the in-flight runs, oldest first.
func (r *Runs) List() []protocol.RunInfo {
	r.mu.RLock()
	out := make([]protocol.RunInfo, 0, len(r.runs))
	for _, run := range r.runs {
		out = append(out, protocol.RunInfo{
			SessionID: run.sessionID,
			Company:   run.company,
			StartedAt: run.startedAt.UnixMilli(),
			Notices:   run.notices,
		})
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt != out[j].StartedAt {
			return out[i].StartedAt < out[j].StartedAt
		}
		return out[i].SessionID < out[j].SessionID
	})
	return out
}

func (r *Runs) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.runs)
}
