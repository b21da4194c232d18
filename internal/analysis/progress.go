package analysis

import (
	"iter"
	"sync"
)

// ProgressLog is the append-only record of progress notices for one session.
// Entries are never rewritten or reordered.
type ProgressLog struct {
	mu      sync.RWMutex
	notices []string
}

func (l *ProgressLog) Append(msg string) {
	l.mu.Lock()
	l.notices = append(l.notices, msg)
	l.mu.Unlock()
}

func (l *ProgressLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.notices)
}

// Notices returns a lazy view over the log. Each iteration starts from the
// first notice and reads up to the current tail, so a view created before
// more notices arrived will include them when ranged again.
func (l *ProgressLog) Notices() iter.Seq[string] {
	return func(yield func(string) bool) {
		for i := 0; ; i++ {
			l.mu.RLock()
			if i >= len(l.notices) {
				l.mu.RUnlock()
				return
			}
			msg := l.notices[i]
			l.mu.RUnlock()
			if !yield(msg) {
				return
			}
		}
	}
}

// Slice returns a copy of the notices received so far.
func (l *ProgressLog) Slice() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, len(l.notices))
	copy(out, l.notices)
	return out
}
