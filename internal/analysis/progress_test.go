package analysis

import (
	"slices"
	"sync"
	"testing"
)

func TestProgressLogViewIsRestartable(t *testing.T) {
	var l ProgressLog
	view := l.Notices()

	if got := slices.Collect(view); len(got) != 0 {
		t.Fatalf("empty log view = %q", got)
	}

	l.Append("first")
	l.Append("second")
	if got := slices.Collect(view); !slices.Equal(got, []string{"first", "second"}) {
		t.Fatalf("view = %q", got)
	}
	// Re-reading without new notices yields the same sequence.
	if got := slices.Collect(view); !slices.Equal(got, []string{"first", "second"}) {
		t.Fatalf("second read = %q", got)
	}

	l.Append("third")
	if got := slices.Collect(view); !slices.Equal(got, []string{"first", "second", "third"}) {
		t.Fatalf("view after append = %q", got)
	}
}

func TestProgressLogEarlyStop(t *testing.T) {
	var l ProgressLog
	for _, m := range []string{"a", "b", "c"} {
		l.Append(m)
	}
	var got []string
	for m := range l.Notices() {
		got = append(got, m)
		if m == "b" {
			break
		}
	}
	if !slices.Equal(got, []string{"a", "b"}) {
		t.Errorf("got %q, want [a b]", got)
	}
}

func TestProgressLogSliceIsCopy(t *testing.T) {
	var l ProgressLog
	l.Append("a")
	s := l.Slice()
	s[0] = "mutated"
	if got := l.Slice(); got[0] != "a" {
		t.Errorf("log entry rewritten through Slice: %q", got)
	}
}

func TestProgressLogConcurrentAppend(t *testing.T) {
	var l ProgressLog
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				l.Append("x")
			}
		}()
	}
	for range l.Notices() {
	}
	wg.Wait()
	if l.Len() != 800 {
		t.Errorf("Len = %d, want 800", l.Len())
	}
}
