package service

import (
	"errors"
	"testing"
	"time"
)

func TestRunsLifecycle(t *testing.T) {
	r := NewRuns()
	base := time.Unix(1700000000, 0)

	if err := r.Start("s2", "MSFT", base.Add(time.Second)); err != nil {
		t.Fatalf("Start s2: %v", err)
	}
	if err := r.Start("s1", "AAPL", base); err != nil {
		t.Fatalf("Start s1: %v", err)
	}
	if err := r.Start("s1", "AAPL", base); !errors.Is(err, ErrRunInProgress) {
		t.Fatalf("duplicate Start err = %v, want ErrRunInProgress", err)
	}

	r.Notice("s1")
	r.Notice("s1")
	r.Notice("missing")

	list := r.List()
	if len(list) != 2 {
		t.Fatalf("List() len = %d, want 2", len(list))
	}
	if list[0].SessionID != "s1" || list[0].Notices != 2 || list[0].StartedAt != base.UnixMilli() {
		t.Errorf("List()[0] = %+v", list[0])
	}
	if list[1].SessionID != "s2" || list[1].Company != "MSFT" {
		t.Errorf("List()[1] = %+v", list[1])
	}

	r.Finish("s1")
	if r.Len() != 1 {
		t.Errorf("Len() after Finish = %d, want 1", r.Len())
	}
	if err := r.Start("s1", "AAPL", base); err != nil {
		t.Errorf("Start after Finish: %v", err)
	}
}
