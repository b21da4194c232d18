package analysis

import (
	"encoding/json"
	"testing"
)

func TestPhaseMarshalJSON(t *testing.T) {
	tests := []struct {
		phase    Phase
		expected string
	}{
		{Idle, `"idle"`},
		{Connecting, `"connecting"`},
		{Analyzing, `"analyzing"`},
		{Completed, `"completed"`},
		{Failed, `"failed"`},
	}

	for _, tt := range tests {
		data, err := json.Marshal(tt.phase)
		if err != nil {
			t.Errorf("Marshal(%v) error: %v", tt.phase, err)
			continue
		}
		if string(data) != tt.expected {
			t.Errorf("Marshal(%v) = %s, want %s", tt.phase, data, tt.expected)
		}
	}
}

func TestPhaseUnmarshalJSON(t *testing.T) {
	var p Phase
	if err := json.Unmarshal([]byte(`"analyzing"`), &p); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	if p != Analyzing {
		t.Errorf("Unmarshal = %v, want analyzing", p)
	}

	if err := json.Unmarshal([]byte(`"racing"`), &p); err == nil {
		t.Error("Unmarshal of unknown phase should fail")
	}
}

func TestPhasePredicates(t *testing.T) {
	tests := []struct {
		phase    Phase
		terminal bool
		active   bool
	}{
		{Idle, false, false},
		{Connecting, false, true},
		{Analyzing, false, true},
		{Completed, true, false},
		{Failed, true, false},
	}

	for _, tt := range tests {
		if tt.phase.IsTerminal() != tt.terminal {
			t.Errorf("IsTerminal() for %v = %v, want %v", tt.phase, tt.phase.IsTerminal(), tt.terminal)
		}
		if tt.phase.IsActive() != tt.active {
			t.Errorf("IsActive() for %v = %v, want %v", tt.phase, tt.phase.IsActive(), tt.active)
		}
	}
}
