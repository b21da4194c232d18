package theme

import (
	"testing"

	"github.com/systemtwo/research/internal/analysis"
)

func TestEveryPhaseHasStyle(t *testing.T) {
	for _, p := range []analysis.Phase{analysis.Idle, analysis.Connecting, analysis.Analyzing, analysis.Completed, analysis.Failed} {
		name := p.String()
		if PhaseColor(name) == ColorDefault {
			t.Errorf("PhaseColor(%q) falls back to default", name)
		}
		if PhaseGlyph(name) == "·" {
			t.Errorf("PhaseGlyph(%q) falls back to default", name)
		}
	}
	if PhaseGlyph("unknown") != "·" {
		t.Error("unknown phase should use the fallback glyph")
	}
}
