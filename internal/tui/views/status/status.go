package status

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/systemtwo/research/internal/analysis"
	"github.com/systemtwo/research/internal/tui/theme"
)

// Model holds the status bar state.
type Model struct {
	Phase   analysis.Phase
	Subject string
	Elapsed time.Duration
	Notices int
	Service string
	Width   int
}

func New(service string) Model {
	return Model{Service: service}
}

// Set copies the fields the bar shows out of a snapshot.
func (m *Model) Set(snap analysis.Snapshot, now time.Time) {
	m.Phase = snap.Phase
	m.Subject = snap.Subject
	m.Notices = len(snap.Progress)
	m.Elapsed = snap.Elapsed(now)
}

// View renders the status bar.
func (m Model) View() string {
	width := m.Width
	if width < 40 {
		width = 40
	}

	name := m.Phase.String()
	phaseStr := lipgloss.NewStyle().
		Foreground(theme.PhaseColor(name)).
		Bold(true).
		Render(theme.PhaseGlyph(name) + " " + name)

	sep := lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(" | ")
	content := phaseStr
	if m.Subject != "" {
		content += sep + theme.StyleHeader.Render(m.Subject)
		content += sep + fmt.Sprintf("%d notices", m.Notices)
		content += sep + m.Elapsed.Truncate(time.Second).String()
	}
	if m.Service != "" {
		content += sep + theme.StyleDimmed.Render(m.Service)
	}

	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder).
		Render(content)
}
