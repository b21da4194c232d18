// Package theme provides the Lip Gloss palette and reusable styles for the
// research TUI. It is a leaf package with no internal imports.
package theme

import "github.com/charmbracelet/lipgloss"

// Phase colors.
var (
	ColorIdle       = lipgloss.Color("#4b5563")
	ColorConnecting = lipgloss.Color("#7c3aed")
	ColorAnalyzing  = lipgloss.Color("#2563eb")
	ColorCompleted  = lipgloss.Color("#16a34a")
	ColorFailed     = lipgloss.Color("#dc2626")
	ColorDefault    = lipgloss.Color("#9ca3af")
)

// UI chrome colors.
var (
	ColorBorder = lipgloss.Color("#4b5563")
	ColorDimmed = lipgloss.Color("#6b7280")
	ColorBright = lipgloss.Color("#f9fafb")
	ColorAccent = lipgloss.Color("#06b6d4")
	ColorDanger = lipgloss.Color("#dc2626")
)

// PhaseColor returns the color for a phase name as rendered by Phase.String.
func PhaseColor(phase string) lipgloss.Color {
	switch phase {
	case "idle":
		return ColorIdle
	case "connecting":
		return ColorConnecting
	case "analyzing":
		return ColorAnalyzing
	case "completed":
		return ColorCompleted
	case "failed":
		return ColorFailed
	default:
		return ColorDefault
	}
}

// PhaseGlyph returns a Unicode glyph for a phase name.
func PhaseGlyph(phase string) string {
	switch phase {
	case "idle":
		return "○"
	case "connecting":
		return "◎"
	case "analyzing":
		return "●>"
	case "completed":
		return "✓"
	case "failed":
		return "✗"
	default:
		return "·"
	}
}

// Reusable styles.
var (
	StyleErrorPanel = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(ColorDanger).
		Padding(0, 1)

	StyleHeader = lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorBright)

	StyleDimmed = lipgloss.NewStyle().
		Foreground(ColorDimmed)

	StyleAccent = lipgloss.NewStyle().
		Foreground(ColorAccent)
)
