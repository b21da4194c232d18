// Package report shows a finished analysis report as rendered markdown in a
// scrollable viewport.
package report

import (
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
)

type Model struct {
	viewport viewport.Model
	markdown string
	width    int
}

func New() Model {
	return Model{viewport: viewport.New(0, 0)}
}

// SetSize resizes the viewport and re-renders the current report to the new
// width.
func (m *Model) SetSize(width, height int) {
	m.viewport.Width = width
	m.viewport.Height = height
	if width != m.width {
		m.width = width
		if m.markdown != "" {
			m.viewport.SetContent(render(m.markdown, width))
		}
	}
}

// SetContent replaces the report and scrolls back to the top.
func (m *Model) SetContent(markdown string) {
	m.markdown = markdown
	m.viewport.SetContent(render(markdown, m.width))
	m.viewport.GotoTop()
}

func (m Model) Content() string { return m.markdown }

// Update forwards scrolling keys to the viewport.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	return m.viewport.View()
}

// render formats markdown for the terminal. The raw text is shown if glamour
// cannot render it.
func render(markdown string, width int) string {
	opts := []glamour.TermRendererOption{glamour.WithStandardStyle("dark")}
	if width > 4 {
		opts = append(opts, glamour.WithWordWrap(width-4))
	}
	r, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return markdown
	}
	out, err := r.Render(markdown)
	if err != nil {
		return markdown
	}
	return out
}
