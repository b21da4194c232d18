package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/systemtwo/research/internal/analysis"
	"github.com/systemtwo/research/internal/tui/theme"
	"github.com/systemtwo/research/internal/tui/views/report"
	"github.com/systemtwo/research/internal/tui/views/status"
)

// changedMsg means the coordinator's snapshot may have moved on.
type changedMsg struct{}

// Model is the root Bubble Tea model.
type Model struct {
	coord *analysis.Coordinator
	now   func() time.Time

	keys   KeyMap
	width  int
	height int

	input     textinput.Model
	spinner   spinner.Model
	report    report.Model
	statusBar status.Model

	snap      analysis.Snapshot
	reportGen uint64 // generation whose result is loaded into report
	inputErr  string
}

// New creates the root model driving coord.
func New(coord *analysis.Coordinator, service string) Model {
	input := textinput.New()
	input.Prompt = "ticker ❯ "
	input.Placeholder = "AAPL"
	input.CharLimit = 16
	input.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Points
	sp.Style = lipgloss.NewStyle().Foreground(theme.ColorAccent)

	return Model{
		coord:     coord,
		now:       time.Now,
		keys:      DefaultKeyMap(),
		input:     input,
		spinner:   sp,
		report:    report.New(),
		statusBar: status.New(service),
		snap:      coord.Snapshot(),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, m.waitForChange())
}

func (m Model) waitForChange() tea.Cmd {
	changed := m.coord.Changed()
	return func() tea.Msg {
		<-changed
		return changedMsg{}
	}
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.statusBar.Width = msg.Width
		m.input.Width = max(msg.Width-16, 10)
		m.report.SetSize(msg.Width, max(msg.Height-8, 3))
		return m, nil

	case changedMsg:
		m.refresh()
		return m, m.waitForChange()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		m.statusBar.Set(m.snap, m.now())
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Submit):
		m.inputErr = ""
		if err := m.coord.RunAnalysis(m.input.Value()); err != nil {
			m.inputErr = err.Error()
			return m, nil
		}
		m.refresh()
		return m, nil

	case key.Matches(msg, m.keys.Cancel):
		if m.coord.Cancel() {
			m.refresh()
		}
		return m, nil

	case key.Matches(msg, m.keys.ScrollUp), key.Matches(msg, m.keys.ScrollDown):
		var cmd tea.Cmd
		m.report, cmd = m.report.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// refresh pulls a fresh snapshot and loads a newly completed report.
func (m *Model) refresh() {
	m.snap = m.coord.Snapshot()
	m.statusBar.Set(m.snap, m.now())
	if m.snap.Phase == analysis.Completed && m.reportGen != m.snap.Generation {
		m.report.SetContent(m.snap.Result)
		m.reportGen = m.snap.Generation
	}
}

// View renders the full TUI.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	inputLine := m.input.View()
	if m.snap.Phase.IsActive() {
		inputLine = m.spinner.View() + " " + inputLine
	}
	if m.inputErr != "" {
		inputLine += "  " + lipgloss.NewStyle().Foreground(theme.ColorDanger).Render(m.inputErr)
	}

	sections := []string{
		m.statusBar.View(),
		inputLine,
		m.body(),
		theme.StyleDimmed.Render("  " + m.helpLine()),
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) body() string {
	switch m.snap.Phase {
	case analysis.Idle:
		return theme.StyleDimmed.Render("  Enter a ticker symbol and press enter to start an analysis.")
	case analysis.Completed:
		return m.report.View()
	case analysis.Failed:
		return lipgloss.JoinVertical(lipgloss.Left, m.faultPanel(), m.progressList())
	default:
		return m.progressList()
	}
}

func (m Model) faultPanel() string {
	kind := "analysis"
	detail := m.snap.Error
	if f := m.snap.Fault; f != nil {
		kind = f.Kind.String()
		detail = f.Detail
	}
	width := max(m.width-4, 20)
	return theme.StyleErrorPanel.Width(width).Render(
		lipgloss.NewStyle().Foreground(theme.ColorDanger).Bold(true).Render("✗ "+kind+" fault") + "\n" + detail,
	)
}

// progressList shows the newest notices that fit, oldest first.
func (m Model) progressList() string {
	notices := m.snap.Progress
	if len(notices) == 0 {
		if m.snap.Phase == analysis.Connecting {
			return theme.StyleDimmed.Render("  Connecting to the analysis service...")
		}
		return theme.StyleDimmed.Render("  Waiting for progress...")
	}
	room := max(m.height-8, 3)
	if len(notices) > room {
		notices = notices[len(notices)-room:]
	}
	lines := make([]string, len(notices))
	for i, n := range notices {
		glyph := "✓"
		if i == len(notices)-1 && m.snap.Phase.IsActive() {
			glyph = m.spinner.View()
		}
		lines[i] = fmt.Sprintf("  %s %s", theme.StyleAccent.Render(glyph), n)
	}
	return strings.Join(lines, "\n")
}

func (m Model) helpLine() string {
	parts := make([]string, 0, len(m.keys.help()))
	for _, b := range m.keys.help() {
		h := b.Help()
		parts = append(parts, h.Key+":"+h.Desc)
	}
	return strings.Join(parts, "  ")
}
