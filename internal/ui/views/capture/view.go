package capture

import (
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"roomscan/internal/ui/theme"
)

// ─── port ────────────────────────────────────────────────────────────────────

// Port receives the user's input. Calls are bound to one capture session.
type Port interface {
	Done()
	Cancel()
	Dismiss()
}

// ─── messages ────────────────────────────────────────────────────────────────

// BusyMsg shows or hides the processing indicator.
type BusyMsg struct{ Visible bool }

// TeardownMsg removes the view and ends the program.
type TeardownMsg struct{}

// ─── keys ────────────────────────────────────────────────────────────────────

type keyMap struct {
	Done   key.Binding
	Cancel key.Binding
}

func defaultKeys() keyMap {
	return keyMap{
		Done:   key.NewBinding(key.WithKeys("enter", "d"), key.WithHelp("enter", "done")),
		Cancel: key.NewBinding(key.WithKeys("esc", "c", "ctrl+c"), key.WithHelp("esc", "cancel")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Done, k.Cancel}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

// ─── model ───────────────────────────────────────────────────────────────────

type phase int

const (
	phaseScanning phase = iota
	phaseProcessing
	phaseReady
	phaseExporting
	phaseClosed
)

type Model struct {
	port      Port
	sessionID string
	keys      keyMap
	help      help.Model
	spinner   spinner.Model
	phase     phase
	width     int
}

func New(sessionID string, port Port) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(theme.Lavender)
	return Model{
		port:      port,
		sessionID: sessionID,
		keys:      defaultKeys(),
		help:      help.New(),
		spinner:   sp,
	}
}

func (m Model) Init() tea.Cmd { return nil }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width

	case tea.KeyMsg:
		if m.phase == phaseClosed {
			return m, nil
		}
		switch {
		case key.Matches(msg, m.keys.Done):
			m.port.Done()
			switch m.phase {
			case phaseScanning:
				m.phase = phaseProcessing
				return m, m.spinner.Tick
			case phaseReady:
				m.phase = phaseExporting
				return m, m.spinner.Tick
			}
		case key.Matches(msg, m.keys.Cancel):
			m.port.Cancel()
		}

	case tea.BlurMsg:
		if m.phase != phaseClosed {
			m.port.Dismiss()
		}

	case BusyMsg:
		if msg.Visible {
			if m.phase == phaseScanning {
				m.phase = phaseProcessing
			}
			return m, m.spinner.Tick
		}
		if m.phase == phaseScanning || m.phase == phaseProcessing {
			m.phase = phaseReady
		}

	case TeardownMsg:
		m.phase = phaseClosed
		return m, tea.Quit

	case spinner.TickMsg:
		if m.phase == phaseProcessing || m.phase == phaseExporting {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
	}
	return m, nil
}

func (m Model) View() string {
	if m.phase == phaseClosed {
		return ""
	}
	var status string
	switch m.phase {
	case phaseScanning:
		status = "Scanning. Move around the room, then press done."
	case phaseProcessing:
		status = m.spinner.View() + " Processing scan…"
	case phaseReady:
		status = "Scan ready. Press done to export."
	case phaseExporting:
		status = m.spinner.View() + " Exporting…"
	}

	buttons := lipgloss.JoinHorizontal(lipgloss.Top,
		theme.CancelButton.Render("Cancel"),
		theme.DoneButton.Render("Done"),
	)
	body := lipgloss.JoinVertical(lipgloss.Left,
		theme.Title.Render("Room scan"),
		theme.Muted.Render("session "+m.sessionID),
		"",
		status,
		"",
		buttons,
		"",
		m.help.View(m.keys),
	)
	return theme.Pane.Render(body)
}

// Phase names the current phase, for tests and logs.
func (m Model) Phase() string {
	switch m.phase {
	case phaseScanning:
		return "scanning"
	case phaseProcessing:
		return "processing"
	case phaseReady:
		return "ready"
	case phaseExporting:
		return "exporting"
	default:
		return "closed"
	}
}
