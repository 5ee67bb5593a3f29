package capture_test

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"roomscan/internal/ui/views/capture"
)

type recordingPort struct {
	calls []string
}

func (p *recordingPort) Done()    { p.calls = append(p.calls, "done") }
func (p *recordingPort) Cancel()  { p.calls = append(p.calls, "cancel") }
func (p *recordingPort) Dismiss() { p.calls = append(p.calls, "dismiss") }

func update(t *testing.T, m tea.Model, msg tea.Msg) (capture.Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	model, ok := next.(capture.Model)
	if !ok {
		t.Fatalf("unexpected model type %T", next)
	}
	return model, cmd
}

func TestDoneKeyFollowsSessionPhases(t *testing.T) {
	t.Parallel()
	port := &recordingPort{}
	m := capture.New("S-1", port)
	if !strings.Contains(m.View(), "Scanning") {
		t.Fatalf("expected scanning status, got %q", m.View())
	}

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if m.Phase() != "processing" {
		t.Fatalf("expected processing after first done, got %s", m.Phase())
	}
	m, _ = update(t, m, capture.BusyMsg{Visible: false})
	if m.Phase() != "ready" {
		t.Fatalf("expected ready once busy indicator hides, got %s", m.Phase())
	}
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("d")})
	if m.Phase() != "exporting" {
		t.Fatalf("expected exporting, got %s", m.Phase())
	}
	if strings.Join(port.calls, ",") != "done,done" {
		t.Fatalf("unexpected port calls: %v", port.calls)
	}
}

func TestCancelBlurAndTeardown(t *testing.T) {
	t.Parallel()
	port := &recordingPort{}
	m := capture.New("S-1", port)

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	m, _ = update(t, m, tea.BlurMsg{})
	m, cmd := update(t, m, capture.TeardownMsg{})
	if cmd == nil {
		t.Fatalf("teardown must quit the program")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatalf("expected quit command")
	}
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	m, _ = update(t, m, tea.BlurMsg{})
	if strings.Join(port.calls, ",") != "cancel,dismiss" {
		t.Fatalf("input after teardown must be ignored, got %v", port.calls)
	}
	if m.View() != "" {
		t.Fatalf("closed view must render nothing")
	}
}
