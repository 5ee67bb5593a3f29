package out

import (
	"context"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	hclog "github.com/hashicorp/go-hclog"

	captureout "roomscan/internal/modules/capture/port/out"
	captureview "roomscan/internal/ui/views/capture"
)

// TUIPresenter runs one bubbletea program per presented session.
type TUIPresenter struct {
	logger hclog.Logger
	opts   []tea.ProgramOption

	mu   sync.Mutex
	done chan struct{}
}

func NewTUIPresenter(logger hclog.Logger, opts ...tea.ProgramOption) *TUIPresenter {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &TUIPresenter{logger: logger, opts: opts}
}

func (p *TUIPresenter) Present(_ context.Context, sessionID string, controls captureout.Controls) (captureout.CaptureView, error) {
	opts := append([]tea.ProgramOption{tea.WithReportFocus()}, p.opts...)
	program := tea.NewProgram(captureview.New(sessionID, controls), opts...)
	done := make(chan struct{})

	p.mu.Lock()
	p.done = done
	p.mu.Unlock()

	go func() {
		defer close(done)
		if _, err := program.Run(); err != nil {
			p.logger.Error("capture view stopped", "session", sessionID, "error", err)
			controls.Cancel()
		}
	}()
	return &tuiView{program: program, done: done}, nil
}

// Wait blocks until the most recently presented view has released the
// terminal.
func (p *TUIPresenter) Wait() {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done != nil {
		<-done
	}
}

type tuiView struct {
	program *tea.Program
	done    chan struct{}
	once    sync.Once
}

func (v *tuiView) ShowBusy() {
	v.send(captureview.BusyMsg{Visible: true})
}

func (v *tuiView) HideBusy() {
	v.send(captureview.BusyMsg{Visible: false})
}

func (v *tuiView) Teardown() {
	v.once.Do(func() {
		v.send(captureview.TeardownMsg{})
		<-v.done
	})
}

func (v *tuiView) send(msg tea.Msg) {
	select {
	case <-v.done:
	default:
		v.program.Send(msg)
	}
}
