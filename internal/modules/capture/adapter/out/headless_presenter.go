package out

import (
	"context"
	"sync"

	hclog "github.com/hashicorp/go-hclog"

	captureout "roomscan/internal/modules/capture/port/out"
)

// HeadlessPresenter has no local surface. The host renders its own controls
// and forwards presses through the gateway.
type HeadlessPresenter struct {
	logger hclog.Logger
}

func NewHeadlessPresenter(logger hclog.Logger) captureout.Presenter {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &HeadlessPresenter{logger: logger}
}

func (p *HeadlessPresenter) Present(_ context.Context, sessionID string, _ captureout.Controls) (captureout.CaptureView, error) {
	logger := p.logger.With("session", sessionID)
	logger.Debug("capture view presented")
	return &headlessView{logger: logger}, nil
}

type headlessView struct {
	logger hclog.Logger
	mu     sync.Mutex
	busy   bool
	gone   bool
}

func (v *headlessView) ShowBusy() {
	v.setBusy(true)
}

func (v *headlessView) HideBusy() {
	v.setBusy(false)
}

func (v *headlessView) setBusy(busy bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.gone || v.busy == busy {
		return
	}
	v.busy = busy
	v.logger.Debug("busy indicator", "visible", busy)
}

func (v *headlessView) Teardown() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.gone {
		return
	}
	v.gone = true
	v.busy = false
	v.logger.Debug("capture view removed")
}
