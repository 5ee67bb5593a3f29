package service

import (
	"errors"

	"roomscan/internal/modules/capture/domain"
)

var errNoResult = errors.New("scanner delivered no result")

// captureBridge turns subsystem notifications into session events tagged
// with the handle it was created for.
type captureBridge struct {
	svc       *SessionService
	sessionID string
}

// ShouldPresentForProcessing always asks the subsystem to process the raw
// data. A raw-data error surfaces again through DidPresentResult.
func (b captureBridge) ShouldPresentForProcessing(_ []byte, _ error) bool {
	b.svc.dispatch(event{sessionID: b.sessionID, input: domain.InputShouldPresent})
	return true
}

func (b captureBridge) DidPresentResult(room *domain.CapturedRoom, err error) {
	switch {
	case err != nil:
		b.svc.dispatch(event{sessionID: b.sessionID, input: domain.InputFailure, err: err})
	case room == nil:
		b.svc.dispatch(event{sessionID: b.sessionID, input: domain.InputFailure, err: errNoResult})
	default:
		b.svc.dispatch(event{sessionID: b.sessionID, input: domain.InputResult, room: room})
	}
}

type sessionControls struct {
	svc       *SessionService
	sessionID string
}

func (c sessionControls) Done() {
	c.svc.dispatchInput(event{sessionID: c.sessionID, input: domain.InputDone})
}

func (c sessionControls) Cancel() {
	c.svc.dispatchInput(event{sessionID: c.sessionID, input: domain.InputCancel})
}

func (c sessionControls) Dismiss() {
	c.svc.logger.Info("capture view lost foreground", "session", c.sessionID)
	c.svc.dispatchInput(event{sessionID: c.sessionID, input: domain.InputCancel})
}
