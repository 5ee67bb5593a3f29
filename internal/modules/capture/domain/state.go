package domain

import (
	"errors"
	"fmt"
)

var ErrIllegalTransition = errors.New("illegal transition")

type State int

const (
	StateIdle State = iota
	StateScanning
	StateReviewing
	StateReady
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScanning:
		return "scanning"
	case StateReviewing:
		return "reviewing"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Input is anything that can move a session: subsystem callbacks, the single
// done control, cancellation and foreground loss.
type Input int

const (
	InputOpen Input = iota
	InputShouldPresent
	InputDone
	InputResult
	InputFailure
	InputCancel
)

func (i Input) String() string {
	switch i {
	case InputOpen:
		return "open"
	case InputShouldPresent:
		return "should_present"
	case InputDone:
		return "done"
	case InputResult:
		return "result"
	case InputFailure:
		return "failure"
	case InputCancel:
		return "cancel"
	default:
		return fmt.Sprintf("input(%d)", int(i))
	}
}

type Action int

const (
	ActionNone Action = iota
	ActionStartCapture
	ActionMarkResultPending
	ActionStopCapture
	ActionStoreResult
	ActionReportFailure
	ActionExport
	ActionCancel
)

func (a Action) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionStartCapture:
		return "start_capture"
	case ActionMarkResultPending:
		return "mark_result_pending"
	case ActionStopCapture:
		return "stop_capture"
	case ActionStoreResult:
		return "store_result"
	case ActionReportFailure:
		return "report_failure"
	case ActionExport:
		return "export"
	case ActionCancel:
		return "cancel"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// Transition returns the next state and the action the session owner must
// perform. Pairs outside the table return ErrIllegalTransition with the state
// unchanged; callers ignore those events.
func Transition(from State, in Input) (State, Action, error) {
	switch from {
	case StateIdle:
		if in == InputOpen {
			return StateScanning, ActionStartCapture, nil
		}
	case StateScanning:
		switch in {
		case InputShouldPresent:
			return StateScanning, ActionMarkResultPending, nil
		case InputDone:
			return StateReviewing, ActionStopCapture, nil
		case InputResult:
			return StateReady, ActionStoreResult, nil
		case InputFailure:
			return StateClosed, ActionReportFailure, nil
		case InputCancel:
			return StateClosed, ActionCancel, nil
		}
	case StateReviewing:
		switch in {
		case InputShouldPresent:
			return StateReviewing, ActionMarkResultPending, nil
		case InputResult:
			return StateReady, ActionStoreResult, nil
		case InputFailure:
			return StateClosed, ActionReportFailure, nil
		case InputCancel:
			return StateClosed, ActionCancel, nil
		}
	case StateReady:
		switch in {
		case InputDone:
			return StateClosed, ActionExport, nil
		case InputCancel:
			return StateClosed, ActionCancel, nil
		}
	case StateClosed:
	}
	return from, ActionNone, fmt.Errorf("%w: %s on %s", ErrIllegalTransition, in, from)
}

// Terminal reports whether no further input is accepted.
func (s State) Terminal() bool {
	return s == StateClosed
}
