package domain

import "errors"

var (
	ErrSubsystem = errors.New("scanning subsystem error")
	ErrExport    = errors.New("export failed")
)

const (
	MessageCompleted    = "Scanning completed successfully"
	MessageCancelled    = "Scanning cancelled"
	MessageExportFailed = "Error exporting results"
)

type OutcomeKind int

const (
	OutcomeCompleted OutcomeKind = iota
	OutcomeCancelled
	OutcomeFailed
	OutcomeExportFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeCompleted:
		return "completed"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeFailed:
		return "failed"
	case OutcomeExportFailed:
		return "export_failed"
	default:
		return "unknown"
	}
}

// Outcome is the single terminal result of a session.
type Outcome struct {
	Kind      OutcomeKind
	SessionID string
	Message   string
	Artifacts ExportArtifacts
	Counts    ElementCounts
	Empty     bool
	Err       error
}

func (o Outcome) OK() bool {
	return o.Kind == OutcomeCompleted || o.Kind == OutcomeCancelled
}

func Completed(sessionID string, artifacts ExportArtifacts, room CapturedRoom) Outcome {
	return Outcome{
		Kind:      OutcomeCompleted,
		SessionID: sessionID,
		Message:   MessageCompleted,
		Artifacts: artifacts,
		Counts:    room.Counts(),
		Empty:     room.IsEmpty(),
	}
}

func Cancelled(sessionID string) Outcome {
	return Outcome{Kind: OutcomeCancelled, SessionID: sessionID, Message: MessageCancelled}
}

// Failed carries the subsystem's own description as the message.
func Failed(sessionID string, err error) Outcome {
	msg := ErrSubsystem.Error()
	if err != nil {
		msg = err.Error()
	}
	return Outcome{Kind: OutcomeFailed, SessionID: sessionID, Message: msg, Err: errors.Join(ErrSubsystem, err)}
}

func ExportFailed(sessionID string, err error) Outcome {
	return Outcome{Kind: OutcomeExportFailed, SessionID: sessionID, Message: MessageExportFailed, Err: errors.Join(ErrExport, err)}
}
