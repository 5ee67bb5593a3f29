package out

import (
	"context"

	"roomscan/internal/modules/capture/domain"
)

// EventSink receives the scanning subsystem's two notifications.
type EventSink interface {
	ShouldPresentForProcessing(raw []byte, err error) bool
	DidPresentResult(room *domain.CapturedRoom, err error)
}

type Subsystem interface {
	Supported(ctx context.Context) (domain.Capability, error)
	Start(ctx context.Context, cfg domain.CaptureConfig, sink EventSink) (CaptureSession, error)
}

// CaptureSession is one running capture. Close must be safe to call more
// than once.
type CaptureSession interface {
	Stop(ctx context.Context) error
	Close() error
}

// Controls is handed to the presenter; every call is bound to the session
// the view was presented for.
type Controls interface {
	Done()
	Cancel()
	Dismiss()
}

type Presenter interface {
	Present(ctx context.Context, sessionID string, controls Controls) (CaptureView, error)
}

type CaptureView interface {
	ShowBusy()
	HideBusy()
	Teardown()
}

type Exporter interface {
	Export(ctx context.Context, room *domain.CapturedRoom, workDir string) (domain.ExportArtifacts, error)
}

type ScanIndex interface {
	Record(ctx context.Context, record domain.ScanRecord) error
	List(ctx context.Context, limit int) ([]domain.ScanRecord, error)
	Get(ctx context.Context, id string) (domain.ScanRecord, error)
	Close() error
}
