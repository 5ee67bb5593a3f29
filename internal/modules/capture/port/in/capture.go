package in

import (
	"context"

	"roomscan/internal/modules/capture/dto"
)

const (
	ControlDone   = "done"
	ControlCancel = "cancel"
)

type Usecase interface {
	Open(ctx context.Context, input dto.OpenInput, reply func(dto.Response)) (string, error)
	IsSupported(ctx context.Context) (dto.SupportedOutput, error)
	Press(ctx context.Context, control string) error
	Background(ctx context.Context) error
	// BackgroundSession dismisses sessionID only if it is still the active
	// session.
	BackgroundSession(ctx context.Context, sessionID string) error
	Status(ctx context.Context) (dto.StatusOutput, error)
	ListScans(ctx context.Context, limit int) ([]dto.ScanOutput, error)
	GetScan(ctx context.Context, id string) (dto.ScanOutput, error)
}
