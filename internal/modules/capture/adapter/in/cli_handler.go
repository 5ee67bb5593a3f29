package in

import (
	"context"

	"roomscan/internal/modules/capture/dto"
	capturein "roomscan/internal/modules/capture/port/in"
)

type CLIHandler struct {
	usecase capturein.Usecase
}

func NewCLIHandler(usecase capturein.Usecase) CLIHandler {
	return CLIHandler{usecase: usecase}
}

// Open starts a session and returns a channel that yields its single
// terminal response.
func (h CLIHandler) Open(ctx context.Context, disableCoaching bool) (<-chan dto.Response, error) {
	replies := make(chan dto.Response, 1)
	_, err := h.usecase.Open(ctx, dto.OpenInput{CallbackID: "cli", DisableCoaching: disableCoaching}, func(resp dto.Response) {
		replies <- resp
	})
	if err != nil {
		return nil, err
	}
	return replies, nil
}

func (h CLIHandler) Supported(ctx context.Context) (dto.SupportedOutput, error) {
	return h.usecase.IsSupported(ctx)
}

func (h CLIHandler) Background(ctx context.Context) error {
	return h.usecase.Background(ctx)
}

func (h CLIHandler) Status(ctx context.Context) (dto.StatusOutput, error) {
	return h.usecase.Status(ctx)
}

func (h CLIHandler) ListScans(ctx context.Context, limit int) ([]dto.ScanOutput, error) {
	return h.usecase.ListScans(ctx, limit)
}

func (h CLIHandler) ShowScan(ctx context.Context, scanID string) (dto.ScanOutput, error) {
	return h.usecase.GetScan(ctx, scanID)
}
