package usecase

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"

	"roomscan/internal/modules/capture/domain"
	"roomscan/internal/modules/capture/dto"
	capturein "roomscan/internal/modules/capture/port/in"
	"roomscan/internal/modules/capture/service"
	apperrors "roomscan/internal/platform/errors"
)

type Interactor struct {
	svc      *service.SessionService
	coaching bool
}

func NewInteractor(svc *service.SessionService, coaching bool) capturein.Usecase {
	return &Interactor{svc: svc, coaching: coaching}
}

func (i *Interactor) Open(ctx context.Context, input dto.OpenInput, reply func(dto.Response)) (string, error) {
	if reply == nil {
		return "", fmt.Errorf("%w: reply is required", apperrors.ErrInvalidInput)
	}
	coaching := i.coaching && !input.DisableCoaching
	return i.svc.Start(ctx, coaching, func(outcome domain.Outcome) {
		reply(toResponse(input.CallbackID, outcome))
	})
}

func (i *Interactor) IsSupported(ctx context.Context) (dto.SupportedOutput, error) {
	capability, err := i.svc.Supported(ctx)
	if err != nil {
		return dto.SupportedOutput{}, err
	}
	return dto.SupportedOutput{Supported: capability.Supported, Device: capability.Device, Reason: capability.Reason}, nil
}

func (i *Interactor) Press(_ context.Context, control string) error {
	switch control {
	case capturein.ControlDone:
		return i.svc.Done()
	case capturein.ControlCancel:
		return i.svc.Cancel()
	default:
		return fmt.Errorf("%w: unknown control %q", apperrors.ErrInvalidInput, control)
	}
}

func (i *Interactor) Background(_ context.Context) error {
	return i.svc.Dismiss("background")
}

func (i *Interactor) BackgroundSession(_ context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("%w: session id is required", apperrors.ErrInvalidInput)
	}
	return i.svc.DismissSession(sessionID, "connection lost")
}

func (i *Interactor) Status(_ context.Context) (dto.StatusOutput, error) {
	snap := i.svc.Status()
	return dto.StatusOutput{
		Active:        snap.Active,
		SessionID:     snap.SessionID,
		State:         snap.State.String(),
		ResultPending: snap.ResultPending,
		HasResult:     snap.HasResult,
	}, nil
}

func (i *Interactor) ListScans(ctx context.Context, limit int) ([]dto.ScanOutput, error) {
	records, err := i.svc.ListScans(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]dto.ScanOutput, 0, len(records))
	for _, record := range records {
		out = append(out, toScanOutput(record))
	}
	return out, nil
}

func (i *Interactor) GetScan(ctx context.Context, scanID string) (dto.ScanOutput, error) {
	if scanID == "" {
		return dto.ScanOutput{}, fmt.Errorf("%w: scan id is required", apperrors.ErrInvalidInput)
	}
	record, err := i.svc.GetScan(ctx, scanID)
	if err != nil {
		return dto.ScanOutput{}, err
	}
	return toScanOutput(record), nil
}

func toResponse(callbackID string, outcome domain.Outcome) dto.Response {
	resp := dto.Response{
		CallbackID: callbackID,
		SessionID:  outcome.SessionID,
		OK:         outcome.OK(),
		Kind:       outcome.Kind.String(),
		Message:    outcome.Message,
	}
	if outcome.Kind == domain.OutcomeCompleted {
		resp.ScanID = outcome.Artifacts.ID
		resp.ModelURL = fileURL(outcome.Artifacts.ModelPath)
		resp.DataURL = fileURL(outcome.Artifacts.DataPath)
		resp.Empty = outcome.Empty
	}
	return resp
}

func fileURL(path string) string {
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(path)}
	return u.String()
}

func toScanOutput(record domain.ScanRecord) dto.ScanOutput {
	c := record.Counts
	return dto.ScanOutput{
		ID:        record.ID,
		SessionID: record.SessionID,
		DataPath:  record.DataPath,
		ModelPath: record.ModelPath,
		Counts: dto.Counts{
			Walls:    c.Walls,
			Doors:    c.Doors,
			Windows:  c.Windows,
			Openings: c.Openings,
			Floors:   c.Floors,
			Objects:  c.Objects,
			Sections: c.Sections,
		},
		CreatedAt: record.CreatedAt,
	}
}
