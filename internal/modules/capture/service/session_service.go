package service

import (
	"context"
	"fmt"
	"sync"

	hclog "github.com/hashicorp/go-hclog"

	"roomscan/internal/modules/capture/domain"
	captureout "roomscan/internal/modules/capture/port/out"
	"roomscan/internal/platform/clock"
	apperrors "roomscan/internal/platform/errors"
	"roomscan/internal/platform/id"
)

const eventBuffer = 16

type SessionService struct {
	clock     clock.Clock
	ids       id.Generator
	subsystem captureout.Subsystem
	presenter captureout.Presenter
	exporter  captureout.Exporter
	index     captureout.ScanIndex
	workDir   string
	logger    hclog.Logger

	mu     sync.Mutex
	active *session
}

type Snapshot struct {
	Active        bool
	SessionID     string
	State         domain.State
	ResultPending bool
	HasResult     bool
}

func NewSessionService(
	clk clock.Clock,
	ids id.Generator,
	subsystem captureout.Subsystem,
	presenter captureout.Presenter,
	exporter captureout.Exporter,
	index captureout.ScanIndex,
	workDir string,
	logger hclog.Logger,
) *SessionService {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &SessionService{
		clock:     clk,
		ids:       ids,
		subsystem: subsystem,
		presenter: presenter,
		exporter:  exporter,
		index:     index,
		workDir:   workDir,
		logger:    logger,
	}
}

// Start opens a new session. The reply callback receives exactly one outcome,
// unless Start itself returns an error, in which case it is never called.
func (s *SessionService) Start(ctx context.Context, coaching bool, reply func(domain.Outcome)) (string, error) {
	if reply == nil {
		return "", fmt.Errorf("%w: reply callback is required", apperrors.ErrInvalidInput)
	}
	s.mu.Lock()
	if s.active != nil {
		s.mu.Unlock()
		return "", apperrors.ErrActiveSessionExists
	}
	sess := newSession(s.ids.New(), reply)
	s.active = sess
	s.mu.Unlock()

	next, _, err := domain.Transition(domain.StateIdle, domain.InputOpen)
	if err != nil {
		s.release(sess)
		return "", err
	}

	view, err := s.presenter.Present(ctx, sess.id, sessionControls{svc: s, sessionID: sess.id})
	if err != nil {
		s.release(sess)
		return "", fmt.Errorf("present capture view: %w", err)
	}
	sess.view = view

	capture, err := s.subsystem.Start(ctx, domain.CaptureConfig{SessionID: sess.id, CoachingEnabled: coaching}, captureBridge{svc: s, sessionID: sess.id})
	if err != nil {
		view.Teardown()
		s.release(sess)
		return "", fmt.Errorf("start capture: %w", err)
	}
	sess.capture = capture
	sess.setState(next)

	s.logger.Info("session started", "session", sess.id)
	go s.run(sess)
	return sess.id, nil
}

func (s *SessionService) Done() error {
	return s.dispatchActive(domain.InputDone)
}

func (s *SessionService) Cancel() error {
	return s.dispatchActive(domain.InputCancel)
}

// Dismiss handles loss of the foreground; it is treated as a cancel.
func (s *SessionService) Dismiss(reason string) error {
	s.logger.Info("dismissing session", "reason", reason)
	return s.dispatchActive(domain.InputCancel)
}

// DismissSession cancels the session named by sessionID. A different active
// session is left alone.
func (s *SessionService) DismissSession(sessionID, reason string) error {
	if !s.dispatch(event{sessionID: sessionID, input: domain.InputCancel}) {
		return apperrors.ErrNoActiveSession
	}
	s.logger.Info("dismissing session", "session", sessionID, "reason", reason)
	return nil
}

func (s *SessionService) Status() Snapshot {
	s.mu.Lock()
	sess := s.active
	s.mu.Unlock()
	if sess == nil {
		return Snapshot{State: domain.StateIdle}
	}
	return sess.snapshot()
}

func (s *SessionService) Supported(ctx context.Context) (domain.Capability, error) {
	return s.subsystem.Supported(ctx)
}

func (s *SessionService) ListScans(ctx context.Context, limit int) ([]domain.ScanRecord, error) {
	if s.index == nil {
		return nil, nil
	}
	return s.index.List(ctx, limit)
}

func (s *SessionService) GetScan(ctx context.Context, scanID string) (domain.ScanRecord, error) {
	if s.index == nil {
		return domain.ScanRecord{}, apperrors.ErrNotFound
	}
	return s.index.Get(ctx, scanID)
}

func (s *SessionService) dispatchActive(input domain.Input) error {
	s.mu.Lock()
	sess := s.active
	s.mu.Unlock()
	if sess == nil {
		return apperrors.ErrNoActiveSession
	}
	s.dispatch(event{sessionID: sess.id, input: input})
	return nil
}

// dispatch routes an event to the session its handle names. Events for a
// session that is no longer active are dropped.
func (s *SessionService) dispatch(ev event) bool {
	return s.deliver(ev, (*session).post)
}

// dispatchInput is dispatch for view controls. It never blocks, so input
// arriving while the mailbox is full is dropped.
func (s *SessionService) dispatchInput(ev event) bool {
	return s.deliver(ev, (*session).offer)
}

func (s *SessionService) deliver(ev event, send func(*session, event) bool) bool {
	s.mu.Lock()
	sess := s.active
	s.mu.Unlock()
	if sess == nil || sess.id != ev.sessionID {
		s.logger.Debug("stale event discarded", "session", ev.sessionID, "input", ev.input.String())
		return false
	}
	if !send(sess, ev) {
		s.logger.Debug("event discarded", "session", ev.sessionID, "input", ev.input.String())
		return false
	}
	return true
}

func (s *SessionService) run(sess *session) {
	defer s.release(sess)
	for {
		select {
		case ev := <-sess.events:
			if s.apply(sess, ev) {
				return
			}
		case <-sess.closed:
			return
		}
	}
}

func (s *SessionService) apply(sess *session, ev event) bool {
	from := sess.currentState()
	to, action, err := domain.Transition(from, ev.input)
	if err != nil {
		s.logger.Debug("event ignored", "session", sess.id, "state", from.String(), "input", ev.input.String())
		return false
	}
	s.logger.Debug("transition", "session", sess.id, "from", from.String(), "to", to.String(), "action", action.String())

	ctx := context.Background()
	switch action {
	case domain.ActionMarkResultPending:
		sess.markResultPending()
	case domain.ActionStopCapture:
		sess.view.ShowBusy()
		if err := sess.capture.Stop(ctx); err != nil {
			s.finish(sess, domain.Failed(sess.id, fmt.Errorf("stop capture: %w", err)))
			return true
		}
	case domain.ActionStoreResult:
		sess.storeResult(ev.room)
		sess.view.HideBusy()
	case domain.ActionReportFailure:
		s.finish(sess, domain.Failed(sess.id, ev.err))
	case domain.ActionExport:
		s.finish(sess, s.export(ctx, sess))
	case domain.ActionCancel:
		if from == domain.StateScanning {
			if err := sess.capture.Stop(ctx); err != nil {
				s.logger.Warn("stop capture on cancel", "session", sess.id, "error", err)
			}
		}
		s.finish(sess, domain.Cancelled(sess.id))
	}
	// State moves only after the action's side effects are visible.
	sess.setState(to)
	return to.Terminal()
}

func (s *SessionService) export(ctx context.Context, sess *session) domain.Outcome {
	room := sess.storedResult()
	artifacts, err := s.exporter.Export(ctx, room, s.workDir)
	if err != nil {
		s.logger.Error("export failed", "session", sess.id, "error", err)
		return domain.ExportFailed(sess.id, err)
	}
	if s.index != nil {
		record := domain.ScanRecord{
			ID:        artifacts.ID,
			SessionID: sess.id,
			DataPath:  artifacts.DataPath,
			ModelPath: artifacts.ModelPath,
			Counts:    room.Counts(),
			CreatedAt: s.clock.Now(),
		}
		if err := s.index.Record(ctx, record); err != nil {
			s.logger.Warn("record scan", "scan", artifacts.ID, "error", err)
		}
	}
	if room.IsEmpty() {
		s.logger.Warn("exported scan has no structural elements", "scan", artifacts.ID)
	}
	return domain.Completed(sess.id, artifacts, *room)
}

// finish closes the mailbox, tears the session down, frees the slot and then
// replies, so a host reacting to the reply can open the next session right
// away. The mailbox closes first: teardown may wait on a view that is itself
// blocked posting input.
func (s *SessionService) finish(sess *session, outcome domain.Outcome) {
	sess.setState(domain.StateClosed)
	sess.close()
	s.teardown(sess)
	s.release(sess)
	sess.replyOnce.Do(func() {
		s.logger.Info("session finished", "session", sess.id, "outcome", outcome.Kind.String())
		sess.reply(outcome)
	})
}

func (s *SessionService) teardown(sess *session) {
	sess.teardownOnce.Do(func() {
		if sess.view != nil {
			sess.view.Teardown()
		}
		if sess.capture != nil {
			if err := sess.capture.Close(); err != nil {
				s.logger.Warn("close capture", "session", sess.id, "error", err)
			}
		}
	})
}

func (s *SessionService) release(sess *session) {
	sess.close()
	s.mu.Lock()
	if s.active == sess {
		s.active = nil
	}
	s.mu.Unlock()
}
