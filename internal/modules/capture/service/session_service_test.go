package service_test

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	captureoutadapter "roomscan/internal/modules/capture/adapter/out"
	"roomscan/internal/modules/capture/domain"
	captureout "roomscan/internal/modules/capture/port/out"
	"roomscan/internal/modules/capture/service"
	apperrors "roomscan/internal/platform/errors"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type seqID struct {
	mu sync.Mutex
	n  int
}

func (s *seqID) New() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return "ID-" + string(rune('0'+s.n))
}

type fakeCapture struct {
	stops   atomic.Int32
	closes  atomic.Int32
	stopErr error
}

func (f *fakeCapture) Stop(context.Context) error {
	f.stops.Add(1)
	return f.stopErr
}

func (f *fakeCapture) Close() error {
	f.closes.Add(1)
	return nil
}

type fakeSubsystem struct {
	mu       sync.Mutex
	sinks    []captureout.EventSink
	captures []*fakeCapture
	startErr error
	stopErr  error
}

func (f *fakeSubsystem) Supported(context.Context) (domain.Capability, error) {
	return domain.Capability{Supported: true, Device: "fake"}, nil
}

func (f *fakeSubsystem) Start(_ context.Context, _ domain.CaptureConfig, sink captureout.EventSink) (captureout.CaptureSession, error) {
	if f.startErr != nil {
		return nil, f.startErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	capture := &fakeCapture{stopErr: f.stopErr}
	f.sinks = append(f.sinks, sink)
	f.captures = append(f.captures, capture)
	return capture, nil
}

func (f *fakeSubsystem) sink(i int) captureout.EventSink {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sinks[i]
}

func (f *fakeSubsystem) capture(i int) *fakeCapture {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.captures[i]
}

type fakeView struct {
	busy      atomic.Int32
	idle      atomic.Int32
	teardowns atomic.Int32
}

func (v *fakeView) ShowBusy() { v.busy.Add(1) }
func (v *fakeView) HideBusy() { v.idle.Add(1) }
func (v *fakeView) Teardown() { v.teardowns.Add(1) }

type fakePresenter struct {
	mu       sync.Mutex
	views    []*fakeView
	controls []captureout.Controls
}

func (p *fakePresenter) Present(_ context.Context, _ string, controls captureout.Controls) (captureout.CaptureView, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	view := &fakeView{}
	p.views = append(p.views, view)
	p.controls = append(p.controls, controls)
	return view, nil
}

func (p *fakePresenter) view(i int) *fakeView {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.views[i]
}

func (p *fakePresenter) control(i int) captureout.Controls {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.controls[i]
}

type failingExporter struct{}

func (failingExporter) Export(context.Context, *domain.CapturedRoom, string) (domain.ExportArtifacts, error) {
	return domain.ExportArtifacts{}, errors.New("disk full")
}

// gatedExporter blocks every export until release is closed.
type gatedExporter struct {
	entered chan struct{}
	release chan struct{}
}

func (g gatedExporter) Export(_ context.Context, room *domain.CapturedRoom, workDir string) (domain.ExportArtifacts, error) {
	close(g.entered)
	<-g.release
	return domain.ExportArtifacts{ID: "G", DataPath: workDir + "/G.json", ModelPath: workDir + "/G.usdz"}, nil
}

type memoryIndex struct {
	mu      sync.Mutex
	records []domain.ScanRecord
}

func (m *memoryIndex) Record(_ context.Context, record domain.ScanRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, record)
	return nil
}

func (m *memoryIndex) List(context.Context, int) ([]domain.ScanRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.ScanRecord(nil), m.records...), nil
}

func (m *memoryIndex) Close() error { return nil }

func (m *memoryIndex) Get(_ context.Context, scanID string) (domain.ScanRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, record := range m.records {
		if record.ID == scanID {
			return record, nil
		}
	}
	return domain.ScanRecord{}, apperrors.ErrNotFound
}

type harness struct {
	svc       *service.SessionService
	subsystem *fakeSubsystem
	presenter *fakePresenter
	index     *memoryIndex
	workDir   string
	replies   chan domain.Outcome
}

func newHarness(t *testing.T, exporter captureout.Exporter) *harness {
	t.Helper()
	workDir := t.TempDir() + "/nested/cordova-room-plan"
	ids := &seqID{}
	if exporter == nil {
		exporter = captureoutadapter.NewFileExporter(ids)
	}
	h := &harness{
		subsystem: &fakeSubsystem{},
		presenter: &fakePresenter{},
		index:     &memoryIndex{},
		workDir:   workDir,
		replies:   make(chan domain.Outcome, 4),
	}
	h.svc = service.NewSessionService(
		fixedClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)},
		ids,
		h.subsystem,
		h.presenter,
		exporter,
		h.index,
		workDir,
		nil,
	)
	return h
}

func (h *harness) open(t *testing.T) string {
	t.Helper()
	sessionID, err := h.svc.Start(context.Background(), true, func(outcome domain.Outcome) { h.replies <- outcome })
	if err != nil {
		t.Fatalf("start session: %v", err)
	}
	return sessionID
}

func (h *harness) reply(t *testing.T) domain.Outcome {
	t.Helper()
	select {
	case outcome := <-h.replies:
		return outcome
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for reply")
		return domain.Outcome{}
	}
}

func (h *harness) noMoreReplies(t *testing.T) {
	t.Helper()
	select {
	case outcome := <-h.replies:
		t.Fatalf("unexpected second reply: %+v", outcome)
	case <-time.After(50 * time.Millisecond):
	}
}

func (h *harness) waitState(t *testing.T, want domain.State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if h.svc.Status().State == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected state %s, got %s", want, h.svc.Status().State)
}

func sampleRoom() *domain.CapturedRoom {
	return &domain.CapturedRoom{
		Identifier: "room-1",
		Walls:      []domain.Surface{{Identifier: "w1", Category: "wall", Dimensions: [3]float64{4, 2.5, 0.1}}},
		Doors:      []domain.Surface{{Identifier: "d1", Category: "door", Dimensions: [3]float64{0.9, 2, 0.05}}},
	}
}

func TestOpenDoneResultDoneExportsBothFiles(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.open(t)

	h.presenter.control(0).Done()
	h.waitState(t, domain.StateReviewing)
	if got := h.subsystem.capture(0).stops.Load(); got != 1 {
		t.Fatalf("expected capture stopped once, got %d", got)
	}
	if h.presenter.view(0).busy.Load() != 1 {
		t.Fatalf("expected busy indicator while processing")
	}

	h.subsystem.sink(0).DidPresentResult(sampleRoom(), nil)
	h.waitState(t, domain.StateReady)
	h.presenter.control(0).Done()

	outcome := h.reply(t)
	if outcome.Kind != domain.OutcomeCompleted || outcome.Message != domain.MessageCompleted || outcome.Empty {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	art := outcome.Artifacts
	if !strings.HasSuffix(art.DataPath, art.ID+".json") || !strings.HasSuffix(art.ModelPath, art.ID+".usdz") {
		t.Fatalf("artifacts must share one id: %+v", art)
	}
	for _, path := range []string{art.DataPath, art.ModelPath} {
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("expected %s to exist: %v", path, err)
		}
	}
	if h.presenter.view(0).teardowns.Load() != 1 || h.subsystem.capture(0).closes.Load() != 1 {
		t.Fatalf("expected a single teardown")
	}
	records, _ := h.index.List(context.Background(), 10)
	if len(records) != 1 || records[0].ID != art.ID || records[0].Counts.Doors != 1 {
		t.Fatalf("expected scan recorded, got %+v", records)
	}
	if h.svc.Status().Active {
		t.Fatalf("session slot must be free after reply")
	}
	h.noMoreReplies(t)
}

func TestShouldPresentBeforeDoneIsRecordedOnly(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.open(t)

	if !h.subsystem.sink(0).ShouldPresentForProcessing(nil, nil) {
		t.Fatalf("bridge must always request processing")
	}
	deadline := time.Now().Add(2 * time.Second)
	for !h.svc.Status().ResultPending {
		if time.Now().After(deadline) {
			t.Fatalf("result pending flag never set")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if h.svc.Status().State != domain.StateScanning {
		t.Fatalf("should present must not change state")
	}

	h.presenter.control(0).Done()
	h.waitState(t, domain.StateReviewing)
	h.subsystem.sink(0).DidPresentResult(sampleRoom(), nil)
	h.waitState(t, domain.StateReady)
	h.presenter.control(0).Done()
	if outcome := h.reply(t); outcome.Kind != domain.OutcomeCompleted {
		t.Fatalf("expected completion, got %+v", outcome)
	}
}

func TestCancelWhileScanningStopsAndReportsCancelled(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.open(t)

	h.presenter.control(0).Cancel()
	outcome := h.reply(t)
	if !outcome.OK() || outcome.Kind != domain.OutcomeCancelled || outcome.Message != domain.MessageCancelled {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	if h.subsystem.capture(0).stops.Load() != 1 {
		t.Fatalf("cancel while scanning must stop capture")
	}
	if h.presenter.view(0).teardowns.Load() != 1 {
		t.Fatalf("cancel must tear down")
	}
}

func TestCancelWhileReviewingDoesNotStopTwice(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.open(t)

	h.presenter.control(0).Done()
	h.waitState(t, domain.StateReviewing)
	h.presenter.control(0).Cancel()
	if outcome := h.reply(t); outcome.Kind != domain.OutcomeCancelled {
		t.Fatalf("expected cancel, got %+v", outcome)
	}
	if got := h.subsystem.capture(0).stops.Load(); got != 1 {
		t.Fatalf("expected one stop, got %d", got)
	}
}

func TestDoneWhileReviewingIsIgnored(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.open(t)

	h.presenter.control(0).Done()
	h.waitState(t, domain.StateReviewing)
	h.presenter.control(0).Done()
	h.subsystem.sink(0).DidPresentResult(sampleRoom(), nil)
	h.waitState(t, domain.StateReady)
	if got := h.subsystem.capture(0).stops.Load(); got != 1 {
		t.Fatalf("second done must not stop again, got %d stops", got)
	}
	h.noMoreReplies(t)
	h.presenter.control(0).Cancel()
	h.reply(t)
}

func TestSubsystemErrorWhileReviewingRepliesOnce(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.open(t)

	h.presenter.control(0).Done()
	h.waitState(t, domain.StateReviewing)
	h.subsystem.sink(0).DidPresentResult(nil, errors.New("world tracking failed"))

	outcome := h.reply(t)
	if outcome.OK() || outcome.Message != "world tracking failed" || !errors.Is(outcome.Err, domain.ErrSubsystem) {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}

	h.presenter.control(0).Cancel()
	h.subsystem.sink(0).DidPresentResult(sampleRoom(), nil)
	h.noMoreReplies(t)
	if h.presenter.view(0).teardowns.Load() != 1 || h.subsystem.capture(0).closes.Load() != 1 {
		t.Fatalf("teardown must run exactly once")
	}
}

func TestLateCallbackFromClosedSessionIsDiscarded(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.open(t)
	h.presenter.control(0).Cancel()
	h.reply(t)

	second := h.open(t)
	h.subsystem.sink(0).DidPresentResult(sampleRoom(), nil)
	h.presenter.control(0).Done()

	status := h.svc.Status()
	if status.SessionID != second || status.State != domain.StateScanning || status.HasResult {
		t.Fatalf("stale events leaked into the new session: %+v", status)
	}
	if h.subsystem.capture(1).stops.Load() != 0 {
		t.Fatalf("old done control must not stop the new capture")
	}
	h.presenter.control(1).Cancel()
	if outcome := h.reply(t); outcome.SessionID != second {
		t.Fatalf("unexpected reply session: %+v", outcome)
	}
}

func TestSecondOpenWhileActiveIsRejected(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.open(t)
	if _, err := h.svc.Start(context.Background(), true, func(domain.Outcome) {}); !errors.Is(err, apperrors.ErrActiveSessionExists) {
		t.Fatalf("expected active session error, got %v", err)
	}
	h.presenter.control(0).Cancel()
	h.reply(t)
}

func TestExportFailureRepliesError(t *testing.T) {
	t.Parallel()
	h := newHarness(t, failingExporter{})
	h.open(t)
	h.presenter.control(0).Done()
	h.waitState(t, domain.StateReviewing)
	h.subsystem.sink(0).DidPresentResult(sampleRoom(), nil)
	h.waitState(t, domain.StateReady)
	h.presenter.control(0).Done()

	outcome := h.reply(t)
	if outcome.OK() || outcome.Message != domain.MessageExportFailed || !errors.Is(outcome.Err, domain.ErrExport) {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	if records, _ := h.index.List(context.Background(), 10); len(records) != 0 {
		t.Fatalf("failed export must not be indexed")
	}
}

func TestEmptyResultStillReplies(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.open(t)
	h.subsystem.sink(0).DidPresentResult(&domain.CapturedRoom{}, nil)
	h.waitState(t, domain.StateReady)
	h.presenter.control(0).Done()
	outcome := h.reply(t)
	if outcome.Kind != domain.OutcomeCompleted || !outcome.Empty {
		t.Fatalf("expected empty completion, got %+v", outcome)
	}
}

func TestStartFailureReleasesSlotWithoutReply(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.subsystem.startErr = errors.New("camera busy")
	if _, err := h.svc.Start(context.Background(), true, func(outcome domain.Outcome) { h.replies <- outcome }); err == nil {
		t.Fatalf("expected start failure")
	}
	if h.presenter.view(0).teardowns.Load() != 1 {
		t.Fatalf("view must be torn down after failed start")
	}
	h.noMoreReplies(t)
	if h.svc.Status().Active {
		t.Fatalf("slot must be released")
	}
}

func TestStopFailureIsReportedAsSubsystemError(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.subsystem.stopErr = errors.New("session interrupted")
	h.open(t)
	h.presenter.control(0).Done()
	outcome := h.reply(t)
	if outcome.Kind != domain.OutcomeFailed || !strings.Contains(outcome.Message, "session interrupted") {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
}

func TestDismissActsAsCancel(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	if err := h.svc.Dismiss("background"); !errors.Is(err, apperrors.ErrNoActiveSession) {
		t.Fatalf("expected no active session, got %v", err)
	}
	h.open(t)
	if err := h.svc.Dismiss("background"); err != nil {
		t.Fatalf("dismiss: %v", err)
	}
	if outcome := h.reply(t); outcome.Kind != domain.OutcomeCancelled {
		t.Fatalf("expected cancel, got %+v", outcome)
	}
}

func TestDismissSessionTargetsOnlyItsHandle(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	first := h.open(t)
	h.presenter.control(0).Cancel()
	h.reply(t)

	second := h.open(t)
	if err := h.svc.DismissSession(first, "connection lost"); !errors.Is(err, apperrors.ErrNoActiveSession) {
		t.Fatalf("dismissing a finished session must fail, got %v", err)
	}
	h.noMoreReplies(t)
	if status := h.svc.Status(); status.SessionID != second || status.State != domain.StateScanning {
		t.Fatalf("newer session must be untouched, got %+v", status)
	}
	if err := h.svc.DismissSession(second, "connection lost"); err != nil {
		t.Fatalf("dismiss: %v", err)
	}
	if outcome := h.reply(t); outcome.Kind != domain.OutcomeCancelled || outcome.SessionID != second {
		t.Fatalf("expected second session cancelled, got %+v", outcome)
	}
}

func TestViewInputDuringExportNeverBlocks(t *testing.T) {
	t.Parallel()
	exporter := gatedExporter{entered: make(chan struct{}), release: make(chan struct{})}
	h := newHarness(t, exporter)
	h.open(t)
	controls := h.presenter.control(0)
	controls.Done()
	h.waitState(t, domain.StateReviewing)
	h.subsystem.sink(0).DidPresentResult(sampleRoom(), nil)
	h.waitState(t, domain.StateReady)
	controls.Done()
	<-exporter.entered

	pressed := make(chan struct{})
	go func() {
		defer close(pressed)
		for i := 0; i < 100; i++ {
			controls.Done()
			controls.Cancel()
		}
	}()
	select {
	case <-pressed:
	case <-time.After(2 * time.Second):
		t.Fatalf("view input blocked while the session was exporting")
	}

	close(exporter.release)
	if outcome := h.reply(t); outcome.Kind != domain.OutcomeCompleted {
		t.Fatalf("expected completed export, got %+v", outcome)
	}
	h.noMoreReplies(t)
	if h.presenter.view(0).teardowns.Load() != 1 {
		t.Fatalf("expected a single teardown")
	}
}
