package out

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	hclog "github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-plugin"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	scannerrpc "roomscan/internal/modules/capture/adapter/out/rpc"
	"roomscan/internal/modules/capture/domain"
	captureout "roomscan/internal/modules/capture/port/out"
	apperrors "roomscan/internal/platform/errors"
)

const (
	defaultStartTimeout = 3 * time.Second
	defaultCallTimeout  = 5 * time.Second
)

type GRPCScanner struct {
	binary       string
	checksum     string
	startTimeout time.Duration
	logger       hclog.Logger
}

func NewGRPCScanner(binary, checksum string, startTimeout time.Duration, logger hclog.Logger) captureout.Subsystem {
	if startTimeout <= 0 {
		startTimeout = defaultStartTimeout
	}
	if logger == nil {
		logger = hclog.New(&hclog.LoggerOptions{Output: io.Discard, Level: hclog.NoLevel})
	}
	return &GRPCScanner{binary: binary, checksum: checksum, startTimeout: startTimeout, logger: logger}
}

// Supported asks the plugin for its capabilities. A missing plugin binary is
// reported as an unsupported device rather than an error.
func (h *GRPCScanner) Supported(ctx context.Context) (domain.Capability, error) {
	if _, err := os.Stat(h.binary); err != nil {
		return domain.Capability{Supported: false, Reason: "scanner plugin not installed"}, nil
	}
	client, closeFn, err := h.connect()
	if err != nil {
		return domain.Capability{}, err
	}
	defer closeFn()

	callCtx, cancel := callContext(ctx, defaultCallTimeout)
	defer cancel()
	caps, err := client.Capabilities(callCtx)
	if err != nil {
		return domain.Capability{}, fmt.Errorf("get capabilities: %w", err)
	}
	return domain.Capability{Supported: caps.Supported, Device: caps.Device, Reason: caps.Reason}, nil
}

func (h *GRPCScanner) Start(_ context.Context, cfg domain.CaptureConfig, sink captureout.EventSink) (captureout.CaptureSession, error) {
	if _, err := os.Stat(h.binary); err != nil {
		return nil, fmt.Errorf("%w: scanner plugin not installed", apperrors.ErrUnsupported)
	}
	client, closeFn, err := h.connect()
	if err != nil {
		return nil, err
	}
	streamCtx, cancel := context.WithCancel(context.Background())
	recv, err := client.Capture(streamCtx, &scannerrpc.CaptureRequest{SessionID: cfg.SessionID, CoachingEnabled: cfg.CoachingEnabled})
	if err != nil {
		cancel()
		closeFn()
		return nil, fmt.Errorf("open capture stream: %w", err)
	}
	if err := awaitStarted(recv, h.startTimeout); err != nil {
		cancel()
		closeFn()
		return nil, fmt.Errorf("start capture: %w", err)
	}
	session := &grpcCaptureSession{
		client:    client,
		sessionID: cfg.SessionID,
		cancel:    cancel,
		kill:      closeFn,
		logger:    h.logger.With("session", cfg.SessionID),
	}
	go session.pump(streamCtx, recv, sink)
	return session, nil
}

func (h *GRPCScanner) connect() (scannerrpc.ScannerClient, func(), error) {
	cfg := &plugin.ClientConfig{
		HandshakeConfig:  scannerrpc.HandshakeConfig,
		AllowedProtocols: []plugin.Protocol{plugin.ProtocolGRPC},
		Plugins:          scannerrpc.PluginMap(nil),
		Cmd:              exec.Command(h.binary),
		Managed:          true,
		StartTimeout:     h.startTimeout,
		Logger:           h.logger,
	}
	if h.checksum != "" {
		sum, err := hex.DecodeString(h.checksum)
		if err != nil {
			return nil, nil, fmt.Errorf("decode scanner checksum: %w", err)
		}
		cfg.SecureConfig = &plugin.SecureConfig{Checksum: sum, Hash: sha256.New()}
	}
	client := plugin.NewClient(cfg)
	closeFn := func() { client.Kill() }

	rpcClient, err := client.Client()
	if err != nil {
		closeFn()
		return nil, nil, fmt.Errorf("start scanner plugin: %w", err)
	}
	raw, err := rpcClient.Dispense(scannerrpc.PluginMapKey)
	if err != nil {
		closeFn()
		return nil, nil, fmt.Errorf("dispense scanner: %w", err)
	}
	typed, ok := raw.(scannerrpc.ScannerClient)
	if !ok {
		closeFn()
		return nil, nil, fmt.Errorf("scanner rpc client type mismatch")
	}
	return typed, closeFn, nil
}

type grpcCaptureSession struct {
	client    scannerrpc.ScannerClient
	sessionID string
	cancel    context.CancelFunc
	kill      func()
	logger    hclog.Logger
	closeOnce sync.Once
}

func (s *grpcCaptureSession) Stop(ctx context.Context) error {
	callCtx, cancel := callContext(ctx, defaultCallTimeout)
	defer cancel()
	if err := s.client.Stop(callCtx, &scannerrpc.StopRequest{SessionID: s.sessionID}); err != nil {
		return fmt.Errorf("stop capture: %w", err)
	}
	return nil
}

func (s *grpcCaptureSession) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		s.kill()
	})
	return nil
}

func (s *grpcCaptureSession) pump(ctx context.Context, recv scannerrpc.CaptureEventReceiver, sink captureout.EventSink) {
	for {
		ev, err := recv.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil || status.Code(err) == codes.Canceled {
				return
			}
			s.logger.Warn("capture stream broken", "error", err)
			sink.DidPresentResult(nil, fmt.Errorf("scanner stream: %w", err))
			return
		}
		switch ev.Kind {
		case scannerrpc.EventShouldPresent:
			sink.ShouldPresentForProcessing(ev.Raw, eventError(ev))
		case scannerrpc.EventPresented:
			if ev.Error != "" {
				sink.DidPresentResult(nil, eventError(ev))
				continue
			}
			room := &domain.CapturedRoom{}
			if err := json.Unmarshal(ev.Room, room); err != nil {
				sink.DidPresentResult(nil, fmt.Errorf("decode captured room: %w", err))
				continue
			}
			sink.DidPresentResult(room, nil)
		default:
			s.logger.Debug("unknown capture event", "kind", ev.Kind)
		}
	}
}

// awaitStarted blocks until the plugin acknowledges the session, so a Stop
// issued right after Start is never lost.
func awaitStarted(recv scannerrpc.CaptureEventReceiver, timeout time.Duration) error {
	type first struct {
		ev  *scannerrpc.CaptureEvent
		err error
	}
	got := make(chan first, 1)
	go func() {
		ev, err := recv.Recv()
		got <- first{ev: ev, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case f := <-got:
		if f.err != nil {
			return f.err
		}
		if f.ev.Kind != scannerrpc.EventStarted {
			return fmt.Errorf("expected %q event, got %q", scannerrpc.EventStarted, f.ev.Kind)
		}
		return nil
	case <-timer.C:
		return fmt.Errorf("no acknowledgement within %s", timeout)
	}
}

func eventError(ev *scannerrpc.CaptureEvent) error {
	if ev.Error == "" {
		return nil
	}
	return errors.New(ev.Error)
}

func callContext(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := parent.Deadline(); ok {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, timeout)
}
