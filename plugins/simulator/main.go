package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/hashicorp/go-plugin"

	scannerrpc "roomscan/internal/modules/capture/adapter/out/rpc"
	"roomscan/internal/modules/capture/domain"
)

const processingDelay = 150 * time.Millisecond

type server struct {
	mu       sync.Mutex
	sessions map[string]chan struct{}
}

func newServer() *server {
	return &server{sessions: map[string]chan struct{}{}}
}

func (s *server) Capabilities(_ context.Context, _ *scannerrpc.Empty) (*scannerrpc.Capabilities, error) {
	if os.Getenv("ROOMSCAN_SIM_UNSUPPORTED") != "" {
		return &scannerrpc.Capabilities{Supported: false, Device: "simulator", Reason: "LiDAR sensor not available"}, nil
	}
	return &scannerrpc.Capabilities{Supported: true, Device: "simulator"}, nil
}

func (s *server) Capture(in *scannerrpc.CaptureRequest, stream scannerrpc.CaptureStream) error {
	stop := make(chan struct{})
	s.mu.Lock()
	if _, exists := s.sessions[in.SessionID]; exists {
		s.mu.Unlock()
		return fmt.Errorf("session %s already capturing", in.SessionID)
	}
	s.sessions[in.SessionID] = stop
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.sessions, in.SessionID)
		s.mu.Unlock()
	}()
	if err := stream.Send(&scannerrpc.CaptureEvent{Kind: scannerrpc.EventStarted}); err != nil {
		return err
	}

	started := time.Now()
	select {
	case <-stream.Context().Done():
		return nil
	case <-stop:
	}

	raw, _ := json.Marshal(map[string]any{"session_id": in.SessionID, "duration_ms": time.Since(started).Milliseconds()})
	if err := stream.Send(&scannerrpc.CaptureEvent{Kind: scannerrpc.EventShouldPresent, Raw: raw}); err != nil {
		return err
	}

	select {
	case <-stream.Context().Done():
		return nil
	case <-time.After(processingDelay):
	}

	if msg := os.Getenv("ROOMSCAN_SIM_ERROR"); msg != "" {
		return stream.Send(&scannerrpc.CaptureEvent{Kind: scannerrpc.EventPresented, Error: msg})
	}
	room := syntheticRoom(in.SessionID)
	if os.Getenv("ROOMSCAN_SIM_EMPTY") != "" {
		room = domain.CapturedRoom{Identifier: in.SessionID, Version: 2}
	}
	payload, err := json.Marshal(room)
	if err != nil {
		return err
	}
	return stream.Send(&scannerrpc.CaptureEvent{Kind: scannerrpc.EventPresented, Room: payload})
}

func (s *server) Stop(_ context.Context, in *scannerrpc.StopRequest) (*scannerrpc.Empty, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stop, ok := s.sessions[in.SessionID]
	if !ok {
		return nil, fmt.Errorf("unknown session: %s", in.SessionID)
	}
	select {
	case <-stop:
	default:
		close(stop)
	}
	return &scannerrpc.Empty{}, nil
}

// syntheticRoom is a 4m x 3m room with one door, one window and a sofa.
func syntheticRoom(id string) domain.CapturedRoom {
	wall := func(name string, width float64, transform [16]float64) domain.Surface {
		return domain.Surface{Identifier: name, Category: "wall", Dimensions: [3]float64{width, 2.5, 0.1}, Transform: transform, Confidence: domain.ConfidenceHigh}
	}
	translate := func(x, y, z float64) [16]float64 {
		return [16]float64{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, x, y, z, 1}
	}
	rotated := func(x, y, z float64) [16]float64 {
		return [16]float64{0, 0, -1, 0, 0, 1, 0, 0, 1, 0, 0, 0, x, y, z, 1}
	}
	return domain.CapturedRoom{
		Identifier: id,
		Version:    2,
		Walls: []domain.Surface{
			wall("wall-north", 4, translate(0, 1.25, -1.5)),
			wall("wall-south", 4, translate(0, 1.25, 1.5)),
			wall("wall-east", 3, rotated(2, 1.25, 0)),
			wall("wall-west", 3, rotated(-2, 1.25, 0)),
		},
		Doors: []domain.Surface{
			{Identifier: "door-1", Category: "door", Dimensions: [3]float64{0.9, 2.1, 0.05}, Transform: translate(1, 1.05, 1.5), Confidence: domain.ConfidenceMedium},
		},
		Windows: []domain.Surface{
			{Identifier: "window-1", Category: "window", Dimensions: [3]float64{1.2, 1.1, 0.05}, Transform: translate(0, 1.5, -1.5), Confidence: domain.ConfidenceHigh},
		},
		Floors: []domain.Surface{
			{Identifier: "floor-1", Category: "floor", Dimensions: [3]float64{4, 3, 0}, Transform: translate(0, 0, 0), Confidence: domain.ConfidenceHigh},
		},
		Objects: []domain.Object{
			{Identifier: "sofa-1", Category: "sofa", Dimensions: [3]float64{2, 0.8, 0.9}, Transform: translate(0, 0.4, -1), Confidence: domain.ConfidenceMedium},
		},
		Sections: []domain.Section{{Label: "livingRoom", Center: [3]float64{0, 0, 0}}},
	}
}

func main() {
	plugin.Serve(&plugin.ServeConfig{
		HandshakeConfig: scannerrpc.HandshakeConfig,
		Plugins:         scannerrpc.PluginMap(newServer()),
		GRPCServer:      plugin.DefaultGRPCServer,
	})
}
