package rpc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hashicorp/go-plugin"
	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

const (
	PluginMapKey       = "scanner"
	serviceName        = "roomscan.scanner.v1.Scanner"
	jsonCodecName      = "json"
	methodCapabilities = "/" + serviceName + "/Capabilities"
	methodCapture      = "/" + serviceName + "/Capture"
	methodStop         = "/" + serviceName + "/Stop"
)

const (
	// EventStarted is sent once the plugin has registered the session and
	// will honour Stop for it.
	EventStarted       = "started"
	EventShouldPresent = "should_present"
	EventPresented     = "presented"
)

var HandshakeConfig = plugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "ROOMSCAN_SCANNER",
	MagicCookieValue: "roomscan",
}

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return jsonCodecName
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type Empty struct{}

type Capabilities struct {
	Supported bool   `json:"supported"`
	Device    string `json:"device"`
	Reason    string `json:"reason,omitempty"`
}

type CaptureRequest struct {
	SessionID       string `json:"session_id"`
	CoachingEnabled bool   `json:"coaching_enabled"`
}

type StopRequest struct {
	SessionID string `json:"session_id"`
}

// CaptureEvent is one notification on the capture stream. Raw carries the
// unprocessed scan data for should_present; Room the processed result for
// presented.
type CaptureEvent struct {
	Kind  string          `json:"kind"`
	Raw   json.RawMessage `json:"raw,omitempty"`
	Room  json.RawMessage `json:"room,omitempty"`
	Error string          `json:"error,omitempty"`
}

type CaptureStream interface {
	Context() context.Context
	Send(*CaptureEvent) error
}

type CaptureEventReceiver interface {
	Recv() (*CaptureEvent, error)
}

type ScannerServer interface {
	Capabilities(ctx context.Context, in *Empty) (*Capabilities, error)
	Capture(in *CaptureRequest, stream CaptureStream) error
	Stop(ctx context.Context, in *StopRequest) (*Empty, error)
}

type ScannerClient interface {
	Capabilities(ctx context.Context) (*Capabilities, error)
	Capture(ctx context.Context, in *CaptureRequest) (CaptureEventReceiver, error)
	Stop(ctx context.Context, in *StopRequest) error
}

type scannerClient struct {
	conn *grpc.ClientConn
}

func NewScannerClient(conn *grpc.ClientConn) ScannerClient {
	return &scannerClient{conn: conn}
}

func (c *scannerClient) Capabilities(ctx context.Context) (*Capabilities, error) {
	out := &Capabilities{}
	if err := c.conn.Invoke(ctx, methodCapabilities, &Empty{}, out, grpc.CallContentSubtype(jsonCodecName)); err != nil {
		return nil, err
	}
	return out, nil
}

var captureStreamDesc = grpc.StreamDesc{StreamName: "Capture", ServerStreams: true}

func (c *scannerClient) Capture(ctx context.Context, in *CaptureRequest) (CaptureEventReceiver, error) {
	stream, err := c.conn.NewStream(ctx, &captureStreamDesc, methodCapture, grpc.CallContentSubtype(jsonCodecName))
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &captureClientStream{stream: stream}, nil
}

func (c *scannerClient) Stop(ctx context.Context, in *StopRequest) error {
	return c.conn.Invoke(ctx, methodStop, in, &Empty{}, grpc.CallContentSubtype(jsonCodecName))
}

type captureClientStream struct {
	stream grpc.ClientStream
}

func (s *captureClientStream) Recv() (*CaptureEvent, error) {
	out := &CaptureEvent{}
	if err := s.stream.RecvMsg(out); err != nil {
		return nil, err
	}
	return out, nil
}

type captureServerStream struct {
	stream grpc.ServerStream
}

func (s *captureServerStream) Context() context.Context {
	return s.stream.Context()
}

func (s *captureServerStream) Send(ev *CaptureEvent) error {
	return s.stream.SendMsg(ev)
}

func RegisterScannerServer(server grpc.ServiceRegistrar, impl ScannerServer) {
	server.RegisterService(&grpc.ServiceDesc{
		ServiceName: serviceName,
		HandlerType: (*ScannerServer)(nil),
		Methods: []grpc.MethodDesc{
			{
				MethodName: "Capabilities",
				Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
					in := &Empty{}
					if err := dec(in); err != nil {
						return nil, err
					}
					if interceptor == nil {
						return impl.Capabilities(ctx, in)
					}
					info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodCapabilities}
					handler := func(ctx context.Context, req any) (any, error) {
						empty, ok := req.(*Empty)
						if !ok {
							return nil, fmt.Errorf("invalid request type")
						}
						return impl.Capabilities(ctx, empty)
					}
					return interceptor(ctx, in, info, handler)
				},
			},
			{
				MethodName: "Stop",
				Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
					in := &StopRequest{}
					if err := dec(in); err != nil {
						return nil, err
					}
					if interceptor == nil {
						return impl.Stop(ctx, in)
					}
					info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodStop}
					handler := func(ctx context.Context, req any) (any, error) {
						stop, ok := req.(*StopRequest)
						if !ok {
							return nil, fmt.Errorf("invalid request type")
						}
						return impl.Stop(ctx, stop)
					}
					return interceptor(ctx, in, info, handler)
				},
			},
		},
		Streams: []grpc.StreamDesc{
			{
				StreamName:    "Capture",
				ServerStreams: true,
				Handler: func(_ any, stream grpc.ServerStream) error {
					in := &CaptureRequest{}
					if err := stream.RecvMsg(in); err != nil {
						return err
					}
					return impl.Capture(in, &captureServerStream{stream: stream})
				},
			},
		},
		Metadata: "schemas/scanner-rpc-v1.proto",
	}, impl)
}

type GRPCPlugin struct {
	plugin.NetRPCUnsupportedPlugin
	Impl ScannerServer
}

func (p *GRPCPlugin) GRPCServer(_ *plugin.GRPCBroker, server *grpc.Server) error {
	RegisterScannerServer(server, p.Impl)
	return nil
}

func (p *GRPCPlugin) GRPCClient(_ context.Context, _ *plugin.GRPCBroker, conn *grpc.ClientConn) (any, error) {
	return NewScannerClient(conn), nil
}

func PluginMap(impl ScannerServer) map[string]plugin.Plugin {
	return map[string]plugin.Plugin{
		PluginMapKey: &GRPCPlugin{Impl: impl},
	}
}
