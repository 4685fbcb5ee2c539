package gameserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/keepalive"
)

const (
	// SyncServiceName is the fully qualified gRPC service name.
	SyncServiceName = "proxsync.v1.SyncService"
	// SessionMethod is the full method name of the bidirectional session stream.
	SessionMethod = "/" + SyncServiceName + "/Session"
	// CodecName is the content-subtype carried by every session stream.
	CodecName = "json"
)

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// jsonCodec carries protocol envelopes as raw JSON stream messages.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

func (jsonCodec) Name() string { return CodecName }

// SyncStreamServer is the server API of the session stream.
type SyncStreamServer interface {
	Session(stream grpc.ServerStream) error
}

// syncServiceDesc describes the single bidirectional stream of the service.
var syncServiceDesc = grpc.ServiceDesc{
	ServiceName: SyncServiceName,
	HandlerType: (*SyncStreamServer)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Session",
			Handler:       sessionHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
}

func sessionHandler(srv any, stream grpc.ServerStream) error {
	return srv.(SyncStreamServer).Session(stream)
}

// GRPCServer exposes a SyncService over a gRPC bidirectional stream.
// Each stream is one participant; each stream message is one envelope.
type GRPCServer struct {
	svc    *SyncService
	addr   string
	server *grpc.Server
	logger *zap.Logger
}

// NewGRPCServer creates a gRPC server bound to addr with keepalive enforcement.
//
// Precondition: svc and logger must be non-nil.
func NewGRPCServer(addr string, svc *SyncService, logger *zap.Logger) *GRPCServer {
	srv := grpc.NewServer(
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    30 * time.Second,
			Timeout: 10 * time.Second,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             10 * time.Second,
			PermitWithoutStream: true,
		}),
	)
	g := &GRPCServer{svc: svc, addr: addr, server: srv, logger: logger}
	RegisterSyncService(srv, g)
	return g
}

// RegisterSyncService registers impl on registrar.
func RegisterSyncService(registrar grpc.ServiceRegistrar, impl SyncStreamServer) {
	registrar.RegisterService(&syncServiceDesc, impl)
}

// Session implements SyncStreamServer.
func (g *GRPCServer) Session(stream grpc.ServerStream) error {
	return g.svc.Serve(stream.Context(), &streamTransport{stream: stream})
}

// Serve accepts streams on lis until Stop is called.
func (g *GRPCServer) Serve(lis net.Listener) error {
	g.logger.Info("gRPC server listening", zap.String("addr", lis.Addr().String()))
	return g.server.Serve(lis)
}

// Start listens on the configured address and serves. It blocks.
func (g *GRPCServer) Start() error {
	lis, err := net.Listen("tcp", g.addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", g.addr, err)
	}
	return g.Serve(lis)
}

// Stop terminates every open stream and the listener.
func (g *GRPCServer) Stop() {
	g.server.Stop()
}

// streamTransport adapts a server stream to Transport.
type streamTransport struct {
	stream grpc.ServerStream
}

func (t *streamTransport) ReadFrame(_ context.Context) ([]byte, error) {
	var raw json.RawMessage
	if err := t.stream.RecvMsg(&raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func (t *streamTransport) WriteFrame(frame []byte) error {
	return t.stream.SendMsg(json.RawMessage(frame))
}

// Close is a no-op: the stream ends when the handler returns.
func (t *streamTransport) Close() error { return nil }

// SessionClient is the client side of one session stream.
type SessionClient struct {
	stream grpc.ClientStream
}

// OpenSession starts a session stream on conn.
//
// Postcondition: Returns a SessionClient whose first received frame is init,
// or a non-nil error.
func OpenSession(ctx context.Context, conn grpc.ClientConnInterface) (*SessionClient, error) {
	stream, err := conn.NewStream(ctx, &syncServiceDesc.Streams[0], SessionMethod, grpc.CallContentSubtype(CodecName))
	if err != nil {
		return nil, fmt.Errorf("opening session stream: %w", err)
	}
	return &SessionClient{stream: stream}, nil
}

// Send writes one envelope.
func (c *SessionClient) Send(frame []byte) error {
	return c.stream.SendMsg(json.RawMessage(frame))
}

// Recv blocks for the next envelope.
func (c *SessionClient) Recv() ([]byte, error) {
	var raw json.RawMessage
	if err := c.stream.RecvMsg(&raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// CloseSend half-closes the stream, which disconnects the participant.
func (c *SessionClient) CloseSend() error {
	return c.stream.CloseSend()
}

// Relay serves participants by forwarding their transports to a remote
// sync service over session streams. It lets a frontend process host
// connections while the registry lives in the game server.
type Relay struct {
	conn   grpc.ClientConnInterface
	logger *zap.Logger
}

// NewRelay creates a Relay that opens streams on conn.
//
// Precondition: conn and logger must be non-nil.
func NewRelay(conn grpc.ClientConnInterface, logger *zap.Logger) *Relay {
	return &Relay{conn: conn, logger: logger}
}

// Serve pumps frames between t and a new session stream until either side
// ends, then closes t.
//
// Postcondition: Returns nil when the participant or the remote service
// ended the session normally, or when ctx was cancelled.
func (r *Relay) Serve(ctx context.Context, t Transport) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	client, err := OpenSession(ctx, r.conn)
	if err != nil {
		t.Close()
		return err
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			frame, err := t.ReadFrame(ctx)
			if err != nil {
				_ = client.CloseSend()
				return
			}
			if err := client.Send(frame); err != nil {
				return
			}
		}
	}()

	var relayErr error
	for {
		frame, err := client.Recv()
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				relayErr = fmt.Errorf("relaying session: %w", err)
			}
			break
		}
		if err := t.WriteFrame(frame); err != nil {
			r.logger.Debug("relay write failed", zap.Error(err))
			break
		}
	}

	cancel()
	t.Close()
	wg.Wait()
	return relayErr
}
