package grpc

import (
    "crypto/tls"
    "context"
    "net"
    "sync"
    "time"

    "google.golang.org/grpc"
    "google.golang.org/grpc/health"
    healthpb "google.golang.org/grpc/health/grpc_health_v1"
    "google.golang.org/grpc/credentials"
    "google.golang.org/grpc/keepalive"

    "github.com/CePeU/foundryvtt-rest-api/pkg/transport"
    "github.com/CePeU/foundryvtt-rest-api/pkg/observability/tracing"
)

// Server implements transport.RPCServer over gRPC using a JSON codec.
type Server struct {
    bind   string
    lis    net.Listener
    srv    *grpc.Server
    tlsCfg *tls.Config
    // lifecycle event subscriptions
    evs struct{
        mu   sync.Mutex
        subs map[*eventSub]struct{}
    }
}

func NewServer(bind string) *Server { return &Server{bind: bind} }

// UseTLS enables TLS for the gRPC server using the provided config.
func (s *Server) UseTLS(cfg *tls.Config) *Server { s.tlsCfg = cfg; return s }

// internal request/response types used over gRPC JSON codec
type empty struct{}
type statusBlob struct{ Data []byte `json:"data"` }

// managementServer defines the methods we expose.
type managementServer interface{
    GetStatus(ctx context.Context, in *empty) (*statusBlob, error)
    Connect(ctx context.Context, in *transport.ConnectRequest) (*transport.ConnectResponse, error)
    Disconnect(ctx context.Context, in *transport.DisconnectRequest) (*transport.DisconnectResponse, error)
    Send(ctx context.Context, in *transport.SendRequest) (*transport.SendResponse, error)
}

type mgmtImpl struct{ status transport.StatusFunc; connect transport.ConnectFunc; disconnect transport.DisconnectFunc; send transport.SendFunc }

func (m *mgmtImpl) GetStatus(ctx context.Context, _ *empty) (*statusBlob, error) {
    ctx, end := tracing.StartSpan(ctx, "grpc.status")
    defer end()
    b, err := m.status(ctx)
    if err != nil { return nil, err }
    return &statusBlob{Data: b}, nil
}

func (m *mgmtImpl) Connect(ctx context.Context, in *transport.ConnectRequest) (*transport.ConnectResponse, error) {
    if in == nil { in = &transport.ConnectRequest{} }
    if m.connect == nil { return &transport.ConnectResponse{Accepted: false, Error: "connect not supported"}, nil }
    ctx, end := tracing.StartSpan(ctx, "grpc.connect")
    defer end()
    out, err := m.connect(ctx, *in)
    if err != nil { return &transport.ConnectResponse{Accepted: false, Error: err.Error()}, nil }
    return &out, nil
}

func (m *mgmtImpl) Disconnect(ctx context.Context, in *transport.DisconnectRequest) (*transport.DisconnectResponse, error) {
    if in == nil { in = &transport.DisconnectRequest{} }
    if m.disconnect == nil { return &transport.DisconnectResponse{Accepted: false, Error: "disconnect not supported"}, nil }
    ctx, end := tracing.StartSpan(ctx, "grpc.disconnect")
    defer end()
    out, err := m.disconnect(ctx, *in)
    if err != nil { return &transport.DisconnectResponse{Accepted: false, Error: err.Error()}, nil }
    return &out, nil
}

func (m *mgmtImpl) Send(ctx context.Context, in *transport.SendRequest) (*transport.SendResponse, error) {
    if in == nil { in = &transport.SendRequest{} }
    if m.send == nil { return &transport.SendResponse{Delivered: false, Error: "send not supported"}, nil }
    ctx, end := tracing.StartSpan(ctx, "grpc.send")
    defer end()
    out, err := m.send(ctx, *in)
    if err != nil { return &transport.SendResponse{Delivered: false, Error: err.Error()}, nil }
    return &out, nil
}

// Service descriptor and handlers (hand-written, no codegen required)
var _Management_serviceDesc = grpc.ServiceDesc{
    ServiceName: "relay.v1.Management",
    HandlerType: (*managementServer)(nil),
    Methods: []grpc.MethodDesc{
        { MethodName: "GetStatus", Handler: _Management_GetStatus_Handler },
        { MethodName: "Connect", Handler: _Management_Connect_Handler },
        { MethodName: "Disconnect", Handler: _Management_Disconnect_Handler },
        { MethodName: "Send", Handler: _Management_Send_Handler },
    },
}

func _Management_GetStatus_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
    in := new(empty)
    if err := dec(in); err != nil { return nil, err }
    if interceptor == nil { return srv.(managementServer).GetStatus(ctx, in) }
    info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/relay.v1.Management/GetStatus"}
    handler := func(ctx context.Context, req interface{}) (interface{}, error) {
        return srv.(managementServer).GetStatus(ctx, req.(*empty))
    }
    return interceptor(ctx, in, info, handler)
}

func _Management_Connect_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
    in := new(transport.ConnectRequest)
    if err := dec(in); err != nil { return nil, err }
    if interceptor == nil { return srv.(managementServer).Connect(ctx, in) }
    info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/relay.v1.Management/Connect"}
    handler := func(ctx context.Context, req interface{}) (interface{}, error) {
        return srv.(managementServer).Connect(ctx, req.(*transport.ConnectRequest))
    }
    return interceptor(ctx, in, info, handler)
}

func _Management_Disconnect_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
    in := new(transport.DisconnectRequest)
    if err := dec(in); err != nil { return nil, err }
    if interceptor == nil { return srv.(managementServer).Disconnect(ctx, in) }
    info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/relay.v1.Management/Disconnect"}
    handler := func(ctx context.Context, req interface{}) (interface{}, error) {
        return srv.(managementServer).Disconnect(ctx, req.(*transport.DisconnectRequest))
    }
    return interceptor(ctx, in, info, handler)
}

func _Management_Send_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
    in := new(transport.SendRequest)
    if err := dec(in); err != nil { return nil, err }
    if interceptor == nil { return srv.(managementServer).Send(ctx, in) }
    info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/relay.v1.Management/Send"}
    handler := func(ctx context.Context, req interface{}) (interface{}, error) {
        return srv.(managementServer).Send(ctx, req.(*transport.SendRequest))
    }
    return interceptor(ctx, in, info, handler)
}

func (s *Server) Start(ctx context.Context, status transport.StatusFunc, connect transport.ConnectFunc, disconnect transport.DisconnectFunc, send transport.SendFunc) error {
    lis, err := net.Listen("tcp", s.bind)
    if err != nil { return err }
    s.lis = lis
    // Force JSON codec to avoid requiring protobuf types
    var opts []grpc.ServerOption
    opts = append(opts, grpc.ForceServerCodec(jsonCodec{}))
    // keepalive settings for long-lived event streams
    opts = append(opts, grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{MinTime: 5 * time.Second, PermitWithoutStream: true}))
    opts = append(opts, grpc.KeepaliveParams(keepalive.ServerParameters{Time: 30 * time.Second, Timeout: 10 * time.Second}))
    if s.tlsCfg != nil { opts = append(opts, grpc.Creds(credentials.NewTLS(s.tlsCfg))) }
    srv := grpc.NewServer(opts...)
    s.srv = srv
    // Health service (always serving for now)
    healthSrv := health.NewServer()
    healthpb.RegisterHealthServer(srv, healthSrv)
    // Register management service
    srv.RegisterService(&_Management_serviceDesc, &mgmtImpl{status: status, connect: connect, disconnect: disconnect, send: send})

    // Register lifecycle event streaming service
    s.evs.subs = make(map[*eventSub]struct{})
    srv.RegisterService(&_Events_serviceDesc, &eventsImpl{server: s})

    go func() {
        <-ctx.Done()
        // Graceful stop with a small timeout fallback
        ch := make(chan struct{})
        go func() { srv.GracefulStop(); close(ch) }()
        select {
        case <-ch:
        case <-time.After(2*time.Second):
            srv.Stop()
        }
    }()
    go func() { _ = srv.Serve(lis) }()
    return nil
}

func (s *Server) Addr() string { return s.bind }

func (s *Server) Stop(ctx context.Context) error {
    if s.srv == nil { return nil }
    ch := make(chan struct{})
    go func() { s.srv.GracefulStop(); close(ch) }()
    select {
    case <-ch:
    case <-ctx.Done():
        s.srv.Stop()
    }
    s.srv = nil
    if s.lis != nil { _ = s.lis.Close(); s.lis = nil }
    return nil
}

var _ transport.RPCServer = (*Server)(nil)

// --- Lifecycle event streaming ---

type eventMsg struct{ Data []byte `json:"data"` }
type eventSubReq struct{ ClientID string `json:"clientId,omitempty"` }

type eventSub struct{ ss grpc.ServerStream; clientID string }

type eventsServer interface{
    Subscribe(*eventSubReq, Events_SubscribeServer) error
}

type Events_SubscribeServer interface{
    Send(*eventMsg) error
    grpc.ServerStream
}

type eventsImpl struct{ server *Server }

func (e *eventsImpl) Subscribe(req *eventSubReq, stream Events_SubscribeServer) error {
    sub := &eventSub{ss: stream}
    if req != nil { sub.clientID = req.ClientID }
    e.server.addSub(sub)
    defer e.server.removeSub(sub)
    // Block until client disconnects
    <-stream.Context().Done()
    return nil
}

func (s *Server) addSub(sub *eventSub) {
    s.evs.mu.Lock()
    if s.evs.subs == nil { s.evs.subs = make(map[*eventSub]struct{}) }
    s.evs.subs[sub] = struct{}{}
    s.evs.mu.Unlock()
}

func (s *Server) removeSub(sub *eventSub) {
    s.evs.mu.Lock()
    if s.evs.subs != nil { delete(s.evs.subs, sub) }
    s.evs.mu.Unlock()
}

// PublishEvent pushes one JSON-encoded lifecycle event to all active stream
// subscribers. Best-effort: subscribers whose stream errors are dropped.
// Returns the number of subscribers reached.
func (s *Server) PublishEvent(data []byte) int {
    msg := &eventMsg{Data: data}
    cnt := 0
    s.evs.mu.Lock()
    for sub := range s.evs.subs {
        if err := sub.ss.SendMsg(msg); err == nil { cnt++ } else { delete(s.evs.subs, sub) }
    }
    s.evs.mu.Unlock()
    return cnt
}

var _Events_serviceDesc = grpc.ServiceDesc{
    ServiceName: "relay.v1.Events",
    HandlerType: (*eventsServer)(nil),
    Streams: []grpc.StreamDesc{{
        StreamName:    "Subscribe",
        ServerStreams: true,
        Handler:       _Events_Subscribe_Handler,
    }},
}

func _Events_Subscribe_Handler(srv interface{}, stream grpc.ServerStream) error {
    m := new(eventSubReq)
    if err := stream.RecvMsg(m); err != nil { return err }
    return srv.(eventsServer).Subscribe(m, &eventsSubscribeServer{stream})
}

type eventsSubscribeServer struct{ grpc.ServerStream }
func (x *eventsSubscribeServer) Send(m *eventMsg) error { return x.ServerStream.SendMsg(m) }
