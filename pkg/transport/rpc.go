package transport

import (
    "context"
    "encoding/json"
)

// StatusFunc returns a JSON-encoded status payload for management /status.
// Using []byte avoids import cycles on relay types.
type StatusFunc func(ctx context.Context) ([]byte, error)

// ConnectRequest asks the running agent to begin a connection attempt. The
// attempt is still subject to the election guard.
type ConnectRequest struct{}

// ConnectResponse indicates whether the attempt was started.
type ConnectResponse struct {
    Accepted bool   `json:"accepted"`
    Error    string `json:"error,omitempty"`
}

// ConnectFunc handles management connect requests.
type ConnectFunc func(ctx context.Context, req ConnectRequest) (ConnectResponse, error)

// DisconnectRequest asks the agent to close its relay connection and cancel
// pending reconnects. Idempotent.
type DisconnectRequest struct{}

type DisconnectResponse struct {
    Accepted bool   `json:"accepted"`
    Error    string `json:"error,omitempty"`
}

// DisconnectFunc handles management disconnect requests.
type DisconnectFunc func(ctx context.Context, req DisconnectRequest) (DisconnectResponse, error)

// SendRequest carries one wire envelope to transmit over the live connection.
// The envelope is passed through opaquely in its flat wire form.
type SendRequest struct {
    Envelope json.RawMessage `json:"envelope"`
}

// SendResponse reports delivery: Delivered=false means the socket was absent
// or not open, mirroring the fire-and-forget send semantics of the core.
type SendResponse struct {
    Delivered bool   `json:"delivered"`
    Error     string `json:"error,omitempty"`
}

// SendFunc handles management send requests.
type SendFunc func(ctx context.Context, req SendRequest) (SendResponse, error)

// RPCServer exposes management endpoints (status, connect, disconnect, send,
// metrics/healthz) for local tooling against a running agent.
type RPCServer interface {
    Start(ctx context.Context, status StatusFunc, connect ConnectFunc, disconnect DisconnectFunc, send SendFunc) error
    Addr() string
    Stop(ctx context.Context) error
}

// RPCClient performs management calls against a running agent using the
// chosen protocol (HTTP/JSON or gRPC JSON codec).
type RPCClient interface {
    GetStatus(ctx context.Context, addr string) ([]byte, error)
    PostConnect(ctx context.Context, addr string, req ConnectRequest) (ConnectResponse, error)
    PostDisconnect(ctx context.Context, addr string, req DisconnectRequest) (DisconnectResponse, error)
    PostSend(ctx context.Context, addr string, req SendRequest) (SendResponse, error)
}

// EventStreamClient is an optional client for streaming agent lifecycle
// events (gRPC-only). Implementations should use persistent connections with
// keepalive and backoff.
type EventStreamClient interface {
    // Subscribe establishes a long-lived server-stream from addr and invokes
    // onEvent for each lifecycle event, encoded as JSON. It blocks until the
    // stream ends or ctx is done.
    Subscribe(ctx context.Context, addr string, onEvent func(event []byte)) error
}
