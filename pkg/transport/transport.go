package transport

import "context"

// Close codes mirror the websocket status codes the relay server uses. A
// normal closure signals an intentional disconnect and suppresses automatic
// reconnection; any other code takes the backoff/reconnect path while the
// local peer is still elected.
const (
    CloseNormal   = 1000
    CloseGoAway   = 1001
    CloseAbnormal = 1006
)

// ConnectParams carries the query-string parameters sent when establishing a
// relay connection. All values are opaque to this layer.
type ConnectParams struct {
    ClientID      string // stable identifier of this peer
    Token         string // opaque auth token, passed through unmodified
    WorldID       string
    WorldTitle    string
    HostVersion   string // hosting application version
    SystemID      string // active ruleset identifier
    SystemTitle   string
    SystemVersion string
    DisplayName   string // optional human-readable name
}

// CloseInfo describes how a connection ended. It is valid once the socket's
// frame channel has been closed.
type CloseInfo struct {
    Code   int
    Reason string
}

// Normal reports whether the closure was an intentional disconnect.
func (c CloseInfo) Normal() bool { return c.Code == CloseNormal }

// Socket is one established, message-framed, bidirectional relay connection.
type Socket interface {
    // Frames delivers raw inbound frames in wire order. The channel is closed
    // when the connection ends, after which CloseInfo describes why.
    Frames() <-chan []byte
    // Send transmits one raw frame. It is safe for concurrent use.
    Send(data []byte) error
    // Close terminates the connection with the given close code. Closing an
    // already-closed socket is a no-op.
    Close(code int, reason string) error
    // CloseInfo reports how the connection ended. Only meaningful after the
    // Frames channel is closed.
    CloseInfo() CloseInfo
}

// Dialer establishes relay connections. The lifecycle manager treats a Dial
// that does not return before ctx expires as a failed attempt. Tests inject
// fake dialers; production wiring uses the websocket implementation.
type Dialer interface {
    Dial(ctx context.Context, url string, params ConnectParams) (Socket, error)
}
