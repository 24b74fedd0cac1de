package grpc

import (
    "context"
    "time"

    "google.golang.org/grpc"

    "github.com/CePeU/foundryvtt-rest-api/pkg/transport"
)

// Subscribe establishes a server-stream to the events service and invokes
// onEvent for every lifecycle event received. It blocks until the stream ends
// or ctx is done; callers wrap it in their own retry loop.
func (c *Client) Subscribe(ctx context.Context, addr string, onEvent func(event []byte)) error {
    if c.cm == nil { c.cm = NewConnManager(30*time.Second, c.dialCtx) }
    cc, rel, err := c.cm.Get(ctx, addr)
    if err != nil { return err }
    defer rel()
    // Build a client stream manually
    sd := &grpc.StreamDesc{ServerStreams: true}
    cs, err := cc.NewStream(ctx, sd, "/relay.v1.Events/Subscribe")
    if err != nil { return err }
    // send initial subscribe request
    if err := cs.SendMsg(&eventSubReq{}); err != nil { return err }
    if err := cs.CloseSend(); err != nil { /* ignore close send errors for server streaming */ }
    // receive loop
    for {
        var m eventMsg
        if err := cs.RecvMsg(&m); err != nil {
            return err
        }
        if onEvent != nil { onEvent(m.Data) }
    }
}

var _ transport.EventStreamClient = (*Client)(nil)
