package dispatch

import (
    "context"
    "log"
    "sync"

    "github.com/CePeU/foundryvtt-rest-api/pkg/internal/logutil"
    "github.com/CePeU/foundryvtt-rest-api/pkg/observability/metrics"
    "github.com/CePeU/foundryvtt-rest-api/pkg/observability/tracing"
    "github.com/CePeU/foundryvtt-rest-api/pkg/state"
    "github.com/CePeU/foundryvtt-rest-api/pkg/transport"
)

// Sender is the send capability a handler context exposes. It is bound to the
// currently open connection; false means "not delivered" with no retry or
// queuing at this layer.
type Sender interface {
    Send(env transport.Envelope) bool
}

// HandlerFunc processes one inbound envelope. Handlers run on their own
// goroutine and are responsible for their own failure handling and, when
// relevant, for reporting an error payload back over rc.Send.
type HandlerFunc func(ctx context.Context, env transport.Envelope, rc *Context)

// Context carries the capabilities handlers may use: the live connection's
// send path and the shared world state store.
type Context struct {
    sender Sender
    store  *state.Store
    logger *log.Logger
}

// NewContext builds a handler context. store may be nil for handlers that do
// not touch world state.
func NewContext(sender Sender, store *state.Store, logger *log.Logger) *Context {
    if logger == nil { logger = log.Default() }
    return &Context{sender: sender, store: store, logger: logger}
}

// Send transmits an envelope over the live connection. See Sender.
func (c *Context) Send(env transport.Envelope) bool {
    if c.sender == nil {
        return false
    }
    return c.sender.Send(env)
}

// State returns the shared world state store (may be nil).
func (c *Context) State() *state.Store { return c.store }

// Logger returns the logger handlers should report through.
func (c *Context) Logger() *log.Logger { return c.logger }

// Table maps a message type to its registered handler. It is populated once
// at startup and read on every inbound frame; a later registration for the
// same type silently replaces the earlier one.
type Table struct {
    mu       sync.RWMutex
    handlers map[string]HandlerFunc
    logger   *log.Logger
}

// NewTable constructs an empty dispatch table.
func NewTable(logger *log.Logger) *Table {
    if logger == nil { logger = log.Default() }
    return &Table{handlers: make(map[string]HandlerFunc), logger: logger}
}

// Register installs the handler for a message type, replacing any earlier
// registration for the same type.
func (t *Table) Register(msgType string, h HandlerFunc) {
    if msgType == "" || h == nil {
        return
    }
    t.mu.Lock()
    t.handlers[msgType] = h
    t.mu.Unlock()
}

// Types returns the registered message types (for status/debugging).
func (t *Table) Types() []string {
    t.mu.RLock(); defer t.mu.RUnlock()
    out := make([]string, 0, len(t.handlers))
    for k := range t.handlers {
        out = append(out, k)
    }
    return out
}

// Dispatch routes one inbound envelope. The matching handler is launched on
// its own goroutine and not awaited, so dispatching never blocks the caller's
// read loop and concurrent handler executions are permitted. An envelope
// without a registered handler is dropped with a warning; that is not an
// error condition.
func (t *Table) Dispatch(ctx context.Context, env transport.Envelope, rc *Context) {
    t.mu.RLock()
    h, ok := t.handlers[env.Type]
    t.mu.RUnlock()
    if !ok {
        metrics.FramesDispatched.WithLabelValues("unroutable").Inc()
        logutil.Warnf(t.logger, "dispatch: no handler for message type %q, frame dropped", env.Type)
        return
    }
    metrics.FramesDispatched.WithLabelValues("dispatched").Inc()
    go t.invoke(ctx, h, env, rc)
}

// invoke shields the table and the connection from handler failures.
func (t *Table) invoke(ctx context.Context, h HandlerFunc, env transport.Envelope, rc *Context) {
    defer func() {
        if r := recover(); r != nil {
            logutil.Errorf(t.logger, "dispatch: handler for %q panicked: %v", env.Type, r)
        }
    }()
    ctx, end := tracing.StartSpan(ctx, "dispatch."+env.Type)
    defer end()
    h(ctx, env, rc)
}
