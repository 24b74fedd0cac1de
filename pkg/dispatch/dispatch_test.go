package dispatch

import (
    "bytes"
    "context"
    "log"
    "strings"
    "sync"
    "sync/atomic"
    "testing"
    "time"

    "github.com/CePeU/foundryvtt-rest-api/pkg/transport"
)

type recordingSender struct {
    mu   sync.Mutex
    sent []transport.Envelope
    ok   bool
}

func (s *recordingSender) Send(env transport.Envelope) bool {
    s.mu.Lock()
    defer s.mu.Unlock()
    s.sent = append(s.sent, env)
    return s.ok
}

func (s *recordingSender) count() int {
    s.mu.Lock()
    defer s.mu.Unlock()
    return len(s.sent)
}

func waitFor(t *testing.T, cond func() bool) {
    t.Helper()
    deadline := time.Now().Add(2 * time.Second)
    for time.Now().Before(deadline) {
        if cond() {
            return
        }
        time.Sleep(5 * time.Millisecond)
    }
    t.Fatalf("timeout waiting for condition")
}

func TestDispatchRoutesByType(t *testing.T) {
    table := NewTable(nil)
    var world, roll int32
    table.Register("world-request", func(ctx context.Context, env transport.Envelope, rc *Context) {
        atomic.AddInt32(&world, 1)
    })
    table.Register("roll-request", func(ctx context.Context, env transport.Envelope, rc *Context) {
        atomic.AddInt32(&roll, 1)
    })
    rc := NewContext(nil, nil, nil)
    table.Dispatch(context.Background(), transport.Envelope{Type: "world-request"}, rc)
    table.Dispatch(context.Background(), transport.Envelope{Type: "world-request"}, rc)
    table.Dispatch(context.Background(), transport.Envelope{Type: "roll-request"}, rc)
    waitFor(t, func() bool {
        return atomic.LoadInt32(&world) == 2 && atomic.LoadInt32(&roll) == 1
    })
}

func TestUnroutableFrameIsDroppedWithWarning(t *testing.T) {
    var buf bytes.Buffer
    table := NewTable(log.New(&buf, "", 0))
    table.Register("known", func(ctx context.Context, env transport.Envelope, rc *Context) {})
    table.Dispatch(context.Background(), transport.Envelope{Type: "roll-data-ack"}, NewContext(nil, nil, nil))
    if !strings.Contains(buf.String(), "roll-data-ack") {
        t.Fatalf("expected a warning naming the unroutable type, got: %s", buf.String())
    }
}

func TestReRegisterReplacesHandler(t *testing.T) {
    table := NewTable(nil)
    var first, second int32
    table.Register("ping", func(ctx context.Context, env transport.Envelope, rc *Context) {
        atomic.AddInt32(&first, 1)
    })
    table.Register("ping", func(ctx context.Context, env transport.Envelope, rc *Context) {
        atomic.AddInt32(&second, 1)
    })
    table.Dispatch(context.Background(), transport.Ping(), NewContext(nil, nil, nil))
    waitFor(t, func() bool { return atomic.LoadInt32(&second) == 1 })
    if atomic.LoadInt32(&first) != 0 {
        t.Fatalf("replaced handler still ran")
    }
    if got := len(table.Types()); got != 1 {
        t.Fatalf("types = %d, want 1", got)
    }
}

func TestHandlerPanicIsContained(t *testing.T) {
    var buf bytes.Buffer
    table := NewTable(log.New(&buf, "", 0))
    var after int32
    table.Register("boom", func(ctx context.Context, env transport.Envelope, rc *Context) {
        panic("handler bug")
    })
    table.Register("ok", func(ctx context.Context, env transport.Envelope, rc *Context) {
        atomic.AddInt32(&after, 1)
    })
    rc := NewContext(nil, nil, nil)
    table.Dispatch(context.Background(), transport.Envelope{Type: "boom"}, rc)
    table.Dispatch(context.Background(), transport.Envelope{Type: "ok"}, rc)
    waitFor(t, func() bool { return atomic.LoadInt32(&after) == 1 })
    waitFor(t, func() bool { return strings.Contains(buf.String(), "panicked") })
}

func TestContextSendUsesBoundSender(t *testing.T) {
    sender := &recordingSender{ok: true}
    rc := NewContext(sender, nil, nil)
    if !rc.Send(transport.Envelope{Type: "world-response"}) {
        t.Fatalf("send reported dropped")
    }
    if sender.count() != 1 {
        t.Fatalf("sent = %d, want 1", sender.count())
    }
    // No sender bound: deliveries report false instead of panicking.
    unbound := NewContext(nil, nil, nil)
    if unbound.Send(transport.Envelope{Type: "world-response"}) {
        t.Fatalf("send without sender reported delivered")
    }
}
