package grpc

import (
    "context"
    "sync"
    "time"

    "google.golang.org/grpc"

    obsmetrics "github.com/CePeU/foundryvtt-rest-api/pkg/observability/metrics"
)

// ConnManager keeps one gRPC client connection per management address alive
// across calls. Tooling like the events subscriber and repeated status polls
// would otherwise re-dial for every request; idle connections are swept once
// they age past the TTL with no holders.
type ConnManager struct {
    ttl    time.Duration
    dialer func(ctx context.Context, target string) (*grpc.ClientConn, error)

    mu    sync.Mutex
    conns map[string]*pooledConn
    done  chan struct{}
}

type pooledConn struct {
    cc     *grpc.ClientConn
    idleAt time.Time
    holds  int
}

// NewConnManager creates a manager with the given idle TTL and dialer. A
// non-positive TTL defaults to 30s.
func NewConnManager(ttl time.Duration, dialer func(ctx context.Context, target string) (*grpc.ClientConn, error)) *ConnManager {
    if ttl <= 0 { ttl = 30 * time.Second }
    m := &ConnManager{
        ttl:    ttl,
        dialer: dialer,
        conns:  make(map[string]*pooledConn),
        done:   make(chan struct{}),
    }
    go m.sweep()
    return m
}

// Get returns a connection for target plus a release func the caller must
// invoke when finished with it.
func (m *ConnManager) Get(ctx context.Context, target string) (*grpc.ClientConn, func(), error) {
    m.mu.Lock()
    if pc := m.conns[target]; pc != nil {
        pc.holds++
        pc.idleAt = time.Now()
        cc := pc.cc
        m.mu.Unlock()
        obsmetrics.GRPCConnReuse.Inc()
        return cc, func() { m.put(target) }, nil
    }
    m.mu.Unlock()

    // Dial without holding the lock; slow handshakes must not block other
    // targets.
    cc, err := m.dialer(ctx, target)
    if err != nil {
        return nil, func() {}, err
    }

    m.mu.Lock()
    defer m.mu.Unlock()
    if pc := m.conns[target]; pc != nil {
        // Lost the race with a concurrent dial to the same target.
        _ = cc.Close()
        pc.holds++
        pc.idleAt = time.Now()
        obsmetrics.GRPCConnReuse.Inc()
        return pc.cc, func() { m.put(target) }, nil
    }
    m.conns[target] = &pooledConn{cc: cc, idleAt: time.Now(), holds: 1}
    obsmetrics.GRPCConnDials.Inc()
    obsmetrics.GRPCConnActive.Inc()
    return cc, func() { m.put(target) }, nil
}

func (m *ConnManager) put(target string) {
    m.mu.Lock()
    if pc := m.conns[target]; pc != nil {
        if pc.holds > 0 { pc.holds-- }
        pc.idleAt = time.Now()
    }
    m.mu.Unlock()
}

// Close tears down every cached connection and stops the sweeper.
func (m *ConnManager) Close() {
    close(m.done)
    m.mu.Lock()
    for target, pc := range m.conns {
        _ = pc.cc.Close()
        delete(m.conns, target)
    }
    m.mu.Unlock()
}

func (m *ConnManager) sweep() {
    ticker := time.NewTicker(m.ttl / 2)
    defer ticker.Stop()
    for {
        select {
        case <-m.done:
            return
        case now := <-ticker.C:
            m.mu.Lock()
            for target, pc := range m.conns {
                if pc.holds == 0 && now.Sub(pc.idleAt) > m.ttl {
                    _ = pc.cc.Close()
                    delete(m.conns, target)
                    obsmetrics.GRPCConnEvictions.Inc()
                    obsmetrics.GRPCConnActive.Dec()
                }
            }
            m.mu.Unlock()
        }
    }
}
