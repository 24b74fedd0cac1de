package relay

import (
    "context"
    "encoding/json"
    "sync"
    "time"

    "github.com/CePeU/foundryvtt-rest-api/pkg/dispatch"
    "github.com/CePeU/foundryvtt-rest-api/pkg/backoff"
    "github.com/CePeU/foundryvtt-rest-api/pkg/election"
    "github.com/CePeU/foundryvtt-rest-api/pkg/internal/logutil"
    obsmetrics "github.com/CePeU/foundryvtt-rest-api/pkg/observability/metrics"
    "github.com/CePeU/foundryvtt-rest-api/pkg/roster"
    "github.com/CePeU/foundryvtt-rest-api/pkg/transport"
)

const defaultConnectTimeout = 5 * time.Second

// Facade exposes the high-level API for hosts embedding the relay runtime.
type Facade interface {
    Start(ctx context.Context) error
    Connect() error
    Disconnect()
    Send(env transport.Envelope) bool
    IsConnected() bool
    State() ConnState
    Status(ctx context.Context) (*RelayStatus, error)
    Stop(ctx context.Context) error
}

// Manager is the concrete implementation of the Facade. It wires together the
// peer roster, election, the relay socket and the dispatch table to keep
// exactly one live connection per world owned by the elected peer.
//
// All lifecycle transitions happen under mu. Asynchronous work (dials, read
// loops, heartbeats, reconnect timers) is tagged with the generation counter
// at spawn time; a generation bump invalidates everything spawned before it,
// so late callbacks from a torn-down epoch are ignored.
type Manager struct {
    opts Options
    mu   sync.Mutex
    run  struct {
        started bool
        closed  bool
    }
    state   ConnState
    gen     uint64
    attempt int
    elected bool
    guarded bool
    sock    transport.Socket
    hbStop  chan struct{}
    retry   *time.Timer
    last    transport.CloseInfo
    ctx     context.Context
    cancel  context.CancelFunc
    disp    *dispatch.Table
    dctx    *dispatch.Context
    eb      eventBus
}

var _ Facade = (*Manager)(nil)
var _ dispatch.Sender = (*Manager)(nil)

// New constructs a Manager from validated options. It performs no network
// activity; call Start to launch the agent.
func New(opts Options) (*Manager, error) {
    if err := opts.Validate(); err != nil {
        return nil, err
    }
    m := &Manager{opts: opts, state: StateDisconnected}
    m.ctx, m.cancel = context.WithCancel(context.Background())
    m.disp = opts.Dispatch
    if m.disp == nil {
        m.disp = dispatch.NewTable(opts.Logger)
    }
    m.dctx = opts.HandlerCtx
    if m.dctx == nil {
        m.dctx = dispatch.NewContext(m, opts.HandlerState, opts.Logger)
    }
    return m, nil
}

// Close is a convenience alias for Stop with a background context.
func (m *Manager) Close() error {
    return m.Stop(context.Background())
}

// Start launches the roster source, the election loop and the management
// endpoint. The initial election verdict is applied immediately; the manager
// stays disconnected until this peer wins.
func (m *Manager) Start(ctx context.Context) error {
    m.mu.Lock()
    if m.run.started {
        m.mu.Unlock()
        return nil
    }
    m.run.started = true
    m.mu.Unlock()

    obsmetrics.Register()

    if r := m.opts.Roster; r != nil {
        if err := r.Start(ctx); err != nil {
            return err
        }
        go m.rosterEventsLoop(m.ctx, r)
        m.evaluate(r)
    }

    if m.opts.RPCServer != nil {
        statusFn := func(ctx context.Context) ([]byte, error) { return m.statusJSON(ctx) }
        connectFn := func(ctx context.Context, req transport.ConnectRequest) (transport.ConnectResponse, error) {
            if err := m.Connect(); err != nil {
                return transport.ConnectResponse{Accepted: false, Error: err.Error()}, nil
            }
            return transport.ConnectResponse{Accepted: true}, nil
        }
        disconnectFn := func(ctx context.Context, req transport.DisconnectRequest) (transport.DisconnectResponse, error) {
            m.Disconnect()
            return transport.DisconnectResponse{Accepted: true}, nil
        }
        sendFn := func(ctx context.Context, req transport.SendRequest) (transport.SendResponse, error) {
            env, err := transport.DecodeEnvelope(req.Envelope)
            if err != nil {
                return transport.SendResponse{Delivered: false, Error: err.Error()}, nil
            }
            return transport.SendResponse{Delivered: m.Send(env)}, nil
        }
        if err := m.opts.RPCServer.Start(ctx, statusFn, connectFn, disconnectFn, sendFn); err != nil {
            return err
        }
        logutil.Infof(m.opts.Logger, "management endpoint listening at %s (status/metrics/healthz)", m.opts.RPCServer.Addr())
    }
    return nil
}

func (m *Manager) rosterEventsLoop(ctx context.Context, r roster.Roster) {
    evch := r.Events()
    for {
        select {
        case <-ctx.Done():
            return
        case _, ok := <-evch:
            if !ok { return }
            m.evaluate(r)
        }
    }
}

func (m *Manager) evaluate(r roster.Roster) {
    peers := r.Peers()
    self := string(m.opts.ClientID)
    found := false
    for _, p := range peers {
        if p.ID == self { found = true; break }
    }
    if !found {
        peers = append(peers, r.Local())
    }
    m.applyElection(election.Evaluate(peers, self))
}

// RosterChanged applies a fresh roster snapshot pushed by the host. It is the
// single entry point for hosts that manage presence themselves instead of
// wiring a Roster source. The snapshot must include this peer when active.
func (m *Manager) RosterChanged(peers []roster.PeerInfo) {
    m.applyElection(election.Evaluate(peers, string(m.opts.ClientID)))
}

func (m *Manager) applyElection(elected bool) {
    m.mu.Lock()
    m.guarded = true
    if m.run.closed || elected == m.elected {
        m.mu.Unlock()
        return
    }
    m.elected = elected
    if elected {
        obsmetrics.Elected.Set(1)
        logutil.Infof(m.opts.Logger, "elected as relay owner: id=%s", m.opts.ClientID)
        m.eb.publish(Event{Type: EventElected, At: time.Now(), State: m.state})
        m.connectLocked()
        m.mu.Unlock()
        if m.opts.OnElected != nil { m.opts.OnElected() }
        return
    }
    obsmetrics.Elected.Set(0)
    logutil.Infof(m.opts.Logger, "lost relay ownership: id=%s", m.opts.ClientID)
    m.eb.publish(Event{Type: EventDemoted, At: time.Now(), State: m.state})
    m.teardownLocked(transport.CloseNormal, "ownership transferred")
    m.mu.Unlock()
    if m.opts.OnDemoted != nil { m.opts.OnDemoted() }
}

// Connect begins a connection attempt if one is not already in flight. It is
// idempotent while Connecting or Open. Once any election verdict has been
// applied (from a wired Roster or a RosterChanged push), Connect is refused
// while this peer is not elected; hosts that never feed a roster own the
// decision themselves.
func (m *Manager) Connect() error {
    m.mu.Lock()
    defer m.mu.Unlock()
    if m.run.closed {
        return ErrStopped
    }
    if m.guarded && !m.elected {
        return ErrNotElected
    }
    m.connectLocked()
    return nil
}

// connectLocked arms a dial unless a connection attempt or live socket
// already exists. Any pending reconnect timer is replaced by the immediate
// attempt.
func (m *Manager) connectLocked() {
    switch m.state {
    case StateConnecting, StateOpen:
        return
    }
    if m.retry != nil {
        m.retry.Stop()
        m.retry = nil
    }
    m.state = StateConnecting
    m.gen++
    g := m.gen
    m.eb.publish(Event{Type: EventConnecting, At: time.Now(), State: m.state, Attempt: m.attempt})
    go m.dial(g)
}

func (m *Manager) dial(g uint64) {
    timeout := m.opts.ConnectTimeout
    if timeout <= 0 { timeout = defaultConnectTimeout }
    ctx, cancel := context.WithTimeout(context.Background(), timeout)
    defer cancel()
    sock, err := m.opts.Dialer.Dial(ctx, m.opts.RelayURL, m.opts.Params)

    m.mu.Lock()
    defer m.mu.Unlock()
    if g != m.gen || m.run.closed {
        // A newer epoch superseded this dial while it was in flight.
        if sock != nil { _ = sock.Close(transport.CloseNormal, "superseded") }
        return
    }
    if err != nil {
        obsmetrics.ConnectAttempts.WithLabelValues("failure").Inc()
        logutil.Warnf(m.opts.Logger, "connect to %s failed: %v", m.opts.RelayURL, err)
        m.scheduleReconnectLocked()
        return
    }
    obsmetrics.ConnectAttempts.WithLabelValues("success").Inc()
    obsmetrics.ConnectionOpen.Set(1)
    m.state = StateOpen
    m.attempt = 0
    m.sock = sock
    m.hbStop = make(chan struct{})
    logutil.Infof(m.opts.Logger, "relay connection open: url=%s id=%s", m.opts.RelayURL, m.opts.ClientID)
    m.eb.publish(Event{Type: EventOpen, At: time.Now(), State: m.state})
    go m.readLoop(g, sock)
    go m.heartbeat(sock, m.hbStop)
}

// readLoop decodes and dispatches inbound frames until the socket's frame
// channel closes, then reports the closure to the state machine. Malformed
// frames are logged and dropped without reaching any handler.
func (m *Manager) readLoop(g uint64, sock transport.Socket) {
    for raw := range sock.Frames() {
        env, err := transport.DecodeEnvelope(raw)
        if err != nil {
            obsmetrics.FramesDispatched.WithLabelValues("malformed").Inc()
            logutil.Warnf(m.opts.Logger, "dropping malformed frame: %v", err)
            continue
        }
        m.disp.Dispatch(m.ctx, env, m.dctx)
    }
    m.socketClosed(g, sock.CloseInfo())
}

func (m *Manager) socketClosed(g uint64, info transport.CloseInfo) {
    m.mu.Lock()
    defer m.mu.Unlock()
    if g != m.gen {
        return
    }
    m.sock = nil
    if m.hbStop != nil {
        close(m.hbStop)
        m.hbStop = nil
    }
    m.last = info
    obsmetrics.ConnectionOpen.Set(0)
    m.eb.publish(Event{Type: EventClosed, At: time.Now(), State: m.state, CloseCode: info.Code, Reason: info.Reason})
    if m.run.closed || info.Normal() {
        logutil.Infof(m.opts.Logger, "relay connection closed: code=%d reason=%q", info.Code, info.Reason)
        m.state = StateDisconnected
        m.attempt = 0
        return
    }
    logutil.Warnf(m.opts.Logger, "relay connection lost: code=%d reason=%q", info.Code, info.Reason)
    m.scheduleReconnectLocked()
}

// scheduleReconnectLocked advances the attempt counter and either arms the
// next delayed dial or, when the ceiling is reached, resets and goes idle
// until the next explicit trigger (election flip or Connect call).
func (m *Manager) scheduleReconnectLocked() {
    m.attempt++
    pol := m.policy()
    if pol.Exhausted(m.attempt) {
        obsmetrics.RetriesExhausted.Inc()
        logutil.Warnf(m.opts.Logger, "maximum reconnect attempts reached (%d), giving up", pol.MaxAttempts)
        m.eb.publish(Event{Type: EventRetriesExhausted, At: time.Now(), State: StateDisconnected, Attempt: m.attempt})
        m.state = StateDisconnected
        m.attempt = 0
        return
    }
    delay := pol.Delay(m.attempt)
    m.state = StateReconnectScheduled
    obsmetrics.ReconnectsScheduled.Inc()
    logutil.Infof(m.opts.Logger, "reconnect attempt %d in %s", m.attempt, delay)
    m.eb.publish(Event{Type: EventReconnectScheduled, At: time.Now(), State: m.state, Attempt: m.attempt, Delay: delay})
    g := m.gen
    m.retry = time.AfterFunc(delay, func() {
        m.mu.Lock()
        defer m.mu.Unlock()
        if g != m.gen || m.state != StateReconnectScheduled || m.run.closed {
            return
        }
        m.connectLocked()
    })
}

// policy reads the backoff tuning fresh so configuration edits apply to the
// next scheduling decision.
func (m *Manager) policy() backoff.Policy {
    return backoff.Policy{
        Base:        m.opts.Settings.ReconnectBaseDelay(),
        Max:         m.opts.Settings.ReconnectMaxDelay(),
        MaxAttempts: m.opts.Settings.ReconnectMaxAttempts(),
    }
}

// heartbeat emits liveness frames for the life of one socket: one right away
// when the connection opens, then one per configured interval. The interval
// is re-read each cycle. A write failure ends the loop; the read loop notices
// the broken socket and drives the reconnect.
func (m *Manager) heartbeat(sock transport.Socket, stop chan struct{}) {
    frame, _ := json.Marshal(transport.Ping())
    // The first ping goes out immediately on open; the rest follow the
    // interval.
    if err := sock.Send(frame); err != nil {
        logutil.Warnf(m.opts.Logger, "heartbeat send failed: %v", err)
        return
    }
    obsmetrics.HeartbeatsSent.Inc()
    for {
        interval := m.opts.Settings.HeartbeatInterval()
        select {
        case <-stop:
            return
        case <-time.After(interval):
            if err := sock.Send(frame); err != nil {
                logutil.Warnf(m.opts.Logger, "heartbeat send failed: %v", err)
                return
            }
            obsmetrics.HeartbeatsSent.Inc()
        }
    }
}

// Send transmits one envelope over the live connection. It reports false when
// no open socket exists or the write fails; envelopes are never queued.
func (m *Manager) Send(env transport.Envelope) bool {
    m.mu.Lock()
    sock := m.sock
    open := m.state == StateOpen
    m.mu.Unlock()
    if !open || sock == nil {
        obsmetrics.SendFailures.Inc()
        return false
    }
    raw, err := json.Marshal(env)
    if err != nil {
        obsmetrics.SendFailures.Inc()
        logutil.Warnf(m.opts.Logger, "encode envelope type=%q failed: %v", env.Type, err)
        return false
    }
    if err := sock.Send(raw); err != nil {
        obsmetrics.SendFailures.Inc()
        logutil.Warnf(m.opts.Logger, "send envelope type=%q failed: %v", env.Type, err)
        return false
    }
    return true
}

// Disconnect closes the connection with a normal closure and cancels any
// pending reconnect. The manager stays idle until the next explicit trigger.
// Idempotent.
func (m *Manager) Disconnect() {
    m.mu.Lock()
    m.teardownLocked(transport.CloseNormal, "client disconnect")
    m.mu.Unlock()
}

// teardownLocked moves to Disconnected, bumping the generation so in-flight
// dials, timers and socket callbacks from the current epoch become stale.
func (m *Manager) teardownLocked(code int, reason string) {
    m.gen++
    if m.retry != nil {
        m.retry.Stop()
        m.retry = nil
    }
    if m.hbStop != nil {
        close(m.hbStop)
        m.hbStop = nil
    }
    if m.sock != nil {
        _ = m.sock.Close(code, reason)
        m.sock = nil
        m.last = transport.CloseInfo{Code: code, Reason: reason}
        obsmetrics.ConnectionOpen.Set(0)
        m.eb.publish(Event{Type: EventClosed, At: time.Now(), State: StateDisconnected, CloseCode: code, Reason: reason})
    }
    m.state = StateDisconnected
    m.attempt = 0
}

// IsConnected reports whether a live socket is currently open.
func (m *Manager) IsConnected() bool {
    m.mu.Lock()
    defer m.mu.Unlock()
    return m.state == StateOpen
}

// State returns the current lifecycle state.
func (m *Manager) State() ConnState {
    m.mu.Lock()
    defer m.mu.Unlock()
    return m.state
}

// Elected reports whether this peer currently owns the connection role.
func (m *Manager) Elected() bool {
    m.mu.Lock()
    defer m.mu.Unlock()
    return m.elected
}

// Status returns a snapshot of the manager for status endpoints and tooling.
func (m *Manager) Status(ctx context.Context) (*RelayStatus, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    return &RelayStatus{
        ClientID:        string(m.opts.ClientID),
        State:           m.state,
        Elected:         m.elected,
        RelayURL:        m.opts.RelayURL,
        Attempt:         m.attempt,
        LastCloseCode:   m.last.Code,
        LastCloseReason: m.last.Reason,
    }, nil
}

func (m *Manager) statusJSON(ctx context.Context) ([]byte, error) {
    st, err := m.Status(ctx)
    if err != nil { return nil, err }
    return json.Marshal(st)
}

// Stop gracefully shuts down the connection, the roster source and the
// management server.
func (m *Manager) Stop(ctx context.Context) error {
    m.mu.Lock()
    if m.run.closed {
        m.mu.Unlock()
        return nil
    }
    m.run.closed = true
    m.teardownLocked(transport.CloseGoAway, "shutting down")
    cancel := m.cancel
    m.mu.Unlock()
    if cancel != nil { cancel() }
    if r := m.opts.Roster; r != nil {
        _ = r.Stop()
    }
    if m.opts.RPCServer != nil {
        _ = m.opts.RPCServer.Stop(ctx)
    }
    return nil
}
