package memberlist

import (
    "context"
    "encoding/json"
    "fmt"
    "log"
    "net"
    "sync"
    "time"

    base "github.com/CePeU/foundryvtt-rest-api/pkg/roster"
    "github.com/hashicorp/memberlist"
)

// metaRoleKey is the node-meta key carrying the peer's privilege tier.
const metaRoleKey = "role"

// Options configures the memberlist-based roster implementation. It suits
// deployments where the peer processes discover each other by gossip instead
// of receiving join/leave callbacks from a hosting environment.
type Options struct {
    // PeerID is the stable unique identifier of the local peer.
    PeerID string

    // Role is the privilege tier advertised to other peers.
    Role base.Role

    // Bind is the bind address in host:port form (e.g. ":7946").
    Bind string

    // Advertise is the advertised address (host:port) that peers will use to
    // reach this node. If empty, memberlist derives it from Bind.
    Advertise string

    // Meta is optional metadata gossiped with the node (e.g. display name).
    Meta map[string]string

    // Logger is optional. If nil, log.Default() is used.
    Logger *log.Logger

    // Tuning parameters (optional). Zero means use defaults.
    ProbeInterval time.Duration
    ProbeTimeout  time.Duration
    SuspicionMult int
}

// impl implements roster.Roster using HashiCorp memberlist. A gossiped node
// that is alive is considered an active peer; failure detection therefore
// doubles as the peer activity signal.
type impl struct {
    mu     sync.RWMutex
    opts   Options
    ml     *memberlist.Memberlist
    evts   chan base.Event
    closed bool
}

// New constructs a memberlist-backed roster.
func New(opts Options) (base.Roster, error) {
    if opts.PeerID == "" {
        return nil, fmt.Errorf("memberlist: empty PeerID")
    }
    if opts.Bind == "" {
        return nil, fmt.Errorf("memberlist: empty Bind address")
    }
    if opts.Role == 0 {
        opts.Role = base.RolePlayer
    }
    if opts.Logger == nil {
        opts.Logger = log.Default()
    }
    return &impl{
        opts: opts,
        evts: make(chan base.Event, 64),
    }, nil
}

// Start creates and launches the underlying memberlist instance.
func (m *impl) Start(ctx context.Context) error {
    m.mu.Lock()
    defer m.mu.Unlock()
    if m.ml != nil {
        return nil
    }

    cfg := memberlist.DefaultLANConfig()
    cfg.Name = m.opts.PeerID
    host, port, err := splitHostPort(m.opts.Bind)
    if err != nil {
        return fmt.Errorf("memberlist: invalid bind address %q: %w", m.opts.Bind, err)
    }
    cfg.BindAddr = host
    cfg.BindPort = port

    if m.opts.Advertise != "" {
        ahost, aport, err := splitHostPort(m.opts.Advertise)
        if err != nil {
            return fmt.Errorf("memberlist: invalid advertise address %q: %w", m.opts.Advertise, err)
        }
        cfg.AdvertiseAddr = ahost
        cfg.AdvertisePort = aport
    }

    if m.opts.ProbeInterval > 0 {
        cfg.ProbeInterval = m.opts.ProbeInterval
    }
    if m.opts.ProbeTimeout > 0 {
        cfg.ProbeTimeout = m.opts.ProbeTimeout
    }
    if m.opts.SuspicionMult > 0 {
        cfg.SuspicionMult = m.opts.SuspicionMult
    }

    // Wire delegates: peer events and role/meta propagation.
    cfg.Events = &eventDelegate{emit: m.emit}
    meta := make(map[string]string, len(m.opts.Meta)+1)
    for k, v := range m.opts.Meta {
        meta[k] = v
    }
    meta[metaRoleKey] = m.opts.Role.String()
    metaBytes, _ := json.Marshal(meta)
    cfg.Delegate = &nodeDelegate{meta: metaBytes}

    ml, err := memberlist.Create(cfg)
    if err != nil {
        return err
    }
    m.ml = ml

    // Close the events channel when the context ends.
    go func() {
        <-ctx.Done()
        _ = m.Stop()
    }()

    return nil
}

// Join contacts the given seed addresses to merge gossip state. It is not part
// of the roster.Roster interface; callers that know seeds invoke it after Start.
func (m *impl) Join(seeds []string) error {
    m.mu.RLock()
    ml := m.ml
    m.mu.RUnlock()
    if ml == nil {
        return fmt.Errorf("memberlist: not started")
    }
    if len(seeds) == 0 {
        return nil
    }
    _, err := ml.Join(seeds)
    return err
}

func (m *impl) Local() base.PeerInfo {
    m.mu.RLock()
    defer m.mu.RUnlock()
    if m.ml == nil {
        return base.PeerInfo{ID: m.opts.PeerID, Role: m.opts.Role}
    }
    return peerFromNode(m.ml.LocalNode())
}

func (m *impl) Peers() []base.PeerInfo {
    m.mu.RLock()
    defer m.mu.RUnlock()
    if m.ml == nil {
        return nil
    }
    nodes := m.ml.Members()
    out := make([]base.PeerInfo, 0, len(nodes))
    for _, n := range nodes {
        out = append(out, peerFromNode(n))
    }
    return out
}

func (m *impl) Events() <-chan base.Event { return m.evts }

func (m *impl) Stop() error {
    m.mu.Lock()
    defer m.mu.Unlock()
    if m.closed {
        return nil
    }
    m.closed = true
    if m.ml != nil {
        _ = m.ml.Leave(time.Second)
        _ = m.ml.Shutdown()
        m.ml = nil
    }
    close(m.evts)
    return nil
}

// HealthScore exposes memberlist's awareness score if available.
// Implements roster.HealthReporter.
func (m *impl) HealthScore() int {
    m.mu.RLock()
    defer m.mu.RUnlock()
    if m.ml == nil {
        return -1
    }
    return m.ml.GetHealthScore()
}

func (m *impl) emit(e base.Event) {
    defer func() { recover() }()
    select {
    case m.evts <- e:
    default:
        // drop if channel is full to avoid blocking memberlist internals
        if m.opts.Logger != nil {
            m.opts.Logger.Printf("memberlist: dropping roster event %v: channel full", e.Type)
        }
    }
}

func peerFromNode(n *memberlist.Node) base.PeerInfo {
    meta := map[string]string{}
    if len(n.Meta) > 0 {
        _ = json.Unmarshal(n.Meta, &meta)
    }
    role := base.ParseRole(meta[metaRoleKey])
    if role == 0 {
        role = base.RolePlayer
    }
    delete(meta, metaRoleKey)
    // A node memberlist still gossips about is an active peer by definition.
    return base.PeerInfo{ID: n.Name, Role: role, Active: true, Meta: meta}
}

// eventDelegate adapts memberlist events to roster events.
type eventDelegate struct {
    emit func(e base.Event)
}

func (d *eventDelegate) NotifyJoin(n *memberlist.Node) {
    if d.emit == nil || n == nil { return }
    d.emit(base.Event{Type: base.EventJoin, Peer: peerFromNode(n), At: time.Now()})
}

func (d *eventDelegate) NotifyLeave(n *memberlist.Node) {
    if d.emit == nil || n == nil { return }
    // memberlist conflates explicit leave and failure/timeouts; both mean the
    // peer is no longer active for election purposes.
    p := peerFromNode(n)
    p.Active = false
    d.emit(base.Event{Type: base.EventLeave, Peer: p, At: time.Now()})
}

func (d *eventDelegate) NotifyUpdate(n *memberlist.Node) {
    if d.emit == nil || n == nil { return }
    d.emit(base.Event{Type: base.EventUpdate, Peer: peerFromNode(n), At: time.Now()})
}

// nodeDelegate implements memberlist.Delegate to propagate node metadata
// (role, display name) with the gossip alive message.
type nodeDelegate struct{ meta []byte }

// NodeMeta returns the local node metadata, truncated to the gossip limit.
func (d *nodeDelegate) NodeMeta(limit int) []byte {
    if len(d.meta) <= limit { return d.meta }
    if limit <= 0 { return nil }
    return d.meta[:limit]
}

// Unused hooks for our purposes; required to satisfy the interface.
func (d *nodeDelegate) NotifyMsg([]byte)                       {}
func (d *nodeDelegate) GetBroadcasts(int, int) [][]byte        { return nil }
func (d *nodeDelegate) LocalState(join bool) []byte            { return nil }
func (d *nodeDelegate) MergeRemoteState(buf []byte, join bool) {}

func splitHostPort(addr string) (string, int, error) {
    host, portStr, err := net.SplitHostPort(addr)
    if err != nil {
        return "", 0, err
    }
    var p int
    if _, err := fmt.Sscanf(portStr, "%d", &p); err != nil || p < 0 || p > 65535 {
        return "", 0, fmt.Errorf("invalid port: %q", portStr)
    }
    return host, p, nil
}
