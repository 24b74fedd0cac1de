package memberlist

import (
    "context"
    "log"
    "net"
    "strconv"
    "testing"
    "time"

    base "github.com/CePeU/foundryvtt-rest-api/pkg/roster"
)

func freePort(t *testing.T) int {
    t.Helper()
    a, err := net.ListenPacket("udp", "127.0.0.1:0")
    if err != nil { t.Fatalf("freePort: %v", err) }
    defer a.Close()
    udpAddr := a.LocalAddr().(*net.UDPAddr)
    return udpAddr.Port
}

func TestMemberlist_StartLocal(t *testing.T) {
    p := freePort(t)
    addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(p))
    r, err := New(Options{PeerID: "p1", Role: base.RoleGamemaster, Bind: addr, Advertise: addr, Logger: log.Default(), ProbeInterval: 100 * time.Millisecond})
    if err != nil { t.Fatalf("new: %v", err) }
    ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
    defer cancel()
    if err := r.Start(ctx); err != nil { t.Fatalf("start: %v", err) }
    defer r.Stop()

    local := r.Local()
    if local.ID != "p1" { t.Fatalf("local id = %q, want p1", local.ID) }
    if local.Role != base.RoleGamemaster { t.Fatalf("local role = %s, want gamemaster", local.Role) }
    if !local.Active { t.Fatalf("local peer not active") }

    if hr, ok := r.(base.HealthReporter); ok {
        if s := hr.HealthScore(); s < 0 { t.Fatalf("unexpected health score after start: %d", s) }
    } else {
        t.Fatalf("impl does not implement HealthReporter")
    }
}

func TestMemberlist_HealthScoreBeforeStart(t *testing.T) {
    r, err := New(Options{PeerID: "p1", Bind: "127.0.0.1:0"})
    if err != nil { t.Fatalf("new: %v", err) }
    hr, ok := r.(base.HealthReporter)
    if !ok { t.Fatalf("impl does not implement HealthReporter") }
    if s := hr.HealthScore(); s != -1 { t.Fatalf("health score before start = %d, want -1", s) }
}

func TestMemberlist_MultiPeerJoinLeave(t *testing.T) {
    ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
    defer cancel()

    // Start first peer with random port
    n1, addr1 := startPeer(t, ctx, "n1")
    defer n1.Stop()

    // Start second and third peers and join to first
    n2, _ := startPeer(t, ctx, "n2")
    defer n2.Stop()
    if err := n2.Join([]string{addr1}); err != nil { t.Fatalf("n2 join: %v", err) }

    n3, _ := startPeer(t, ctx, "n3")
    defer n3.Stop()
    if err := n3.Join([]string{addr1}); err != nil { t.Fatalf("n3 join: %v", err) }

    // Await convergence to 3 peers on each node
    awaitPeers(t, n1, 3, 5*time.Second)
    awaitPeers(t, n2, 3, 5*time.Second)
    awaitPeers(t, n3, 3, 5*time.Second)

    // Now stop n2 (leave + shutdown) and ensure others see 2 peers
    _ = n2.Stop()

    awaitPeers(t, n1, 2, 5*time.Second)
    awaitPeers(t, n3, 2, 5*time.Second)
}

func startPeer(t *testing.T, ctx context.Context, id string) (*impl, string) {
    t.Helper()
    r, err := New(Options{PeerID: id, Role: base.RolePlayer, Bind: "127.0.0.1:0", Logger: log.Default(), ProbeInterval: 100 * time.Millisecond, SuspicionMult: 2})
    if err != nil { t.Fatalf("new %s: %v", id, err) }
    if err := r.Start(ctx); err != nil { t.Fatalf("start %s: %v", id, err) }
    m := r.(*impl)
    // Determine the real address after start
    addr := m.ml.LocalNode().Address()
    if addr == "" { t.Fatalf("local addr empty for %s", id) }
    return m, addr
}

func awaitPeers(t *testing.T, r base.Roster, want int, timeout time.Duration) {
    t.Helper()
    deadline := time.Now().Add(timeout)
    for {
        got := r.Peers()
        if len(got) == want { return }
        if time.Now().After(deadline) {
            t.Fatalf("peers timeout: got=%d want=%d list=%v", len(got), want, got)
        }
        time.Sleep(100 * time.Millisecond)
    }
}
