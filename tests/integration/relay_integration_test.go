//go:build integration

package integration

import (
    "context"
    "testing"
    "time"

    "github.com/CePeU/foundryvtt-rest-api/pkg/bootstrap"
    httpjson "github.com/CePeU/foundryvtt-rest-api/pkg/transport/httpjson"
)

func TestElectedPeerOwnsRelayLink(t *testing.T) {
    ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
    defer cancel()

    fr := newFakeRelay(t)
    peers := "gm-a=gamemaster,gm-b=gamemaster"

    startAgent(t, ctx, bootstrap.Config{
        ClientID: "gm-a", Role: "gamemaster", RelayURL: fr.url(), Token: "tkn",
        RosterKind: "static", PeersCSV: peers, MgmtAddr: "127.0.0.1:18920",
    })
    startAgent(t, ctx, bootstrap.Config{
        ClientID: "gm-b", Role: "gamemaster", RelayURL: fr.url(), Token: "tkn",
        RosterKind: "static", PeersCSV: peers, MgmtAddr: "127.0.0.1:18921",
    })

    cli := httpjson.NewClient(3 * time.Second)
    waitUntil(t, 10*time.Second, func() error {
        s, err := fetchStatus(ctx, cli, "127.0.0.1:18920")
        if err != nil { return err }
        if !s.Elected || s.State != "open" { return errNotYet }
        return nil
    })

    // The lower ID wins among equal roles; the other peer must stay idle.
    sb, err := fetchStatus(ctx, cli, "127.0.0.1:18921")
    if err != nil { t.Fatalf("status gm-b: %v", err) }
    if sb.Elected { t.Fatalf("gm-b unexpectedly elected") }
    if sb.State != "disconnected" { t.Fatalf("gm-b state = %s, want disconnected", sb.State) }
    if got := fr.dialCount(); got != 1 { t.Fatalf("relay saw %d sessions, want 1", got) }

    // Connection parameters travel as query values.
    c := fr.conn(0)
    if c.query["id"] != "gm-a" { t.Fatalf("session id = %q, want gm-a", c.query["id"]) }
    if c.query["token"] != "tkn" { t.Fatalf("session token = %q, want tkn", c.query["token"]) }
}

func TestServerDropTriggersReconnect(t *testing.T) {
    ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
    defer cancel()

    t.Setenv("FOUNDRY_RELAY_RELAY_RECONNECT_BASE_DELAY", "20")
    t.Setenv("FOUNDRY_RELAY_RELAY_RECONNECT_MAX_DELAY", "100")

    fr := newFakeRelay(t)
    startAgent(t, ctx, bootstrap.Config{
        ClientID: "gm-solo", Role: "gamemaster", RelayURL: fr.url(), Token: "tkn",
        RosterKind: "static", MgmtAddr: "127.0.0.1:18922",
    })

    waitUntil(t, 10*time.Second, func() error {
        if fr.dialCount() < 1 { return errNotYet }
        return nil
    })

    // Abnormal server-side drop must be followed by a fresh dial.
    fr.conn(0).drop(1011)
    waitUntil(t, 10*time.Second, func() error {
        if fr.dialCount() < 2 { return errNotYet }
        return nil
    })

    cli := httpjson.NewClient(3 * time.Second)
    waitUntil(t, 10*time.Second, func() error {
        s, err := fetchStatus(ctx, cli, "127.0.0.1:18922")
        if err != nil { return err }
        if s.State != "open" || s.Attempt != 0 { return errNotYet }
        return nil
    })
}

func TestNormalServerCloseStaysIdle(t *testing.T) {
    ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
    defer cancel()

    fr := newFakeRelay(t)
    startAgent(t, ctx, bootstrap.Config{
        ClientID: "gm-idle", Role: "gamemaster", RelayURL: fr.url(), Token: "tkn",
        RosterKind: "static", MgmtAddr: "127.0.0.1:18923",
    })

    waitUntil(t, 10*time.Second, func() error {
        if fr.dialCount() < 1 { return errNotYet }
        return nil
    })

    fr.conn(0).drop(1000)

    cli := httpjson.NewClient(3 * time.Second)
    waitUntil(t, 10*time.Second, func() error {
        s, err := fetchStatus(ctx, cli, "127.0.0.1:18923")
        if err != nil { return err }
        if s.State != "disconnected" { return errNotYet }
        return nil
    })
    // Give any stray reconnect a chance to fire before counting sessions.
    time.Sleep(300 * time.Millisecond)
    if got := fr.dialCount(); got != 1 { t.Fatalf("relay saw %d sessions after normal close, want 1", got) }
}
