//go:build integration

package integration

import (
    "context"
    "encoding/json"
    "testing"
    "time"

    "github.com/CePeU/foundryvtt-rest-api/pkg/bootstrap"
    "github.com/CePeU/foundryvtt-rest-api/pkg/transport"
    httpjson "github.com/CePeU/foundryvtt-rest-api/pkg/transport/httpjson"
)

func TestManagementSendAndDispatchRoundTrip(t *testing.T) {
    ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
    defer cancel()

    fr := newFakeRelay(t)
    startAgent(t, ctx, bootstrap.Config{
        ClientID: "gm-mgmt", Role: "gamemaster", RelayURL: fr.url(), Token: "tkn",
        RosterKind: "static", MgmtAddr: "127.0.0.1:18930",
    })

    waitUntil(t, 10*time.Second, func() error {
        if fr.dialCount() < 1 { return errNotYet }
        return nil
    })
    sess := fr.conn(0)

    // Outbound: an envelope posted to the management API reaches the server.
    cli := httpjson.NewClient(3 * time.Second)
    resp, err := cli.PostSend(ctx, "127.0.0.1:18930",
        transport.SendRequest{Envelope: json.RawMessage(`{"type":"custom-note","text":"hi"}`)})
    if err != nil { t.Fatalf("send: %v", err) }
    if !resp.Delivered { t.Fatalf("send not delivered: %s", resp.Error) }
    frame := nextFrameOfType(t, sess, "custom-note", 5*time.Second)
    if frame["text"] != "hi" { t.Fatalf("frame text = %v, want hi", frame["text"]) }

    // Inbound: a request frame from the server is routed to its handler and
    // answered on the same session with the correlation id echoed back.
    sess.send(t, `{"type":"world-request","requestId":"req-1"}`)
    reply := nextFrameOfType(t, sess, "world-response", 5*time.Second)
    if reply["requestId"] != "req-1" { t.Fatalf("requestId = %v, want req-1", reply["requestId"]) }
}

func TestManagementDisconnectAndReconnect(t *testing.T) {
    ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
    defer cancel()

    fr := newFakeRelay(t)
    startAgent(t, ctx, bootstrap.Config{
        ClientID: "gm-ctl", Role: "gamemaster", RelayURL: fr.url(), Token: "tkn",
        RosterKind: "static", MgmtAddr: "127.0.0.1:18931",
    })

    cli := httpjson.NewClient(3 * time.Second)
    waitUntil(t, 10*time.Second, func() error {
        s, err := fetchStatus(ctx, cli, "127.0.0.1:18931")
        if err != nil { return err }
        if s.State != "open" { return errNotYet }
        return nil
    })

    if _, err := cli.PostDisconnect(ctx, "127.0.0.1:18931", transport.DisconnectRequest{}); err != nil {
        t.Fatalf("disconnect: %v", err)
    }
    waitUntil(t, 10*time.Second, func() error {
        s, err := fetchStatus(ctx, cli, "127.0.0.1:18931")
        if err != nil { return err }
        if s.State != "disconnected" { return errNotYet }
        return nil
    })
    dials := fr.dialCount()

    // An operator-initiated connect brings the link back up.
    cresp, err := cli.PostConnect(ctx, "127.0.0.1:18931", transport.ConnectRequest{})
    if err != nil { t.Fatalf("connect: %v", err) }
    if !cresp.Accepted { t.Fatalf("connect rejected: %s", cresp.Error) }
    waitUntil(t, 10*time.Second, func() error {
        s, err := fetchStatus(ctx, cli, "127.0.0.1:18931")
        if err != nil { return err }
        if s.State != "open" { return errNotYet }
        return nil
    })
    if got := fr.dialCount(); got != dials+1 { t.Fatalf("relay saw %d sessions, want %d", got, dials+1) }
}
