//go:build integration

package integration

import (
    "context"
    "encoding/json"
    "errors"
    "net/http"
    "net/http/httptest"
    "strings"
    "sync"
    "testing"
    "time"

    "github.com/gorilla/websocket"

    "github.com/CePeU/foundryvtt-rest-api/pkg/bootstrap"
    httpjson "github.com/CePeU/foundryvtt-rest-api/pkg/transport/httpjson"
)

var errNotYet = errors.New("not yet")

func waitUntil(t *testing.T, d time.Duration, fn func() error) {
    t.Helper()
    deadline := time.Now().Add(d)
    var last error
    for time.Now().Before(deadline) {
        if last = fn(); last == nil { return }
        time.Sleep(50 * time.Millisecond)
    }
    t.Fatalf("condition not met within %s: %v", d, last)
}

// relayConn is one accepted websocket session on the fake relay server.
type relayConn struct {
    ws     *websocket.Conn
    query  map[string]string
    frames chan []byte
}

func (c *relayConn) send(t *testing.T, payload string) {
    t.Helper()
    if err := c.ws.WriteMessage(websocket.TextMessage, []byte(payload)); err != nil {
        t.Fatalf("server send: %v", err)
    }
}

func (c *relayConn) drop(code int) {
    _ = c.ws.WriteControl(websocket.CloseMessage,
        websocket.FormatCloseMessage(code, "bye"), time.Now().Add(time.Second))
    _ = c.ws.Close()
}

// fakeRelay upgrades incoming requests and records every session so tests can
// count dials and exchange frames with the agent under test.
type fakeRelay struct {
    srv *httptest.Server

    mu    sync.Mutex
    conns []*relayConn
}

func newFakeRelay(t *testing.T) *fakeRelay {
    t.Helper()
    fr := &fakeRelay{}
    up := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
    fr.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        ws, err := up.Upgrade(w, r, nil)
        if err != nil { return }
        q := map[string]string{}
        for k, vs := range r.URL.Query() {
            if len(vs) > 0 { q[k] = vs[0] }
        }
        c := &relayConn{ws: ws, query: q, frames: make(chan []byte, 64)}
        fr.mu.Lock()
        fr.conns = append(fr.conns, c)
        fr.mu.Unlock()
        for {
            _, data, err := ws.ReadMessage()
            if err != nil { close(c.frames); return }
            c.frames <- data
        }
    }))
    t.Cleanup(fr.srv.Close)
    return fr
}

func (fr *fakeRelay) url() string { return "ws" + strings.TrimPrefix(fr.srv.URL, "http") }

func (fr *fakeRelay) dialCount() int {
    fr.mu.Lock()
    defer fr.mu.Unlock()
    return len(fr.conns)
}

func (fr *fakeRelay) conn(i int) *relayConn {
    fr.mu.Lock()
    defer fr.mu.Unlock()
    if i < 0 { i = len(fr.conns) + i }
    if i < 0 || i >= len(fr.conns) { return nil }
    return fr.conns[i]
}

// nextFrameOfType drains frames from the session until one with the wanted
// type arrives, skipping heartbeats.
func nextFrameOfType(t *testing.T, c *relayConn, typ string, d time.Duration) map[string]any {
    t.Helper()
    deadline := time.After(d)
    for {
        select {
        case data, ok := <-c.frames:
            if !ok { t.Fatalf("session closed while waiting for %q frame", typ) }
            var obj map[string]any
            if err := json.Unmarshal(data, &obj); err != nil { continue }
            if obj["type"] == typ { return obj }
        case <-deadline:
            t.Fatalf("no %q frame within %s", typ, d)
        }
    }
}

func startAgent(t *testing.T, ctx context.Context, cfg bootstrap.Config) *bootstrap.Agent {
    t.Helper()
    ag, err := bootstrap.Run(ctx, cfg)
    if err != nil { t.Fatalf("bootstrap %s: %v", cfg.ClientID, err) }
    t.Cleanup(func() { _ = ag.Manager.Close() })
    return ag
}

// agentStatus mirrors the JSON served by the management /status endpoint.
type agentStatus struct {
    ClientID string `json:"clientId"`
    State    string `json:"state"`
    Elected  bool   `json:"elected"`
    Attempt  int    `json:"attempt"`
}

func fetchStatus(ctx context.Context, cli *httpjson.Client, addr string) (agentStatus, error) {
    var s agentStatus
    data, err := cli.GetStatus(ctx, addr)
    if err != nil { return s, err }
    if err := json.Unmarshal(data, &s); err != nil { return s, err }
    return s, nil
}
