package main

import (
    "context"
    "flag"
    "fmt"
    "log"
    "os"
    "os/signal"
    "strings"
    "syscall"
    "time"

    "github.com/CePeU/foundryvtt-rest-api/pkg/election"
    base "github.com/CePeU/foundryvtt-rest-api/pkg/roster"
    ml "github.com/CePeU/foundryvtt-rest-api/pkg/roster/memberlist"
)

func main() {
    var (
        id        = flag.String("id", "peer-1", "peer id")
        role      = flag.String("role", "gamemaster", "privilege tier: player|trusted|assistant|gamemaster")
        bind      = flag.String("bind", ":7946", "bind host:port")
        advertise = flag.String("advertise", "", "advertise host:port (optional)")
        joinCSV   = flag.String("join", "", "comma-separated seeds (host:port)")
    )
    flag.Parse()

    ctx, cancel := signalContext()
    defer cancel()

    r, err := ml.New(ml.Options{PeerID: *id, Role: base.ParseRole(*role), Bind: *bind, Advertise: *advertise, Logger: log.Default()})
    if err != nil { log.Fatal(err) }
    if err := r.Start(ctx); err != nil { log.Fatal(err) }

    if *joinCSV != "" {
        seeds := splitCSV(*joinCSV)
        if j, ok := r.(interface{ Join(seeds []string) error }); ok {
            if err := j.Join(seeds); err != nil { log.Printf("join error: %v", err) }
        }
    }

    fmt.Println("rosterdemo started. Press Ctrl+C to exit.")
    go func(evch <-chan base.Event) {
        for e := range evch {
            winner, _ := election.Winner(r.Peers())
            fmt.Printf("event: %-6s id=%s role=%s owner=%s at=%s\n",
                e.Type, e.Peer.ID, e.Peer.Role, winner, e.At.Format(time.RFC3339))
        }
    }(r.Events())

    <-ctx.Done()
    _ = r.Stop()
}

func splitCSV(s string) []string {
    if s == "" { return nil }
    parts := strings.Split(s, ",")
    out := make([]string, 0, len(parts))
    for _, p := range parts { p = strings.TrimSpace(p); if p != "" { out = append(out, p) } }
    return out
}

func signalContext() (context.Context, context.CancelFunc) {
    ctx, cancel := context.WithCancel(context.Background())
    go func() {
        ch := make(chan os.Signal, 1)
        signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
        <-ch
        cancel()
    }()
    return ctx, cancel
}
