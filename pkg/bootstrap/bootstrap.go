package bootstrap

import (
    "context"
    "encoding/json"
    "errors"
    "log"
    "strings"

    "crypto/tls"

    "github.com/CePeU/foundryvtt-rest-api/pkg/config"
    "github.com/CePeU/foundryvtt-rest-api/pkg/discovery"
    seeddns "github.com/CePeU/foundryvtt-rest-api/pkg/discovery/dns"
    seedfile "github.com/CePeU/foundryvtt-rest-api/pkg/discovery/file"
    seedstatic "github.com/CePeU/foundryvtt-rest-api/pkg/discovery/static"
    "github.com/CePeU/foundryvtt-rest-api/pkg/dispatch"
    "github.com/CePeU/foundryvtt-rest-api/pkg/handlers"
    "github.com/CePeU/foundryvtt-rest-api/pkg/relay"
    "github.com/CePeU/foundryvtt-rest-api/pkg/roster"
    rosterml "github.com/CePeU/foundryvtt-rest-api/pkg/roster/memberlist"
    rosterstatic "github.com/CePeU/foundryvtt-rest-api/pkg/roster/static"
    tlsx "github.com/CePeU/foundryvtt-rest-api/pkg/security/tlsconfig"
    "github.com/CePeU/foundryvtt-rest-api/pkg/state"
    "github.com/CePeU/foundryvtt-rest-api/pkg/transport"
    mgmtgrpc "github.com/CePeU/foundryvtt-rest-api/pkg/transport/grpc"
    httpjson "github.com/CePeU/foundryvtt-rest-api/pkg/transport/httpjson"
    "github.com/CePeU/foundryvtt-rest-api/pkg/transport/ws"
)

// Config defines high-level inputs to assemble a relay agent with sensible
// defaults. Applications embed the agent by providing this structure and
// calling Build/Run.
type Config struct {
    // Identity
    ClientID string
    Role     string // player|trusted|assistant|gamemaster (default gamemaster)

    // Relay endpoint. Values given here override the settings file.
    RelayURL string
    Token    string

    // Settings file (YAML, optional). Environment variables with the
    // FOUNDRY_RELAY_ prefix override both file and defaults.
    ConfigFile string

    // Roster settings
    RosterKind string // "static" (default) or "memberlist"
    PeersCSV   string // static: "id=role,..." seed list
    MemBind    string // memberlist bind host:port
    MemAdv     string // memberlist advertise host:port
    SeedsCSV   string // memberlist gossip seeds "host:port,..."
    SeedsDNS   string // memberlist seeds from DNS names (SRV or A/AAAA), comma-separated
    SeedsFile  string // memberlist seeds from a file or glob, one per line

    // Management API (status/connect/disconnect/send/metrics)
    MgmtAddr  string // host:port; empty disables the endpoint
    MgmtProto string // "http" (default) or "grpc"

    // TLS (optional), applied to the wss:// dial and the management API.
    TLSEnable     bool
    TLSCA         string
    TLSCert       string
    TLSKey        string
    TLSServerName string
    TLSSkipVerify bool

    // Logger (optional). If nil, log.Default() is used.
    Logger *log.Logger

    // Optional callbacks
    OnElected func()
    OnDemoted func()
}

// Agent bundles the built components so embedders can reach the manager, the
// settings store and the shared world state.
type Agent struct {
    Manager  *relay.Manager
    Settings *config.Settings
    Store    *state.Store
    Roster   roster.Roster
    Events   *mgmtgrpc.Server // non-nil only for MgmtProto=grpc

    seeds discovery.Discovery
}

// Build assembles an Agent from Config without starting it.
func Build(cfg Config) (*Agent, error) {
    if cfg.Logger == nil { cfg.Logger = log.Default() }
    if cfg.ClientID == "" { return nil, errors.New("bootstrap: empty ClientID") }

    settings, err := config.Load(cfg.ConfigFile, cfg.Logger)
    if err != nil { return nil, err }
    if cfg.RelayURL != "" { _ = settings.Set(config.KeyRelayURL, cfg.RelayURL) }
    if cfg.Token != "" { _ = settings.Set(config.KeyRelayToken, cfg.Token) }
    relayURL := settings.String(config.KeyRelayURL)
    if relayURL == "" { return nil, errors.New("bootstrap: no relay URL configured") }

    role := roster.ParseRole(cfg.Role)
    if role == 0 { role = roster.RoleGamemaster }

    // TLS material, shared by the relay dial and the management endpoint
    var srvTLS, cliTLS *tls.Config
    if cfg.TLSEnable {
        topts := tlsx.Options{Enable: true, CAFile: cfg.TLSCA, CertFile: cfg.TLSCert, KeyFile: cfg.TLSKey, InsecureSkipVerify: cfg.TLSSkipVerify, ServerName: cfg.TLSServerName}
        // Prefer hot-reload configs to allow manual rotation by replacing files
        if s, err := topts.ServerHotReload(); err == nil { srvTLS = s } else { return nil, err }
        if c, err := topts.ClientHotReload(); err == nil { cliTLS = c } else { return nil, err }
    }

    // Roster backend
    var r roster.Roster
    switch cfg.RosterKind {
    case "memberlist":
        r, err = rosterml.New(rosterml.Options{
            PeerID:    cfg.ClientID,
            Role:      role,
            Bind:      cfg.MemBind,
            Advertise: cfg.MemAdv,
            Logger:    cfg.Logger,
        })
        if err != nil { return nil, err }
    default:
        seeds := rosterstatic.Parse(cfg.PeersCSV)
        self := roster.PeerInfo{ID: cfg.ClientID, Role: role, Active: true}
        src, err := rosterstatic.New(cfg.ClientID, append(seeds, self)...)
        if err != nil { return nil, err }
        r = src
    }

    // Relay socket dialer
    dialer := ws.NewDialer(cfg.Logger)
    if cliTLS != nil { dialer.UseTLS(cliTLS) }

    // World state and message handlers
    store := state.New()
    table := dispatch.NewTable(cfg.Logger)
    handlers.RegisterAll(table, handlers.Config{
        World: handlers.WorldInfo{
            ID:            settings.String(config.KeyWorldID),
            Title:         settings.String(config.KeyWorldTitle),
            Version:       settings.String(config.KeyHostVersion),
            System:        settings.String(config.KeySystemID),
            SystemVersion: settings.String(config.KeySystemVersion),
        },
        Store: store,
    })

    // Management API
    var srv transport.RPCServer
    var evsrv *mgmtgrpc.Server
    if cfg.MgmtAddr != "" {
        switch cfg.MgmtProto {
        case "grpc":
            s := mgmtgrpc.NewServer(cfg.MgmtAddr)
            if srvTLS != nil { s.UseTLS(srvTLS) }
            srv, evsrv = s, s
        default:
            s := httpjson.NewServer(cfg.MgmtAddr, cfg.Logger)
            if srvTLS != nil { s.UseTLS(srvTLS) }
            srv = s
        }
    }

    params := transport.ConnectParams{
        ClientID:      cfg.ClientID,
        Token:         settings.String(config.KeyRelayToken),
        WorldID:       settings.String(config.KeyWorldID),
        WorldTitle:    settings.String(config.KeyWorldTitle),
        HostVersion:   settings.String(config.KeyHostVersion),
        SystemID:      settings.String(config.KeySystemID),
        SystemTitle:   settings.String(config.KeySystemTitle),
        SystemVersion: settings.String(config.KeySystemVersion),
        DisplayName:   settings.String(config.KeyDisplayName),
    }

    mgr, err := relay.New(relay.Options{
        ClientID:     relay.ClientID(cfg.ClientID),
        Role:         role,
        RelayURL:     relayURL,
        Params:       params,
        Dialer:       dialer,
        Settings:     settings,
        Logger:       cfg.Logger,
        Dispatch:     table,
        HandlerState: store,
        Roster:       r,
        RPCServer:    srv,
        OnElected:    cfg.OnElected,
        OnDemoted:    cfg.OnDemoted,
    })
    if err != nil { return nil, err }

    ag := &Agent{Manager: mgr, Settings: settings, Store: store, Roster: r, Events: evsrv}
    if cfg.RosterKind == "memberlist" {
        ag.seeds = seedSource(cfg)
    }
    return ag, nil
}

// seedSource picks the gossip seed discovery backend from the config. DNS and
// file sources re-resolve lazily; the CSV list is fixed.
func seedSource(cfg Config) discovery.Discovery {
    switch {
    case cfg.SeedsDNS != "":
        return seeddns.New(seeddns.Options{Names: splitCSV(cfg.SeedsDNS), Logger: cfg.Logger})
    case cfg.SeedsFile != "":
        return seedfile.New(seedfile.Options{Path: cfg.SeedsFile})
    case cfg.SeedsCSV != "":
        return seedstatic.New(splitCSV(cfg.SeedsCSV)...)
    default:
        return nil
    }
}

func splitCSV(csv string) []string {
    var out []string
    for _, part := range strings.Split(csv, ",") {
        if part = strings.TrimSpace(part); part != "" {
            out = append(out, part)
        }
    }
    return out
}

// Run builds and starts the agent, returning it for lifecycle control. The
// settings file watcher and, for gRPC management, the lifecycle event bridge
// run until ctx is done. The caller is responsible for Close when finished.
func Run(ctx context.Context, cfg Config) (*Agent, error) {
    if cfg.Logger == nil { cfg.Logger = log.Default() }
    ag, err := Build(cfg)
    if err != nil { return nil, err }
    if err := ag.Manager.Start(ctx); err != nil { return nil, err }
    if ag.seeds != nil {
        if j, ok := ag.Roster.(interface{ Join(seeds []string) error }); ok {
            seeds := ag.seeds.Seeds()
            if len(seeds) > 0 {
                if err := j.Join(seeds); err != nil {
                    cfg.Logger.Printf("bootstrap: roster join %v failed: %v", seeds, err)
                }
            }
        }
    }
    if cfg.ConfigFile != "" {
        go func() { _ = ag.Settings.Watch(ctx) }()
    }
    if ag.Events != nil {
        go bridgeEvents(ctx, ag)
    }
    return ag, nil
}

// bridgeEvents forwards manager lifecycle events to gRPC stream subscribers.
func bridgeEvents(ctx context.Context, ag *Agent) {
    for ev := range ag.Manager.Subscribe(ctx) {
        if b, err := json.Marshal(ev); err == nil {
            ag.Events.PublishEvent(b)
        }
    }
}
