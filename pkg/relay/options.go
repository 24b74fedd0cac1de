package relay

import (
    "errors"
    "log"
    "time"

    "github.com/CePeU/foundryvtt-rest-api/pkg/dispatch"
    "github.com/CePeU/foundryvtt-rest-api/pkg/roster"
    "github.com/CePeU/foundryvtt-rest-api/pkg/state"
    "github.com/CePeU/foundryvtt-rest-api/pkg/transport"
)

type ClientID string

// Settings is the live tuning surface consulted at every scheduling decision
// (heartbeat cycle, reconnect arm). config.Settings satisfies it; tests and
// simple embeddings can use StaticSettings.
type Settings interface {
    HeartbeatInterval() time.Duration
    ReconnectBaseDelay() time.Duration
    ReconnectMaxDelay() time.Duration
    ReconnectMaxAttempts() int
}

// StaticSettings is a fixed-value Settings implementation.
type StaticSettings struct {
    Heartbeat   time.Duration
    BaseDelay   time.Duration
    MaxDelay    time.Duration
    MaxAttempts int
}

func (s StaticSettings) HeartbeatInterval() time.Duration  { return s.Heartbeat }
func (s StaticSettings) ReconnectBaseDelay() time.Duration { return s.BaseDelay }
func (s StaticSettings) ReconnectMaxDelay() time.Duration  { return s.MaxDelay }
func (s StaticSettings) ReconnectMaxAttempts() int         { return s.MaxAttempts }

var _ Settings = StaticSettings{}

// Options carries dependency-injected components and runtime configuration
// used to assemble the relay manager. Instances are typically produced from
// bootstrap.Config.
type Options struct {
    // ClientID is the unique identifier of this peer, used both for election
    // ordering and as the relay connection id.
    ClientID ClientID
    // Role is this peer's privilege tier, used for election ordering.
    Role roster.Role
    // RelayURL is the ws:// or wss:// endpoint of the relay server.
    RelayURL string
    // Params carries the identification fields appended to the connection URL.
    Params transport.ConnectParams
    // Dialer establishes the relay socket.
    Dialer transport.Dialer
    // Settings supplies heartbeat and reconnect tuning, re-read at each
    // scheduling decision.
    Settings Settings
    // Logger is used to report operational messages.
    Logger *log.Logger

    // Dispatch routes inbound frames by message type. Optional; an empty
    // table is used when nil (all frames counted as unroutable).
    Dispatch *dispatch.Table
    // Handler context passed to dispatched handlers. Optional; when nil a
    // context backed by this manager's Send and HandlerState is constructed.
    HandlerCtx *dispatch.Context
    // HandlerState is the world state store exposed to handlers when
    // HandlerCtx is nil. Optional.
    HandlerState *state.Store

    // Roster is the peer presence source driving election. Optional; the
    // host can instead push snapshots via RosterChanged.
    Roster roster.Roster

    // Optional management RPC endpoint.
    RPCServer transport.RPCServer

    // ConnectTimeout bounds a single dial attempt. Zero means 5s.
    ConnectTimeout time.Duration

    // Optional callbacks for host-level hooks.
    OnElected func()
    OnDemoted func()
}

// Validate performs a minimal validation of Options. It does not start any
// network activity and is safe to call before New.
func (o Options) Validate() error {
    if o.ClientID == "" {
        return errors.New("relay: empty ClientID")
    }
    if o.RelayURL == "" {
        return errors.New("relay: empty RelayURL")
    }
    if o.Dialer == nil {
        return errors.New("relay: nil Dialer")
    }
    if o.Settings == nil {
        return errors.New("relay: nil Settings")
    }
    if o.Logger == nil {
        return errors.New("relay: nil Logger")
    }
    return nil
}
