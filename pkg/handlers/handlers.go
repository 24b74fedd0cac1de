package handlers

import (
    "context"
    "fmt"
    "math/rand/v2"
    "strconv"
    "strings"

    "github.com/oklog/ulid/v2"

    "github.com/CePeU/foundryvtt-rest-api/pkg/dispatch"
    "github.com/CePeU/foundryvtt-rest-api/pkg/internal/logutil"
    "github.com/CePeU/foundryvtt-rest-api/pkg/state"
    "github.com/CePeU/foundryvtt-rest-api/pkg/transport"
)

// WorldInfo describes the world this peer fronts; it is reported back on
// world-request messages and mirrors the identification sent at dial time.
type WorldInfo struct {
    ID            string `json:"id"`
    Title         string `json:"title"`
    Version       string `json:"version"`
    System        string `json:"system"`
    SystemVersion string `json:"systemVersion"`
}

// Roller evaluates a dice formula and returns its total. The default
// implementation understands the NdM(+|-)K form.
type Roller func(formula string) (int, error)

// Config wires the message handlers to their collaborators.
type Config struct {
    World  WorldInfo
    Store  *state.Store
    Roller Roller
}

// RegisterAll installs the standard message handlers on the table:
// world-request, entity-request, entity-update and roll-request. Server
// acknowledgment types are intentionally not registered; frames of unhandled
// types are dropped by the table with a warning.
func RegisterAll(t *dispatch.Table, cfg Config) {
    if cfg.Roller == nil {
        cfg.Roller = Roll
    }
    t.Register("world-request", worldRequest(cfg.World))
    t.Register("entity-request", entityRequest())
    t.Register("entity-update", entityUpdate())
    t.Register("roll-request", rollRequest(cfg.Roller))
}

func worldRequest(w WorldInfo) dispatch.HandlerFunc {
    return func(ctx context.Context, env transport.Envelope, rc *dispatch.Context) {
        rc.Send(transport.Envelope{
            Type:      "world-response",
            RequestID: env.RequestID,
            Payload: map[string]any{
                "id":            w.ID,
                "title":         w.Title,
                "version":       w.Version,
                "system":        w.System,
                "systemVersion": w.SystemVersion,
            },
        })
    }
}

func entityRequest() dispatch.HandlerFunc {
    return func(ctx context.Context, env transport.Envelope, rc *dispatch.Context) {
        id := env.Field("entityId")
        if id == "" {
            id = env.Field("uuid")
        }
        resp := transport.Envelope{Type: "entity-response", RequestID: env.RequestID}
        store := rc.State()
        if id == "" || store == nil {
            resp.Payload = map[string]any{"error": "missing entityId"}
            rc.Send(resp)
            return
        }
        e, ok := store.Get(id)
        if !ok {
            resp.Payload = map[string]any{"error": fmt.Sprintf("entity %q not found", id)}
            rc.Send(resp)
            return
        }
        resp.Payload = map[string]any{"entityId": e.ID, "kind": e.Kind, "data": e.Data}
        rc.Send(resp)
    }
}

func entityUpdate() dispatch.HandlerFunc {
    return func(ctx context.Context, env transport.Envelope, rc *dispatch.Context) {
        resp := transport.Envelope{Type: "entity-updated", RequestID: env.RequestID}
        id := env.Field("entityId")
        store := rc.State()
        if id == "" || store == nil {
            resp.Payload = map[string]any{"updated": false, "error": "missing entityId"}
            rc.Send(resp)
            return
        }
        e := state.Entity{ID: id, Kind: env.Field("kind")}
        if data, ok := env.Payload["data"].(map[string]any); ok {
            e.Data = data
        }
        if err := store.Apply(e); err != nil {
            resp.Payload = map[string]any{"updated": false, "error": err.Error()}
            rc.Send(resp)
            return
        }
        resp.Payload = map[string]any{"updated": true, "entityId": id}
        rc.Send(resp)
    }
}

// rollRequest acknowledges the request, evaluates the formula and reports the
// outcome as a separate roll-data message. A request without a correlation id
// gets one minted so the two outbound messages stay relatable.
func rollRequest(roll Roller) dispatch.HandlerFunc {
    return func(ctx context.Context, env transport.Envelope, rc *dispatch.Context) {
        rid := env.RequestID
        if rid == "" {
            rid = ulid.Make().String()
        }
        formula := env.Field("formula")
        total, err := roll(formula)
        if err != nil {
            logutil.Warnf(rc.Logger(), "roll %q failed: %v", formula, err)
            rc.Send(transport.Envelope{
                Type:      "roll-response",
                RequestID: rid,
                Payload:   map[string]any{"accepted": false, "error": err.Error()},
            })
            return
        }
        rc.Send(transport.Envelope{
            Type:      "roll-response",
            RequestID: rid,
            Payload:   map[string]any{"accepted": true},
        })
        rc.Send(transport.Envelope{
            Type:      "roll-data",
            RequestID: rid,
            Payload:   map[string]any{"formula": formula, "total": total},
        })
    }
}

// Roll evaluates a dice formula of the form NdM, NdM+K or NdM-K.
func Roll(formula string) (int, error) {
    f := strings.ReplaceAll(strings.ToLower(formula), " ", "")
    if f == "" {
        return 0, fmt.Errorf("handlers: empty formula")
    }
    mod := 0
    if i := strings.IndexAny(f[1:], "+-"); i >= 0 {
        i++ // offset into f
        m, err := strconv.Atoi(f[i:])
        if err != nil {
            return 0, fmt.Errorf("handlers: bad modifier in %q", formula)
        }
        mod = m
        f = f[:i]
    }
    countStr, sidesStr, found := strings.Cut(f, "d")
    if !found {
        return 0, fmt.Errorf("handlers: %q is not a dice formula", formula)
    }
    count := 1
    if countStr != "" {
        n, err := strconv.Atoi(countStr)
        if err != nil || n < 1 {
            return 0, fmt.Errorf("handlers: bad die count in %q", formula)
        }
        count = n
    }
    sides, err := strconv.Atoi(sidesStr)
    if err != nil || sides < 1 {
        return 0, fmt.Errorf("handlers: bad die size in %q", formula)
    }
    total := mod
    for i := 0; i < count; i++ {
        total += rand.IntN(sides) + 1
    }
    return total, nil
}
