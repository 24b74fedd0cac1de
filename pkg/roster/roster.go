package roster

import (
    "context"
    "time"
)

// Role is the privilege tier a peer holds within the shared world. Higher
// values outrank lower ones when the elected peer is computed.
type Role int

const (
    RolePlayer Role = iota + 1
    RoleTrusted
    RoleAssistant
    RoleGamemaster
)

func (r Role) String() string {
    switch r {
    case RolePlayer:
        return "player"
    case RoleTrusted:
        return "trusted"
    case RoleAssistant:
        return "assistant"
    case RoleGamemaster:
        return "gamemaster"
    default:
        return "unknown"
    }
}

// ParseRole converts a role name to its Role value. Unknown names map to 0.
func ParseRole(s string) Role {
    switch s {
    case "player":
        return RolePlayer
    case "trusted":
        return RoleTrusted
    case "assistant":
        return RoleAssistant
    case "gamemaster":
        return RoleGamemaster
    default:
        return 0
    }
}

// PeerInfo describes one peer process sharing visibility into the same world
// as observed by the roster layer. The identifier is assigned by the hosting
// environment and never mutated here; only Active changes over a peer's
// lifetime. Meta can carry auxiliary data such as a display name.
type PeerInfo struct {
    ID     string            `json:"id"`
    Role   Role              `json:"role"`
    Active bool              `json:"active"`
    Meta   map[string]string `json:"meta,omitempty"`
}

type EventType string

const (
    // EventJoin indicates a peer joined or became active.
    EventJoin EventType = "join"
    // EventLeave indicates a peer left or became inactive.
    EventLeave EventType = "leave"
    // EventUpdate indicates a peer's attributes (role, meta) changed.
    EventUpdate EventType = "update"
)

// Event is the translated roster change notification.
type Event struct {
    Type EventType
    Peer PeerInfo
    At   time.Time
}

// Roster is the abstraction over the source of peer visibility. The hosting
// environment owns the peer set; implementations only observe it and deliver
// change notifications. Consumers re-evaluate election on every event.
type Roster interface {
    Start(ctx context.Context) error
    Local() PeerInfo
    Peers() []PeerInfo
    Events() <-chan Event
    Stop() error
}
