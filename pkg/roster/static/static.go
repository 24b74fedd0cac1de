package static

import (
    "context"
    "fmt"
    "sort"
    "strings"
    "sync"
    "time"

    base "github.com/CePeU/foundryvtt-rest-api/pkg/roster"
)

// Source implements roster.Roster with peers pushed by the hosting
// application. It is the default roster backend: the host calls Upsert,
// SetActive and Remove as users join and leave the world, and the relay
// re-evaluates election on every resulting event.
type Source struct {
    mu     sync.RWMutex
    selfID string
    peers  map[string]base.PeerInfo
    evts   chan base.Event
    closed bool
}

// New constructs a host-fed roster. selfID identifies the local peer; it does
// not have to be present in the roster until the host pushes it.
func New(selfID string, seed ...base.PeerInfo) (*Source, error) {
    if selfID == "" {
        return nil, fmt.Errorf("static: empty selfID")
    }
    s := &Source{
        selfID: selfID,
        peers:  make(map[string]base.PeerInfo, len(seed)),
        evts:   make(chan base.Event, 64),
    }
    for _, p := range seed {
        if p.ID == "" { continue }
        s.peers[p.ID] = p
    }
    return s, nil
}

// Start is a no-op for the host-fed roster; the channel is live from New.
func (s *Source) Start(ctx context.Context) error { return nil }

func (s *Source) Local() base.PeerInfo {
    s.mu.RLock()
    defer s.mu.RUnlock()
    return s.peers[s.selfID]
}

func (s *Source) Peers() []base.PeerInfo {
    s.mu.RLock()
    defer s.mu.RUnlock()
    out := make([]base.PeerInfo, 0, len(s.peers))
    for _, p := range s.peers {
        out = append(out, p)
    }
    sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
    return out
}

func (s *Source) Events() <-chan base.Event { return s.evts }

// Upsert adds or replaces a peer and emits a join or update event.
func (s *Source) Upsert(p base.PeerInfo) error {
    if p.ID == "" {
        return fmt.Errorf("static: empty peer id")
    }
    s.mu.Lock()
    _, existed := s.peers[p.ID]
    s.peers[p.ID] = p
    s.mu.Unlock()
    et := base.EventJoin
    if existed { et = base.EventUpdate }
    s.emit(base.Event{Type: et, Peer: p, At: time.Now()})
    return nil
}

// SetActive flips the activity flag of a known peer. Deactivation emits a
// leave event, reactivation a join event.
func (s *Source) SetActive(id string, active bool) error {
    s.mu.Lock()
    p, ok := s.peers[id]
    if !ok {
        s.mu.Unlock()
        return fmt.Errorf("static: unknown peer %q", id)
    }
    if p.Active == active {
        s.mu.Unlock()
        return nil
    }
    p.Active = active
    s.peers[id] = p
    s.mu.Unlock()
    et := base.EventJoin
    if !active { et = base.EventLeave }
    s.emit(base.Event{Type: et, Peer: p, At: time.Now()})
    return nil
}

// Remove drops a peer from the roster entirely and emits a leave event.
func (s *Source) Remove(id string) error {
    s.mu.Lock()
    p, ok := s.peers[id]
    if !ok {
        s.mu.Unlock()
        return nil
    }
    delete(s.peers, id)
    s.mu.Unlock()
    p.Active = false
    s.emit(base.Event{Type: base.EventLeave, Peer: p, At: time.Now()})
    return nil
}

func (s *Source) Stop() error {
    s.mu.Lock()
    defer s.mu.Unlock()
    if s.closed {
        return nil
    }
    s.closed = true
    close(s.evts)
    return nil
}

func (s *Source) emit(e base.Event) {
    s.mu.RLock()
    closed := s.closed
    s.mu.RUnlock()
    if closed {
        return
    }
    select {
    case s.evts <- e:
    default:
        // drop if the consumer is too slow; the next event triggers a full
        // re-evaluation anyway
    }
}

// Parse converts a comma-separated "id=role" list (e.g. "a=gamemaster,b=player")
// into seed peers, all marked active. Malformed entries are skipped.
func Parse(csv string) []base.PeerInfo {
    if csv == "" {
        return nil
    }
    parts := strings.Split(csv, ",")
    out := make([]base.PeerInfo, 0, len(parts))
    for _, part := range parts {
        part = strings.TrimSpace(part)
        if part == "" { continue }
        id, roleName, found := strings.Cut(part, "=")
        role := base.RoleGamemaster
        if found {
            if r := base.ParseRole(strings.TrimSpace(roleName)); r != 0 { role = r }
        }
        id = strings.TrimSpace(id)
        if id == "" { continue }
        out = append(out, base.PeerInfo{ID: id, Role: role, Active: true})
    }
    return out
}

var _ base.Roster = (*Source)(nil)
