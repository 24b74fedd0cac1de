package relay

import (
    "context"
    "sync"
    "time"
)

type EventType string

const (
    EventElected            EventType = "elected"
    EventDemoted            EventType = "demoted"
    EventConnecting         EventType = "connecting"
    EventOpen               EventType = "open"
    EventClosed             EventType = "closed"
    EventReconnectScheduled EventType = "reconnect_scheduled"
    EventRetriesExhausted   EventType = "retries_exhausted"
)

// Event is a host-consumable event describing lifecycle changes. Only the
// fields relevant to an event type are populated.
type Event struct {
    Type      EventType     `json:"type"`
    At        time.Time     `json:"at"`
    State     ConnState     `json:"state,omitempty"`
    Attempt   int           `json:"attempt,omitempty"`
    Delay     time.Duration `json:"delay,omitempty"`
    CloseCode int           `json:"closeCode,omitempty"`
    Reason    string        `json:"reason,omitempty"`
}

// Subscribe returns a channel of events. The returned channel is buffered and
// closed automatically when ctx is done. Events may be dropped if the consumer
// is too slow (best-effort delivery) to avoid back-pressuring internals.
func (m *Manager) Subscribe(ctx context.Context) <-chan Event {
    ch := make(chan Event, 64)
    m.eb.add(ch)
    go func() {
        <-ctx.Done()
        m.eb.remove(ch)
        close(ch)
    }()
    return ch
}

// internal event bus
type eventBus struct {
    mu   sync.Mutex
    subs map[chan Event]struct{}
}

func (e *eventBus) add(ch chan Event) {
    e.mu.Lock()
    if e.subs == nil { e.subs = make(map[chan Event]struct{}) }
    e.subs[ch] = struct{}{}
    e.mu.Unlock()
}

func (e *eventBus) remove(ch chan Event) {
    e.mu.Lock()
    if e.subs != nil { delete(e.subs, ch) }
    e.mu.Unlock()
}

func (e *eventBus) publish(ev Event) {
    e.mu.Lock()
    for ch := range e.subs {
        select {
        case ch <- ev:
        default:
            // drop if receiver is slow
        }
    }
    e.mu.Unlock()
}
