package relay

import (
    "context"
    "sync"
)

var (
    regMu    sync.Mutex
    registry = map[string]*Manager{}
)

// Acquire returns the process-wide manager registered under role, building it
// from opts on first use. Later calls with the same role return the existing
// instance and their opts are ignored, so hot code paths can call Acquire
// freely without spawning parallel connections.
func Acquire(role string, opts Options) (*Manager, error) {
    regMu.Lock()
    defer regMu.Unlock()
    if m, ok := registry[role]; ok {
        return m, nil
    }
    m, err := New(opts)
    if err != nil {
        return nil, err
    }
    registry[role] = m
    return m, nil
}

// Lookup returns the manager registered under role, if any.
func Lookup(role string) (*Manager, bool) {
    regMu.Lock()
    defer regMu.Unlock()
    m, ok := registry[role]
    return m, ok
}

// Release stops the manager registered under role and removes it from the
// registry. The next Acquire for that role builds a fresh instance.
func Release(ctx context.Context, role string) error {
    regMu.Lock()
    m, ok := registry[role]
    delete(registry, role)
    regMu.Unlock()
    if !ok {
        return nil
    }
    return m.Stop(ctx)
}
