package config

import (
    "fmt"
    "log"
    "strings"
    "sync"
    "time"

    kyaml "github.com/knadh/koanf/parsers/yaml"
    "github.com/knadh/koanf/providers/env"
    "github.com/knadh/koanf/providers/file"
    "github.com/knadh/koanf/v2"
)

// EnvPrefix is the environment variable prefix for overrides, e.g.
// FOUNDRY_RELAY_RELAY_HEARTBEAT_INTERVAL=15.
const EnvPrefix = "FOUNDRY_RELAY_"

// Setting keys consumed by the relay core. Values are read at every
// scheduling decision, so edits take effect on the next decision rather than
// retroactively.
const (
    KeyRelayURL           = "relay.url"
    KeyRelayToken         = "relay.token"
    KeyClientID           = "relay.client-id"
    KeyDisplayName        = "relay.display-name"
    KeyHeartbeatInterval  = "relay.heartbeat-interval"    // seconds
    KeyReconnectBaseDelay = "relay.reconnect-base-delay"  // milliseconds
    KeyReconnectMaxDelay  = "relay.reconnect-max-delay"   // milliseconds
    KeyReconnectMaxTries  = "relay.reconnect-max-attempts"
    KeyWorldID            = "world.id"
    KeyWorldTitle         = "world.title"
    KeyHostVersion        = "host.version"
    KeySystemID           = "system.id"
    KeySystemTitle        = "system.title"
    KeySystemVersion      = "system.version"
)

// Defaults applied before any file or environment values.
const (
    DefaultHeartbeatSeconds   = 30
    DefaultBaseDelayMillis    = 1000
    DefaultMaxDelayMillis     = 30000
    DefaultReconnectMaxTries  = 20
)

// Settings is the live, name-keyed configuration surface the relay core
// consults. It is safe for concurrent use; Reload swaps in fresh values
// atomically under the lock.
type Settings struct {
    mu     sync.RWMutex
    k      *koanf.Koanf
    path   string
    logger *log.Logger
}

// Load builds a Settings store from defaults, an optional YAML file, and
// environment overrides (in that order of precedence, later wins).
func Load(path string, logger *log.Logger) (*Settings, error) {
    if logger == nil { logger = log.Default() }
    s := &Settings{path: path, logger: logger}
    k, err := s.load()
    if err != nil {
        return nil, err
    }
    s.k = k
    return s, nil
}

func (s *Settings) load() (*koanf.Koanf, error) {
    k := koanf.New(".")
    for key, v := range map[string]any{
        KeyHeartbeatInterval:  DefaultHeartbeatSeconds,
        KeyReconnectBaseDelay: DefaultBaseDelayMillis,
        KeyReconnectMaxDelay:  DefaultMaxDelayMillis,
        KeyReconnectMaxTries:  DefaultReconnectMaxTries,
    } {
        if err := k.Set(key, v); err != nil {
            return nil, fmt.Errorf("config: defaults: %w", err)
        }
    }
    if s.path != "" {
        if err := k.Load(file.Provider(s.path), kyaml.Parser()); err != nil {
            return nil, fmt.Errorf("config: load file %s: %w", s.path, err)
        }
    }
    // FOUNDRY_RELAY_RELAY_RECONNECT_MAX_ATTEMPTS -> relay.reconnect-max-attempts
    transform := func(raw string) string {
        raw = strings.TrimPrefix(raw, EnvPrefix)
        raw = strings.ToLower(raw)
        section, rest, found := strings.Cut(raw, "_")
        if !found {
            return raw
        }
        return section + "." + strings.ReplaceAll(rest, "_", "-")
    }
    if err := k.Load(env.Provider(EnvPrefix, ".", transform), nil); err != nil {
        return nil, fmt.Errorf("config: load env: %w", err)
    }
    return k, nil
}

// Reload re-reads the file and environment. On error the previous values are
// kept.
func (s *Settings) Reload() error {
    k, err := s.load()
    if err != nil {
        return err
    }
    s.mu.Lock()
    s.k = k
    s.mu.Unlock()
    return nil
}

// Set overrides a single key in place. Used by the host integration and by
// tests; file reloads do not undo explicit Set calls until the next Reload.
func (s *Settings) Set(key string, value any) error {
    s.mu.Lock(); defer s.mu.Unlock()
    return s.k.Set(key, value)
}

// String returns a string setting.
func (s *Settings) String(key string) string {
    s.mu.RLock(); defer s.mu.RUnlock()
    return s.k.String(key)
}

// Int returns an integer setting.
func (s *Settings) Int(key string) int {
    s.mu.RLock(); defer s.mu.RUnlock()
    return s.k.Int(key)
}

// HeartbeatInterval returns the liveness signal period.
func (s *Settings) HeartbeatInterval() time.Duration {
    if v := s.Int(KeyHeartbeatInterval); v > 0 {
        return time.Duration(v) * time.Second
    }
    return DefaultHeartbeatSeconds * time.Second
}

// ReconnectBaseDelay returns the first-retry backoff delay.
func (s *Settings) ReconnectBaseDelay() time.Duration {
    if v := s.Int(KeyReconnectBaseDelay); v > 0 {
        return time.Duration(v) * time.Millisecond
    }
    return DefaultBaseDelayMillis * time.Millisecond
}

// ReconnectMaxDelay returns the backoff cap.
func (s *Settings) ReconnectMaxDelay() time.Duration {
    if v := s.Int(KeyReconnectMaxDelay); v > 0 {
        return time.Duration(v) * time.Millisecond
    }
    return DefaultMaxDelayMillis * time.Millisecond
}

// ReconnectMaxAttempts returns the retry ceiling (0 = unbounded).
func (s *Settings) ReconnectMaxAttempts() int {
    if v := s.Int(KeyReconnectMaxTries); v >= 0 {
        return v
    }
    return DefaultReconnectMaxTries
}
