package config

import (
    "os"
    "path/filepath"
    "testing"
    "time"
)

func TestDefaults(t *testing.T) {
    s, err := Load("", nil)
    if err != nil {
        t.Fatalf("load: %v", err)
    }
    if got := s.HeartbeatInterval(); got != 30*time.Second {
        t.Fatalf("heartbeat default = %v, want 30s", got)
    }
    if got := s.ReconnectBaseDelay(); got != time.Second {
        t.Fatalf("base delay default = %v, want 1s", got)
    }
    if got := s.ReconnectMaxDelay(); got != 30*time.Second {
        t.Fatalf("max delay default = %v, want 30s", got)
    }
    if got := s.ReconnectMaxAttempts(); got != 20 {
        t.Fatalf("max attempts default = %d, want 20", got)
    }
}

func TestFileOverridesDefaults(t *testing.T) {
    dir := t.TempDir()
    path := filepath.Join(dir, "relay.yaml")
    body := `
relay:
  url: wss://relay.example.com/ws
  token: sekrit
  heartbeat-interval: 10
  reconnect-max-attempts: 3
world:
  id: world-1
`
    if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
        t.Fatalf("write: %v", err)
    }
    s, err := Load(path, nil)
    if err != nil {
        t.Fatalf("load: %v", err)
    }
    if got := s.String(KeyRelayURL); got != "wss://relay.example.com/ws" {
        t.Fatalf("url = %q", got)
    }
    if got := s.HeartbeatInterval(); got != 10*time.Second {
        t.Fatalf("heartbeat = %v, want 10s", got)
    }
    if got := s.ReconnectMaxAttempts(); got != 3 {
        t.Fatalf("max attempts = %d, want 3", got)
    }
    if got := s.String(KeyWorldID); got != "world-1" {
        t.Fatalf("world id = %q", got)
    }
}

func TestEnvOverridesFile(t *testing.T) {
    dir := t.TempDir()
    path := filepath.Join(dir, "relay.yaml")
    if err := os.WriteFile(path, []byte("relay:\n  heartbeat-interval: 10\n"), 0o600); err != nil {
        t.Fatalf("write: %v", err)
    }
    t.Setenv("FOUNDRY_RELAY_RELAY_HEARTBEAT_INTERVAL", "5")
    t.Setenv("FOUNDRY_RELAY_WORLD_ID", "env-world")
    s, err := Load(path, nil)
    if err != nil {
        t.Fatalf("load: %v", err)
    }
    if got := s.HeartbeatInterval(); got != 5*time.Second {
        t.Fatalf("heartbeat = %v, want 5s", got)
    }
    if got := s.String(KeyWorldID); got != "env-world" {
        t.Fatalf("world id = %q", got)
    }
}

func TestReloadPicksUpEdits(t *testing.T) {
    dir := t.TempDir()
    path := filepath.Join(dir, "relay.yaml")
    if err := os.WriteFile(path, []byte("relay:\n  reconnect-base-delay: 500\n"), 0o600); err != nil {
        t.Fatalf("write: %v", err)
    }
    s, err := Load(path, nil)
    if err != nil {
        t.Fatalf("load: %v", err)
    }
    if got := s.ReconnectBaseDelay(); got != 500*time.Millisecond {
        t.Fatalf("base delay = %v, want 500ms", got)
    }
    if err := os.WriteFile(path, []byte("relay:\n  reconnect-base-delay: 1500\n"), 0o600); err != nil {
        t.Fatalf("rewrite: %v", err)
    }
    if err := s.Reload(); err != nil {
        t.Fatalf("reload: %v", err)
    }
    if got := s.ReconnectBaseDelay(); got != 1500*time.Millisecond {
        t.Fatalf("base delay after reload = %v, want 1.5s", got)
    }
}

func TestReloadKeepsOldValuesOnError(t *testing.T) {
    dir := t.TempDir()
    path := filepath.Join(dir, "relay.yaml")
    if err := os.WriteFile(path, []byte("relay:\n  token: good\n"), 0o600); err != nil {
        t.Fatalf("write: %v", err)
    }
    s, err := Load(path, nil)
    if err != nil {
        t.Fatalf("load: %v", err)
    }
    if err := os.WriteFile(path, []byte(":\tnot yaml ["), 0o600); err != nil {
        t.Fatalf("rewrite: %v", err)
    }
    if err := s.Reload(); err == nil {
        t.Fatalf("expected reload error for broken yaml")
    }
    if got := s.String(KeyRelayToken); got != "good" {
        t.Fatalf("token after failed reload = %q, want good", got)
    }
}
