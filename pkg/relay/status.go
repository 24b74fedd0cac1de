package relay

// ConnState names a position in the connection lifecycle.
type ConnState string

const (
    StateDisconnected       ConnState = "disconnected"
    StateConnecting         ConnState = "connecting"
    StateOpen               ConnState = "open"
    StateReconnectScheduled ConnState = "reconnect_scheduled"
)

// RelayStatus is a high-level, JSON-serializable snapshot of the manager
// suitable for external status endpoints and tooling.
type RelayStatus struct {
    // ClientID identifies this peer.
    ClientID string `json:"clientId"`
    // State is the current lifecycle state.
    State ConnState `json:"state"`
    // Elected indicates whether this peer currently owns the connection role.
    Elected bool `json:"elected"`
    // RelayURL is the configured relay endpoint.
    RelayURL string `json:"relayUrl"`
    // Attempt is the current reconnect attempt counter (0 when idle or open).
    Attempt int `json:"attempt"`
    // LastCloseCode is the close code of the most recent socket closure, 0 if
    // never connected.
    LastCloseCode int `json:"lastCloseCode,omitempty"`
    // LastCloseReason is the close reason of the most recent socket closure.
    LastCloseReason string `json:"lastCloseReason,omitempty"`
}
