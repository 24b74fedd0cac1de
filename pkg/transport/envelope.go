package transport

import (
    "encoding/json"
    "fmt"
)

// TypePing is the reserved heartbeat message type. Ping frames carry no
// payload and flow in both directions.
const TypePing = "ping"

// Envelope is the typed wire message exchanged with the relay server. On the
// wire it is a flat JSON object: {"type": ..., "requestId": ..., <payload
// fields>}. RequestID correlates a request/response pair but is opaque to the
// core; correlation is the responsibility of individual handlers.
type Envelope struct {
    Type      string
    RequestID string
    Payload   map[string]any
}

// Ping returns a heartbeat envelope.
func Ping() Envelope { return Envelope{Type: TypePing} }

// MarshalJSON flattens the payload fields into the top-level object. The
// reserved keys "type" and "requestId" always come from the envelope itself.
func (e Envelope) MarshalJSON() ([]byte, error) {
    obj := make(map[string]any, len(e.Payload)+2)
    for k, v := range e.Payload {
        if k == "type" || k == "requestId" {
            continue
        }
        obj[k] = v
    }
    obj["type"] = e.Type
    if e.RequestID != "" {
        obj["requestId"] = e.RequestID
    }
    return json.Marshal(obj)
}

// UnmarshalJSON parses a flat wire object. A frame without a string "type"
// field is malformed.
func (e *Envelope) UnmarshalJSON(data []byte) error {
    var obj map[string]any
    if err := json.Unmarshal(data, &obj); err != nil {
        return err
    }
    t, ok := obj["type"].(string)
    if !ok || t == "" {
        return fmt.Errorf("transport: frame has no type field")
    }
    e.Type = t
    delete(obj, "type")
    if rid, ok := obj["requestId"].(string); ok {
        e.RequestID = rid
        delete(obj, "requestId")
    }
    if len(obj) > 0 {
        e.Payload = obj
    } else {
        e.Payload = nil
    }
    return nil
}

// DecodeEnvelope parses one raw inbound frame.
func DecodeEnvelope(data []byte) (Envelope, error) {
    var e Envelope
    if err := json.Unmarshal(data, &e); err != nil {
        return Envelope{}, err
    }
    return e, nil
}

// Field returns a payload field as a string, or "" when absent or not a string.
func (e Envelope) Field(key string) string {
    if e.Payload == nil {
        return ""
    }
    s, _ := e.Payload[key].(string)
    return s
}
