package transport

import (
    "encoding/json"
    "testing"
)

func TestEnvelope_MarshalFlattensPayload(t *testing.T) {
    e := Envelope{
        Type:      "roll-request",
        RequestID: "42",
        Payload:   map[string]any{"formula": "2d6", "type": "shadowed"},
    }
    b, err := json.Marshal(e)
    if err != nil {
        t.Fatalf("marshal: %v", err)
    }
    var obj map[string]any
    if err := json.Unmarshal(b, &obj); err != nil {
        t.Fatalf("re-parse: %v", err)
    }
    if obj["type"] != "roll-request" {
        t.Fatalf("type field = %v; payload must not shadow reserved keys", obj["type"])
    }
    if obj["requestId"] != "42" {
        t.Fatalf("requestId field = %v", obj["requestId"])
    }
    if obj["formula"] != "2d6" {
        t.Fatalf("payload field not flattened: %v", obj)
    }
}

func TestEnvelope_UnmarshalCollectsPayload(t *testing.T) {
    e, err := DecodeEnvelope([]byte(`{"type":"entity-request","requestId":"7","id":"npc-1","depth":2}`))
    if err != nil {
        t.Fatalf("decode: %v", err)
    }
    if e.Type != "entity-request" || e.RequestID != "7" {
        t.Fatalf("envelope header = %q/%q", e.Type, e.RequestID)
    }
    if e.Field("id") != "npc-1" {
        t.Fatalf("payload id = %q", e.Field("id"))
    }
    if _, ok := e.Payload["type"]; ok {
        t.Fatalf("reserved keys must not leak into payload")
    }
}

func TestEnvelope_MalformedFrames(t *testing.T) {
    cases := []string{
        `not json`,
        `{"requestId":"1"}`,
        `{"type":42}`,
        `{"type":""}`,
    }
    for _, c := range cases {
        if _, err := DecodeEnvelope([]byte(c)); err == nil {
            t.Fatalf("frame %q should be rejected", c)
        }
    }
}

func TestEnvelope_PingRoundTrip(t *testing.T) {
    b, err := json.Marshal(Ping())
    if err != nil {
        t.Fatalf("marshal ping: %v", err)
    }
    if string(b) != `{"type":"ping"}` {
        t.Fatalf("ping wire form = %s", b)
    }
    e, err := DecodeEnvelope(b)
    if err != nil {
        t.Fatalf("decode ping: %v", err)
    }
    if e.Type != TypePing || e.RequestID != "" || e.Payload != nil {
        t.Fatalf("ping decoded as %+v", e)
    }
}
