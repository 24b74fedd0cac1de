package grpc

import (
    "encoding/json"
    "fmt"

    "google.golang.org/grpc/encoding"
)

// jsonCodec lets the management and event services exchange plain JSON
// messages, so no protobuf codegen is needed for them.
type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Marshal(v any) ([]byte, error) {
    b, err := json.Marshal(v)
    if err != nil {
        return nil, fmt.Errorf("json codec: marshal %T: %w", v, err)
    }
    return b, nil
}

func (jsonCodec) Unmarshal(b []byte, v any) error {
    if err := json.Unmarshal(b, v); err != nil {
        return fmt.Errorf("json codec: unmarshal into %T: %w", v, err)
    }
    return nil
}

func init() {
    encoding.RegisterCodec(jsonCodec{})
}
