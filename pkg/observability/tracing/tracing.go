package tracing

import (
    "context"

    "go.opentelemetry.io/otel"
    "go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
    sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const tracerName = "foundry-relay"

var enabled bool

// Setup installs a global stdout tracer provider when enable is true. The
// returned shutdown flushes buffered spans and should be deferred by the
// caller. With enable false both returns are no-ops.
func Setup(enable bool) (func(context.Context) error, error) {
    enabled = enable
    if !enable {
        return func(context.Context) error { return nil }, nil
    }
    exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
    if err != nil {
        return nil, err
    }
    tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp))
    otel.SetTracerProvider(tp)
    return tp.Shutdown, nil
}

// StartSpan opens a span named name when tracing is enabled. The returned
// func ends the span and is safe to call unconditionally.
func StartSpan(ctx context.Context, name string) (context.Context, func()) {
    if !enabled {
        return ctx, func() {}
    }
    ctx, span := otel.Tracer(tracerName).Start(ctx, name)
    return ctx, func() { span.End() }
}
