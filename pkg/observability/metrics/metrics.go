package metrics

import (
    "sync"

    "github.com/prometheus/client_golang/prometheus"
)

var (
    once sync.Once

    Elected = prometheus.NewGauge(prometheus.GaugeOpts{
        Namespace: "foundry_relay",
        Name:      "elected",
        Help:      "1 if this peer currently owns the relay connection role, else 0",
    })

    ConnectionOpen = prometheus.NewGauge(prometheus.GaugeOpts{
        Namespace: "foundry_relay",
        Name:      "connection_open",
        Help:      "1 while the relay socket is open, else 0",
    })

    ConnectAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
        Namespace: "foundry_relay",
        Name:      "connect_attempts_total",
        Help:      "Total connection attempts by result",
    }, []string{"result"})

    ReconnectsScheduled = prometheus.NewCounter(prometheus.CounterOpts{
        Namespace: "foundry_relay",
        Name:      "reconnects_scheduled_total",
        Help:      "Total reconnect attempts armed by the backoff policy",
    })

    RetriesExhausted = prometheus.NewCounter(prometheus.CounterOpts{
        Namespace: "foundry_relay",
        Name:      "retries_exhausted_total",
        Help:      "Times the reconnect ceiling was reached and the manager went idle",
    })

    HeartbeatsSent = prometheus.NewCounter(prometheus.CounterOpts{
        Namespace: "foundry_relay",
        Name:      "heartbeats_sent_total",
        Help:      "Total heartbeat frames sent while connected",
    })

    FramesDispatched = prometheus.NewCounterVec(prometheus.CounterOpts{
        Namespace: "foundry_relay",
        Name:      "frames_total",
        Help:      "Inbound frames by outcome (dispatched, unroutable, malformed)",
    }, []string{"result"})

    SendFailures = prometheus.NewCounter(prometheus.CounterOpts{
        Namespace: "foundry_relay",
        Name:      "send_failures_total",
        Help:      "Envelopes that could not be delivered (no open socket or write error)",
    })

    GRPCConnDials = prometheus.NewCounter(prometheus.CounterOpts{
        Namespace: "foundry_relay",
        Subsystem: "grpc_conn",
        Name:      "dials_total",
        Help:      "Total number of new management gRPC connections dialed",
    })
    GRPCConnReuse = prometheus.NewCounter(prometheus.CounterOpts{
        Namespace: "foundry_relay",
        Subsystem: "grpc_conn",
        Name:      "reuse_total",
        Help:      "Total number of management gRPC connection reuses from cache",
    })
    GRPCConnEvictions = prometheus.NewCounter(prometheus.CounterOpts{
        Namespace: "foundry_relay",
        Subsystem: "grpc_conn",
        Name:      "evictions_total",
        Help:      "Total number of cached management gRPC connections evicted",
    })
    GRPCConnActive = prometheus.NewGauge(prometheus.GaugeOpts{
        Namespace: "foundry_relay",
        Subsystem: "grpc_conn",
        Name:      "active",
        Help:      "Number of active cached management gRPC connections",
    })
)

// Register registers metrics into the default Prometheus registry (idempotent).
func Register() {
    once.Do(func() {
        prometheus.MustRegister(Elected)
        prometheus.MustRegister(ConnectionOpen)
        prometheus.MustRegister(ConnectAttempts)
        prometheus.MustRegister(ReconnectsScheduled)
        prometheus.MustRegister(RetriesExhausted)
        prometheus.MustRegister(HeartbeatsSent)
        prometheus.MustRegister(FramesDispatched)
        prometheus.MustRegister(SendFailures)
        prometheus.MustRegister(GRPCConnDials)
        prometheus.MustRegister(GRPCConnReuse)
        prometheus.MustRegister(GRPCConnEvictions)
        prometheus.MustRegister(GRPCConnActive)
    })
}
