package cli

import (
    "context"
    "crypto/tls"
    "encoding/json"
    "fmt"
    "log"
    "os"
    "os/signal"
    "syscall"
    "time"

    "github.com/spf13/cobra"

    "github.com/CePeU/foundryvtt-rest-api/pkg/bootstrap"
    tracing "github.com/CePeU/foundryvtt-rest-api/pkg/observability/tracing"
    tlsx "github.com/CePeU/foundryvtt-rest-api/pkg/security/tlsconfig"
    "github.com/CePeU/foundryvtt-rest-api/pkg/transport"
    mgmtgrpc "github.com/CePeU/foundryvtt-rest-api/pkg/transport/grpc"
    httpjson "github.com/CePeU/foundryvtt-rest-api/pkg/transport/httpjson"
)

// AddAll attaches relay subcommands (run/status/connect/disconnect/send/events)
// to the provided root command.
func AddAll(root *cobra.Command) {
    root.AddCommand(NewRunCmd())
    root.AddCommand(NewStatusCmd())
    root.AddCommand(NewConnectCmd())
    root.AddCommand(NewDisconnectCmd())
    root.AddCommand(NewSendCmd())
    root.AddCommand(NewEventsCmd())
}

// NewRelayCommand returns a parent command "relay" containing all subcommands.
func NewRelayCommand() *cobra.Command {
    parent := &cobra.Command{Use: "relay", Short: "relay agent commands"}
    AddAll(parent)
    return parent
}

type tlsFlags struct {
    enable, skip                  bool
    ca, cert, key, serverName     string
}

func (f *tlsFlags) register(cmd *cobra.Command) {
    cmd.Flags().BoolVar(&f.enable, "tls-enable", false, "enable TLS for management transport")
    cmd.Flags().StringVar(&f.ca, "tls-ca", "", "path to CA cert (PEM)")
    cmd.Flags().StringVar(&f.cert, "tls-cert", "", "path to client certificate (PEM)")
    cmd.Flags().StringVar(&f.key, "tls-key", "", "path to client private key (PEM)")
    cmd.Flags().BoolVar(&f.skip, "tls-skip-verify", false, "skip server cert verification (DEV ONLY)")
    cmd.Flags().StringVar(&f.serverName, "tls-server-name", "", "expected server name (for TLS validation)")
}

func (f *tlsFlags) clientConfig() (*tls.Config, error) {
    if !f.enable { return nil, nil }
    topts := tlsx.Options{Enable: true, CAFile: f.ca, CertFile: f.cert, KeyFile: f.key, InsecureSkipVerify: f.skip, ServerName: f.serverName}
    return topts.Client()
}

func newMgmtClient(proto string, timeout time.Duration, cliTLS *tls.Config) transport.RPCClient {
    switch proto {
    case "grpc":
        cli := mgmtgrpc.NewClient(timeout)
        if cliTLS != nil { cli.UseTLS(cliTLS) }
        return cli
    default:
        cli := httpjson.NewClient(timeout)
        if cliTLS != nil { cli.UseTLS(cliTLS) }
        return cli
    }
}

// NewRunCmd returns the "run" command used to start a relay agent.
func NewRunCmd() *cobra.Command {
    var (
        id, role, relayURL, token, configFile                 string
        rosterKind, peersCSV, memBind, memAdv                 string
        seedsCSV, seedsDNS, seedsFile                         string
        mgmtAddr, mgmtProto                                   string
        traceEnable                                           bool
        tf                                                    tlsFlags
    )
    cmd := &cobra.Command{
        Use:   "run",
        Short: "Run a relay agent",
        RunE: func(cmd *cobra.Command, args []string) error {
            if id == "" { return fmt.Errorf("missing --id") }
            ctx, cancel := signalContext()
            defer cancel()

            if traceEnable {
                shutdown, err := tracing.Setup(true)
                if err != nil {
                    log.Printf("tracing setup error: %v", err)
                } else {
                    defer func() { _ = shutdown(context.Background()) }()
                }
            }

            cfg := bootstrap.Config{
                ClientID:      id,
                Role:          role,
                RelayURL:      relayURL,
                Token:         token,
                ConfigFile:    configFile,
                RosterKind:    rosterKind,
                PeersCSV:      peersCSV,
                MemBind:       memBind,
                MemAdv:        memAdv,
                SeedsCSV:      seedsCSV,
                SeedsDNS:      seedsDNS,
                SeedsFile:     seedsFile,
                MgmtAddr:      mgmtAddr,
                MgmtProto:     mgmtProto,
                TLSEnable:     tf.enable,
                TLSCA:         tf.ca,
                TLSCert:       tf.cert,
                TLSKey:        tf.key,
                TLSServerName: tf.serverName,
                TLSSkipVerify: tf.skip,
                Logger:        log.Default(),
            }
            ag, err := bootstrap.Run(ctx, cfg)
            if err != nil { return err }
            defer ag.Manager.Close()

            fmt.Println("relay agent running. Press Ctrl+C to exit.")
            <-ctx.Done()
            return nil
        },
    }
    cmd.Flags().StringVar(&id, "id", "", "client id (required)")
    cmd.Flags().StringVar(&role, "role", "gamemaster", "privilege tier: player|trusted|assistant|gamemaster")
    cmd.Flags().StringVar(&relayURL, "relay-url", "", "relay server URL (ws:// or wss://); overrides config file")
    cmd.Flags().StringVar(&token, "token", "", "relay API token; overrides config file")
    cmd.Flags().StringVar(&configFile, "config", "", "path to YAML settings file (watched for changes)")
    cmd.Flags().StringVar(&rosterKind, "roster", "static", "roster backend: static|memberlist")
    cmd.Flags().StringVar(&peersCSV, "peers", "", "static roster seed list, comma-separated id=role pairs")
    cmd.Flags().StringVar(&memBind, "mem-bind", ":7946", "memberlist bind addr (host:port)")
    cmd.Flags().StringVar(&memAdv, "mem-adv", "", "memberlist advertise addr (host:port, optional)")
    cmd.Flags().StringVar(&seedsCSV, "join", "", "comma-separated memberlist seed nodes (host:port)")
    cmd.Flags().StringVar(&seedsDNS, "join-dns", "", "memberlist seeds from DNS names (SRV or A/AAAA), comma-separated")
    cmd.Flags().StringVar(&seedsFile, "join-file", "", "memberlist seeds from a file or glob, one per line")
    cmd.Flags().StringVar(&mgmtAddr, "mgmt-addr", ":17920", "management address (tcp); empty disables")
    cmd.Flags().StringVar(&mgmtProto, "mgmt-proto", "http", "management RPC protocol: http|grpc")
    cmd.Flags().BoolVar(&traceEnable, "trace", false, "enable OpenTelemetry stdout tracing (dev)")
    tf.register(cmd)
    return cmd
}

// NewStatusCmd returns the "status" command.
func NewStatusCmd() *cobra.Command {
    var (
        addr, mgmtProto string
        timeout         time.Duration
        tf              tlsFlags
    )
    cmd := &cobra.Command{
        Use:   "status",
        Short: "Fetch agent status as JSON",
        RunE: func(cmd *cobra.Command, args []string) error {
            cliTLS, err := tf.clientConfig()
            if err != nil { return fmt.Errorf("tls client config: %w", err) }
            client := newMgmtClient(mgmtProto, timeout, cliTLS)
            ctx, cancel := context.WithTimeout(context.Background(), timeout)
            defer cancel()
            data, err := client.GetStatus(ctx, addr)
            if err != nil { return fmt.Errorf("status error: %w", err) }
            os.Stdout.Write(data)
            if len(data) == 0 || data[len(data)-1] != '\n' { os.Stdout.Write([]byte("\n")) }
            return nil
        },
    }
    cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:17920", "management address of the agent (host:port)")
    cmd.Flags().StringVar(&mgmtProto, "mgmt-proto", "http", "management RPC protocol: http|grpc")
    cmd.Flags().DurationVar(&timeout, "timeout", 3*time.Second, "request timeout")
    tf.register(cmd)
    return cmd
}

// NewConnectCmd returns the "connect" command.
func NewConnectCmd() *cobra.Command {
    var (
        addr, mgmtProto string
        timeout         time.Duration
        tf              tlsFlags
    )
    cmd := &cobra.Command{
        Use:   "connect",
        Short: "Ask the agent to open its relay connection",
        RunE: func(cmd *cobra.Command, args []string) error {
            cliTLS, err := tf.clientConfig()
            if err != nil { return fmt.Errorf("tls client config: %w", err) }
            client := newMgmtClient(mgmtProto, timeout, cliTLS)
            ctx, cancel := context.WithTimeout(context.Background(), timeout)
            defer cancel()
            resp, err := client.PostConnect(ctx, addr, transport.ConnectRequest{})
            if err != nil { return fmt.Errorf("connect error: %w", err) }
            return json.NewEncoder(os.Stdout).Encode(resp)
        },
    }
    cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:17920", "management address of the agent (host:port)")
    cmd.Flags().StringVar(&mgmtProto, "mgmt-proto", "http", "management RPC protocol: http|grpc")
    cmd.Flags().DurationVar(&timeout, "timeout", 3*time.Second, "request timeout")
    tf.register(cmd)
    return cmd
}

// NewDisconnectCmd returns the "disconnect" command.
func NewDisconnectCmd() *cobra.Command {
    var (
        addr, mgmtProto string
        timeout         time.Duration
        tf              tlsFlags
    )
    cmd := &cobra.Command{
        Use:   "disconnect",
        Short: "Ask the agent to close its relay connection",
        RunE: func(cmd *cobra.Command, args []string) error {
            cliTLS, err := tf.clientConfig()
            if err != nil { return fmt.Errorf("tls client config: %w", err) }
            client := newMgmtClient(mgmtProto, timeout, cliTLS)
            ctx, cancel := context.WithTimeout(context.Background(), timeout)
            defer cancel()
            resp, err := client.PostDisconnect(ctx, addr, transport.DisconnectRequest{})
            if err != nil { return fmt.Errorf("disconnect error: %w", err) }
            return json.NewEncoder(os.Stdout).Encode(resp)
        },
    }
    cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:17920", "management address of the agent (host:port)")
    cmd.Flags().StringVar(&mgmtProto, "mgmt-proto", "http", "management RPC protocol: http|grpc")
    cmd.Flags().DurationVar(&timeout, "timeout", 3*time.Second, "request timeout")
    tf.register(cmd)
    return cmd
}

// NewSendCmd returns the "send" command, forwarding one envelope through the
// agent's live connection.
func NewSendCmd() *cobra.Command {
    var (
        addr, mgmtProto, envelope string
        timeout                   time.Duration
        tf                        tlsFlags
    )
    cmd := &cobra.Command{
        Use:   "send",
        Short: "Send one wire envelope via the agent",
        RunE: func(cmd *cobra.Command, args []string) error {
            if envelope == "" { return fmt.Errorf("missing --envelope") }
            if !json.Valid([]byte(envelope)) { return fmt.Errorf("--envelope is not valid JSON") }
            cliTLS, err := tf.clientConfig()
            if err != nil { return fmt.Errorf("tls client config: %w", err) }
            client := newMgmtClient(mgmtProto, timeout, cliTLS)
            ctx, cancel := context.WithTimeout(context.Background(), timeout)
            defer cancel()
            resp, err := client.PostSend(ctx, addr, transport.SendRequest{Envelope: json.RawMessage(envelope)})
            if err != nil { return fmt.Errorf("send error: %w", err) }
            return json.NewEncoder(os.Stdout).Encode(resp)
        },
    }
    cmd.Flags().StringVar(&envelope, "envelope", "", `wire envelope JSON, e.g. '{"type":"world-request"}'`)
    cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:17920", "management address of the agent (host:port)")
    cmd.Flags().StringVar(&mgmtProto, "mgmt-proto", "http", "management RPC protocol: http|grpc")
    cmd.Flags().DurationVar(&timeout, "timeout", 3*time.Second, "request timeout")
    tf.register(cmd)
    return cmd
}

// NewEventsCmd returns the "events" command, streaming agent lifecycle events
// to stdout (gRPC management only).
func NewEventsCmd() *cobra.Command {
    var (
        addr string
        tf   tlsFlags
    )
    cmd := &cobra.Command{
        Use:   "events",
        Short: "Stream agent lifecycle events (requires --mgmt-proto=grpc agent)",
        RunE: func(cmd *cobra.Command, args []string) error {
            cliTLS, err := tf.clientConfig()
            if err != nil { return fmt.Errorf("tls client config: %w", err) }
            cli := mgmtgrpc.NewClient(5 * time.Second)
            if cliTLS != nil { cli.UseTLS(cliTLS) }
            ctx, cancel := signalContext()
            defer cancel()
            err = cli.Subscribe(ctx, addr, func(event []byte) {
                os.Stdout.Write(event)
                os.Stdout.Write([]byte("\n"))
            })
            if err != nil && ctx.Err() == nil {
                return fmt.Errorf("events stream error: %w", err)
            }
            return nil
        },
    }
    cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:17920", "management gRPC address of the agent (host:port)")
    tf.register(cmd)
    return cmd
}

func signalContext() (context.Context, context.CancelFunc) {
    ctx, cancel := context.WithCancel(context.Background())
    go func() {
        ch := make(chan os.Signal, 1)
        signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
        <-ch
        cancel()
    }()
    return ctx, cancel
}
