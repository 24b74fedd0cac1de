package ws

import (
    "context"
    "crypto/tls"
    "errors"
    "fmt"
    "log"
    "net/url"
    "sync"
    "time"

    "github.com/gorilla/websocket"

    "github.com/CePeU/foundryvtt-rest-api/pkg/transport"
)

// Dialer establishes websocket relay connections. Connection parameters are
// appended to the endpoint URL as query values; the relay server identifies
// the world and client from them.
type Dialer struct {
    logger           *log.Logger
    tlsCfg           *tls.Config
    handshakeTimeout time.Duration
}

// NewDialer constructs a websocket dialer.
func NewDialer(logger *log.Logger) *Dialer {
    if logger == nil { logger = log.Default() }
    return &Dialer{logger: logger, handshakeTimeout: 5 * time.Second}
}

// UseTLS sets the TLS config used for wss endpoints.
func (d *Dialer) UseTLS(cfg *tls.Config) *Dialer { d.tlsCfg = cfg; return d }

// Dial opens a websocket connection to rawURL with the given parameters. The
// context bounds the whole handshake; the caller treats expiry as a failed
// attempt.
func (d *Dialer) Dial(ctx context.Context, rawURL string, p transport.ConnectParams) (transport.Socket, error) {
    u, err := url.Parse(rawURL)
    if err != nil {
        return nil, fmt.Errorf("ws: invalid relay url %q: %w", rawURL, err)
    }
    q := u.Query()
    setIf := func(k, v string) {
        if v != "" { q.Set(k, v) }
    }
    setIf("id", p.ClientID)
    setIf("token", p.Token)
    setIf("world", p.WorldID)
    setIf("worldTitle", p.WorldTitle)
    setIf("version", p.HostVersion)
    setIf("system", p.SystemID)
    setIf("systemTitle", p.SystemTitle)
    setIf("systemVersion", p.SystemVersion)
    setIf("customName", p.DisplayName)
    u.RawQuery = q.Encode()

    wd := websocket.Dialer{
        HandshakeTimeout: d.handshakeTimeout,
        TLSClientConfig:  d.tlsCfg,
    }
    conn, _, err := wd.DialContext(ctx, u.String(), nil)
    if err != nil {
        return nil, err
    }

    s := &socket{
        conn:   conn,
        frames: make(chan []byte, 64),
        logger: d.logger,
    }
    go s.readPump()
    return s, nil
}

// socket wraps one gorilla connection. Reads are owned by the pump goroutine;
// writes are serialized by a mutex as required by the library.
type socket struct {
    conn   *websocket.Conn
    frames chan []byte
    logger *log.Logger

    wmu sync.Mutex // serializes writes including the close frame

    mu     sync.Mutex
    info   transport.CloseInfo
    closed bool
}

func (s *socket) Frames() <-chan []byte { return s.frames }

func (s *socket) Send(data []byte) error {
    s.wmu.Lock()
    defer s.wmu.Unlock()
    return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *socket) Close(code int, reason string) error {
    s.mu.Lock()
    if s.closed {
        s.mu.Unlock()
        return nil
    }
    s.closed = true
    s.info = transport.CloseInfo{Code: code, Reason: reason}
    s.mu.Unlock()

    // Best-effort close handshake, then tear the connection down so the read
    // pump unblocks.
    s.wmu.Lock()
    _ = s.conn.WriteControl(websocket.CloseMessage,
        websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
    s.wmu.Unlock()
    return s.conn.Close()
}

func (s *socket) CloseInfo() transport.CloseInfo {
    s.mu.Lock()
    defer s.mu.Unlock()
    return s.info
}

func (s *socket) readPump() {
    defer close(s.frames)
    for {
        _, data, err := s.conn.ReadMessage()
        if err != nil {
            s.recordClose(err)
            return
        }
        s.frames <- data
    }
}

// recordClose translates the read error into a CloseInfo unless Close already
// recorded an intentional one.
func (s *socket) recordClose(err error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    if s.closed {
        return
    }
    s.closed = true
    var ce *websocket.CloseError
    if errors.As(err, &ce) {
        s.info = transport.CloseInfo{Code: ce.Code, Reason: ce.Text}
        return
    }
    // Read errors without a close frame count as abnormal closure.
    s.info = transport.CloseInfo{Code: transport.CloseAbnormal, Reason: err.Error()}
}

var _ transport.Socket = (*socket)(nil)
var _ transport.Dialer = (*Dialer)(nil)
