package tlsconfig

import (
    "crypto/tls"
    "crypto/x509"
    "errors"
    "fmt"
    "os"
    "sync"
    "time"
)

// Options defines the TLS inputs for both sides of the agent: the wss://
// relay dial (client) and the management endpoint (server).
type Options struct {
    Enable             bool
    CAFile             string
    CertFile           string
    KeyFile            string
    InsecureSkipVerify bool
    ServerName         string
}

const certCacheTTL = 10 * time.Second

func loadPool(path string) (*x509.CertPool, error) {
    ca, err := os.ReadFile(path)
    if err != nil {
        return nil, err
    }
    pool := x509.NewCertPool()
    if !pool.AppendCertsFromPEM(ca) {
        return nil, fmt.Errorf("tls: no certificates parsed from %s", path)
    }
    return pool, nil
}

// certCache reloads a key pair from disk lazily so rotated certificates are
// picked up without restarting the process.
type certCache struct {
    certFile, keyFile string
    mu                sync.RWMutex
    cached            *tls.Certificate
    lastLoad          time.Time
}

func (c *certCache) get() (*tls.Certificate, error) {
    c.mu.RLock()
    if c.cached != nil && time.Since(c.lastLoad) < certCacheTTL {
        cert := *c.cached
        c.mu.RUnlock()
        return &cert, nil
    }
    c.mu.RUnlock()
    cert, err := tls.LoadX509KeyPair(c.certFile, c.keyFile)
    if err != nil {
        return nil, err
    }
    c.mu.Lock()
    c.cached = &cert
    c.lastLoad = time.Now()
    c.mu.Unlock()
    return &cert, nil
}

// Server returns a tls.Config for the management endpoint if enabled,
// otherwise nil. When a CA is given, client certificates are required.
func (o Options) Server() (*tls.Config, error) {
    if !o.Enable {
        return nil, nil
    }
    if o.CertFile == "" || o.KeyFile == "" {
        return nil, errors.New("tls: server cert/key required when TLS enabled")
    }
    cert, err := tls.LoadX509KeyPair(o.CertFile, o.KeyFile)
    if err != nil { return nil, err }
    cfg := &tls.Config{Certificates: []tls.Certificate{cert}}
    if o.CAFile != "" {
        pool, err := loadPool(o.CAFile)
        if err != nil { return nil, err }
        cfg.ClientCAs = pool
        cfg.ClientAuth = tls.RequireAndVerifyClientCert
    }
    return cfg, nil
}

// Client returns a tls.Config for outbound connections (the wss:// relay dial
// and management clients) if enabled, otherwise nil.
func (o Options) Client() (*tls.Config, error) {
    if !o.Enable {
        return nil, nil
    }
    cfg := &tls.Config{InsecureSkipVerify: o.InsecureSkipVerify} //nolint:gosec
    if o.ServerName != "" { cfg.ServerName = o.ServerName }
    if o.CAFile != "" {
        pool, err := loadPool(o.CAFile)
        if err != nil { return nil, err }
        cfg.RootCAs = pool
    }
    if o.CertFile != "" && o.KeyFile != "" {
        cert, err := tls.LoadX509KeyPair(o.CertFile, o.KeyFile)
        if err != nil { return nil, err }
        cfg.Certificates = []tls.Certificate{cert}
    }
    return cfg, nil
}

// ServerHotReload returns a server tls.Config that reloads the certificate
// from disk lazily on handshake to support manual rotation without
// restarting the process. The CA pool is loaded once.
func (o Options) ServerHotReload() (*tls.Config, error) {
    if !o.Enable {
        return nil, nil
    }
    if o.CertFile == "" || o.KeyFile == "" {
        return nil, errors.New("tls: server cert/key required when TLS enabled")
    }
    cfg := &tls.Config{}
    if o.CAFile != "" {
        pool, err := loadPool(o.CAFile)
        if err != nil { return nil, err }
        cfg.ClientCAs = pool
        cfg.ClientAuth = tls.RequireAndVerifyClientCert
    }
    cache := &certCache{certFile: o.CertFile, keyFile: o.KeyFile}
    cfg.GetCertificate = func(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
        return cache.get()
    }
    return cfg, nil
}

// ClientHotReload returns a client tls.Config that reloads the client
// certificate from disk on demand. CA roots are loaded once. This keeps a
// long-lived relay connection able to present fresh certificates after
// rotation when it reconnects.
func (o Options) ClientHotReload() (*tls.Config, error) {
    if !o.Enable { return nil, nil }
    cfg := &tls.Config{InsecureSkipVerify: o.InsecureSkipVerify} //nolint:gosec
    if o.ServerName != "" { cfg.ServerName = o.ServerName }
    if o.CAFile != "" {
        pool, err := loadPool(o.CAFile)
        if err != nil { return nil, err }
        cfg.RootCAs = pool
    }
    if o.CertFile == "" || o.KeyFile == "" {
        return cfg, nil
    }
    cache := &certCache{certFile: o.CertFile, keyFile: o.KeyFile}
    cfg.GetClientCertificate = func(info *tls.CertificateRequestInfo) (*tls.Certificate, error) {
        return cache.get()
    }
    return cfg, nil
}
