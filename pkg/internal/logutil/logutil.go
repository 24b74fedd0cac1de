package logutil

import (
    "encoding/json"
    "fmt"
    "log"
    "os"
    "sync/atomic"
    "time"
)

// jsonMode switches output to one JSON object per line, for collectors that
// ingest structured logs. Toggled by env at init or SetJSON at runtime.
var jsonMode atomic.Bool

func init() {
    if os.Getenv("RELAY_LOG_JSON") == "1" || os.Getenv("RELAY_LOG_FORMAT") == "json" {
        jsonMode.Store(true)
    }
}

func SetJSON(enabled bool) { jsonMode.Store(enabled) }

func Infof(l *log.Logger, f string, args ...any)  { logf(l, "info", f, args...) }
func Warnf(l *log.Logger, f string, args ...any)  { logf(l, "warn", f, args...) }
func Errorf(l *log.Logger, f string, args ...any) { logf(l, "error", f, args...) }

var prefixes = map[string]string{"info": "INFO ", "warn": "WARN ", "error": "ERROR "}

func logf(l *log.Logger, level, f string, args ...any) {
    if l == nil { l = log.Default() }
    if !jsonMode.Load() {
        p, ok := prefixes[level]
        if !ok { p = "ERROR " }
        log.New(l.Writer(), p, l.Flags()).Printf(f, args...)
        return
    }
    b, _ := json.Marshal(map[string]any{
        "ts":    time.Now().UTC().Format(time.RFC3339Nano),
        "level": level,
        "msg":   fmt.Sprintf(f, args...),
    })
    l.Println(string(b))
}
