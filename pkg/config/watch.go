package config

import (
    "context"
    "path/filepath"
    "time"

    "github.com/fsnotify/fsnotify"

    "github.com/CePeU/foundryvtt-rest-api/pkg/internal/logutil"
)

// Watch reloads the settings file whenever it changes on disk. It watches
// the parent directory rather than the file itself so editors that replace
// the file (rename-over-write) keep triggering. Events are debounced; a
// burst of writes causes a single reload.
//
// Watch blocks until ctx is cancelled. It is a no-op when the store was
// loaded without a file path.
func (s *Settings) Watch(ctx context.Context) error {
    if s.path == "" {
        <-ctx.Done()
        return nil
    }
    watcher, err := fsnotify.NewWatcher()
    if err != nil {
        return err
    }
    defer watcher.Close()

    dir := filepath.Dir(s.path)
    if err := watcher.Add(dir); err != nil {
        return err
    }
    target := filepath.Clean(s.path)

    var debounce *time.Timer
    defer func() {
        if debounce != nil { debounce.Stop() }
    }()

    for {
        select {
        case <-ctx.Done():
            return nil
        case ev, ok := <-watcher.Events:
            if !ok {
                return nil
            }
            if filepath.Clean(ev.Name) != target {
                continue
            }
            if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
                continue
            }
            if debounce != nil {
                debounce.Stop()
            }
            debounce = time.AfterFunc(200*time.Millisecond, func() {
                if err := s.Reload(); err != nil {
                    logutil.Warnf(s.logger, "config: reload %s failed: %v", s.path, err)
                    return
                }
                logutil.Infof(s.logger, "config: reloaded %s", s.path)
            })
        case err, ok := <-watcher.Errors:
            if !ok {
                return nil
            }
            logutil.Warnf(s.logger, "config: watch error: %v", err)
        }
    }
}
