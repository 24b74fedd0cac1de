package relay

import "errors"

var (
    ErrNotElected = errors.New("relay: not elected")
    ErrStopped    = errors.New("relay: stopped")
)
