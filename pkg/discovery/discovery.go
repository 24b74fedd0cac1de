package discovery

// Discovery abstracts how gossip seed addresses for the peer roster are
// provided. Implementations may return a fixed list or resolve one lazily
// (DNS, file) on each call.
type Discovery interface {
    Seeds() []string
}
