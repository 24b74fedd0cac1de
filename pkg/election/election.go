package election

import (
    "sort"

    "github.com/CePeU/foundryvtt-rest-api/pkg/roster"
)

// Evaluate reports whether selfID is the elected peer of the given roster.
//
// The elected peer is computed deterministically: among the active peers at
// the highest privilege tier present, the lexicographically smallest
// identifier wins. Inactive peers and lower tiers never participate. The
// result is invariant under reordering of the input and the function has no
// side effects, so it is cheap to re-run on every roster change.
func Evaluate(peers []roster.PeerInfo, selfID string) bool {
    id, ok := Winner(peers)
    return ok && id == selfID
}

// Winner returns the identifier of the elected peer, or ok=false when no
// active peer exists. Ties are impossible because identifiers are unique.
func Winner(peers []roster.PeerInfo) (string, bool) {
    var top roster.Role
    for _, p := range peers {
        if p.Active && p.Role > top {
            top = p.Role
        }
    }
    if top == 0 {
        return "", false
    }
    ids := make([]string, 0, len(peers))
    for _, p := range peers {
        if p.Active && p.Role == top {
            ids = append(ids, p.ID)
        }
    }
    sort.Strings(ids)
    return ids[0], true
}
