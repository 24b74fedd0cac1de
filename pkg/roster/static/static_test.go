package static

import (
    "testing"

    base "github.com/CePeU/foundryvtt-rest-api/pkg/roster"
)

func TestUpsertEmitsJoinThenUpdate(t *testing.T) {
    s, err := New("gm-1")
    if err != nil {
        t.Fatalf("new: %v", err)
    }
    defer s.Stop()
    if err := s.Upsert(base.PeerInfo{ID: "gm-1", Role: base.RoleGamemaster, Active: true}); err != nil {
        t.Fatalf("upsert: %v", err)
    }
    ev := <-s.Events()
    if ev.Type != base.EventJoin || ev.Peer.ID != "gm-1" {
        t.Fatalf("event = %+v, want join gm-1", ev)
    }
    if err := s.Upsert(base.PeerInfo{ID: "gm-1", Role: base.RoleAssistant, Active: true}); err != nil {
        t.Fatalf("re-upsert: %v", err)
    }
    ev = <-s.Events()
    if ev.Type != base.EventUpdate || ev.Peer.Role != base.RoleAssistant {
        t.Fatalf("event = %+v, want update with assistant role", ev)
    }
}

func TestSetActiveEmitsLeaveAndJoin(t *testing.T) {
    s, err := New("gm-1", base.PeerInfo{ID: "p-1", Role: base.RolePlayer, Active: true})
    if err != nil {
        t.Fatalf("new: %v", err)
    }
    defer s.Stop()
    if err := s.SetActive("p-1", false); err != nil {
        t.Fatalf("deactivate: %v", err)
    }
    if ev := <-s.Events(); ev.Type != base.EventLeave {
        t.Fatalf("event = %+v, want leave", ev)
    }
    // Idempotent: no event for a no-op flip.
    if err := s.SetActive("p-1", false); err != nil {
        t.Fatalf("repeat deactivate: %v", err)
    }
    if err := s.SetActive("p-1", true); err != nil {
        t.Fatalf("reactivate: %v", err)
    }
    if ev := <-s.Events(); ev.Type != base.EventJoin {
        t.Fatalf("event = %+v, want join", ev)
    }
    if err := s.SetActive("ghost", true); err == nil {
        t.Fatalf("expected error for unknown peer")
    }
}

func TestPeersSortedAndLocal(t *testing.T) {
    s, err := New("b",
        base.PeerInfo{ID: "c", Role: base.RolePlayer, Active: true},
        base.PeerInfo{ID: "a", Role: base.RoleGamemaster, Active: true},
        base.PeerInfo{ID: "b", Role: base.RoleGamemaster, Active: true},
    )
    if err != nil {
        t.Fatalf("new: %v", err)
    }
    defer s.Stop()
    peers := s.Peers()
    if len(peers) != 3 || peers[0].ID != "a" || peers[2].ID != "c" {
        t.Fatalf("peers = %+v, want sorted a,b,c", peers)
    }
    if got := s.Local(); got.ID != "b" || got.Role != base.RoleGamemaster {
        t.Fatalf("local = %+v", got)
    }
}

func TestRemoveEmitsLeave(t *testing.T) {
    s, err := New("gm-1", base.PeerInfo{ID: "p-1", Role: base.RolePlayer, Active: true})
    if err != nil {
        t.Fatalf("new: %v", err)
    }
    defer s.Stop()
    if err := s.Remove("p-1"); err != nil {
        t.Fatalf("remove: %v", err)
    }
    ev := <-s.Events()
    if ev.Type != base.EventLeave || ev.Peer.Active {
        t.Fatalf("event = %+v, want leave of inactive peer", ev)
    }
    if len(s.Peers()) != 0 {
        t.Fatalf("peers = %+v, want empty", s.Peers())
    }
    // Removing an unknown peer is not an error.
    if err := s.Remove("p-1"); err != nil {
        t.Fatalf("second remove: %v", err)
    }
}

func TestParseSeedList(t *testing.T) {
    peers := Parse(" gm-1=gamemaster , helper=assistant, p9=player ,, =trusted, bare ")
    if len(peers) != 4 {
        t.Fatalf("parsed %d peers, want 4: %+v", len(peers), peers)
    }
    if peers[0].ID != "gm-1" || peers[0].Role != base.RoleGamemaster {
        t.Fatalf("first = %+v", peers[0])
    }
    if peers[1].Role != base.RoleAssistant || peers[2].Role != base.RolePlayer {
        t.Fatalf("roles = %+v", peers)
    }
    // Entry without a role defaults to gamemaster.
    if peers[3].ID != "bare" || peers[3].Role != base.RoleGamemaster {
        t.Fatalf("bare = %+v", peers[3])
    }
    if Parse("") != nil {
        t.Fatalf("empty csv should parse to nil")
    }
}
