package election

import (
    "testing"

    "github.com/CePeU/foundryvtt-rest-api/pkg/roster"
)

func peer(id string, role roster.Role, active bool) roster.PeerInfo {
    return roster.PeerInfo{ID: id, Role: role, Active: active}
}

func TestEvaluate_MinimumIDAtTopTierWins(t *testing.T) {
    peers := []roster.PeerInfo{
        peer("b", roster.RoleGamemaster, true),
        peer("a", roster.RoleGamemaster, true),
        peer("c", roster.RolePlayer, true),
    }
    if !Evaluate(peers, "a") {
        t.Fatalf("expected a to be elected")
    }
    if Evaluate(peers, "b") {
        t.Fatalf("b must not be elected while a is active")
    }
    if Evaluate(peers, "c") {
        t.Fatalf("lower-tier peer must never be elected")
    }
}

func TestEvaluate_IgnoresInactivePeers(t *testing.T) {
    peers := []roster.PeerInfo{
        peer("a", roster.RoleGamemaster, false),
        peer("b", roster.RoleGamemaster, true),
    }
    if Evaluate(peers, "a") {
        t.Fatalf("inactive peer must not be elected")
    }
    if !Evaluate(peers, "b") {
        t.Fatalf("expected b to be elected")
    }
}

func TestEvaluate_LowerTierWinsWhenTopTierAbsent(t *testing.T) {
    peers := []roster.PeerInfo{
        peer("gm", roster.RoleGamemaster, false),
        peer("z", roster.RoleAssistant, true),
        peer("y", roster.RoleAssistant, true),
    }
    id, ok := Winner(peers)
    if !ok || id != "y" {
        t.Fatalf("winner = %q, %v; want y, true", id, ok)
    }
}

func TestEvaluate_EmptyAndAllInactive(t *testing.T) {
    if Evaluate(nil, "a") {
        t.Fatalf("empty roster must elect nobody")
    }
    peers := []roster.PeerInfo{
        peer("a", roster.RoleGamemaster, false),
        peer("b", roster.RolePlayer, false),
    }
    if _, ok := Winner(peers); ok {
        t.Fatalf("all-inactive roster must elect nobody")
    }
}

func TestEvaluate_InvariantUnderReordering(t *testing.T) {
    orders := [][]roster.PeerInfo{
        {peer("c", roster.RoleGamemaster, true), peer("a", roster.RoleGamemaster, true), peer("b", roster.RoleGamemaster, true)},
        {peer("a", roster.RoleGamemaster, true), peer("b", roster.RoleGamemaster, true), peer("c", roster.RoleGamemaster, true)},
        {peer("b", roster.RoleGamemaster, true), peer("c", roster.RoleGamemaster, true), peer("a", roster.RoleGamemaster, true)},
    }
    for i, peers := range orders {
        id, ok := Winner(peers)
        if !ok || id != "a" {
            t.Fatalf("order %d: winner = %q, %v; want a, true", i, id, ok)
        }
    }
}
