package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"geeko-live/internal/domain"
)

func TestLeaderboardMirrorPublishAndTop(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	mirror := NewLeaderboardMirror(newClient(mr), time.Minute)
	ctx := context.Background()

	lb := domain.Leaderboard{
		SessionID: "s1",
		Entries: []domain.LeaderboardEntry{
			{Position: 1, UserID: "alice", TotalScore: 750},
			{Position: 2, UserID: "bob", TotalScore: 200},
		},
	}
	if err := mirror.Publish(ctx, lb); err != nil {
		t.Fatalf("publish: %v", err)
	}

	top, err := mirror.Top(ctx, "s1")
	if err != nil {
		t.Fatalf("top: %v", err)
	}
	if len(top.Entries) != 2 || top.Entries[0].UserID != "alice" || top.Entries[0].TotalScore != 750 {
		t.Fatalf("unexpected standings: %+v", top.Entries)
	}

	// Republishing without bob drops him from the mirror.
	lb.Entries = lb.Entries[:1]
	if err := mirror.Publish(ctx, lb); err != nil {
		t.Fatalf("republish: %v", err)
	}
	top, _ = mirror.Top(ctx, "s1")
	if len(top.Entries) != 1 || top.Entries[0].UserID != "alice" {
		t.Fatalf("expected only alice after rewrite, got %+v", top.Entries)
	}
}
