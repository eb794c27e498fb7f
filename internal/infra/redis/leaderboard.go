package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"geeko-live/internal/domain"
)

// LeaderboardMirror keeps a sorted-set copy of each session's standings
// (ZADD session:{id}:leaderboard {score} {userID}) so other instances and
// dashboards can read ranks without touching the primary store. The mirror
// holds scores only; nicknames live with the participants.
type LeaderboardMirror struct {
	client *redis.Client
	ttl    time.Duration
}

func NewLeaderboardMirror(client *redis.Client, ttl time.Duration) *LeaderboardMirror {
	return &LeaderboardMirror{client: client, ttl: ttl}
}

// Publish overwrites the session's sorted set with the given standings.
// Rewriting the whole set keeps kicked participants from lingering.
func (m *LeaderboardMirror) Publish(ctx context.Context, lb domain.Leaderboard) error {
	key := m.key(lb.SessionID)

	members := make([]redis.Z, 0, len(lb.Entries))
	for _, e := range lb.Entries {
		members = append(members, redis.Z{Score: float64(e.TotalScore), Member: e.UserID})
	}

	pipe := m.client.TxPipeline()
	pipe.Del(ctx, key)
	if len(members) > 0 {
		pipe.ZAdd(ctx, key, members...)
	}
	if m.ttl > 0 {
		pipe.Expire(ctx, key, m.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("mirror leaderboard: %w", err)
	}
	return nil
}

// Top reads the mirrored standings, best score first.
func (m *LeaderboardMirror) Top(ctx context.Context, sessionID string) (domain.Leaderboard, error) {
	res, err := m.client.ZRevRangeWithScores(ctx, m.key(sessionID), 0, -1).Result()
	if err != nil {
		return domain.Leaderboard{}, fmt.Errorf("read leaderboard mirror: %w", err)
	}

	entries := make([]domain.LeaderboardEntry, 0, len(res))
	for i, z := range res {
		user, _ := z.Member.(string)
		entries = append(entries, domain.LeaderboardEntry{
			Position:   i + 1,
			UserID:     user,
			TotalScore: int(z.Score),
		})
	}
	return domain.Leaderboard{SessionID: sessionID, Entries: entries}, nil
}

func (m *LeaderboardMirror) key(sessionID string) string {
	return "session:" + sessionID + ":leaderboard"
}
