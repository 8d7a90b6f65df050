package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"impostor_relay/internal/domain"

	"github.com/redis/go-redis/v9"
)

const leaderboardKey = "impostor:leaderboard"

// кэш таблицы лидеров в redis; сбрасывается после каждой записанной партии
type LeaderboardCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewLeaderboardCache(rdb *redis.Client, ttl time.Duration) *LeaderboardCache {
	return &LeaderboardCache{rdb: rdb, ttl: ttl}
}

// Get возвращает ok=false, если кэша нет
func (c *LeaderboardCache) Get(ctx context.Context) ([]domain.LeaderboardEntry, bool, error) {
	raw, err := c.rdb.Get(ctx, leaderboardKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var out []domain.LeaderboardEntry
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, false, err
	}
	return out, true, nil
}

func (c *LeaderboardCache) Set(ctx context.Context, entries []domain.LeaderboardEntry) error {
	raw, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, leaderboardKey, raw, c.ttl).Err()
}

func (c *LeaderboardCache) Invalidate(ctx context.Context) error {
	return c.rdb.Del(ctx, leaderboardKey).Err()
}
