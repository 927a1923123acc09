// Package rediscache keeps computed leaderboards in Redis.
package rediscache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/fantakombat/backend/core"
	"github.com/fantakombat/backend/core/scoring"
)

const rankingPrefix = "fantakombat:ranking:"

// RankingCache stores leaderboards as JSON strings that expire after ttl.
type RankingCache struct {
	client *redis.Client
	ttl    time.Duration
}

var _ scoring.RankingCache = (*RankingCache)(nil) // interface compliance check

func NewRankingCache(client *redis.Client, ttl time.Duration) *RankingCache {
	return &RankingCache{client: client, ttl: ttl}
}

// Open connects to the Redis server at conf.URL and checks that it answers.
func Open(ctx context.Context, conf core.RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(conf.URL)
	if err != nil {
		return nil, errors.Wrap(err, "parsing redis url")
	}
	client := redis.NewClient(opts)
	if err = client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "pinging redis")
	}
	return client, nil
}

func rankingKey(key string) string {
	return rankingPrefix + key
}

func (c *RankingCache) Get(ctx context.Context, key string) ([]scoring.RankedEntry, bool, error) {
	data, err := c.client.Get(ctx, rankingKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "reading ranking %q", key)
	}

	var entries []scoring.RankedEntry
	if err = json.Unmarshal(data, &entries); err != nil {
		return nil, false, errors.Wrapf(err, "decoding ranking %q", key)
	}
	return entries, true, nil
}

func (c *RankingCache) Set(ctx context.Context, key string, entries []scoring.RankedEntry) error {
	if entries == nil {
		entries = []scoring.RankedEntry{}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return errors.Wrapf(err, "encoding ranking %q", key)
	}
	if err = c.client.Set(ctx, rankingKey(key), data, c.ttl).Err(); err != nil {
		return errors.Wrapf(err, "writing ranking %q", key)
	}
	return nil
}

func (c *RankingCache) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	redisKeys := make([]string, 0, len(keys))
	for _, key := range keys {
		redisKeys = append(redisKeys, rankingKey(key))
	}
	if err := c.client.Del(ctx, redisKeys...).Err(); err != nil {
		return errors.Wrap(err, "invalidating rankings")
	}
	return nil
}

func (c *RankingCache) PingContext(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
