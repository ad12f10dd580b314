package chat

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisAnswerCache caches first-turn answers in Redis.  Cache errors are
// logged and treated as misses.
type RedisAnswerCache struct {
	client   *redis.Client
	prefix   string
	ttl      time.Duration
	maxBytes int
	log      *zap.Logger
}

func NewRedisAnswerCache(client *redis.Client, prefix string, ttl time.Duration, maxBytes int, log *zap.Logger) *RedisAnswerCache {
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisAnswerCache{client: client, prefix: prefix + ":chat:", ttl: ttl, maxBytes: maxBytes, log: log}
}

func (c *RedisAnswerCache) Get(ctx context.Context, key string) (string, bool) {
	v, err := c.client.Get(ctx, c.prefix+key).Result()
	if err != nil {
		if err != redis.Nil {
			c.log.Debug("answer cache get failed", zap.Error(err))
		}
		return "", false
	}
	return v, true
}

func (c *RedisAnswerCache) Set(ctx context.Context, key, answer string) {
	if c.maxBytes > 0 && len(answer) > c.maxBytes {
		return
	}
	if err := c.client.Set(ctx, c.prefix+key, answer, c.ttl).Err(); err != nil {
		c.log.Debug("answer cache set failed", zap.Error(err))
	}
}
