package chat

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

const historyPrefix = "chat:history:"

// HistoryStore keeps the recent turns of each conversation for the HTTP
// layer, which passes them to Gateway.Respond.
type HistoryStore interface {
	Load(ctx context.Context, key string) ([]Turn, error)
	Append(ctx context.Context, key string, t Turn) error
	Clear(ctx context.Context, key string) error
}

// RedisHistory stores each conversation as a capped Redis list with a TTL
// refreshed on every append.
type RedisHistory struct {
	client   *redis.Client
	ttl      time.Duration
	maxTurns int
}

func NewRedisHistory(client *redis.Client, ttl time.Duration, maxTurns int) *RedisHistory {
	return &RedisHistory{client: client, ttl: ttl, maxTurns: maxTurns}
}

func (s *RedisHistory) Load(ctx context.Context, key string) ([]Turn, error) {
	items, err := s.client.LRange(ctx, historyPrefix+key, 0, -1).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	out := make([]Turn, 0, len(items))
	for _, it := range items {
		var t Turn
		if err := json.Unmarshal([]byte(it), &t); err != nil {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *RedisHistory) Append(ctx context.Context, key string, t Turn) error {
	b, err := json.Marshal(t)
	if err != nil {
		return err
	}
	k := historyPrefix + key
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, k, b)
	if s.maxTurns > 0 {
		pipe.LTrim(ctx, k, int64(-s.maxTurns), -1)
	}
	pipe.Expire(ctx, k, s.ttl)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisHistory) Clear(ctx context.Context, key string) error {
	return s.client.Del(ctx, historyPrefix+key).Err()
}

// LocalHistory is the in-process fallback used when Redis is unavailable.
type LocalHistory struct {
	mu       sync.Mutex
	cache    *gocache.Cache
	maxTurns int
}

func NewLocalHistory(ttl time.Duration, maxTurns int) *LocalHistory {
	return &LocalHistory{cache: gocache.New(ttl, 2*ttl), maxTurns: maxTurns}
}

func (s *LocalHistory) Load(_ context.Context, key string) ([]Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.cache.Get(key)
	if !ok {
		return nil, nil
	}
	turns := v.([]Turn)
	return append([]Turn(nil), turns...), nil
}

func (s *LocalHistory) Append(_ context.Context, key string, t Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var turns []Turn
	if v, ok := s.cache.Get(key); ok {
		turns = append(turns, v.([]Turn)...)
	}
	turns = append(turns, t)
	if s.maxTurns > 0 && len(turns) > s.maxTurns {
		turns = turns[len(turns)-s.maxTurns:]
	}
	s.cache.SetDefault(key, turns)
	return nil
}

func (s *LocalHistory) Clear(_ context.Context, key string) error {
	s.cache.Delete(key)
	return nil
}
