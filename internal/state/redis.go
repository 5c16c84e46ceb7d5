package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/agisilaos/farewatch/internal/model"
	"github.com/redis/go-redis/v9"
)

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// redisClient is the part of *redis.Client the store uses.
type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

type RedisStore struct {
	client redisClient
	prefix string
}

func NewRedisStore(cfg RedisConfig) *RedisStore {
	return &RedisStore{
		client: redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}),
		prefix: "farewatch",
	}
}

func (s *RedisStore) Load(ctx context.Context, route string) (model.DealState, error) {
	data, err := s.client.Get(ctx, s.key(route)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return model.DealState{}, nil
		}
		return model.DealState{}, err
	}
	var st model.DealState
	if err := json.Unmarshal(data, &st); err != nil {
		return model.DealState{}, fmt.Errorf("decode deal state %s: %w", route, err)
	}
	return st, nil
}

// Save stores the state without expiry; it is reset only by an operator.
func (s *RedisStore) Save(ctx context.Context, route string, st model.DealState) error {
	payload, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(route), payload, 0).Err()
}

func (s *RedisStore) Reset(ctx context.Context, route string) error {
	return s.client.Del(ctx, s.key(route)).Err()
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) key(route string) string {
	return fmt.Sprintf("%s:deal:%s", s.prefix, route)
}

var _ Store = (*RedisStore)(nil)
