package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "session:"

// RedisStore keeps sessions as JSON values with a native TTL.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) Create(ctx context.Context, id string, st State, ttl time.Duration) error {
	b, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	ok, err := s.rdb.SetNX(ctx, keyPrefix+id, b, ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("session id collision")
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (State, error) {
	raw, err := s.rdb.Get(ctx, keyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return State{}, ErrNotFound
	}
	if err != nil {
		return State{}, err
	}

	var st State
	if err := json.Unmarshal(raw, &st); err != nil {
		return State{}, fmt.Errorf("decode session: %w", err)
	}
	return st, nil
}

func (s *RedisStore) Save(ctx context.Context, id string, st State) error {
	b, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	// XX: only overwrite an existing key; KeepTTL: expiry stays absolute
	ok, err := s.rdb.SetXX(ctx, keyPrefix+id, b, redis.KeepTTL).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	return s.rdb.Del(ctx, keyPrefix+id).Err()
}

// NewRedisClient creates and pings a Redis client.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return rdb, nil
}
