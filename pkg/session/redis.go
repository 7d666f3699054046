package session

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/classhub/messaging/pkg/apperr"
)

const keyPrefix = "session:"

// RedisStore reads sessions written by the auth service into Redis as
// JSON under "session:<id>".
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(addr string) *RedisStore {
	return &RedisStore{rdb: redis.NewClient(&redis.Options{Addr: addr})}
}

func (s *RedisStore) Get(ctx context.Context, sessionID string) (*Session, error) {
	raw, err := s.rdb.Get(ctx, keyPrefix+sessionID).Result()
	if errors.Is(err, redis.Nil) {
		return nil, apperr.Unauthorized("unknown session")
	}
	if err != nil {
		return nil, apperr.Internal("session lookup failed", err)
	}

	var sess Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		return nil, apperr.Internal("malformed session record", err)
	}
	return &sess, nil
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
