package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/you-humble/crudkit/internal/envelope"
)

const DefaultKeyPrefix = "job:"

// RedisStore keeps results as plain keys and consumes them with
// GETDEL, which needs Redis 6.2 or newer.
type RedisStore struct {
	rdb    redis.Cmdable
	prefix string
	ttl    time.Duration
}

// NewRedisStore stores results under prefix+id. A zero ttl keeps them
// until taken.
func NewRedisStore(rdb redis.Cmdable, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisStore{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) Take(ctx context.Context, id string) (any, bool, error) {
	if err := ValidateID(id); err != nil {
		return nil, false, err
	}

	raw, err := s.rdb.GetDel(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, envelope.Wrapf(err, envelope.KindIO, "redis GETDEL %s: %v", id, err)
	}

	payload, err := decodePayload(raw)
	if err != nil {
		if rerr := s.rdb.Set(ctx, s.key(id), raw, s.ttl).Err(); rerr != nil {
			err = errors.Join(err, fmt.Errorf("restore record: %w", rerr))
		}
		return nil, false, corrupt(id, err)
	}
	return payload, true, nil
}

func (s *RedisStore) Put(ctx context.Context, id string, payload []byte) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	if !json.Valid(payload) {
		return envelope.Validationf("job %s: payload is not valid JSON", id)
	}
	if err := s.rdb.Set(ctx, s.key(id), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis SET %s: %w", id, err)
	}
	return nil
}

func (s *RedisStore) key(id string) string {
	return s.prefix + id
}
