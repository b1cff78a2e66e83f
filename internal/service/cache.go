package service

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/gym-roster/internal/config"
)

// Invalidator drops cached catalog responses after a write.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// NoopInvalidator is used when no response cache is configured.
type NoopInvalidator struct{}

func (NoopInvalidator) Invalidate(context.Context) error { return nil }

// RedisInvalidator bumps the cache generation and deletes every key under
// the response cache prefix. The bump comes first so a read that started
// before the change cannot store its body afterwards.
type RedisInvalidator struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisInvalidator returns a NoopInvalidator when rdb is nil.
func NewRedisInvalidator(rdb *redis.Client, prefix string) Invalidator {
	if rdb == nil {
		return NoopInvalidator{}
	}
	return &RedisInvalidator{rdb: rdb, prefix: prefix}
}

const invalidateBatch = 200

func (r *RedisInvalidator) Invalidate(ctx context.Context) error {
	if err := r.rdb.Incr(ctx, config.CacheGenerationKey(r.prefix)).Err(); err != nil {
		return err
	}
	iter := r.rdb.Scan(ctx, 0, r.prefix+":*", invalidateBatch).Iterator()
	keys := make([]string, 0, invalidateBatch)
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) == invalidateBatch {
			if err := r.rdb.Del(ctx, keys...).Err(); err != nil {
				return err
			}
			keys = keys[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) > 0 {
		return r.rdb.Del(ctx, keys...).Err()
	}
	return nil
}
