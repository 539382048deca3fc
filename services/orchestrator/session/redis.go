package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type redisStore struct {
	rdb *redis.Client
	ttl time.Duration
	now func() time.Time
}

func newRedisStore(rdb *redis.Client, ttl time.Duration, now func() time.Time) *redisStore {
	return &redisStore{rdb: rdb, ttl: ttl, now: now}
}

func (s *redisStore) Create(ctx context.Context, rec *Record) error {
	now := s.now()
	rec.CreatedAt, rec.UpdatedAt, rec.Version = now, now, 1

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	ok, err := s.rdb.SetNX(ctx, key(rec.WidgetID), data, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	if !ok {
		return ErrAlreadyExists
	}
	return nil
}

func (s *redisStore) Get(ctx context.Context, widgetID string) (*Record, error) {
	k := key(widgetID)
	data, err := s.rdb.Get(ctx, k).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	_ = s.rdb.Expire(ctx, k, s.ttl).Err()
	return &rec, nil
}

func (s *redisStore) Update(ctx context.Context, rec *Record) error {
	k := key(rec.WidgetID)
	return s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, k).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to load session: %w", err)
		}

		var stored Record
		if err := json.Unmarshal(data, &stored); err != nil {
			return fmt.Errorf("failed to unmarshal session: %w", err)
		}
		if stored.Version != rec.Version {
			return ErrVersionConflict
		}

		next := *rec
		next.Version++
		next.UpdatedAt = s.now()
		updated, err := json.Marshal(&next)
		if err != nil {
			return fmt.Errorf("failed to marshal session: %w", err)
		}

		if _, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, k, updated, s.ttl)
			return nil
		}); err != nil {
			if errors.Is(err, redis.TxFailedErr) {
				return ErrVersionConflict
			}
			return fmt.Errorf("failed to save session: %w", err)
		}
		rec.Version, rec.UpdatedAt = next.Version, next.UpdatedAt
		return nil
	}, k)
}

func (s *redisStore) Delete(ctx context.Context, widgetID string) error {
	if err := s.rdb.Del(ctx, key(widgetID)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Close is a no-op: the client is shared with the stream consumer and is
// closed by its owner.
func (s *redisStore) Close() error {
	return nil
}
