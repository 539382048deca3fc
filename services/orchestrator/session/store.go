// Package session keeps the working state of live widget conversations.
// Records expire after a TTL and are deleted when the widget closes; the
// store is not a conversation archive.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"grievancebot/services/orchestrator/dialogue"
)

const (
	keyPrefix  = "conversation:"
	defaultTTL = 2 * time.Hour
)

var (
	ErrInvalidConfig    = errors.New("invalid session store configuration")
	ErrInvalidStoreType = errors.New("invalid session store type")
	ErrVersionConflict  = errors.New("session version conflict")
	ErrNotFound         = errors.New("session not found")
	ErrAlreadyExists    = errors.New("session already exists")
)

// Record is the stored state of one widget.
type Record struct {
	WidgetID     string            `json:"widget_id"`
	Conversation *dialogue.Session `json:"conversation"`
	Version      int64             `json:"version"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// Store persists records with optimistic versioning.
type Store interface {
	// Create stores a new record with Version 1.
	Create(ctx context.Context, rec *Record) error
	// Get returns nil, nil when no record exists.
	Get(ctx context.Context, widgetID string) (*Record, error)
	// Update requires rec.Version to match the stored version and bumps it.
	Update(ctx context.Context, rec *Record) error
	Delete(ctx context.Context, widgetID string) error
	Close() error
}

// StoreType selects a driver.
type StoreType string

const (
	StoreTypeMemory StoreType = "memory"
	StoreTypeRedis  StoreType = "redis"
)

// StoreOption configures NewStore.
type StoreOption func(*storeConfig)

type storeConfig struct {
	redisClient *redis.Client
	ttl         time.Duration
	now         func() time.Time
}

// WithRedisClient sets the client used by the Redis driver.
func WithRedisClient(client *redis.Client) StoreOption {
	return func(c *storeConfig) { c.redisClient = client }
}

// WithTTL sets how long an idle record lives.
func WithTTL(ttl time.Duration) StoreOption {
	return func(c *storeConfig) { c.ttl = ttl }
}

// WithClock sets the store clock.
func WithClock(now func() time.Time) StoreOption {
	return func(c *storeConfig) { c.now = now }
}

// NewStore builds a store of the given type.
func NewStore(storeType StoreType, opts ...StoreOption) (Store, error) {
	cfg := &storeConfig{ttl: defaultTTL, now: time.Now}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.ttl <= 0 {
		cfg.ttl = defaultTTL
	}

	switch storeType {
	case StoreTypeMemory:
		return newMemoryStore(cfg.ttl, cfg.now), nil
	case StoreTypeRedis:
		if cfg.redisClient == nil {
			return nil, fmt.Errorf("redis driver needs a client: %w", ErrInvalidConfig)
		}
		return newRedisStore(cfg.redisClient, cfg.ttl, cfg.now), nil
	default:
		return nil, fmt.Errorf("%q: %w", storeType, ErrInvalidStoreType)
	}
}

func key(widgetID string) string {
	return keyPrefix + widgetID
}
