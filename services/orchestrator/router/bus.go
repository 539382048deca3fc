package router

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"grievancebot/services/models"
)

// RedisBus publishes frames on response:<widget_id> and appends envelopes
// to the inbound stream.
type RedisBus struct {
	rdb *redis.Client
}

func NewRedisBus(rdb *redis.Client) *RedisBus {
	return &RedisBus{rdb: rdb}
}

func (b *RedisBus) Publish(ctx context.Context, widgetID string, resp models.WSResponse) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("failed to marshal response: %w", err)
	}
	return b.rdb.Publish(ctx, models.ResponseChannel(widgetID), string(data)).Err()
}

func (b *RedisBus) Enqueue(ctx context.Context, env models.MessageEnvelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}
	return b.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: models.StreamKey,
		Values: map[string]interface{}{"envelope": string(data)},
	}).Err()
}
