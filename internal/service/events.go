package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"

	"github.com/aurumly/payment-reconciler/internal/models"
)

// KafkaPublisher emits status-change events to the transaction.status.changed
// topic, keyed by order id so per-order ordering is preserved.
type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(writer *kafka.Writer) *KafkaPublisher {
	return &KafkaPublisher{writer: writer}
}

func (p *KafkaPublisher) PublishStatusChange(ctx context.Context, event *models.StatusChangedEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal status event: %w", err)
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.OrderID),
		Value: payload,
	})
}

// RedisDeduper tracks notification keys that were fully processed. A present
// key means this notification is a redelivery of handled work; keys are only
// written once processing succeeded.
type RedisDeduper struct {
	client *redis.Client
}

func NewRedisDeduper(client *redis.Client) *RedisDeduper {
	return &RedisDeduper{client: client}
}

func (d *RedisDeduper) Seen(ctx context.Context, key string) (bool, error) {
	n, err := d.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("dedup exists: %w", err)
	}
	return n > 0, nil
}

func (d *RedisDeduper) Record(ctx context.Context, key string, ttl time.Duration) error {
	if err := d.client.SetNX(ctx, key, "1", ttl).Err(); err != nil {
		return fmt.Errorf("dedup setnx: %w", err)
	}
	return nil
}
