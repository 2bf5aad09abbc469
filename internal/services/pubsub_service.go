package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// EventsChannel carries operational events for dashboards and alerting.
const EventsChannel = "assistant:events"

// EventPublisher emits operational events. The nil publisher is valid and
// drops everything, so the engine runs fine without Redis.
type EventPublisher interface {
	Publish(eventType string, payload map[string]interface{})
}

// OperationalEvent is the wire shape on the events channel.
type OperationalEvent struct {
	Type      string                 `json:"type"` // e.g. "memory_write_failed", "cleanup_completed"
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// PubSubService publishes operational events over Redis.
type PubSubService struct {
	client *redis.Client
}

// NewPubSubService connects to Redis and returns a publisher, or nil when
// redisURL is empty. Connection failure is non-fatal; the caller decides.
func NewPubSubService(redisURL string) (*PubSubService, error) {
	if redisURL == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	log.Println("✅ Redis connected for operational events")
	return &PubSubService{client: client}, nil
}

// Publish sends an event on the events channel. Best-effort: publish
// failures log and are otherwise ignored.
func (s *PubSubService) Publish(eventType string, payload map[string]interface{}) {
	if s == nil || s.client == nil {
		return
	}

	event := OperationalEvent{
		Type:      eventType,
		Payload:   payload,
		Timestamp: time.Now(),
	}

	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("⚠️ [PUBSUB] Failed to marshal event %s: %v", eventType, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.client.Publish(ctx, EventsChannel, data).Err(); err != nil {
		log.Printf("⚠️ [PUBSUB] Failed to publish %s: %v", eventType, err)
	}
}

// Close releases the Redis connection.
func (s *PubSubService) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}
