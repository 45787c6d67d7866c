package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cassiomorais/coursepay/internal/domain/outbox"
	"github.com/redis/go-redis/v9"
)

const (
	PaymentStream = "coursepay:payments"
	DLQStream     = "coursepay:payments:dlq"
)

// Message is one decoded entry of the payments stream.
type Message struct {
	ID          string
	AttemptID   string
	EventType   string
	Payload     map[string]any
	PublishedAt time.Time
}

type StreamProducer struct {
	client *redis.Client
	stream string
}

func NewStreamProducer(client *redis.Client) *StreamProducer {
	return &StreamProducer{client: client, stream: PaymentStream}
}

// Publish relays an outbox entry to the payments stream.
func (p *StreamProducer) Publish(ctx context.Context, e *outbox.Entry) error {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	_, err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]any{
			"outbox_id":  e.ID.String(),
			"attempt_id": e.AggregateID.String(),
			"event_type": e.EventType,
			"payload":    string(payload),
			"timestamp":  time.Now().Unix(),
		},
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", e.EventType, err)
	}
	return nil
}

// PublishToDLQ parks a message the consumer could not handle.
func (p *StreamProducer) PublishToDLQ(ctx context.Context, msg Message, reason string) error {
	payload, err := json.Marshal(msg.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal DLQ data: %w", err)
	}

	_, err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: DLQStream,
		Values: map[string]any{
			"message_id": msg.ID,
			"attempt_id": msg.AttemptID,
			"event_type": msg.EventType,
			"reason":     reason,
			"payload":    string(payload),
			"timestamp":  time.Now().Unix(),
		},
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to publish to DLQ: %w", err)
	}
	return nil
}

type StreamConsumer struct {
	client        *redis.Client
	stream        string
	group         string
	consumer      string
	batchSize     int64
	blockDuration time.Duration
}

func NewStreamConsumer(
	client *redis.Client,
	group string,
	consumer string,
	batchSize int64,
	blockDuration time.Duration,
) *StreamConsumer {
	return &StreamConsumer{
		client:        client,
		stream:        PaymentStream,
		group:         group,
		consumer:      consumer,
		batchSize:     batchSize,
		blockDuration: blockDuration,
	}
}

func (c *StreamConsumer) CreateGroup(ctx context.Context) error {
	const busyGroupMsg = "BUSYGROUP"
	err := c.client.XGroupCreateMkStream(ctx, c.stream, c.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), busyGroupMsg) {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	return nil
}

// Read blocks for up to the configured duration and returns new messages.
func (c *StreamConsumer) Read(ctx context.Context) ([]Message, error) {
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.consumer,
		Streams:  []string{c.stream, ">"},
		Count:    c.batchSize,
		Block:    c.blockDuration,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read from stream: %w", err)
	}

	var out []Message
	for _, s := range streams {
		for _, m := range s.Messages {
			out = append(out, decodeMessage(m))
		}
	}
	return out, nil
}

// ReclaimIdle takes over messages another consumer read but never acked,
// e.g. because its process died mid-activation.
func (c *StreamConsumer) ReclaimIdle(ctx context.Context, minIdle time.Duration) ([]Message, error) {
	msgs, _, err := c.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   c.stream,
		Group:    c.group,
		Consumer: c.consumer,
		MinIdle:  minIdle,
		Start:    "0-0",
		Count:    c.batchSize,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to reclaim messages: %w", err)
	}

	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, decodeMessage(m))
	}
	return out, nil
}

func (c *StreamConsumer) Ack(ctx context.Context, messageID string) error {
	if err := c.client.XAck(ctx, c.stream, c.group, messageID).Err(); err != nil {
		return fmt.Errorf("failed to ack message: %w", err)
	}
	return nil
}

func decodeMessage(m redis.XMessage) Message {
	msg := Message{ID: m.ID}
	msg.AttemptID, _ = m.Values["attempt_id"].(string)
	msg.EventType, _ = m.Values["event_type"].(string)
	if raw, ok := m.Values["payload"].(string); ok && raw != "" {
		_ = json.Unmarshal([]byte(raw), &msg.Payload)
	}
	switch ts := m.Values["timestamp"].(type) {
	case string:
		var sec int64
		if _, err := fmt.Sscan(ts, &sec); err == nil {
			msg.PublishedAt = time.Unix(sec, 0).UTC()
		}
	case int64:
		msg.PublishedAt = time.Unix(ts, 0).UTC()
	}
	return msg
}
