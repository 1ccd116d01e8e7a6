package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cassiomorais/notifications/internal/domain/notification"
	"github.com/redis/go-redis/v9"
)

const (
	NotificationStream = "notifications:incoming"
	DLQStream          = "notifications:dlq"
)

// Message field names.
const (
	FieldNotification      = "notification"
	FieldMerchantReference = "merchant_reference"
	FieldEventCode         = "event_code"
	FieldReason            = "reason"
	FieldTimestamp         = "timestamp"
)

type StreamProducer struct {
	client *redis.Client
}

func NewStreamProducer(client *redis.Client) *StreamProducer {
	return &StreamProducer{client: client}
}

// PublishNotification enqueues a received notification for the workers and
// returns the stream entry id.
func (p *StreamProducer) PublishNotification(ctx context.Context, n *notification.Notification) (string, error) {
	payload, err := n.Serialize()
	if err != nil {
		return "", err
	}

	args := &redis.XAddArgs{
		Stream: NotificationStream,
		Values: map[string]any{
			FieldNotification:      payload,
			FieldMerchantReference: n.NotificationRequestItem.MerchantReference,
			FieldEventCode:         n.NotificationRequestItem.EventCode,
			FieldTimestamp:         time.Now().Unix(),
		},
	}

	id, err := p.client.XAdd(ctx, args).Result()
	if err != nil {
		return "", fmt.Errorf("failed to publish notification: %w", err)
	}

	return id, nil
}

// PublishToDLQ parks a notification that could not be reconciled. Only the
// tracking form is stored so the DLQ never holds sensitive payment data.
func (p *StreamProducer) PublishToDLQ(ctx context.Context, n *notification.Notification, reason string) error {
	payload, err := n.ForTracking().Serialize()
	if err != nil {
		return err
	}

	args := &redis.XAddArgs{
		Stream: DLQStream,
		Values: map[string]any{
			FieldNotification:      payload,
			FieldMerchantReference: n.NotificationRequestItem.MerchantReference,
			FieldEventCode:         n.NotificationRequestItem.EventCode,
			FieldReason:            reason,
			FieldTimestamp:         time.Now().Unix(),
		},
	}

	_, err = p.client.XAdd(ctx, args).Result()
	if err != nil {
		return fmt.Errorf("failed to publish to DLQ: %w", err)
	}

	return nil
}

// DecodeNotification extracts the notification carried by a stream message.
func DecodeNotification(msg redis.XMessage) (*notification.Notification, error) {
	raw, ok := msg.Values[FieldNotification].(string)
	if !ok || raw == "" {
		return nil, fmt.Errorf("message %s has no %s field", msg.ID, FieldNotification)
	}
	return notification.Parse([]byte(raw))
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
	stream string,
	group string,
	consumer string,
	batchSize int64,
	blockDuration time.Duration,
) *StreamConsumer {
	return &StreamConsumer{
		client:        client,
		stream:        stream,
		group:         group,
		consumer:      consumer,
		batchSize:     batchSize,
		blockDuration: blockDuration,
	}
}

// Stream returns the name of the consumed stream.
func (c *StreamConsumer) Stream() string {
	return c.stream
}

func (c *StreamConsumer) CreateGroup(ctx context.Context) error {
	// Create stream if it doesn't exist
	const busyGroupMsg = "BUSYGROUP"
	err := c.client.XGroupCreateMkStream(ctx, c.stream, c.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), busyGroupMsg) {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	return nil
}

func (c *StreamConsumer) Read(ctx context.Context) ([]redis.XStream, error) {
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.consumer,
		Streams:  []string{c.stream, ">"},
		Count:    c.batchSize,
		Block:    c.blockDuration,
	}).Result()

	if err != nil {
		if errors.Is(err, redis.Nil) {
			// No new messages
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read from stream: %w", err)
	}

	return streams, nil
}

func (c *StreamConsumer) Ack(ctx context.Context, messageID string) error {
	err := c.client.XAck(ctx, c.stream, c.group, messageID).Err()
	if err != nil {
		return fmt.Errorf("failed to ack message: %w", err)
	}
	return nil
}

// ClaimStale takes over messages another consumer read but never acknowledged
// within minIdle, for example because its worker crashed mid-reconciliation.
func (c *StreamConsumer) ClaimStale(ctx context.Context, minIdle time.Duration) ([]redis.XMessage, error) {
	messages, _, err := c.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
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
		return nil, fmt.Errorf("failed to claim messages: %w", err)
	}

	return messages, nil
}
