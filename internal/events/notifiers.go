package events

import (
	"context"
	"encoding/json"
	"errors"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// LogNotifier writes every event to the structured log.
type LogNotifier struct {
	Logger zerolog.Logger
}

// Notify implements Notifier.
func (n LogNotifier) Notify(_ context.Context, event Event) error {
	evt := n.Logger.Info()
	if event.Topic == TopicPaymentAnomaly {
		evt = n.Logger.Warn()
	}
	evt.Str("event_id", event.ID.String()).
		Str("topic", event.Topic).
		Str("order_id", event.OrderID).
		RawJSON("payload", event.Payload).
		Msg("payment_event")
	return nil
}

// DefaultChannel is the Redis channel used by RedisPublisher when none is set.
const DefaultChannel = "cuehub:payment-events"

// RedisPublisher fans events out over Redis pub/sub for downstream consumers
// such as fulfilment. Delivery is at-most-once; the database row is the record.
type RedisPublisher struct {
	Client  *redis.Client
	Channel string
}

// Notify implements Notifier.
func (p RedisPublisher) Notify(ctx context.Context, event Event) error {
	if p.Client == nil {
		return errors.New("redis publisher: client not configured")
	}
	channel := p.Channel
	if channel == "" {
		channel = DefaultChannel
	}
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.Client.Publish(ctx, channel, body).Err()
}
