package events_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/cuehub-pay/internal/events"
)

type stubStore struct {
	last events.Event
	err  error
}

func (s *stubStore) InsertEvent(_ context.Context, ev events.Event) (events.Event, error) {
	if s.err != nil {
		return events.Event{}, s.err
	}
	s.last = ev
	return ev, nil
}

type captureNotifier struct {
	events []events.Event
	err    error
}

func (c *captureNotifier) Notify(_ context.Context, event events.Event) error {
	c.events = append(c.events, event)
	return c.err
}

func TestEmitPersistsEvent(t *testing.T) {
	store := &stubStore{}
	notifier := &captureNotifier{}
	fixed := time.Date(2024, 1, 15, 3, 0, 0, 0, time.UTC)
	bus := events.Bus{
		Store:     store,
		Notifiers: []events.Notifier{notifier},
		Now:       func() time.Time { return fixed },
	}

	event, err := bus.Emit(context.Background(), events.TopicPaymentPaid, "ORD-1", map[string]any{"transactionId": "14000001"})
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, event.ID)
	require.Equal(t, events.TopicPaymentPaid, store.last.Topic)
	require.Equal(t, "ORD-1", store.last.OrderID)
	require.Equal(t, fixed, store.last.OccurredAt)
	require.JSONEq(t, `{"transactionId":"14000001"}`, string(store.last.Payload))
	require.Len(t, notifier.events, 1)
	require.Equal(t, event.ID, notifier.events[0].ID)
}

func TestEmitRejectsInvalidInput(t *testing.T) {
	bus := events.Bus{Store: &stubStore{}}
	_, err := bus.Emit(context.Background(), " ", "ORD-1", nil)
	require.Error(t, err)
	_, err = bus.Emit(context.Background(), events.TopicPaymentPaid, "", nil)
	require.Error(t, err)
	_, err = bus.Emit(context.Background(), events.TopicPaymentPaid, "ORD-1", "not json")
	require.Error(t, err)

	var nilBus *events.Bus
	_, err = nilBus.Emit(context.Background(), events.TopicPaymentPaid, "ORD-1", nil)
	require.Error(t, err)
}

func TestEmitStopsOnStoreFailure(t *testing.T) {
	notifier := &captureNotifier{}
	bus := events.Bus{Store: &stubStore{err: errors.New("db down")}, Notifiers: []events.Notifier{notifier}}
	_, err := bus.Emit(context.Background(), events.TopicPaymentFailed, "ORD-1", nil)
	require.Error(t, err)
	require.Empty(t, notifier.events)
}

func TestEmitJoinsNotifierErrors(t *testing.T) {
	failing := &captureNotifier{err: errors.New("publish failed")}
	ok := &captureNotifier{}
	bus := events.Bus{Store: &stubStore{}, Notifiers: []events.Notifier{failing, nil, ok}}
	ev, err := bus.Emit(context.Background(), events.TopicPaymentAnomaly, "ORD-9", json.RawMessage(`{"kind":"amount_mismatch"}`))
	require.Error(t, err)
	require.Equal(t, "ORD-9", ev.OrderID)
	require.Len(t, ok.events, 1)
}

func TestLogNotifierWritesEvent(t *testing.T) {
	var buf bytes.Buffer
	n := events.LogNotifier{Logger: zerolog.New(&buf)}
	ev := events.Event{ID: uuid.New(), Topic: events.TopicPaymentAnomaly, OrderID: "ORD-2", Payload: json.RawMessage(`{"kind":"invalid_signature"}`)}
	require.NoError(t, n.Notify(context.Background(), ev))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "warn", entry["level"])
	require.Equal(t, "ORD-2", entry["order_id"])
}

func TestRedisPublisherPublishesEvent(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	sub := client.Subscribe(ctx, events.DefaultChannel)
	t.Cleanup(func() { _ = sub.Close() })
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	ev := events.Event{ID: uuid.New(), Topic: events.TopicPaymentPaid, OrderID: "ORD-3", Payload: json.RawMessage(`{}`)}
	require.NoError(t, events.RedisPublisher{Client: client}.Notify(ctx, ev))

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	var got events.Event
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
	require.Equal(t, ev.ID, got.ID)
	require.Equal(t, "ORD-3", got.OrderID)
}

func TestRedisPublisherRequiresClient(t *testing.T) {
	require.Error(t, events.RedisPublisher{}.Notify(context.Background(), events.Event{}))
}
