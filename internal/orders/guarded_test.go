package orders

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/cuehub-pay/internal/payment"
	"github.com/noah-isme/cuehub-pay/internal/resilience"
)

func TestGuardedPassesBusinessErrorsThrough(t *testing.T) {
	breaker := resilience.NewBreaker(1, 0.5, time.Minute)
	g := Guarded{Next: newTestStore(newFakeDB()), Breaker: breaker}

	for i := 0; i < 3; i++ {
		_, err := g.FindOrder(context.Background(), "missing")
		require.ErrorIs(t, err, payment.ErrOrderNotFound)
	}
	require.Equal(t, resilience.Closed, breaker.State())
}

func TestGuardedFailsFastWhenOpen(t *testing.T) {
	db := newFakeDB()
	db.err = errors.New("connection refused")
	breaker := resilience.NewBreaker(1, 0.5, time.Minute)
	g := Guarded{Next: newTestStore(db), Breaker: breaker}
	ctx := context.Background()

	_, err := g.FindOrder(ctx, "ORD-1")
	require.Error(t, err)
	require.Equal(t, resilience.Open, breaker.State())

	db.err = nil
	_, err = g.FindOrder(ctx, "ORD-1")
	require.ErrorIs(t, err, payment.ErrTransientStore)
	require.ErrorIs(t, err, resilience.ErrOpenCircuit)

	err = g.TransitionIfPending(ctx, "ORD-1", payment.StatusPaid, payment.Evidence{})
	require.ErrorIs(t, err, payment.ErrTransientStore)

	err = g.RegisterPending(ctx, payment.PendingOrder{ID: "ORD-1", Amount: 1})
	require.ErrorIs(t, err, payment.ErrTransientStore)
}

func TestGuardedWithoutBreaker(t *testing.T) {
	g := Guarded{Next: newTestStore(newFakeDB())}
	ctx := context.Background()
	require.NoError(t, g.RegisterPending(ctx, payment.PendingOrder{ID: "ORD-1", Amount: 100}))
	require.NoError(t, g.TransitionIfPending(ctx, "ORD-1", payment.StatusPaid, payment.Evidence{}))
	order, err := g.FindOrder(ctx, "ORD-1")
	require.NoError(t, err)
	require.Equal(t, payment.StatusPaid, order.Status)
}
