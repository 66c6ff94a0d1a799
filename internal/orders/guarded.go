package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/noah-isme/cuehub-pay/internal/payment"
	"github.com/noah-isme/cuehub-pay/internal/resilience"
)

// Backend is what Guarded wraps.
type Backend interface {
	payment.OrderStore
	payment.OrderRegistry
}

// Guarded puts a circuit breaker in front of a Backend. While the breaker is
// open calls fail fast with payment.ErrTransientStore, which the IPN path
// acknowledges with a retryable code.
type Guarded struct {
	Next    Backend
	Breaker *resilience.Breaker
}

// FindOrder implements payment.OrderStore.
func (g Guarded) FindOrder(ctx context.Context, orderID string) (payment.Order, error) {
	var order payment.Order
	err := g.Breaker.Do(ctx, func(ctx context.Context) error {
		var err error
		order, err = g.Next.FindOrder(ctx, orderID)
		return err
	}, businessError)
	return order, wrapOpen(err)
}

// TransitionIfPending implements payment.OrderStore.
func (g Guarded) TransitionIfPending(ctx context.Context, orderID string, target payment.OrderStatus, ev payment.Evidence) error {
	err := g.Breaker.Do(ctx, func(ctx context.Context) error {
		return g.Next.TransitionIfPending(ctx, orderID, target, ev)
	}, businessError)
	return wrapOpen(err)
}

// RegisterPending implements payment.OrderRegistry.
func (g Guarded) RegisterPending(ctx context.Context, order payment.PendingOrder) error {
	err := g.Breaker.Do(ctx, func(ctx context.Context) error {
		return g.Next.RegisterPending(ctx, order)
	}, businessError)
	return wrapOpen(err)
}

// businessError reports errors that prove the database answered.
func businessError(err error) bool {
	return errors.Is(err, payment.ErrOrderNotFound) ||
		errors.Is(err, payment.ErrAlreadyTerminal) ||
		errors.Is(err, payment.ErrOrderConflict) ||
		errors.Is(err, payment.ErrValidation)
}

func wrapOpen(err error) error {
	if errors.Is(err, resilience.ErrOpenCircuit) {
		return fmt.Errorf("%w: %w", payment.ErrTransientStore, err)
	}
	return err
}
