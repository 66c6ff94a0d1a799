package payment

import (
	"context"
	"time"

	"github.com/noah-isme/cuehub-pay/internal/events"
)

// OrderStatus is the lifecycle state of an order: pending → paid | failed.
type OrderStatus string

const (
	StatusPending OrderStatus = "pending"
	StatusPaid    OrderStatus = "paid"
	StatusFailed  OrderStatus = "failed"
)

// Terminal reports whether the status can no longer change.
func (s OrderStatus) Terminal() bool {
	return s == StatusPaid || s == StatusFailed
}

// Order is the Order Store's view of an order, amount in VND.
type Order struct {
	ID            string
	Amount        int64
	Status        OrderStatus
	TransactionID string
	FailureReason string
	PaidAt        *time.Time
	UpdatedAt     time.Time
}

// Evidence accompanies a state transition request.
type Evidence struct {
	TransactionID string
	ResponseCode  string
	BankCode      string
	Reason        string
	SettledAt     time.Time
}

// OrderStore is the narrow persistence contract the adapter consumes.
//
// TransitionIfPending must be atomic: it only applies when the order is still
// pending and returns ErrAlreadyTerminal otherwise. Any other error is treated
// as transient.
type OrderStore interface {
	FindOrder(ctx context.Context, orderID string) (Order, error)
	TransitionIfPending(ctx context.Context, orderID string, target OrderStatus, ev Evidence) error
}

// Locker serialises work per key across processes.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// EventEmitter records payment audit events.
type EventEmitter interface {
	Emit(ctx context.Context, topic, orderID string, payload any) (events.Event, error)
}
