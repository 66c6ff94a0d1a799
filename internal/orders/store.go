// Package orders persists payment orders and their audit events in Postgres.
package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/cuehub-pay/internal/events"
	"github.com/noah-isme/cuehub-pay/internal/obs"
	"github.com/noah-isme/cuehub-pay/internal/payment"
)

// ErrStoreUnavailable indicates the store has no database handle.
var ErrStoreUnavailable = errors.New("orders: store unavailable")

// DB is the subset of pgxpool.Pool the store needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements payment.OrderStore, payment.OrderRegistry and
// events.EventStore over Postgres.
type Store struct {
	db  DB
	now func() time.Time
}

// NewStore constructs a Store backed by a pgx connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	if pool == nil {
		return &Store{}
	}
	return NewStoreWithDB(pool)
}

// NewStoreWithDB constructs a Store over any DB implementation.
func NewStoreWithDB(db DB) *Store {
	return &Store{db: db, now: time.Now}
}

const selectOrder = `SELECT id, amount, status, COALESCE(transaction_id, ''), COALESCE(failure_reason, ''), paid_at, updated_at
FROM payment_orders WHERE id = $1`

// FindOrder fetches an order by ID.
func (s *Store) FindOrder(ctx context.Context, orderID string) (order payment.Order, err error) {
	if s == nil || s.db == nil {
		return payment.Order{}, ErrStoreUnavailable
	}
	defer observe("find", time.Now(), &err)

	var (
		status string
		paidAt *time.Time
	)
	row := s.db.QueryRow(ctx, selectOrder, orderID)
	if err = row.Scan(&order.ID, &order.Amount, &status, &order.TransactionID, &order.FailureReason, &paidAt, &order.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return payment.Order{}, payment.ErrOrderNotFound
		}
		return payment.Order{}, fmt.Errorf("orders: find %s: %w", orderID, err)
	}
	order.Status = payment.OrderStatus(status)
	order.PaidAt = paidAt
	return order, nil
}

const transitionOrder = `UPDATE payment_orders
SET status = $2,
    transaction_id = NULLIF($3, ''),
    response_code = NULLIF($4, ''),
    bank_code = NULLIF($5, ''),
    failure_reason = NULLIF($6, ''),
    paid_at = $7,
    updated_at = $8
WHERE id = $1 AND status = 'pending'`

// TransitionIfPending moves a pending order to target in a single conditional
// UPDATE, so concurrent deliveries race on the row and exactly one wins.
func (s *Store) TransitionIfPending(ctx context.Context, orderID string, target payment.OrderStatus, ev payment.Evidence) (err error) {
	if s == nil || s.db == nil {
		return ErrStoreUnavailable
	}
	if !target.Terminal() {
		return fmt.Errorf("orders: invalid transition target %q", target)
	}
	defer observe("transition", time.Now(), &err)

	var paidAt *time.Time
	if target == payment.StatusPaid {
		settled := ev.SettledAt
		if settled.IsZero() {
			settled = s.now()
		}
		settled = settled.UTC()
		paidAt = &settled
	}
	tag, err := s.db.Exec(ctx, transitionOrder, orderID, string(target),
		ev.TransactionID, ev.ResponseCode, ev.BankCode, ev.Reason, paidAt, s.now().UTC())
	if err != nil {
		return fmt.Errorf("orders: transition %s: %w", orderID, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var status string
	if err = s.db.QueryRow(ctx, `SELECT status FROM payment_orders WHERE id = $1`, orderID).Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return payment.ErrOrderNotFound
		}
		return fmt.Errorf("orders: transition %s: %w", orderID, err)
	}
	return payment.ErrAlreadyTerminal
}

// RegisterPending records a new pending order. Repeating the same order with
// the same amount while it is still pending is a no-op.
func (s *Store) RegisterPending(ctx context.Context, order payment.PendingOrder) (err error) {
	if s == nil || s.db == nil {
		return ErrStoreUnavailable
	}
	id := strings.TrimSpace(order.ID)
	if id == "" || order.Amount <= 0 {
		return fmt.Errorf("%w: order id and positive amount required", payment.ErrValidation)
	}
	defer observe("register", time.Now(), &err)

	now := s.now().UTC()
	tag, err := s.db.Exec(ctx, `INSERT INTO payment_orders (id, amount, order_info, order_type, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, 'pending', $5, $5)
ON CONFLICT (id) DO NOTHING`, id, order.Amount, order.OrderInfo, order.OrderType, now)
	if err != nil {
		return fmt.Errorf("orders: register %s: %w", id, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var (
		amount int64
		status string
	)
	if err = s.db.QueryRow(ctx, `SELECT amount, status FROM payment_orders WHERE id = $1`, id).Scan(&amount, &status); err != nil {
		return fmt.Errorf("orders: register %s: %w", id, err)
	}
	if amount != order.Amount {
		return fmt.Errorf("%w: amount %d already recorded for %s", payment.ErrOrderConflict, amount, id)
	}
	if payment.OrderStatus(status) != payment.StatusPending {
		return fmt.Errorf("%w: order %s is %s", payment.ErrOrderConflict, id, status)
	}
	return nil
}

// InsertEvent persists a payment audit event.
func (s *Store) InsertEvent(ctx context.Context, event events.Event) (events.Event, error) {
	if s == nil || s.db == nil {
		return events.Event{}, ErrStoreUnavailable
	}
	_, err := s.db.Exec(ctx, `INSERT INTO payment_events (id, topic, order_id, payload, occurred_at)
VALUES ($1, $2, $3, $4, $5)`, event.ID, event.Topic, event.OrderID, []byte(event.Payload), event.OccurredAt)
	if err != nil {
		return events.Event{}, fmt.Errorf("orders: insert event: %w", err)
	}
	return event, nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return ErrStoreUnavailable
	}
	var one int
	return s.db.QueryRow(ctx, `SELECT 1`).Scan(&one)
}

func observe(op string, start time.Time, errp *error) {
	if obs.OrderStoreLatency == nil {
		return
	}
	result := "ok"
	if errp != nil && *errp != nil {
		switch {
		case errors.Is(*errp, payment.ErrOrderNotFound):
			result = "not_found"
		case errors.Is(*errp, payment.ErrAlreadyTerminal), errors.Is(*errp, payment.ErrOrderConflict):
			result = "conflict"
		default:
			result = "error"
		}
	}
	obs.OrderStoreLatency.WithLabelValues(op, result).Observe(obs.DurationMillis(time.Since(start)))
}
