package payment

import (
	"context"
	"sync"
	"time"

	"github.com/noah-isme/cuehub-pay/internal/events"
)

type memStore struct {
	mu          sync.Mutex
	orders      map[string]Order
	evidence    map[string]Evidence
	findErr     error
	transErr    error
	finds       int
	transitions int
}

func newMemStore(orders ...Order) *memStore {
	s := &memStore{orders: map[string]Order{}, evidence: map[string]Evidence{}}
	for _, o := range orders {
		if o.Status == "" {
			o.Status = StatusPending
		}
		s.orders[o.ID] = o
	}
	return s
}

func (s *memStore) FindOrder(_ context.Context, orderID string) (Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finds++
	if s.findErr != nil {
		return Order{}, s.findErr
	}
	o, ok := s.orders[orderID]
	if !ok {
		return Order{}, ErrOrderNotFound
	}
	return o, nil
}

func (s *memStore) TransitionIfPending(_ context.Context, orderID string, target OrderStatus, ev Evidence) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.transErr != nil {
		return s.transErr
	}
	o, ok := s.orders[orderID]
	if !ok {
		return ErrOrderNotFound
	}
	if o.Status.Terminal() {
		return ErrAlreadyTerminal
	}
	o.Status = target
	o.TransactionID = ev.TransactionID
	o.FailureReason = ev.Reason
	if target == StatusPaid {
		at := ev.SettledAt
		o.PaidAt = &at
	}
	s.orders[orderID] = o
	s.evidence[orderID] = ev
	s.transitions++
	return nil
}

func (s *memStore) order(id string) Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orders[id]
}

func (s *memStore) transitionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transitions
}

type emitted struct {
	topic   string
	orderID string
	payload any
}

type fakeEmitter struct {
	mu     sync.Mutex
	events []emitted
	err    error
}

func (f *fakeEmitter) Emit(_ context.Context, topic, orderID string, payload any) (events.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, emitted{topic: topic, orderID: orderID, payload: payload})
	if f.err != nil {
		return events.Event{}, f.err
	}
	return events.Event{Topic: topic, OrderID: orderID}, nil
}

func (f *fakeEmitter) topics() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.events))
	for _, e := range f.events {
		out = append(out, e.topic)
	}
	return out
}

// blockingEmitter holds every Emit until its context ends.
type blockingEmitter struct {
	mu    sync.Mutex
	calls int
}

func (b *blockingEmitter) Emit(ctx context.Context, topic, orderID string, _ any) (events.Event, error) {
	b.mu.Lock()
	b.calls++
	b.mu.Unlock()
	<-ctx.Done()
	return events.Event{}, ctx.Err()
}

func (b *blockingEmitter) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

var fixedNow = time.Date(2024, 1, 15, 3, 30, 0, 0, time.UTC)

func newTestService(store OrderStore, emitter EventEmitter) *Service {
	svc := &Service{
		Config: testGateway(),
		Store:  store,
		Now:    func() time.Time { return fixedNow },
	}
	if emitter != nil {
		svc.Events = emitter
	}
	return svc
}

// gatewayCallback builds a callback parameter set signed with testSecret.
func gatewayCallback(orderID, rawAmount, responseCode string) Params {
	p := Params{
		"vnp_TmnCode":           "DEMOTMN1",
		"vnp_TxnRef":            orderID,
		"vnp_Amount":            rawAmount,
		"vnp_ResponseCode":      responseCode,
		"vnp_TransactionStatus": responseCode,
		"vnp_TransactionNo":     "14000001",
		"vnp_BankCode":          "NCB",
		"vnp_PayDate":           "20240115103500",
		"vnp_OrderInfo":         "Thanh toan don hang",
	}
	p[SecureHashField] = Sign(p, testSecret)
	return p
}
