package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/cuehub-pay/internal/events"
	"github.com/noah-isme/cuehub-pay/internal/obs"
)

const (
	defaultStoreTimeout = 5 * time.Second
	defaultLockTTL      = 10 * time.Second
)

var nopLogger = zerolog.Nop()

// Service implements payment initiation and the Return/IPN callbacks.
// It holds no mutable state and is safe for concurrent use.
type Service struct {
	Config       GatewayConfig
	Store        OrderStore
	Locker       Locker
	LockTTL      time.Duration
	Events       EventEmitter
	StoreTimeout time.Duration
	Logger       *zerolog.Logger
	Now          func() time.Time
}

// PaymentLink is the result of a successful initiation.
type PaymentLink struct {
	RedirectURL string
	OrderID     string
	Amount      int64
	ExpiresAt   time.Time
}

// CreatePayment validates req, builds and signs the gateway parameters and
// returns the redirect URL. It does not touch the Order Store.
func (s *Service) CreatePayment(ctx context.Context, req PaymentRequest) (PaymentLink, error) {
	ctx, span := otel.Tracer("payment.Service").Start(ctx, "PaymentService.CreatePayment")
	defer span.End()

	result := "error"
	defer func() {
		span.SetAttributes(attribute.String("payment.create.result", result))
		if obs.PaymentCreateTotal != nil {
			obs.PaymentCreateTotal.WithLabelValues(result).Inc()
		}
	}()

	if err := req.Validate(); err != nil {
		result = "invalid"
		return PaymentLink{}, err
	}
	span.SetAttributes(attribute.String("order.id", req.OrderID), attribute.Int64("payment.amount", req.Amount))
	if err := s.Config.Validate(); err != nil {
		result = "misconfigured"
		span.RecordError(err)
		s.logger().Error().Err(err).Str("order_id", req.OrderID).Msg("configuration_error")
		return PaymentLink{}, err
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = s.now()
	}

	builder := Builder{Config: s.Config, Now: s.Now}
	params, err := builder.Build(req)
	if err != nil {
		result = "invalid"
		return PaymentLink{}, err
	}
	params[SecureHashField] = Sign(params, s.Config.HashSecret)

	expiresAt, _ := ParseGatewayTime(params["vnp_ExpireDate"])
	link := PaymentLink{
		RedirectURL: joinQuery(s.Config.PaymentURL, params.Encode()),
		OrderID:     params["vnp_TxnRef"],
		Amount:      req.Amount,
		ExpiresAt:   expiresAt,
	}
	result = "success"
	s.logger().Info().
		Str("order_id", link.OrderID).
		Int64("amount", link.Amount).
		Str("client_ip", params["vnp_IpAddr"]).
		Msg("payment_create")
	return link, nil
}

// Rejection reasons reported by HandleReturn.
const (
	ReasonMissingSignature = "missing signature"
	ReasonInvalidSignature = "invalid signature"
	ReasonInvalidAmount    = "invalid amount"
)

// ReturnOutcome is the advisory result of a browser return callback.
// Verified is false when the message was rejected; Reason then explains why.
type ReturnOutcome struct {
	Verified      bool
	Success       bool
	Code          string
	OrderID       string
	Amount        int64
	TransactionID string
	Message       string
	Reason        string
	OrderStatus   OrderStatus
	Err           error
}

// rejected reports an unverified or unreadable return. Code stays the
// gateway's response code as received.
func rejected(msg CallbackMessage, reason string, err error) ReturnOutcome {
	return ReturnOutcome{Code: msg.ResponseCode, OrderID: msg.OrderID, Reason: reason, Message: reason, Err: err}
}

// HandleReturn verifies a browser return callback and interprets its response
// code. It never writes to the Order Store; the IPN is authoritative.
func (s *Service) HandleReturn(ctx context.Context, params Params) ReturnOutcome {
	ctx, span := otel.Tracer("payment.Service").Start(ctx, "PaymentService.HandleReturn")
	defer span.End()

	msg := ParseCallback(params)
	span.SetAttributes(attribute.String("order.id", msg.OrderID))
	outcome := s.interpretReturn(ctx, msg)
	result := "rejected"
	if outcome.Verified {
		result = "failed"
		if outcome.Success {
			result = "success"
		}
	}
	span.SetAttributes(attribute.String("payment.return.result", result))
	if obs.PaymentCallbackTotal != nil {
		obs.PaymentCallbackTotal.WithLabelValues("return", result).Inc()
	}
	return outcome
}

func (s *Service) interpretReturn(ctx context.Context, msg CallbackMessage) ReturnOutcome {
	if err := s.verify("return", msg); err != nil {
		if msg.Signature == "" {
			return rejected(msg, ReasonMissingSignature, err)
		}
		return rejected(msg, ReasonInvalidSignature, err)
	}
	amount, err := ParseGatewayAmount(msg.RawAmount)
	if err != nil {
		return rejected(msg, ReasonInvalidAmount, fmt.Errorf("%w: %v", ErrValidation, err))
	}
	outcome := ReturnOutcome{
		Verified:      true,
		Success:       msg.Paid(),
		Code:          msg.ResponseCode,
		OrderID:       msg.OrderID,
		Amount:        amount,
		TransactionID: msg.TransactionID,
	}
	if outcome.Success {
		outcome.Message = ResponseReason(ResponseCodeSuccess)
	} else {
		outcome.Message = msg.FailureReason()
	}
	if s.Store != nil && msg.OrderID != "" {
		storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout())
		order, err := s.Store.FindOrder(storeCtx, msg.OrderID)
		cancel()
		if err == nil {
			outcome.OrderStatus = order.Status
		}
	}
	return outcome
}

// HandleIPN processes a server-to-server notification and returns the
// acknowledgement for the gateway. Delivery is at-least-once: a repeated
// notification for a settled order is acknowledged without side effects.
func (s *Service) HandleIPN(ctx context.Context, params Params) IPNAck {
	ctx, span := otel.Tracer("payment.Service").Start(ctx, "PaymentService.HandleIPN")
	defer span.End()

	msg := ParseCallback(params)
	span.SetAttributes(attribute.String("order.id", msg.OrderID))
	ack := s.processIPN(ctx, msg)
	span.SetAttributes(attribute.String("payment.ipn.rsp_code", ack.RspCode))
	if obs.PaymentCallbackTotal != nil {
		obs.PaymentCallbackTotal.WithLabelValues("ipn", ack.RspCode).Inc()
	}
	return ack
}

func (s *Service) processIPN(ctx context.Context, msg CallbackMessage) IPNAck {
	if err := s.Config.Validate(); err != nil {
		s.logger().Error().Err(err).Str("order_id", msg.OrderID).Msg("configuration_error")
		return ackInternalError
	}
	if ack, done := s.verifyIPN(msg); done {
		return ack
	}
	if s.Store == nil {
		s.logger().Error().Str("order_id", msg.OrderID).Msg("ipn_store_error: order store not configured")
		return ackInternalError
	}

	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout())
	defer cancel()
	if s.Locker == nil {
		return s.settle(ctx, msg)
	}
	ack := ackInternalError
	err := s.Locker.WithLock(ctx, "ipn:"+msg.OrderID, s.lockTTL(), func(lockCtx context.Context) error {
		ack = s.settle(lockCtx, msg)
		return nil
	})
	if err != nil {
		s.logger().Error().Err(err).Str("order_id", msg.OrderID).Msg("ipn_lock_error")
		return ackInternalError
	}
	return ack
}

// settle runs lookup → reconcile → guard → transition for a verified message.
func (s *Service) settle(ctx context.Context, msg CallbackMessage) IPNAck {
	order, ack, done := s.lookup(ctx, msg)
	if done {
		return ack
	}
	if ack, done := s.reconcile(ctx, msg, order); done {
		return ack
	}
	if ack, done := settledGuard(order); done {
		return ack
	}
	return s.transition(ctx, msg, order)
}

func (s *Service) verifyIPN(msg CallbackMessage) (IPNAck, bool) {
	if err := s.verify("ipn", msg); err != nil {
		return ackInvalidSignature, true
	}
	return IPNAck{}, false
}

func (s *Service) lookup(ctx context.Context, msg CallbackMessage) (Order, IPNAck, bool) {
	order, err := s.Store.FindOrder(ctx, msg.OrderID)
	if err == nil {
		return order, IPNAck{}, false
	}
	if errors.Is(err, ErrOrderNotFound) {
		s.anomaly(ctx, msg, "order_not_found", fmt.Errorf("%w: %v", ErrReconciliation, err), false)
		return Order{}, ackOrderNotFound, true
	}
	s.logger().Error().Err(fmt.Errorf("%w: %v", ErrTransientStore, err)).Str("order_id", msg.OrderID).Msg("ipn_store_error")
	return Order{}, ackInternalError, true
}

func (s *Service) reconcile(ctx context.Context, msg CallbackMessage, order Order) (IPNAck, bool) {
	amount, err := ParseGatewayAmount(msg.RawAmount)
	if err != nil {
		s.anomaly(ctx, msg, "amount_invalid", fmt.Errorf("%w: %v", ErrReconciliation, err), true)
		return ackAmountMismatch, true
	}
	if amount != order.Amount {
		s.anomaly(ctx, msg, "amount_mismatch", fmt.Errorf("%w: got %d expected %d", ErrReconciliation, amount, order.Amount), true)
		return ackAmountMismatch, true
	}
	return IPNAck{}, false
}

// settledGuard acknowledges a notification for an order that already left pending.
func settledGuard(order Order) (IPNAck, bool) {
	if order.Status.Terminal() {
		return ackAlreadyConfirmed, true
	}
	return IPNAck{}, false
}

func (s *Service) transition(ctx context.Context, msg CallbackMessage, order Order) IPNAck {
	target := StatusFailed
	if msg.Paid() {
		target = StatusPaid
	}
	ev := Evidence{
		TransactionID: msg.TransactionID,
		ResponseCode:  msg.ResponseCode,
		BankCode:      msg.BankCode,
		Reason:        msg.FailureReason(),
		SettledAt:     s.now(),
	}
	if paidAt, err := ParseGatewayTime(msg.PayDate); err == nil {
		ev.SettledAt = paidAt
	}

	err := s.Store.TransitionIfPending(ctx, order.ID, target, ev)
	switch {
	case err == nil:
	case errors.Is(err, ErrAlreadyTerminal):
		return ackAlreadyConfirmed
	case errors.Is(err, ErrOrderNotFound):
		s.anomaly(ctx, msg, "order_not_found", fmt.Errorf("%w: %v", ErrReconciliation, err), false)
		return ackOrderNotFound
	default:
		s.logger().Error().Err(fmt.Errorf("%w: %v", ErrTransientStore, err)).Str("order_id", order.ID).Msg("ipn_store_error")
		return ackInternalError
	}

	s.logger().Info().
		Str("order_id", order.ID).
		Str("status", string(target)).
		Str("transaction_id", ev.TransactionID).
		Str("response_code", ev.ResponseCode).
		Msg("ipn_settled")
	topic := events.TopicPaymentPaid
	if target == StatusFailed {
		topic = events.TopicPaymentFailed
	}
	s.emit(ctx, topic, order.ID, map[string]any{
		"orderId":       order.ID,
		"amount":        order.Amount,
		"status":        string(target),
		"transactionId": ev.TransactionID,
		"responseCode":  ev.ResponseCode,
		"reason":        ev.Reason,
		"settledAt":     ev.SettledAt,
	})
	return ackOK
}

// verify checks presence and validity of the secure hash. Rejections are
// logged and counted but never persisted: the sender is unauthenticated.
func (s *Service) verify(endpoint string, msg CallbackMessage) error {
	if msg.Signature == "" {
		err := fmt.Errorf("%w: missing signature", ErrSignature)
		s.logger().Warn().Err(err).Str("endpoint", endpoint).Str("order_id", msg.OrderID).Msg("signature_rejected")
		return err
	}
	if !Verify(msg.Params.Without(SecureHashField), msg.Signature, s.Config.HashSecret) {
		err := fmt.Errorf("%w: invalid signature", ErrSignature)
		s.logger().Warn().Err(err).Str("endpoint", endpoint).Str("order_id", msg.OrderID).Msg("signature_rejected")
		countAnomaly("invalid_signature_" + endpoint)
		return err
	}
	return nil
}

// anomaly logs and counts a verified message that failed reconciliation.
// Only anomalies against a known order are recorded as audit events.
func (s *Service) anomaly(ctx context.Context, msg CallbackMessage, kind string, err error, known bool) {
	s.logger().Error().Err(err).
		Str("kind", kind).
		Str("order_id", msg.OrderID).
		Str("amount", msg.RawAmount).
		Str("transaction_id", msg.TransactionID).
		Msg("ipn_anomaly")
	countAnomaly(kind)
	if !known {
		return
	}
	s.emit(ctx, events.TopicPaymentAnomaly, msg.OrderID, map[string]any{
		"kind":          kind,
		"orderId":       msg.OrderID,
		"amount":        msg.RawAmount,
		"transactionId": msg.TransactionID,
		"error":         err.Error(),
	})
}

func countAnomaly(kind string) {
	if obs.PaymentAnomalyTotal != nil {
		obs.PaymentAnomalyTotal.WithLabelValues(kind).Inc()
	}
}

func (s *Service) emit(ctx context.Context, topic, orderID string, payload any) {
	if s.Events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout())
	defer cancel()
	if _, err := s.Events.Emit(ctx, topic, orderID, payload); err != nil {
		s.logger().Warn().Err(err).Str("topic", topic).Str("order_id", orderID).Msg("emit payment event")
	}
}

func (s *Service) logger() *zerolog.Logger {
	if s.Logger == nil {
		return &nopLogger
	}
	return s.Logger
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) storeTimeout() time.Duration {
	if s.StoreTimeout <= 0 || s.StoreTimeout > defaultStoreTimeout {
		return defaultStoreTimeout
	}
	return s.StoreTimeout
}

func (s *Service) lockTTL() time.Duration {
	if s.LockTTL <= 0 {
		return defaultLockTTL
	}
	return s.LockTTL
}

func joinQuery(base, query string) string {
	base = strings.TrimSpace(base)
	if strings.Contains(base, "?") {
		return base + "&" + query
	}
	return base + "?" + query
}
