package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"

	"github.com/noah-isme/cuehub-pay/internal/common"
)

// PendingOrder is what the checkout flow records before redirecting to the gateway.
type PendingOrder struct {
	ID        string
	Amount    int64
	OrderInfo string
	OrderType string
}

// OrderRegistry records pending orders. Re-registering the same order with the
// same amount is a no-op; different terms return ErrOrderConflict.
type OrderRegistry interface {
	RegisterPending(ctx context.Context, order PendingOrder) error
}

// Handler exposes the gateway endpoints over HTTP.
type Handler struct {
	Svc      *Service
	Orders   OrderRegistry
	Validate *validator.Validate
}

type createReq struct {
	OrderID   string `json:"orderId" validate:"required,max=100"`
	Amount    int64  `json:"amount" validate:"required,gt=0"`
	OrderInfo string `json:"orderInfo" validate:"required,max=255"`
	OrderType string `json:"orderType" validate:"required,max=100"`
	Locale    string `json:"locale" validate:"omitempty,oneof=vn en"`
	BankCode  string `json:"bankCode" validate:"omitempty,alphanum,max=20"`
}

type createResp struct {
	Success    bool      `json:"success"`
	PaymentURL string    `json:"paymentUrl"`
	OrderID    string    `json:"orderId"`
	Amount     int64     `json:"amount"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

type returnResp struct {
	Success       bool   `json:"success"`
	Code          string `json:"code"`
	OrderID       string `json:"orderId"`
	Amount        int64  `json:"amount"`
	TransactionID string `json:"transactionId"`
	Message       string `json:"message"`
	OrderStatus   string `json:"orderStatus,omitempty"`
}

type statusResp struct {
	OrderID       string     `json:"orderId"`
	Status        string     `json:"status"`
	Amount        int64      `json:"amount"`
	TransactionID string     `json:"transactionId,omitempty"`
	FailureReason string     `json:"failureReason,omitempty"`
	PaidAt        *time.Time `json:"paidAt,omitempty"`
}

// Create validates the checkout request and returns a signed payment URL.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_NOT_CONFIGURED", "payment handler unavailable", nil)
		return
	}
	var req createReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid body", nil)
		return
	}
	req.OrderID = strings.TrimSpace(req.OrderID)
	req.OrderInfo = strings.TrimSpace(req.OrderInfo)
	req.OrderType = strings.TrimSpace(req.OrderType)
	if details := h.validate(req); details != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid payment request", details)
		return
	}

	link, err := h.Svc.CreatePayment(r.Context(), PaymentRequest{
		OrderID:   req.OrderID,
		Amount:    req.Amount,
		OrderInfo: req.OrderInfo,
		OrderType: req.OrderType,
		Locale:    req.Locale,
		BankCode:  req.BankCode,
		ClientIP:  common.ClientIP(r),
	})
	if err != nil {
		writeCreateError(w, err)
		return
	}
	if h.Orders != nil {
		ctx, cancel := context.WithTimeout(r.Context(), h.Svc.storeTimeout())
		err := h.Orders.RegisterPending(ctx, PendingOrder{
			ID:        link.OrderID,
			Amount:    link.Amount,
			OrderInfo: req.OrderInfo,
			OrderType: req.OrderType,
		})
		cancel()
		if err != nil {
			writeCreateError(w, err)
			return
		}
	}
	common.JSON(w, http.StatusOK, createResp{
		Success:    true,
		PaymentURL: link.RedirectURL,
		OrderID:    link.OrderID,
		Amount:     link.Amount,
		ExpiresAt:  link.ExpiresAt,
	})
}

// Return reports the advisory outcome of the browser redirect.
func (h *Handler) Return(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_NOT_CONFIGURED", "payment handler unavailable", nil)
		return
	}
	outcome := h.Svc.HandleReturn(r.Context(), ParamsFromValues(r.URL.Query()))
	resp := returnResp{
		Success:       outcome.Verified && outcome.Success,
		Code:          outcome.Code,
		OrderID:       outcome.OrderID,
		Amount:        outcome.Amount,
		TransactionID: outcome.TransactionID,
		Message:       outcome.Message,
		OrderStatus:   string(outcome.OrderStatus),
	}
	status := http.StatusOK
	if outcome.Reason == ReasonMissingSignature {
		status = http.StatusBadRequest
	}
	common.JSON(w, status, resp)
}

// IPN acknowledges a gateway notification. The transport status is always 200;
// the gateway reads RspCode to decide whether to retry.
func (h *Handler) IPN(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Svc == nil {
		common.JSON(w, http.StatusOK, ackInternalError)
		return
	}
	values := r.URL.Query()
	if r.Method == http.MethodPost {
		if err := r.ParseForm(); err == nil {
			values = r.Form
		}
	}
	ack := h.Svc.HandleIPN(r.Context(), ParamsFromValues(values))
	common.JSON(w, http.StatusOK, ack)
}

// Status returns the Order Store's view of an order.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Svc == nil || h.Svc.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_NOT_CONFIGURED", "order store unavailable", nil)
		return
	}
	orderID := strings.TrimSpace(chi.URLParam(r, "orderId"))
	if orderID == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "orderId is required", nil)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.Svc.storeTimeout())
	defer cancel()
	order, err := h.Svc.Store.FindOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			common.JSONError(w, http.StatusNotFound, "ORDER_NOT_FOUND", "order not found", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "STATUS_ERROR", "order store unavailable", nil)
		return
	}
	common.JSON(w, http.StatusOK, statusResp{
		OrderID:       order.ID,
		Status:        string(order.Status),
		Amount:        order.Amount,
		TransactionID: order.TransactionID,
		FailureReason: order.FailureReason,
		PaidAt:        order.PaidAt,
	})
}

func (h *Handler) validate(req createReq) map[string]string {
	v := h.Validate
	if v == nil {
		v = defaultValidator
	}
	err := v.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return map[string]string{"request": err.Error()}
	}
	details := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		details[jsonFieldName(fe.Field())] = fe.Tag()
	}
	return details
}

var defaultValidator = validator.New(validator.WithRequiredStructEnabled())

func jsonFieldName(field string) string {
	if field == "" {
		return field
	}
	if field == "OrderID" {
		return "orderId"
	}
	return strings.ToLower(field[:1]) + field[1:]
}

func writeCreateError(w http.ResponseWriter, err error) {
	common.WriteError(w, createError(err))
}

func createError(err error) error {
	switch {
	case errors.Is(err, ErrValidation):
		return common.NewAppError("VALIDATION_ERROR", err.Error(), http.StatusBadRequest, err)
	case errors.Is(err, ErrConfiguration):
		return common.NewAppError("PAYMENT_NOT_CONFIGURED", "payment gateway is not configured", http.StatusInternalServerError, err)
	case errors.Is(err, ErrOrderConflict):
		return common.NewAppError("ORDER_CONFLICT", err.Error(), http.StatusConflict, err)
	case errors.Is(err, ErrTransientStore):
		return common.NewAppError("ORDER_STORE_UNAVAILABLE", "order store unavailable", http.StatusServiceUnavailable, err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return common.NewAppError("ORDER_STORE_TIMEOUT", "order store timed out", http.StatusGatewayTimeout, err)
	default:
		return common.NewAppError("ORDER_STORE_ERROR", "unable to record order", http.StatusInternalServerError, err)
	}
}
