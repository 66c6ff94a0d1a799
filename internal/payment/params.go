package payment

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Protocol constants for the VNPAY 2.1.0 pay command.
const (
	ProtocolVersion = "2.1.0"
	CommandPay      = "pay"
	CurrencyVND     = "VND"
	dateLayout      = "20060102150405"
	// amountScale converts VND to the gateway's transmission unit.
	amountScale = 100
)

// gatewayZone is the timezone the gateway expects timestamps in (GMT+7).
var gatewayZone = time.FixedZone("ICT", 7*60*60)

// GatewayConfig holds the merchant settings loaded once at startup.
type GatewayConfig struct {
	TmnCode    string
	HashSecret string
	PaymentURL string
	ReturnURL  string
	Locale     string
	Expiry     time.Duration
}

// Validate reports ErrConfiguration naming every missing required setting.
func (c GatewayConfig) Validate() error {
	var missing []string
	if strings.TrimSpace(c.TmnCode) == "" {
		missing = append(missing, "merchant code")
	}
	if strings.TrimSpace(c.HashSecret) == "" {
		missing = append(missing, "hash secret")
	}
	if strings.TrimSpace(c.PaymentURL) == "" {
		missing = append(missing, "payment url")
	}
	if strings.TrimSpace(c.ReturnURL) == "" {
		missing = append(missing, "return url")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrConfiguration, strings.Join(missing, ", "))
	}
	return nil
}

// PaymentRequest is the validated input to payment initiation.
type PaymentRequest struct {
	OrderID   string
	Amount    int64
	OrderInfo string
	OrderType string
	ClientIP  string
	Locale    string
	BankCode  string
	CreatedAt time.Time
}

// Validate checks amount positivity and the required business fields.
func (r PaymentRequest) Validate() error {
	if r.Amount <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	if r.Amount > math.MaxInt64/amountScale {
		return fmt.Errorf("%w: amount too large", ErrValidation)
	}
	switch {
	case strings.TrimSpace(r.OrderID) == "":
		return fmt.Errorf("%w: orderId is required", ErrValidation)
	case strings.TrimSpace(r.OrderInfo) == "":
		return fmt.Errorf("%w: orderInfo is required", ErrValidation)
	case strings.TrimSpace(r.OrderType) == "":
		return fmt.Errorf("%w: orderType is required", ErrValidation)
	}
	if r.Locale != "" && r.Locale != "vn" && r.Locale != "en" {
		return fmt.Errorf("%w: locale must be vn or en", ErrValidation)
	}
	return nil
}

// Builder assembles unsigned outbound parameter sets.
type Builder struct {
	Config GatewayConfig
	Now    func() time.Time
}

// Build returns the unsigned parameter set for req. The creation timestamp is
// taken from req.CreatedAt, or the builder clock when unset.
func (b Builder) Build(req PaymentRequest) (Params, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	created := req.CreatedAt
	if created.IsZero() {
		created = b.now()
	}
	created = created.In(gatewayZone)
	locale := req.Locale
	if locale == "" {
		locale = b.Config.Locale
	}
	if locale == "" {
		locale = "vn"
	}
	ip := strings.TrimSpace(req.ClientIP)
	if ip == "" {
		ip = "127.0.0.1"
	}
	params := Params{
		"vnp_Version":    ProtocolVersion,
		"vnp_Command":    CommandPay,
		"vnp_TmnCode":    b.Config.TmnCode,
		"vnp_Amount":     strconv.FormatInt(req.Amount*amountScale, 10),
		"vnp_CurrCode":   CurrencyVND,
		"vnp_TxnRef":     strings.TrimSpace(req.OrderID),
		"vnp_OrderInfo":  strings.TrimSpace(req.OrderInfo),
		"vnp_OrderType":  strings.TrimSpace(req.OrderType),
		"vnp_Locale":     locale,
		"vnp_ReturnUrl":  b.Config.ReturnURL,
		"vnp_IpAddr":     ip,
		"vnp_CreateDate": created.Format(dateLayout),
		"vnp_ExpireDate": created.Add(b.expiry()).Format(dateLayout),
	}
	if bank := strings.TrimSpace(req.BankCode); bank != "" {
		params["vnp_BankCode"] = bank
	}
	return params, nil
}

func (b Builder) now() time.Time {
	if b.Now != nil {
		return b.Now()
	}
	return time.Now()
}

func (b Builder) expiry() time.Duration {
	if b.Config.Expiry <= 0 {
		return 15 * time.Minute
	}
	return b.Config.Expiry
}

// ParseGatewayAmount converts a transmitted vnp_Amount back to VND.
func ParseGatewayAmount(raw string) (int64, error) {
	value, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", raw, err)
	}
	if value < 0 || value%amountScale != 0 {
		return 0, fmt.Errorf("amount %d is not a whole VND value", value)
	}
	return value / amountScale, nil
}

// ParseGatewayTime parses a yyyyMMddHHmmss timestamp in the gateway timezone.
func ParseGatewayTime(raw string) (time.Time, error) {
	return time.ParseInLocation(dateLayout, strings.TrimSpace(raw), gatewayZone)
}
