package payment

import "strings"

// ResponseCodeSuccess is the gateway response code for a settled payment.
const ResponseCodeSuccess = "00"

// unknownFailure is returned for any code the gateway has not documented.
const unknownFailure = "unknown failure"

var responseReasons = map[string]string{
	"00": "transaction successful",
	"07": "amount deducted, transaction suspected of fraud",
	"09": "card or account not registered for internet banking",
	"10": "card or account authentication failed more than 3 times",
	"11": "payment window expired",
	"12": "card or account is locked",
	"13": "wrong one-time password",
	"24": "customer cancelled the transaction",
	"51": "insufficient balance",
	"65": "daily transaction limit exceeded",
	"75": "issuing bank under maintenance",
	"79": "wrong payment password too many times",
	"99": "other gateway error",
}

// ResponseReason maps a gateway response code to a short reason. Unknown codes
// map to "unknown failure"; the lookup never fails.
func ResponseReason(code string) string {
	if reason, ok := responseReasons[strings.TrimSpace(code)]; ok {
		return reason
	}
	return unknownFailure
}

// IsSuccessCode reports whether the gateway response code means the payment settled.
func IsSuccessCode(code string) bool {
	return strings.TrimSpace(code) == ResponseCodeSuccess
}

// Acknowledgement codes returned to the gateway on the IPN endpoint.
const (
	AckConfirmed        = "00"
	AckOrderNotFound    = "01"
	AckAlreadyConfirmed = "02"
	AckAmountMismatch   = "04"
	AckInvalidSignature = "97"
	AckInternalError    = "99"
)

// IPNAck is the fixed-shape acknowledgement body the gateway expects.
type IPNAck struct {
	RspCode string `json:"RspCode"`
	Message string `json:"Message"`
}

// Retry reports whether the acknowledgement invites the gateway to redeliver.
func (a IPNAck) Retry() bool { return a.RspCode == AckInternalError }

var (
	ackOK               = IPNAck{RspCode: AckConfirmed, Message: "OK"}
	ackOrderNotFound    = IPNAck{RspCode: AckOrderNotFound, Message: "order not found"}
	ackAlreadyConfirmed = IPNAck{RspCode: AckAlreadyConfirmed, Message: "order already confirmed"}
	ackAmountMismatch   = IPNAck{RspCode: AckAmountMismatch, Message: "amount mismatch"}
	ackInvalidSignature = IPNAck{RspCode: AckInvalidSignature, Message: "invalid signature"}
	ackInternalError    = IPNAck{RspCode: AckInternalError, Message: "internal error"}
)
