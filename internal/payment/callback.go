package payment

import "strings"

// CallbackMessage is a Return or IPN payload received from the gateway.
type CallbackMessage struct {
	Params            Params
	Signature         string
	ResponseCode      string
	TransactionStatus string
	OrderID           string
	RawAmount         string
	TransactionID     string
	BankCode          string
	PayDate           string
	TmnCode           string
}

// ParseCallback extracts the protocol fields from a received parameter set.
func ParseCallback(params Params) CallbackMessage {
	if params == nil {
		params = Params{}
	}
	get := func(key string) string { return strings.TrimSpace(params[key]) }
	return CallbackMessage{
		Params:            params,
		Signature:         get(SecureHashField),
		ResponseCode:      get("vnp_ResponseCode"),
		TransactionStatus: get("vnp_TransactionStatus"),
		OrderID:           get("vnp_TxnRef"),
		RawAmount:         get("vnp_Amount"),
		TransactionID:     get("vnp_TransactionNo"),
		BankCode:          get("vnp_BankCode"),
		PayDate:           get("vnp_PayDate"),
		TmnCode:           get("vnp_TmnCode"),
	}
}

// Paid reports whether the callback reports a settled payment. When the gateway
// includes a transaction status it must agree with the response code.
func (m CallbackMessage) Paid() bool {
	if !IsSuccessCode(m.ResponseCode) {
		return false
	}
	return m.TransactionStatus == "" || IsSuccessCode(m.TransactionStatus)
}

// FailureReason is the plain-language reason for an unsuccessful callback.
func (m CallbackMessage) FailureReason() string {
	if !IsSuccessCode(m.ResponseCode) {
		return ResponseReason(m.ResponseCode)
	}
	if m.TransactionStatus != "" && !IsSuccessCode(m.TransactionStatus) {
		return ResponseReason(m.TransactionStatus)
	}
	return ""
}
