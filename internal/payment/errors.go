package payment

import "errors"

var (
	// ErrValidation marks malformed caller input. Never retried.
	ErrValidation = errors.New("payment: validation failed")
	// ErrConfiguration marks missing operator-level gateway settings.
	ErrConfiguration = errors.New("payment: gateway not configured")
	// ErrSignature marks a callback whose secure hash is absent or does not verify.
	ErrSignature = errors.New("payment: signature rejected")
	// ErrReconciliation marks an IPN that references an unknown order or carries the wrong amount.
	ErrReconciliation = errors.New("payment: reconciliation failed")
	// ErrTransientStore marks an Order Store failure the gateway should retry.
	ErrTransientStore = errors.New("payment: order store unavailable")

	// ErrOrderNotFound is returned by an OrderStore when the order does not exist.
	ErrOrderNotFound = errors.New("payment: order not found")
	// ErrAlreadyTerminal is returned by an OrderStore when the order left pending before the write.
	ErrAlreadyTerminal = errors.New("payment: order already terminal")
	// ErrOrderConflict is returned when a pending order is re-registered with different terms.
	ErrOrderConflict = errors.New("payment: order conflicts with existing record")
)
