package payment

import "errors"

var (
	ErrTransactionNotFound  = errors.New("transaction not found")
	ErrPaymentNotSuccessful = errors.New("payment was not successful")
	ErrAmountMismatch       = errors.New("amount does not match the registered amount")
	ErrReferenceMismatch    = errors.New("provider reference does not match")
	ErrSignatureInvalid     = errors.New("invalid webhook signature")
	ErrUnsupportedType      = errors.New("transaction type cannot be paid through the gateway")
)
