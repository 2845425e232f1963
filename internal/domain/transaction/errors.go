package transaction

import "errors"

var (
	ErrNotFound             = errors.New("transaction not found")
	ErrDuplicateReference   = errors.New("reference already registered")
	ErrRegistrationMismatch = errors.New("reference registered to a different owner")
	ErrInvalidTransition    = errors.New("transaction is already final")
	ErrInvalidType          = errors.New("invalid transaction type")
	ErrInvalidAmount        = errors.New("amount must be greater than zero")
	ErrInvalidReference     = errors.New("reference is required")
	ErrBalanceArithmetic    = errors.New("balance change does not match transaction amount")
)
