package wallet

import "errors"

var (
	ErrInvalidAmount       = errors.New("amount must be greater than zero")
	ErrAmountPrecision     = errors.New("amount has more than two decimal places")
	ErrInsufficientBalance = errors.New("insufficient wallet balance")
	ErrWalletNotFound      = errors.New("wallet holder not found")
)
