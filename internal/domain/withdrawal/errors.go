package withdrawal

import "errors"

var (
	ErrInvalidAccount      = errors.New("account number and bank code are required")
	ErrTransactionNotFound = errors.New("withdrawal not found")
	ErrNotWithdrawal       = errors.New("transaction is not a withdrawal")

	ErrOTPNotFound    = errors.New("no pending verification code")
	ErrOTPExpired     = errors.New("verification code expired")
	ErrOTPMaxAttempts = errors.New("maximum verification attempts exceeded")
	ErrOTPInvalid     = errors.New("invalid verification code")
	ErrOTPTooSoon     = errors.New("verification code was sent too recently")
)
