package paymentmethod

import "errors"

var (
	ErrNotFound             = errors.New("payment method not found")
	ErrCannotDeleteDefault  = errors.New("cannot delete the default payment method without a replacement")
	ErrInvalidReplacement   = errors.New("replacement payment method not found")
	ErrMissingAuthorization = errors.New("authorization code is required")
)
