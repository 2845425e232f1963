package payment

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InitializeBody for POST /payments/initialize
type InitializeBody struct {
	Amount decimal.Decimal `json:"amount" validate:"money"`
}

// RegisterBody for POST /payments/register
type RegisterBody struct {
	Reference      string           `json:"reference" validate:"required,max=100"`
	Amount         decimal.Decimal  `json:"amount" validate:"money"`
	Purpose        string           `json:"purpose" validate:"omitempty,max=255"`
	Type           string           `json:"type" validate:"omitempty,tx_type"`
	ExpectedAmount *decimal.Decimal `json:"expected_amount"`
}

// ChargeSavedBody for POST /payments/charge-saved
type ChargeSavedBody struct {
	PaymentMethodID uuid.UUID       `json:"payment_method_id" validate:"required"`
	Amount          decimal.Decimal `json:"amount" validate:"money"`
}
