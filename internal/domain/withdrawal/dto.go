package withdrawal

import "github.com/shopspring/decimal"

// WithdrawBody for POST /withdrawals
type WithdrawBody struct {
	Amount        decimal.Decimal `json:"amount" validate:"money"`
	AccountNumber string          `json:"account_number" validate:"required,account_number"`
	BankCode      string          `json:"bank_code" validate:"required,max=10"`
	AccountName   string          `json:"account_name" validate:"omitempty,max=200"`
	Reason        string          `json:"reason" validate:"omitempty,max=255"`
}

// OTPBody for POST /withdrawals/{reference}/otp
type OTPBody struct {
	Code string `json:"code" validate:"required,len=6,numeric"`
}
