package payment

import (
	"github.com/shopspring/decimal"

	"github.com/dispatchly/ledger-api/internal/domain/entity"
	"github.com/dispatchly/ledger-api/internal/domain/transaction"
)

const (
	fundingPrefix = "FND-"
	chargePrefix  = "CHG-"

	sourceVerify     = "verify"
	sourceWebhook    = "webhook"
	sourceSaved      = "saved_method"
	sourceReconciler = "reconciler"
)

// Result is the outcome of settling one reference.
type Result struct {
	Transaction *transaction.Transaction `json:"transaction"`
	// AlreadyApplied is set when the reference had been settled before this call.
	AlreadyApplied bool `json:"already_applied"`
	// Pending is set when the provider has not reached a final outcome yet.
	Pending bool `json:"pending,omitempty"`
}

// RegisterParams registers a payment the client is about to make on the
// provider's hosted page.
type RegisterParams struct {
	Reference      string
	Owner          entity.Ref
	Amount         decimal.Decimal
	Purpose        string
	Type           transaction.Type
	ExpectedAmount *decimal.Decimal
}

// FundingSession is what the client needs to open the hosted payment page.
type FundingSession struct {
	Reference        string                   `json:"reference"`
	AuthorizationURL string                   `json:"authorization_url"`
	AccessCode       string                   `json:"access_code"`
	Transaction      *transaction.Transaction `json:"transaction"`
}

// gatewayType reports whether a provider charge may settle t.
func gatewayType(t transaction.Type) bool {
	return t == transaction.TypeWalletFunding || t == transaction.TypeOrderPayment
}
