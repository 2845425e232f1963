package withdrawal

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dispatchly/ledger-api/internal/domain/entity"
	"github.com/dispatchly/ledger-api/internal/domain/transaction"
)

const (
	OTPLength      = 6
	MaxOTPAttempts = 3

	referencePrefix = "WDR-"
	reversalSuffix  = "-reversal"
	otpEmailKey     = "otp_email"
)

// OTP is the confirmation challenge bound to one withdrawal reference.
// Only the bcrypt hash of the code is stored.
type OTP struct {
	Reference  string      `db:"reference"`
	EntityID   uuid.UUID   `db:"entity_id"`
	EntityType entity.Type `db:"entity_type"`
	CodeHash   string      `db:"code_hash"`
	ExpiresAt  time.Time   `db:"expires_at"`
	Attempts   int         `db:"attempts"`
	Used       bool        `db:"used"`
	Verified   bool        `db:"verified"`
	IssuedAt   time.Time   `db:"issued_at"`
	CreatedAt  time.Time   `db:"created_at"`
	UpdatedAt  time.Time   `db:"updated_at"`
}

func (o *OTP) Owner() entity.Ref {
	return entity.NewRef(o.EntityID, o.EntityType)
}

// Pending reports whether the challenge can still be answered by owner.
func (o *OTP) Pending(owner entity.Ref) bool {
	return o != nil && !o.Used && o.EntityID == owner.ID && o.EntityType == owner.Type
}

// WithdrawRequest moves money from a wallet to a bank account.
type WithdrawRequest struct {
	Owner         entity.Ref
	Amount        decimal.Decimal
	AccountNumber string
	BankCode      string
	AccountName   string
	Reason        string
	// Email receives the confirmation code when one is required.
	Email string
}

// Result is what the caller gets back after the debit and transfer.
type Result struct {
	Transaction  *transaction.Transaction `json:"transaction"`
	OTPRequired  bool                     `json:"otp_required"`
	OTPExpiresAt *time.Time               `json:"otp_expires_at,omitempty"`
}

// Challenge describes a freshly issued code without the code itself.
type Challenge struct {
	Reference string    `json:"reference"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ReversalReference is the refund record written when a completed
// withdrawal is reversed by the provider.
func ReversalReference(reference string) string {
	return reference + reversalSuffix
}

// IsWithdrawalReference reports whether reference was issued by Withdraw.
func IsWithdrawalReference(reference string) bool {
	return strings.HasPrefix(reference, referencePrefix)
}
