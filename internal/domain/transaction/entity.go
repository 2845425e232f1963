package transaction

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dispatchly/ledger-api/internal/domain/entity"
)

// Status represents transaction status
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Open reports whether a transaction can still be finalized.
func (s Status) Open() bool {
	return s == StatusPending || s == StatusProcessing
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// AllowedFrom lists the statuses a transaction may be in to move to s.
// Terminal statuses are never left.
func (s Status) AllowedFrom() []Status {
	switch s {
	case StatusProcessing:
		return []Status{StatusPending}
	case StatusCompleted, StatusFailed, StatusCancelled:
		return []Status{StatusPending, StatusProcessing}
	}
	return nil
}

// CanMove reports whether from -> to is a forward transition.
func CanMove(from, to Status) bool {
	for _, s := range to.AllowedFrom() {
		if s == from {
			return true
		}
	}
	return false
}

// Type represents transaction type
type Type string

const (
	TypeWalletFunding    Type = "wallet_funding"
	TypeWalletWithdrawal Type = "wallet_withdrawal"
	TypeOrderPayment     Type = "order_payment"
	TypeRefund           Type = "refund"
	TypeCommission       Type = "commission"
	TypeTransfer         Type = "transfer"
	TypeWalletPayment    Type = "wallet_payment"
)

func (t Type) Valid() bool {
	return t.Direction() != directionUnknown
}

// Direction is the effect a transaction type has on the owner's wallet.
type Direction int

const (
	directionUnknown Direction = iota
	DirectionNone
	DirectionCredit
	DirectionDebit
)

func (t Type) Direction() Direction {
	switch t {
	case TypeWalletFunding, TypeRefund, TypeTransfer:
		return DirectionCredit
	case TypeWalletWithdrawal, TypeWalletPayment:
		return DirectionDebit
	case TypeOrderPayment, TypeCommission:
		return DirectionNone
	}
	return directionUnknown
}

// Metadata is the open JSONB audit bag. Patches are merged, never replaced.
type Metadata map[string]interface{}

func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (m *Metadata) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*m = Metadata{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported metadata type: %T", src)
	}
	out := Metadata{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return err
	}
	*m = out
	return nil
}

// Merge returns a copy of m with patch applied on top.
func (m Metadata) Merge(patch Metadata) Metadata {
	out := make(Metadata, len(m)+len(patch))
	for k, v := range m {
		out[k] = v
	}
	for k, v := range patch {
		out[k] = v
	}
	return out
}

// Transaction is one ledger record. Amount is always positive; the type
// gives the direction.
type Transaction struct {
	ID            uuid.UUID           `db:"id" json:"id"`
	EntityID      uuid.UUID           `db:"entity_id" json:"entity_id"`
	EntityType    entity.Type         `db:"entity_type" json:"entity_type"`
	OrderID       uuid.NullUUID       `db:"order_id" json:"order_id"`
	Amount        decimal.Decimal     `db:"amount" json:"amount"`
	Type          Type                `db:"transaction_type" json:"transaction_type"`
	Reference     string              `db:"reference" json:"reference"`
	Status        Status              `db:"status" json:"status"`
	BalanceBefore decimal.NullDecimal `db:"balance_before" json:"balance_before"`
	BalanceAfter  decimal.NullDecimal `db:"balance_after" json:"balance_after"`
	PaymentMethod *string             `db:"payment_method" json:"payment_method,omitempty"`
	Description   string              `db:"description" json:"description"`
	Metadata      Metadata            `db:"metadata" json:"metadata,omitempty"`
	CreatedAt     time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time           `db:"updated_at" json:"updated_at"`
	CompletedAt   *time.Time          `db:"completed_at" json:"completed_at,omitempty"`
}

func (t *Transaction) Owner() entity.Ref {
	return entity.NewRef(t.EntityID, t.EntityType)
}

func (t *Transaction) OwnedBy(ref entity.Ref) bool {
	return t.EntityID == ref.ID && t.EntityType == ref.Type
}

// CheckBalances verifies that before/after differ by exactly amount in
// the direction implied by typ.
func CheckBalances(typ Type, amount, before, after decimal.Decimal) error {
	var want decimal.Decimal
	switch typ.Direction() {
	case DirectionCredit:
		want = before.Add(amount)
	case DirectionDebit:
		want = before.Sub(amount)
	case DirectionNone:
		want = before
	default:
		return fmt.Errorf("%w: %q", ErrInvalidType, typ)
	}
	if !after.Equal(want) {
		return fmt.Errorf("%w: %s %s from %s gave %s", ErrBalanceArithmetic, typ, amount, before, after)
	}
	return nil
}
