package wallet

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dispatchly/ledger-api/internal/domain/entity"
)

// Wallet is the balance embedded in a customer, vendor or rider row.
// PendingBalance is reported but never checked against Balance.
type Wallet struct {
	EntityID       uuid.UUID       `db:"id" json:"entity_id"`
	EntityType     entity.Type     `db:"-" json:"entity_type"`
	Balance        decimal.Decimal `db:"wallet_balance" json:"balance"`
	PendingBalance decimal.Decimal `db:"wallet_pending_balance" json:"pending_balance"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
}

func (w *Wallet) Ref() entity.Ref {
	return entity.NewRef(w.EntityID, w.EntityType)
}

// Movement records one balance change.
type Movement struct {
	Before decimal.Decimal
	After  decimal.Decimal
}
