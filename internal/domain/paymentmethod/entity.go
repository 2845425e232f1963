package paymentmethod

import (
	"time"

	"github.com/google/uuid"

	"github.com/dispatchly/ledger-api/internal/domain/entity"
)

// PaymentMethod is a tokenized card an owner can be charged with again.
type PaymentMethod struct {
	ID                uuid.UUID   `db:"id" json:"id"`
	OwnerID           uuid.UUID   `db:"owner_id" json:"owner_id"`
	OwnerType         entity.Type `db:"owner_type" json:"owner_type"`
	AuthorizationCode string      `db:"authorization_code" json:"-"`
	CardType          string      `db:"card_type" json:"card_type"`
	Last4             string      `db:"last4" json:"last4"`
	ExpMonth          string      `db:"exp_month" json:"exp_month"`
	ExpYear           string      `db:"exp_year" json:"exp_year"`
	Bank              string      `db:"bank" json:"bank"`
	Brand             string      `db:"brand" json:"brand"`
	Signature         string      `db:"signature" json:"-"`
	IsDefault         bool        `db:"is_default" json:"is_default"`
	IsActive          bool        `db:"is_active" json:"is_active"`
	CreatedAt         time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time   `db:"updated_at" json:"updated_at"`
}

func (m *PaymentMethod) Owner() entity.Ref {
	return entity.NewRef(m.OwnerID, m.OwnerType)
}

// Label is a short human description used on transaction records.
func (m *PaymentMethod) Label() string {
	return m.Brand + " ****" + m.Last4
}

// CardDetails is the non-secret part of a provider authorization.
type CardDetails struct {
	CardType  string
	Last4     string
	ExpMonth  string
	ExpYear   string
	Bank      string
	Brand     string
	Signature string
}
