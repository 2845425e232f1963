// Package events hands ledger events to the notification dispatcher.
// Delivery is fire-and-forget and happens after the money has moved.
package events

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Event types emitted by the ledger core.
const (
	TypePaymentCredited     = "payment.credited"
	TypeWalletDebited       = "wallet.debited"
	TypeWithdrawalOTP       = "withdrawal.otp"
	TypeWithdrawalCompleted = "withdrawal.completed"
	TypeWithdrawalReversed  = "withdrawal.reversed"
)

// Keys of Event.Data carrying delivery details for the account holder.
const (
	DataCode  = "code"
	DataEmail = "email"
)

// Event is the payload sent to the notification dispatcher.
type Event struct {
	Type       string            `json:"type"`
	EntityID   string            `json:"entity_id"`
	EntityType string            `json:"entity_type"`
	Amount     decimal.Decimal   `json:"amount"`
	Reference  string            `json:"reference"`
	Data       map[string]string `json:"data,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// Publisher delivers one event synchronously.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Notifier is what the engines depend on. Notify must not block and
// must not report failure.
type Notifier interface {
	Notify(ctx context.Context, ev Event)
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }
func (Nop) Notify(context.Context, Event)        {}
