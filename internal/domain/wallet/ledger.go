package wallet

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/dispatchly/ledger-api/internal/domain/entity"
)

// Store is the persistence Ledger needs. Repository is the Postgres one.
type Store interface {
	Get(ctx context.Context, ref entity.Ref) (*Wallet, error)
	Lock(ctx context.Context, ref entity.Ref) (*Wallet, error)
	SetBalance(ctx context.Context, ref entity.Ref, balance decimal.Decimal) error
}

// Ledger applies balance changes with lock, check and write in one step.
// Every call must run inside the caller's database transaction so the
// row lock is held until the matching transaction record is written.
type Ledger struct {
	store Store
}

func NewLedger(store Store) *Ledger {
	return &Ledger{store: store}
}

// CheckAmount accepts positive amounts in major units with at most two
// decimal places, the precision of the wallet columns and of kobo.
func CheckAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if !amount.Equal(amount.Truncate(2)) {
		return ErrAmountPrecision
	}
	return nil
}

// Credit adds amount to the entity's wallet.
func (l *Ledger) Credit(ctx context.Context, ref entity.Ref, amount decimal.Decimal) (Movement, error) {
	if err := CheckAmount(amount); err != nil {
		return Movement{}, err
	}
	return l.apply(ctx, ref, amount)
}

// Debit removes amount, failing with ErrInsufficientBalance if it would
// take the balance below zero.
func (l *Ledger) Debit(ctx context.Context, ref entity.Ref, amount decimal.Decimal) (Movement, error) {
	if err := CheckAmount(amount); err != nil {
		return Movement{}, err
	}
	return l.apply(ctx, ref, amount.Neg())
}

func (l *Ledger) apply(ctx context.Context, ref entity.Ref, delta decimal.Decimal) (Movement, error) {
	w, err := l.store.Lock(ctx, ref)
	if err != nil {
		return Movement{}, err
	}

	next := w.Balance.Add(delta)
	if next.IsNegative() {
		return Movement{}, ErrInsufficientBalance
	}

	if err := l.store.SetBalance(ctx, ref, next); err != nil {
		return Movement{}, err
	}
	return Movement{Before: w.Balance, After: next}, nil
}

// Balance reads without locking.
func (l *Ledger) Balance(ctx context.Context, ref entity.Ref) (*Wallet, error) {
	return l.store.Get(ctx, ref)
}
