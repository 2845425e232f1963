// Package ledgertest provides in-memory stores and a fake payment gateway
// for exercising the ledger engines without Postgres or the network.
package ledgertest

import (
	"context"
	"errors"
	"sync"
	"time"
)

type txKey struct{}

// ErrNoTx mirrors the Postgres repositories refusing row locks outside a
// transaction.
var ErrNoTx = errors.New("ledgertest: row lock requested outside a transaction")

// Snapshotter is a store whose state can be captured and restored.
type Snapshotter interface {
	Snapshot() (restore func())
}

// Transactor runs units one at a time. A unit that returns an error has
// every registered store restored to its state before the unit began.
type Transactor struct {
	mu        sync.Mutex
	stores    []Snapshotter
	statsMu   sync.Mutex
	commits   int
	rollbacks int
}

func NewTransactor(stores ...Snapshotter) *Transactor {
	return &Transactor{stores: stores}
}

func (t *Transactor) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if InTx(ctx) {
		return fn(ctx)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	restores := make([]func(), 0, len(t.stores))
	for _, s := range t.stores {
		restores = append(restores, s.Snapshot())
	}

	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		for _, restore := range restores {
			restore()
		}
		t.statsMu.Lock()
		t.rollbacks++
		t.statsMu.Unlock()
		return err
	}

	t.statsMu.Lock()
	t.commits++
	t.statsMu.Unlock()
	return nil
}

// Stats returns the number of committed and rolled back units.
func (t *Transactor) Stats() (commits, rollbacks int) {
	t.statsMu.Lock()
	defer t.statsMu.Unlock()
	return t.commits, t.rollbacks
}

// InTx reports whether ctx was produced by Transactor.WithinTx.
func InTx(ctx context.Context) bool {
	v, _ := ctx.Value(txKey{}).(bool)
	return v
}

// Clock is a settable time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
