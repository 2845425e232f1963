package ledgertest

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dispatchly/ledger-api/internal/domain/entity"
	"github.com/dispatchly/ledger-api/internal/domain/wallet"
)

// Wallets implements wallet.Store.
type Wallets struct {
	mu      sync.Mutex
	wallets map[entity.Ref]wallet.Wallet
}

func NewWallets() *Wallets {
	return &Wallets{wallets: make(map[entity.Ref]wallet.Wallet)}
}

// Add creates a wallet holder with the given balance.
func (s *Wallets) Add(ref entity.Ref, balance decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wallets[ref] = wallet.Wallet{
		EntityID:   ref.ID,
		EntityType: ref.Type,
		Balance:    balance,
		UpdatedAt:  time.Now().UTC(),
	}
}

// BalanceOf returns the current balance, zero for unknown holders.
func (s *Wallets) BalanceOf(ref entity.Ref) decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wallets[ref].Balance
}

func (s *Wallets) Get(_ context.Context, ref entity.Ref) (*wallet.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.wallets[ref]
	if !ok {
		return nil, wallet.ErrWalletNotFound
	}
	return &w, nil
}

func (s *Wallets) Lock(ctx context.Context, ref entity.Ref) (*wallet.Wallet, error) {
	if !InTx(ctx) {
		return nil, ErrNoTx
	}
	return s.Get(ctx, ref)
}

func (s *Wallets) SetBalance(_ context.Context, ref entity.Ref, balance decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.wallets[ref]
	if !ok {
		return wallet.ErrWalletNotFound
	}
	w.Balance = balance
	w.UpdatedAt = time.Now().UTC()
	s.wallets[ref] = w
	return nil
}

func (s *Wallets) Snapshot() func() {
	s.mu.Lock()
	saved := make(map[entity.Ref]wallet.Wallet, len(s.wallets))
	for k, v := range s.wallets {
		saved[k] = v
	}
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		s.wallets = saved
		s.mu.Unlock()
	}
}
