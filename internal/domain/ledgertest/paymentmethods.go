package ledgertest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dispatchly/ledger-api/internal/domain/entity"
	"github.com/dispatchly/ledger-api/internal/domain/paymentmethod"
)

// PaymentMethods implements paymentmethod.Repository. Owner locks are
// implied by the Transactor running one unit at a time.
type PaymentMethods struct {
	mu    sync.Mutex
	items map[uuid.UUID]paymentmethod.PaymentMethod
	seq   map[uuid.UUID]int
	next  int
}

func NewPaymentMethods() *PaymentMethods {
	return &PaymentMethods{items: make(map[uuid.UUID]paymentmethod.PaymentMethod), seq: make(map[uuid.UUID]int)}
}

func (s *PaymentMethods) LockOwner(ctx context.Context, _ entity.Ref) error {
	if !InTx(ctx) {
		return ErrNoTx
	}
	return nil
}

func (s *PaymentMethods) ListActive(_ context.Context, owner entity.Ref) ([]*paymentmethod.PaymentMethod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*paymentmethod.PaymentMethod
	for _, m := range s.items {
		if m.IsActive && m.OwnerID == owner.ID && m.OwnerType == owner.Type {
			m := m
			out = append(out, &m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IsDefault != out[j].IsDefault {
			return out[i].IsDefault
		}
		return s.seq[out[i].ID] > s.seq[out[j].ID]
	})
	return out, nil
}

func (s *PaymentMethods) GetActive(_ context.Context, owner entity.Ref, id uuid.UUID) (*paymentmethod.PaymentMethod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.items[id]
	if !ok || !m.IsActive || m.OwnerID != owner.ID || m.OwnerType != owner.Type {
		return nil, nil
	}
	return &m, nil
}

func (s *PaymentMethods) GetActiveByAuthorization(_ context.Context, owner entity.Ref, code string) (*paymentmethod.PaymentMethod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.items {
		if m.IsActive && m.AuthorizationCode == code && m.OwnerID == owner.ID && m.OwnerType == owner.Type {
			return &m, nil
		}
	}
	return nil, nil
}

func (s *PaymentMethods) Insert(_ context.Context, m *paymentmethod.PaymentMethod) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[m.ID] = *m
	s.next++
	s.seq[m.ID] = s.next
	return nil
}

func (s *PaymentMethods) ClearDefault(_ context.Context, owner entity.Ref, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, m := range s.items {
		if m.IsDefault && m.OwnerID == owner.ID && m.OwnerType == owner.Type {
			m.IsDefault = false
			m.UpdatedAt = now
			s.items[id] = m
		}
	}
	return nil
}

func (s *PaymentMethods) SetDefault(_ context.Context, owner entity.Ref, id uuid.UUID, now time.Time) (bool, error) {
	return s.update(owner, id, func(m *paymentmethod.PaymentMethod) {
		m.IsDefault = true
		m.UpdatedAt = now
	}), nil
}

func (s *PaymentMethods) Deactivate(_ context.Context, owner entity.Ref, id uuid.UUID, now time.Time) (bool, error) {
	return s.update(owner, id, func(m *paymentmethod.PaymentMethod) {
		m.IsActive = false
		m.IsDefault = false
		m.UpdatedAt = now
	}), nil
}

func (s *PaymentMethods) update(owner entity.Ref, id uuid.UUID, fn func(*paymentmethod.PaymentMethod)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.items[id]
	if !ok || !m.IsActive || m.OwnerID != owner.ID || m.OwnerType != owner.Type {
		return false
	}
	fn(&m)
	s.items[id] = m
	return true
}

// Defaults counts the owner's active default methods.
func (s *PaymentMethods) Defaults(owner entity.Ref) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.items {
		if m.IsActive && m.IsDefault && m.OwnerID == owner.ID && m.OwnerType == owner.Type {
			n++
		}
	}
	return n
}

func (s *PaymentMethods) Snapshot() func() {
	s.mu.Lock()
	saved := make(map[uuid.UUID]paymentmethod.PaymentMethod, len(s.items))
	for k, v := range s.items {
		saved[k] = v
	}
	savedSeq := make(map[uuid.UUID]int, len(s.seq))
	for k, v := range s.seq {
		savedSeq[k] = v
	}
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		s.items = saved
		s.seq = savedSeq
		s.mu.Unlock()
	}
}
