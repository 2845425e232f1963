package ledgertest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dispatchly/ledger-api/internal/domain/entity"
	"github.com/dispatchly/ledger-api/internal/domain/transaction"
)

// Transactions implements transaction.Repository with the same status
// compare-and-swap the Postgres repository uses.
type Transactions struct {
	mu    sync.Mutex
	byRef map[string]transaction.Transaction
	seq   map[string]int
	next  int
}

func NewTransactions() *Transactions {
	return &Transactions{byRef: make(map[string]transaction.Transaction), seq: make(map[string]int)}
}

func clone(t transaction.Transaction) *transaction.Transaction {
	t.Metadata = transaction.Metadata{}.Merge(t.Metadata)
	return &t
}

func (s *Transactions) Create(_ context.Context, t *transaction.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byRef[t.Reference]; ok {
		return transaction.ErrDuplicateReference
	}
	s.byRef[t.Reference] = *clone(*t)
	s.next++
	s.seq[t.Reference] = s.next
	return nil
}

func (s *Transactions) GetByReference(_ context.Context, reference string) (*transaction.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byRef[reference]
	if !ok {
		return nil, nil
	}
	return clone(t), nil
}

func (s *Transactions) GetByReferenceForUpdate(ctx context.Context, reference string) (*transaction.Transaction, error) {
	if !InTx(ctx) {
		return nil, ErrNoTx
	}
	return s.GetByReference(ctx, reference)
}

func (s *Transactions) UpdateStatus(_ context.Context, reference string, p transaction.UpdateParams, now time.Time) (*transaction.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byRef[reference]
	if !ok {
		return nil, transaction.ErrNotFound
	}
	if !transaction.CanMove(t.Status, p.Status) {
		return nil, fmt.Errorf("%w: %s is %s", transaction.ErrInvalidTransition, reference, t.Status)
	}

	t.Status = p.Status
	if p.BalanceBefore != nil {
		t.BalanceBefore.Decimal, t.BalanceBefore.Valid = *p.BalanceBefore, true
	}
	if p.BalanceAfter != nil {
		t.BalanceAfter.Decimal, t.BalanceAfter.Valid = *p.BalanceAfter, true
	}
	t.Metadata = t.Metadata.Merge(p.MetadataPatch)
	t.UpdatedAt = now
	if p.Status == transaction.StatusCompleted {
		completed := now
		t.CompletedAt = &completed
	}
	s.byRef[reference] = t
	return clone(t), nil
}

func (s *Transactions) PatchMetadata(_ context.Context, reference string, patch transaction.Metadata, now time.Time) (*transaction.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byRef[reference]
	if !ok {
		return nil, transaction.ErrNotFound
	}
	t.Metadata = t.Metadata.Merge(patch)
	t.UpdatedAt = now
	s.byRef[reference] = t
	return clone(t), nil
}

func (s *Transactions) ListByEntity(_ context.Context, ref entity.Ref, f transaction.ListFilter) ([]*transaction.Transaction, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []*transaction.Transaction
	for _, t := range s.byRef {
		if !t.OwnedBy(ref) {
			continue
		}
		if f.Type != "" && t.Type != f.Type {
			continue
		}
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		matched = append(matched, clone(t))
	}
	sort.Slice(matched, func(i, j int) bool {
		return s.seq[matched[i].Reference] > s.seq[matched[j].Reference]
	})

	total := len(matched)
	if f.Offset >= total {
		return []*transaction.Transaction{}, total, nil
	}
	end := total
	if f.Limit > 0 && f.Offset+f.Limit < end {
		end = f.Offset + f.Limit
	}
	return matched[f.Offset:end], total, nil
}

func (s *Transactions) ListStale(_ context.Context, types []transaction.Type, createdBefore time.Time, limit int) ([]*transaction.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wanted := make(map[transaction.Type]bool, len(types))
	for _, t := range types {
		wanted[t] = true
	}
	var out []*transaction.Transaction
	for _, t := range s.byRef {
		if t.Status == transaction.StatusPending && wanted[t.Type] && t.CreatedAt.Before(createdBefore) {
			out = append(out, clone(t))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return s.seq[out[i].Reference] < s.seq[out[j].Reference]
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// All returns every stored transaction in insertion order.
func (s *Transactions) All() []*transaction.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*transaction.Transaction, 0, len(s.byRef))
	for _, t := range s.byRef {
		out = append(out, clone(t))
	}
	sort.Slice(out, func(i, j int) bool {
		return s.seq[out[i].Reference] < s.seq[out[j].Reference]
	})
	return out
}

// Insert stores t as is, bypassing the registrar.
func (s *Transactions) Insert(t *transaction.Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byRef[t.Reference] = *clone(*t)
	s.next++
	s.seq[t.Reference] = s.next
}

func (s *Transactions) Snapshot() func() {
	s.mu.Lock()
	saved := make(map[string]transaction.Transaction, len(s.byRef))
	for k, v := range s.byRef {
		saved[k] = *clone(v)
	}
	savedSeq := make(map[string]int, len(s.seq))
	for k, v := range s.seq {
		savedSeq[k] = v
	}
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		s.byRef = saved
		s.seq = savedSeq
		s.mu.Unlock()
	}
}
