package ledgertest

import (
	"context"
	"sync"
	"time"

	"github.com/dispatchly/ledger-api/internal/domain/withdrawal"
)

// OTPs implements withdrawal.OTPRepository.
type OTPs struct {
	mu    sync.Mutex
	byRef map[string]withdrawal.OTP
}

func NewOTPs() *OTPs {
	return &OTPs{byRef: make(map[string]withdrawal.OTP)}
}

func (s *OTPs) Upsert(_ context.Context, o *withdrawal.OTP) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := *o
	next.Attempts = 0
	next.Used = false
	next.Verified = false
	if prev, ok := s.byRef[o.Reference]; ok {
		next.CreatedAt = prev.CreatedAt
	}
	s.byRef[o.Reference] = next
	return nil
}

func (s *OTPs) Get(_ context.Context, reference string) (*withdrawal.OTP, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.byRef[reference]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

func (s *OTPs) GetForUpdate(ctx context.Context, reference string) (*withdrawal.OTP, error) {
	if !InTx(ctx) {
		return nil, ErrNoTx
	}
	return s.Get(ctx, reference)
}

func (s *OTPs) IncrementAttempts(_ context.Context, reference string, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := s.byRef[reference]
	o.Attempts++
	o.UpdatedAt = now
	s.byRef[reference] = o
	return o.Attempts, nil
}

func (s *OTPs) MarkVerified(_ context.Context, reference string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := s.byRef[reference]
	o.Used = true
	o.Verified = true
	o.UpdatedAt = now
	s.byRef[reference] = o
	return nil
}

func (s *OTPs) Snapshot() func() {
	s.mu.Lock()
	saved := make(map[string]withdrawal.OTP, len(s.byRef))
	for k, v := range s.byRef {
		saved[k] = v
	}
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		s.byRef = saved
		s.mu.Unlock()
	}
}
