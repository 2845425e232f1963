package transaction

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/dispatchly/ledger-api/internal/domain/entity"
)

const (
	maxReferenceLength = 100
	defaultPageSize    = 20
	maxPageSize        = 100
)

// CreateParams describes a new transaction record.
type CreateParams struct {
	Owner         entity.Ref
	OrderID       *uuid.UUID
	Amount        decimal.Decimal
	Type          Type
	Reference     string
	Description   string
	Status        Status
	PaymentMethod string
	BalanceBefore *decimal.Decimal
	BalanceAfter  *decimal.Decimal
	Metadata      Metadata
}

// Registrar creates and finalizes transactions keyed by reference.
type Registrar struct {
	repo Repository
	now  func() time.Time
}

func NewRegistrar(repo Repository) *Registrar {
	return &Registrar{repo: repo, now: time.Now}
}

// WithClock replaces the time source.
func (r *Registrar) WithClock(now func() time.Time) *Registrar {
	r.now = now
	return r
}

func (r *Registrar) Now() time.Time {
	return r.now().UTC()
}

// Create inserts a new transaction, failing with ErrDuplicateReference if
// the reference is taken.
func (r *Registrar) Create(ctx context.Context, p CreateParams) (*Transaction, error) {
	if err := validateCreate(p); err != nil {
		return nil, err
	}

	now := r.Now()
	status := p.Status
	if status == "" {
		status = StatusPending
	}

	t := &Transaction{
		ID:          uuid.New(),
		EntityID:    p.Owner.ID,
		EntityType:  p.Owner.Type,
		Amount:      p.Amount,
		Type:        p.Type,
		Reference:   p.Reference,
		Status:      status,
		Description: p.Description,
		Metadata:    p.Metadata,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if t.Metadata == nil {
		t.Metadata = Metadata{}
	}
	if p.OrderID != nil {
		t.OrderID = uuid.NullUUID{UUID: *p.OrderID, Valid: true}
	}
	if p.PaymentMethod != "" {
		pm := p.PaymentMethod
		t.PaymentMethod = &pm
	}
	if p.BalanceBefore != nil {
		t.BalanceBefore = decimal.NewNullDecimal(*p.BalanceBefore)
	}
	if p.BalanceAfter != nil {
		t.BalanceAfter = decimal.NewNullDecimal(*p.BalanceAfter)
	}
	if status == StatusCompleted {
		t.CompletedAt = &now
	}

	if err := r.repo.Create(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// Register is create-or-fetch for client supplied references. An existing
// record for the same owner is returned with created=false; one owned by
// anyone else is ErrRegistrationMismatch.
//
// It must not run inside a database transaction: a unique violation
// aborts the surrounding Postgres transaction.
func (r *Registrar) Register(ctx context.Context, p CreateParams) (t *Transaction, created bool, err error) {
	existing, err := r.repo.GetByReference(ctx, p.Reference)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return checkOwner(existing, p.Owner)
	}

	t, err = r.Create(ctx, p)
	if err == nil {
		return t, true, nil
	}
	if !errors.Is(err, ErrDuplicateReference) {
		return nil, false, err
	}

	// Lost a race with a concurrent registration of the same reference.
	existing, err = r.repo.GetByReference(ctx, p.Reference)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, ErrDuplicateReference
	}
	return checkOwner(existing, p.Owner)
}

func checkOwner(t *Transaction, owner entity.Ref) (*Transaction, bool, error) {
	if !t.OwnedBy(owner) {
		log.Warn().
			Str("reference", t.Reference).
			Str("owner", t.Owner().String()).
			Str("claimed_by", owner.String()).
			Msg("reference re-registered by a different owner")
		return nil, false, ErrRegistrationMismatch
	}
	return t, false, nil
}

// UpdateStatus moves a transaction forward, merging MetadataPatch into the
// stored metadata and stamping completed_at on completion.
func (r *Registrar) UpdateStatus(ctx context.Context, reference string, p UpdateParams) (*Transaction, error) {
	if !p.Status.Valid() {
		return nil, ErrInvalidTransition
	}
	return r.repo.UpdateStatus(ctx, reference, p, r.Now())
}

// PatchMetadata records extra details on a transaction in any status.
func (r *Registrar) PatchMetadata(ctx context.Context, reference string, patch Metadata) (*Transaction, error) {
	return r.repo.PatchMetadata(ctx, reference, patch, r.Now())
}

// GetByReference returns nil, nil for unknown references.
func (r *Registrar) GetByReference(ctx context.Context, reference string) (*Transaction, error) {
	return r.repo.GetByReference(ctx, reference)
}

// GetForUpdate locks the transaction row for the rest of the ambient
// database transaction.
func (r *Registrar) GetForUpdate(ctx context.Context, reference string) (*Transaction, error) {
	return r.repo.GetByReferenceForUpdate(ctx, reference)
}

// List returns an entity's history, newest first.
func (r *Registrar) List(ctx context.Context, owner entity.Ref, f ListFilter) ([]*Transaction, int, error) {
	return r.repo.ListByEntity(ctx, owner, f.Normalize())
}

// Normalize clamps paging to sane bounds.
func (f ListFilter) Normalize() ListFilter {
	if f.Limit <= 0 {
		f.Limit = defaultPageSize
	}
	if f.Limit > maxPageSize {
		f.Limit = maxPageSize
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// ListStale returns pending transactions of the given types created before cutoff.
func (r *Registrar) ListStale(ctx context.Context, types []Type, cutoff time.Time, limit int) ([]*Transaction, error) {
	return r.repo.ListStale(ctx, types, cutoff, limit)
}

func validateCreate(p CreateParams) error {
	if !p.Owner.Valid() {
		return entity.ErrUnknownType
	}
	if !p.Type.Valid() {
		return ErrInvalidType
	}
	if !p.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	ref := strings.TrimSpace(p.Reference)
	if ref == "" || ref != p.Reference || len(ref) > maxReferenceLength {
		return ErrInvalidReference
	}
	if p.Status != "" && !p.Status.Valid() {
		return ErrInvalidTransition
	}
	return nil
}
