package transaction

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/dispatchly/ledger-api/internal/domain/entity"
	"github.com/dispatchly/ledger-api/internal/pkg/database"
)

const referenceConstraint = "transactions_reference_key"

// UpdateParams finalizes or advances a transaction. Nil balances keep the
// stored values.
type UpdateParams struct {
	Status        Status
	BalanceBefore *decimal.Decimal
	BalanceAfter  *decimal.Decimal
	MetadataPatch Metadata
}

// ListFilter narrows an entity's history.
type ListFilter struct {
	Type   Type
	Status Status
	Limit  int
	Offset int
}

// Repository defines transaction data access
type Repository interface {
	Create(ctx context.Context, t *Transaction) error
	// GetByReference returns nil, nil when no transaction matches.
	GetByReference(ctx context.Context, reference string) (*Transaction, error)
	// GetByReferenceForUpdate row-locks the transaction; requires a transaction.
	GetByReferenceForUpdate(ctx context.Context, reference string) (*Transaction, error)
	UpdateStatus(ctx context.Context, reference string, p UpdateParams, now time.Time) (*Transaction, error)
	// PatchMetadata merges patch into the stored metadata without touching the status.
	PatchMetadata(ctx context.Context, reference string, patch Metadata, now time.Time) (*Transaction, error)
	ListByEntity(ctx context.Context, ref entity.Ref, f ListFilter) ([]*Transaction, int, error)
	ListStale(ctx context.Context, types []Type, createdBefore time.Time, limit int) ([]*Transaction, error)
}

type repository struct {
	db *sqlx.DB
}

// NewRepository creates the Postgres transaction repository
func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

const selectColumns = `
	id, entity_id, entity_type, order_id, amount, transaction_type, reference, status,
	balance_before, balance_after, payment_method, description, metadata,
	created_at, updated_at, completed_at
`

func (r *repository) Create(ctx context.Context, t *Transaction) error {
	q := `
		INSERT INTO transactions (
			id, entity_id, entity_type, order_id, amount, transaction_type, reference, status,
			balance_before, balance_after, payment_method, description, metadata,
			created_at, updated_at, completed_at
		) VALUES (
			:id, :entity_id, :entity_type, :order_id, :amount, :transaction_type, :reference, :status,
			:balance_before, :balance_after, :payment_method, :description, :metadata,
			:created_at, :updated_at, :completed_at
		)
	`
	_, err := sqlx.NamedExecContext(ctx, database.Executor(ctx, r.db), q, t)
	if err != nil {
		if database.IsUniqueViolation(err, referenceConstraint) {
			return ErrDuplicateReference
		}
		return err
	}
	return nil
}

func (r *repository) GetByReference(ctx context.Context, reference string) (*Transaction, error) {
	return r.get(ctx, database.Executor(ctx, r.db), reference, "")
}

func (r *repository) GetByReferenceForUpdate(ctx context.Context, reference string) (*Transaction, error) {
	tx, err := database.RequireTx(ctx)
	if err != nil {
		return nil, err
	}
	return r.get(ctx, tx, reference, " FOR UPDATE")
}

func (r *repository) get(ctx context.Context, q sqlx.QueryerContext, reference, suffix string) (*Transaction, error) {
	var t Transaction
	query := `SELECT ` + selectColumns + ` FROM transactions WHERE reference = $1` + suffix
	if err := sqlx.GetContext(ctx, q, &t, query, reference); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

// UpdateStatus only moves rows whose current status allows the transition,
// so a finalized transaction can never be overwritten by a late duplicate.
func (r *repository) UpdateStatus(ctx context.Context, reference string, p UpdateParams, now time.Time) (*Transaction, error) {
	from := p.Status.AllowedFrom()
	if len(from) == 0 {
		return nil, fmt.Errorf("%w: cannot move to %q", ErrInvalidTransition, p.Status)
	}
	fromStrings := make([]string, len(from))
	for i, s := range from {
		fromStrings[i] = string(s)
	}

	patch := p.MetadataPatch
	if patch == nil {
		patch = Metadata{}
	}

	var completedAt *time.Time
	if p.Status == StatusCompleted {
		completedAt = &now
	}

	q := `
		UPDATE transactions SET
			status = $2,
			balance_before = COALESCE($3, balance_before),
			balance_after = COALESCE($4, balance_after),
			metadata = COALESCE(metadata, '{}'::jsonb) || $5::jsonb,
			completed_at = COALESCE($6, completed_at),
			updated_at = $7
		WHERE reference = $1 AND status = ANY($8)
		RETURNING ` + selectColumns

	var t Transaction
	err := sqlx.GetContext(ctx, database.Executor(ctx, r.db), &t, q,
		reference, p.Status, nullDecimal(p.BalanceBefore), nullDecimal(p.BalanceAfter),
		patch, completedAt, now, pq.Array(fromStrings),
	)
	if err == nil {
		return &t, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	existing, getErr := r.GetByReference(ctx, reference)
	if getErr != nil {
		return nil, getErr
	}
	if existing == nil {
		return nil, ErrNotFound
	}
	return nil, fmt.Errorf("%w: %s is %s", ErrInvalidTransition, reference, existing.Status)
}

func (r *repository) PatchMetadata(ctx context.Context, reference string, patch Metadata, now time.Time) (*Transaction, error) {
	q := `
		UPDATE transactions SET
			metadata = COALESCE(metadata, '{}'::jsonb) || $2::jsonb,
			updated_at = $3
		WHERE reference = $1
		RETURNING ` + selectColumns

	var t Transaction
	err := sqlx.GetContext(ctx, database.Executor(ctx, r.db), &t, q, reference, patch, now)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *repository) ListByEntity(ctx context.Context, ref entity.Ref, f ListFilter) ([]*Transaction, int, error) {
	where := []string{"entity_id = $1", "entity_type = $2"}
	args := []interface{}{ref.ID, ref.Type}
	if f.Type != "" {
		args = append(args, f.Type)
		where = append(where, fmt.Sprintf("transaction_type = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	cond := strings.Join(where, " AND ")

	db := database.Executor(ctx, r.db)

	var total int
	if err := sqlx.GetContext(ctx, db, &total, `SELECT COUNT(*) FROM transactions WHERE `+cond, args...); err != nil {
		return nil, 0, err
	}

	args = append(args, f.Limit, f.Offset)
	q := fmt.Sprintf(`SELECT %s FROM transactions WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		selectColumns, cond, len(args)-1, len(args))

	var items []*Transaction
	if err := sqlx.SelectContext(ctx, db, &items, q, args...); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *repository) ListStale(ctx context.Context, types []Type, createdBefore time.Time, limit int) ([]*Transaction, error) {
	typeStrings := make([]string, len(types))
	for i, t := range types {
		typeStrings[i] = string(t)
	}

	q := `SELECT ` + selectColumns + `
		FROM transactions
		WHERE status = 'pending' AND transaction_type = ANY($1) AND created_at < $2
		ORDER BY created_at
		LIMIT $3`

	var items []*Transaction
	if err := sqlx.SelectContext(ctx, database.Executor(ctx, r.db), &items, q, pq.Array(typeStrings), createdBefore, limit); err != nil {
		return nil, err
	}
	return items, nil
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}
