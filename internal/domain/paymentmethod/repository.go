package paymentmethod

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/dispatchly/ledger-api/internal/domain/entity"
	"github.com/dispatchly/ledger-api/internal/pkg/database"
)

// Repository defines payment method data access. Getters return nil, nil
// when nothing matches.
type Repository interface {
	// LockOwner serializes default reassignment for one owner; requires a transaction.
	LockOwner(ctx context.Context, owner entity.Ref) error
	ListActive(ctx context.Context, owner entity.Ref) ([]*PaymentMethod, error)
	GetActive(ctx context.Context, owner entity.Ref, id uuid.UUID) (*PaymentMethod, error)
	GetActiveByAuthorization(ctx context.Context, owner entity.Ref, authorizationCode string) (*PaymentMethod, error)
	Insert(ctx context.Context, m *PaymentMethod) error
	ClearDefault(ctx context.Context, owner entity.Ref, now time.Time) error
	SetDefault(ctx context.Context, owner entity.Ref, id uuid.UUID, now time.Time) (bool, error)
	Deactivate(ctx context.Context, owner entity.Ref, id uuid.UUID, now time.Time) (bool, error)
}

type repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

const columns = `
	id, owner_id, owner_type, authorization_code, card_type, last4, exp_month, exp_year,
	bank, brand, signature, is_default, is_active, created_at, updated_at
`

func (r *repository) LockOwner(ctx context.Context, owner entity.Ref) error {
	tx, err := database.RequireTx(ctx)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, "payment_methods:"+owner.String())
	return err
}

func (r *repository) ListActive(ctx context.Context, owner entity.Ref) ([]*PaymentMethod, error) {
	var items []*PaymentMethod
	err := sqlx.SelectContext(ctx, database.Executor(ctx, r.db), &items, `
		SELECT `+columns+`
		FROM payment_methods
		WHERE owner_id = $1 AND owner_type = $2 AND is_active = TRUE
		ORDER BY is_default DESC, created_at DESC
	`, owner.ID, owner.Type)
	return items, err
}

func (r *repository) GetActive(ctx context.Context, owner entity.Ref, id uuid.UUID) (*PaymentMethod, error) {
	return r.getOne(ctx, `
		SELECT `+columns+`
		FROM payment_methods
		WHERE id = $1 AND owner_id = $2 AND owner_type = $3 AND is_active = TRUE
	`, id, owner.ID, owner.Type)
}

func (r *repository) GetActiveByAuthorization(ctx context.Context, owner entity.Ref, authorizationCode string) (*PaymentMethod, error) {
	return r.getOne(ctx, `
		SELECT `+columns+`
		FROM payment_methods
		WHERE authorization_code = $1 AND owner_id = $2 AND owner_type = $3 AND is_active = TRUE
		LIMIT 1
	`, authorizationCode, owner.ID, owner.Type)
}

func (r *repository) getOne(ctx context.Context, query string, args ...interface{}) (*PaymentMethod, error) {
	var m PaymentMethod
	if err := sqlx.GetContext(ctx, database.Executor(ctx, r.db), &m, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

func (r *repository) Insert(ctx context.Context, m *PaymentMethod) error {
	_, err := sqlx.NamedExecContext(ctx, database.Executor(ctx, r.db), `
		INSERT INTO payment_methods (`+columns+`)
		VALUES (
			:id, :owner_id, :owner_type, :authorization_code, :card_type, :last4, :exp_month, :exp_year,
			:bank, :brand, :signature, :is_default, :is_active, :created_at, :updated_at
		)
	`, m)
	return err
}

func (r *repository) ClearDefault(ctx context.Context, owner entity.Ref, now time.Time) error {
	_, err := database.Executor(ctx, r.db).ExecContext(ctx, `
		UPDATE payment_methods SET is_default = FALSE, updated_at = $3
		WHERE owner_id = $1 AND owner_type = $2 AND is_default = TRUE
	`, owner.ID, owner.Type, now)
	return err
}

func (r *repository) SetDefault(ctx context.Context, owner entity.Ref, id uuid.UUID, now time.Time) (bool, error) {
	res, err := database.Executor(ctx, r.db).ExecContext(ctx, `
		UPDATE payment_methods SET is_default = TRUE, updated_at = $4
		WHERE id = $1 AND owner_id = $2 AND owner_type = $3 AND is_active = TRUE
	`, id, owner.ID, owner.Type, now)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (r *repository) Deactivate(ctx context.Context, owner entity.Ref, id uuid.UUID, now time.Time) (bool, error) {
	res, err := database.Executor(ctx, r.db).ExecContext(ctx, `
		UPDATE payment_methods SET is_active = FALSE, is_default = FALSE, updated_at = $4
		WHERE id = $1 AND owner_id = $2 AND owner_type = $3 AND is_active = TRUE
	`, id, owner.ID, owner.Type, now)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}
