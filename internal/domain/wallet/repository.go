package wallet

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/dispatchly/ledger-api/internal/domain/entity"
	"github.com/dispatchly/ledger-api/internal/pkg/database"
)

// Holder is the wallet capability of one entity table.
type Holder interface {
	Type() entity.Type
	Get(ctx context.Context, id uuid.UUID) (*Wallet, error)
	// Lock reads the wallet with a row lock; it must run inside a transaction.
	Lock(ctx context.Context, id uuid.UUID) (*Wallet, error)
	SetBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal) error
}

// tableHolder adapts one of the customers/vendors/riders tables.
type tableHolder struct {
	db         *sqlx.DB
	entityType entity.Type
	table      string
}

func NewCustomerHolder(db *sqlx.DB) Holder {
	return &tableHolder{db: db, entityType: entity.TypeCustomer, table: "customers"}
}

func NewVendorHolder(db *sqlx.DB) Holder {
	return &tableHolder{db: db, entityType: entity.TypeVendor, table: "vendors"}
}

func NewRiderHolder(db *sqlx.DB) Holder {
	return &tableHolder{db: db, entityType: entity.TypeRider, table: "riders"}
}

func (h *tableHolder) Type() entity.Type {
	return h.entityType
}

func (h *tableHolder) Get(ctx context.Context, id uuid.UUID) (*Wallet, error) {
	return h.get(ctx, database.Executor(ctx, h.db), id, "")
}

func (h *tableHolder) Lock(ctx context.Context, id uuid.UUID) (*Wallet, error) {
	tx, err := database.RequireTx(ctx)
	if err != nil {
		return nil, err
	}
	return h.get(ctx, tx, id, " FOR UPDATE")
}

func (h *tableHolder) get(ctx context.Context, q sqlx.QueryerContext, id uuid.UUID, suffix string) (*Wallet, error) {
	query := fmt.Sprintf(`
		SELECT id, wallet_balance, wallet_pending_balance, updated_at
		FROM %s
		WHERE id = $1%s
	`, h.table, suffix)

	var w Wallet
	if err := sqlx.GetContext(ctx, q, &w, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}
	w.EntityType = h.entityType
	return &w, nil
}

func (h *tableHolder) SetBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal) error {
	query := fmt.Sprintf(`UPDATE %s SET wallet_balance = $1, updated_at = now() WHERE id = $2`, h.table)
	res, err := database.Executor(ctx, h.db).ExecContext(ctx, query, balance, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrWalletNotFound
	}
	return nil
}

// Repository dispatches to the Holder registered for an entity type.
type Repository struct {
	holders map[entity.Type]Holder
}

// NewRepository wires the three Postgres-backed holders.
func NewRepository(db *sqlx.DB) *Repository {
	return NewRepositoryWithHolders(NewCustomerHolder(db), NewVendorHolder(db), NewRiderHolder(db))
}

func NewRepositoryWithHolders(holders ...Holder) *Repository {
	r := &Repository{holders: make(map[entity.Type]Holder, len(holders))}
	for _, h := range holders {
		r.holders[h.Type()] = h
	}
	return r
}

func (r *Repository) holder(t entity.Type) (Holder, error) {
	h, ok := r.holders[t]
	if !ok {
		return nil, fmt.Errorf("%w: %q", entity.ErrUnknownType, t)
	}
	return h, nil
}

func (r *Repository) Get(ctx context.Context, ref entity.Ref) (*Wallet, error) {
	h, err := r.holder(ref.Type)
	if err != nil {
		return nil, err
	}
	return h.Get(ctx, ref.ID)
}

func (r *Repository) Lock(ctx context.Context, ref entity.Ref) (*Wallet, error) {
	h, err := r.holder(ref.Type)
	if err != nil {
		return nil, err
	}
	return h.Lock(ctx, ref.ID)
}

func (r *Repository) SetBalance(ctx context.Context, ref entity.Ref, balance decimal.Decimal) error {
	h, err := r.holder(ref.Type)
	if err != nil {
		return err
	}
	return h.SetBalance(ctx, ref.ID, balance)
}
