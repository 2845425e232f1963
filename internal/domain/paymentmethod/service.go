package paymentmethod

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dispatchly/ledger-api/internal/domain/entity"
	"github.com/dispatchly/ledger-api/internal/pkg/database"
)

// Vault keeps exactly one default among an owner's active methods. Every
// mutation takes the owner lock first, so concurrent saves for the same
// owner are applied one after another.
type Vault struct {
	tx   database.Transactor
	repo Repository
	now  func() time.Time
}

func NewVault(tx database.Transactor, repo Repository) *Vault {
	return &Vault{tx: tx, repo: repo, now: time.Now}
}

// WithClock replaces the time source.
func (v *Vault) WithClock(now func() time.Time) *Vault {
	v.now = now
	return v
}

// Save stores an authorization. Saving one the owner already has returns
// the existing method (promoted if isDefault). The owner's first active
// method always becomes the default.
func (v *Vault) Save(ctx context.Context, owner entity.Ref, authorizationCode string, card CardDetails, isDefault bool) (*PaymentMethod, error) {
	if authorizationCode == "" {
		return nil, ErrMissingAuthorization
	}
	if !owner.Valid() {
		return nil, entity.ErrUnknownType
	}

	var saved *PaymentMethod
	err := v.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := v.repo.LockOwner(ctx, owner); err != nil {
			return err
		}
		now := v.now().UTC()

		existing, err := v.repo.GetActiveByAuthorization(ctx, owner, authorizationCode)
		if err != nil {
			return err
		}
		if existing != nil {
			if isDefault && !existing.IsDefault {
				if err := v.promote(ctx, owner, existing.ID, now); err != nil {
					return err
				}
				existing.IsDefault = true
				existing.UpdatedAt = now
			}
			saved = existing
			return nil
		}

		active, err := v.repo.ListActive(ctx, owner)
		if err != nil {
			return err
		}
		makeDefault := isDefault || len(active) == 0
		if makeDefault {
			if err := v.repo.ClearDefault(ctx, owner, now); err != nil {
				return err
			}
		}

		m := &PaymentMethod{
			ID:                uuid.New(),
			OwnerID:           owner.ID,
			OwnerType:         owner.Type,
			AuthorizationCode: authorizationCode,
			CardType:          card.CardType,
			Last4:             card.Last4,
			ExpMonth:          card.ExpMonth,
			ExpYear:           card.ExpYear,
			Bank:              card.Bank,
			Brand:             card.Brand,
			Signature:         card.Signature,
			IsDefault:         makeDefault,
			IsActive:          true,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		if err := v.repo.Insert(ctx, m); err != nil {
			return err
		}
		saved = m
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("owner", owner.String()).
		Str("payment_method_id", saved.ID.String()).
		Bool("is_default", saved.IsDefault).
		Msg("payment method saved")
	return saved, nil
}

// SetDefault makes methodID the owner's only default.
func (v *Vault) SetDefault(ctx context.Context, owner entity.Ref, methodID uuid.UUID) (*PaymentMethod, error) {
	var out *PaymentMethod
	err := v.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := v.repo.LockOwner(ctx, owner); err != nil {
			return err
		}
		m, err := v.repo.GetActive(ctx, owner, methodID)
		if err != nil {
			return err
		}
		if m == nil {
			return ErrNotFound
		}
		now := v.now().UTC()
		if err := v.promote(ctx, owner, methodID, now); err != nil {
			return err
		}
		m.IsDefault = true
		m.UpdatedAt = now
		out = m
		return nil
	})
	return out, err
}

// Delete soft-deletes a method. Removing the default while other active
// methods remain requires replacementID, which is promoted in the same
// unit; otherwise ErrCannotDeleteDefault. The last remaining method can
// always be removed.
func (v *Vault) Delete(ctx context.Context, owner entity.Ref, methodID uuid.UUID, replacementID *uuid.UUID) error {
	return v.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := v.repo.LockOwner(ctx, owner); err != nil {
			return err
		}
		active, err := v.repo.ListActive(ctx, owner)
		if err != nil {
			return err
		}

		var target *PaymentMethod
		for _, m := range active {
			if m.ID == methodID {
				target = m
				break
			}
		}
		if target == nil {
			return ErrNotFound
		}

		now := v.now().UTC()
		if target.IsDefault && len(active) > 1 {
			if replacementID == nil {
				return ErrCannotDeleteDefault
			}
			if *replacementID == methodID || !containsID(active, *replacementID) {
				return ErrInvalidReplacement
			}
		}

		ok, err := v.repo.Deactivate(ctx, owner, methodID, now)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotFound
		}

		if target.IsDefault && replacementID != nil && len(active) > 1 {
			return v.promote(ctx, owner, *replacementID, now)
		}
		if !target.IsDefault && replacementID != nil {
			log.Debug().Str("owner", owner.String()).Msg("replacement ignored for non-default payment method")
		}
		return nil
	})
}

// List returns the owner's active methods, default first.
func (v *Vault) List(ctx context.Context, owner entity.Ref) ([]*PaymentMethod, error) {
	return v.repo.ListActive(ctx, owner)
}

// Get returns an active method owned by owner.
func (v *Vault) Get(ctx context.Context, owner entity.Ref, methodID uuid.UUID) (*PaymentMethod, error) {
	m, err := v.repo.GetActive(ctx, owner, methodID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, ErrNotFound
	}
	return m, nil
}

func (v *Vault) promote(ctx context.Context, owner entity.Ref, id uuid.UUID, now time.Time) error {
	if err := v.repo.ClearDefault(ctx, owner, now); err != nil {
		return err
	}
	ok, err := v.repo.SetDefault(ctx, owner, id, now)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

func containsID(items []*PaymentMethod, id uuid.UUID) bool {
	for _, m := range items {
		if m.ID == id {
			return true
		}
	}
	return false
}
