package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/dispatchly/ledger-api/internal/domain/entity"
	"github.com/dispatchly/ledger-api/internal/domain/paymentmethod"
	"github.com/dispatchly/ledger-api/internal/domain/transaction"
	"github.com/dispatchly/ledger-api/internal/domain/wallet"
	"github.com/dispatchly/ledger-api/internal/pkg/database"
	"github.com/dispatchly/ledger-api/internal/pkg/events"
	"github.com/dispatchly/ledger-api/internal/pkg/logger"
	"github.com/dispatchly/ledger-api/internal/pkg/metrics"
	"github.com/dispatchly/ledger-api/internal/pkg/paystack"
)

// Gateway is the part of the provider client used for inbound payments.
type Gateway interface {
	InitializeCharge(ctx context.Context, req paystack.InitializeRequest) (*paystack.InitializeResponse, error)
	VerifyCharge(ctx context.Context, reference string) (*paystack.Charge, error)
	ChargeAuthorization(ctx context.Context, req paystack.ChargeAuthorizationRequest) (*paystack.Charge, error)
}

// TransferSettler finalizes payouts reported by provider webhooks.
type TransferSettler interface {
	CompleteTransfer(ctx context.Context, reference string, payload transaction.Metadata) error
	ReverseTransfer(ctx context.Context, reference, reason string, payload transaction.Metadata) error
}

type Config struct {
	// WebhookSecret is the provider secret key used to sign webhook bodies.
	WebhookSecret string
	CallbackURL   string
}

// Engine reconciles provider outcomes against registered transactions.
// Client verification, webhooks, saved-card charges and the background
// reconciler all settle through apply, which credits a reference at most
// once.
type Engine struct {
	tx        database.Transactor
	ledger    *wallet.Ledger
	registrar *transaction.Registrar
	vault     *paymentmethod.Vault
	gateway   Gateway
	transfers TransferSettler
	notifier  events.Notifier
	archive   *Archiver
	cfg       Config
}

func NewEngine(
	tx database.Transactor,
	ledger *wallet.Ledger,
	registrar *transaction.Registrar,
	vault *paymentmethod.Vault,
	gateway Gateway,
	notifier events.Notifier,
	cfg Config,
) *Engine {
	return &Engine{
		tx:        tx,
		ledger:    ledger,
		registrar: registrar,
		vault:     vault,
		gateway:   gateway,
		notifier:  notifier,
		cfg:       cfg,
	}
}

// WithTransferSettler routes transfer webhooks to the withdrawal engine.
func (e *Engine) WithTransferSettler(ts TransferSettler) *Engine {
	e.transfers = ts
	return e
}

// WithArchiver stores every authenticated webhook body.
func (e *Engine) WithArchiver(a *Archiver) *Engine {
	e.archive = a
	return e
}

// RegisterFrontendPayment records a pending payment before the client is
// sent to the provider. Registering the same reference again returns the
// existing record (created=false) as long as the owner matches.
func (e *Engine) RegisterFrontendPayment(ctx context.Context, p RegisterParams) (*transaction.Transaction, bool, error) {
	if err := wallet.CheckAmount(p.Amount); err != nil {
		return nil, false, err
	}
	if p.ExpectedAmount != nil && !p.ExpectedAmount.Equal(p.Amount) {
		return nil, false, ErrAmountMismatch
	}
	if p.Type == "" {
		p.Type = transaction.TypeWalletFunding
	}
	if !gatewayType(p.Type) {
		return nil, false, ErrUnsupportedType
	}

	t, created, err := e.registrar.Register(ctx, transaction.CreateParams{
		Owner:         p.Owner,
		Amount:        p.Amount,
		Type:          p.Type,
		Reference:     p.Reference,
		Description:   p.Purpose,
		Status:        transaction.StatusPending,
		PaymentMethod: "paystack",
		Metadata: transaction.Metadata{
			"purpose": p.Purpose,
			"source":  "frontend",
		},
	})
	if err != nil {
		return nil, false, err
	}
	if created {
		log.Info().
			Str("reference", t.Reference).
			Str("entity_id", p.Owner.ID.String()).
			Str("entity_type", string(p.Owner.Type)).
			Str("amount", p.Amount.String()).
			Msg("payment registered")
	}
	return t, created, nil
}

// InitializeFunding registers a wallet top-up under a server reference and
// opens a hosted payment page for it. If the provider call fails the
// pending record is kept for the reconciler.
func (e *Engine) InitializeFunding(ctx context.Context, owner entity.Ref, email string, amount decimal.Decimal) (*FundingSession, error) {
	if err := wallet.CheckAmount(amount); err != nil {
		return nil, err
	}
	reference := fundingPrefix + uuid.NewString()
	t, err := e.registrar.Create(ctx, transaction.CreateParams{
		Owner:         owner,
		Amount:        amount,
		Type:          transaction.TypeWalletFunding,
		Reference:     reference,
		Description:   "Wallet funding",
		Status:        transaction.StatusPending,
		PaymentMethod: "paystack",
		Metadata:      transaction.Metadata{"source": "initialize"},
	})
	if err != nil {
		return nil, err
	}

	init, err := e.gateway.InitializeCharge(ctx, paystack.InitializeRequest{
		Email:       email,
		AmountMinor: paystack.ToMinor(amount),
		Reference:   reference,
		CallbackURL: e.cfg.CallbackURL,
		Metadata: map[string]string{
			"entity_id":        owner.ID.String(),
			"entity_type":      string(owner.Type),
			"transaction_type": string(transaction.TypeWalletFunding),
		},
	})
	if err != nil {
		log.Error().Err(err).Str("reference", reference).Msg("initialize charge failed, transaction left pending")
		return nil, err
	}

	return &FundingSession{
		Reference:        reference,
		AuthorizationURL: init.AuthorizationURL,
		AccessCode:       init.AccessCode,
		Transaction:      t,
	}, nil
}

// ChargeSavedMethod charges a stored card of owner. A charge the provider
// has not decided yet is returned with Pending set.
func (e *Engine) ChargeSavedMethod(ctx context.Context, owner entity.Ref, email string, methodID uuid.UUID, amount decimal.Decimal) (*Result, error) {
	if err := wallet.CheckAmount(amount); err != nil {
		return nil, err
	}
	m, err := e.vault.Get(ctx, owner, methodID)
	if err != nil {
		return nil, err
	}

	reference := chargePrefix + uuid.NewString()
	t, err := e.registrar.Create(ctx, transaction.CreateParams{
		Owner:         owner,
		Amount:        amount,
		Type:          transaction.TypeWalletFunding,
		Reference:     reference,
		Description:   "Wallet funding with saved card",
		Status:        transaction.StatusPending,
		PaymentMethod: m.Label(),
		Metadata:      transaction.Metadata{"payment_method_id": m.ID.String()},
	})
	if err != nil {
		return nil, err
	}

	charge, err := e.gateway.ChargeAuthorization(ctx, paystack.ChargeAuthorizationRequest{
		AuthorizationCode: m.AuthorizationCode,
		Email:             email,
		AmountMinor:       paystack.ToMinor(amount),
		Reference:         reference,
		Metadata: map[string]string{
			"entity_id":   owner.ID.String(),
			"entity_type": string(owner.Type),
		},
	})
	if err != nil {
		return nil, err
	}
	if charge.Reference == "" {
		charge.Reference = reference
	}

	res, err := e.settle(ctx, sourceSaved, reference, charge)
	if errors.Is(err, errUndecided) {
		return &Result{Transaction: t, Pending: true}, nil
	}
	return res, err
}

// Verify asks the provider for the outcome of reference and applies it.
// A completed reference returns the stored result without touching the
// provider or the wallet.
func (e *Engine) Verify(ctx context.Context, reference string) (*Result, error) {
	return e.verify(ctx, sourceVerify, reference, nil)
}

// VerifyForOwner is Verify for client calls: references owned by anyone
// else read as not found.
func (e *Engine) VerifyForOwner(ctx context.Context, owner entity.Ref, reference string) (*Result, error) {
	return e.verify(ctx, sourceVerify, reference, &owner)
}

func (e *Engine) verify(ctx context.Context, source, reference string, owner *entity.Ref) (*Result, error) {
	ctx = logger.WithReference(ctx, reference)

	t, err := e.registrar.GetByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if t == nil || (owner != nil && !t.OwnedBy(*owner)) {
		return nil, ErrTransactionNotFound
	}
	// Payouts and internal movements are settled by their own engines.
	if !gatewayType(t.Type) {
		return nil, ErrTransactionNotFound
	}
	switch t.Status {
	case transaction.StatusCompleted:
		metrics.Reconciliation(source, "already_applied")
		return &Result{Transaction: t, AlreadyApplied: true}, nil
	case transaction.StatusFailed, transaction.StatusCancelled:
		return nil, ErrPaymentNotSuccessful
	}

	charge, err := e.gateway.VerifyCharge(ctx, reference)
	if err != nil {
		metrics.Reconciliation(source, "gateway_error")
		return nil, err
	}

	res, err := e.settle(ctx, source, reference, charge)
	if errors.Is(err, errUndecided) {
		return nil, ErrPaymentNotSuccessful
	}
	return res, err
}

// errUndecided marks a charge the provider has not finalized; the
// transaction stays pending.
var errUndecided = errors.New("charge not final")

func (e *Engine) settle(ctx context.Context, source, reference string, charge *paystack.Charge) (*Result, error) {
	switch charge.Status {
	case paystack.ChargeSuccess:
		return e.apply(ctx, source, reference, charge)
	case paystack.ChargeFailed, paystack.ChargeReversed:
		e.markFailed(ctx, source, reference, charge)
		return nil, ErrPaymentNotSuccessful
	}
	metrics.Reconciliation(source, "undecided")
	logger.FromContext(ctx).Info().
		Str("reference", reference).
		Str("gateway_status", charge.Status).
		Msg("charge not final, leaving transaction pending")
	return nil, errUndecided
}

// apply credits the wallet and completes the transaction in one database
// transaction. The transaction row lock and the completed check make a
// concurrent or repeated settlement of the same reference a no-op.
func (e *Engine) apply(ctx context.Context, source, reference string, charge *paystack.Charge) (*Result, error) {
	if charge.Reference != "" && charge.Reference != reference {
		return nil, fmt.Errorf("%w: %q reported for %q", ErrReferenceMismatch, charge.Reference, reference)
	}

	var res *Result
	err := e.tx.WithinTx(ctx, func(ctx context.Context) error {
		t, err := e.registrar.GetForUpdate(ctx, reference)
		if err != nil {
			return err
		}
		if t == nil {
			return ErrTransactionNotFound
		}
		if !gatewayType(t.Type) {
			return ErrUnsupportedType
		}
		if t.Status == transaction.StatusCompleted {
			res = &Result{Transaction: t, AlreadyApplied: true}
			return nil
		}
		if !t.Status.Open() {
			return ErrPaymentNotSuccessful
		}
		if !charge.Amount().Equal(t.Amount) {
			return fmt.Errorf("%w: provider reported %s, registered %s", ErrAmountMismatch, charge.Amount(), t.Amount)
		}

		update := transaction.UpdateParams{
			Status:        transaction.StatusCompleted,
			MetadataPatch: chargePatch(source, charge),
		}
		switch t.Type.Direction() {
		case transaction.DirectionCredit:
			mv, err := e.ledger.Credit(ctx, t.Owner(), t.Amount)
			if err != nil {
				return err
			}
			if err := transaction.CheckBalances(t.Type, t.Amount, mv.Before, mv.After); err != nil {
				return err
			}
			update.BalanceBefore = &mv.Before
			update.BalanceAfter = &mv.After
		case transaction.DirectionNone:
		default:
			return ErrUnsupportedType
		}

		done, err := e.registrar.UpdateStatus(ctx, reference, update)
		if err != nil {
			return err
		}
		res = &Result{Transaction: done}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrAmountMismatch) {
			metrics.Reconciliation(source, "amount_mismatch")
			logger.FromContext(ctx).Error().Err(err).Str("reference", reference).Msg("provider amount mismatch, transaction left pending")
		}
		return nil, err
	}

	if res.AlreadyApplied {
		metrics.Reconciliation(source, "already_applied")
		return res, nil
	}

	metrics.Reconciliation(source, "applied")
	t := res.Transaction
	logger.FromContext(ctx).Info().
		Str("reference", reference).
		Str("source", source).
		Str("entity_id", t.EntityID.String()).
		Str("entity_type", string(t.EntityType)).
		Str("amount", t.Amount.String()).
		Msg("payment applied")

	e.saveAuthorization(ctx, t.Owner(), charge)
	e.notifier.Notify(ctx, events.Event{
		Type:       events.TypePaymentCredited,
		EntityID:   t.EntityID.String(),
		EntityType: string(t.EntityType),
		Amount:     t.Amount,
		Reference:  t.Reference,
		Data:       map[string]string{"transaction_type": string(t.Type)},
	})
	return res, nil
}

func (e *Engine) markFailed(ctx context.Context, source, reference string, charge *paystack.Charge) {
	_, err := e.registrar.UpdateStatus(ctx, reference, transaction.UpdateParams{
		Status:        transaction.StatusFailed,
		MetadataPatch: chargePatch(source, charge),
	})
	if err != nil {
		logger.FromContext(ctx).Warn().Err(err).Str("reference", reference).Msg("could not mark payment failed")
		return
	}
	metrics.Reconciliation(source, "failed")
}

// saveAuthorization runs after the money has moved; its failure is logged only.
func (e *Engine) saveAuthorization(ctx context.Context, owner entity.Ref, charge *paystack.Charge) {
	auth := charge.ReusableAuthorization()
	if auth == nil || e.vault == nil {
		return
	}
	_, err := e.vault.Save(ctx, owner, auth.AuthorizationCode, paymentmethod.CardDetails{
		CardType:  strings.TrimSpace(auth.CardType),
		Last4:     auth.Last4,
		ExpMonth:  auth.ExpMonth,
		ExpYear:   auth.ExpYear,
		Bank:      auth.Bank,
		Brand:     auth.Brand,
		Signature: auth.Signature,
	}, false)
	if err != nil {
		logger.FromContext(ctx).Error().Err(err).Str("owner", owner.String()).Msg("failed to save card authorization")
	}
}

func chargePatch(source string, charge *paystack.Charge) transaction.Metadata {
	patch := transaction.Metadata{
		"reconciled_via":   source,
		"gateway_status":   charge.Status,
		"gateway_response": charge.GatewayResponse,
	}
	if charge.PaidAt != nil {
		patch["paid_at"] = charge.PaidAt.UTC().Format(time.RFC3339)
	}
	if len(charge.Raw) > 0 {
		patch["provider_payload"] = json.RawMessage(charge.Raw)
	}
	return patch
}
