package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dispatchly/ledger-api/internal/domain/transaction"
	"github.com/dispatchly/ledger-api/internal/domain/wallet"
	"github.com/dispatchly/ledger-api/internal/domain/withdrawal"
	"github.com/dispatchly/ledger-api/internal/pkg/logger"
	"github.com/dispatchly/ledger-api/internal/pkg/metrics"
	"github.com/dispatchly/ledger-api/internal/pkg/paystack"
)

// HandleWebhook processes one provider callback. The signature is checked
// before anything else; a bad one yields ErrSignatureInvalid and nothing
// is read or written. A nil return means the event may be acknowledged:
// outcomes that redelivery cannot change are logged and swallowed, and
// only transient failures are returned so the provider retries.
func (e *Engine) HandleWebhook(ctx context.Context, rawBody []byte, signature string) error {
	if !paystack.VerifySignature(rawBody, signature, e.cfg.WebhookSecret) {
		metrics.WebhookEvent("unknown", "invalid_signature")
		log.Warn().Int("body_bytes", len(rawBody)).Msg("webhook rejected: invalid signature")
		return ErrSignatureInvalid
	}

	ev, data, err := paystack.ParseEvent(rawBody)
	if err != nil {
		metrics.WebhookEvent("unknown", "malformed")
		log.Warn().Err(err).Msg("webhook ignored: malformed body")
		return nil
	}

	ctx = logger.WithReference(ctx, data.Reference)
	e.archive.Store(ctx, ev.Event, data.Reference, rawBody)

	switch ev.Event {
	case paystack.EventChargeSuccess:
		err = e.handleChargeSuccess(ctx, data.Reference)
	case paystack.EventTransferSuccess:
		err = e.handleTransfer(ctx, data.Reference, func(ts TransferSettler) error {
			return ts.CompleteTransfer(ctx, data.Reference, payloadOf(ev.Data))
		})
	case paystack.EventTransferFailed, paystack.EventTransferReversed:
		reason := data.Reason
		if reason == "" {
			reason = ev.Event
		}
		err = e.handleTransfer(ctx, data.Reference, func(ts TransferSettler) error {
			return ts.ReverseTransfer(ctx, data.Reference, reason, payloadOf(ev.Data))
		})
	default:
		metrics.WebhookEvent(ev.Event, "ignored")
		return nil
	}

	l := logger.FromContext(ctx)
	switch {
	case err == nil:
		metrics.WebhookEvent(ev.Event, "processed")
		return nil
	case permanent(err):
		metrics.WebhookEvent(ev.Event, "rejected")
		l.Warn().Err(err).Str("event", ev.Event).Msg("webhook acknowledged without effect")
		return nil
	}
	metrics.WebhookEvent(ev.Event, "retry")
	l.Error().Err(err).Str("event", ev.Event).Msg("webhook processing failed")
	return err
}

// handleChargeSuccess never trusts the body: the outcome is fetched from
// the provider again before anything is applied.
func (e *Engine) handleChargeSuccess(ctx context.Context, reference string) error {
	t, err := e.registrar.GetByReference(ctx, reference)
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
		metrics.Reconciliation(sourceWebhook, "already_applied")
		return nil
	}

	charge, err := e.gateway.VerifyCharge(ctx, reference)
	if err != nil {
		metrics.Reconciliation(sourceWebhook, "gateway_error")
		return err
	}
	_, err = e.settle(ctx, sourceWebhook, reference, charge)
	if errors.Is(err, errUndecided) {
		return nil
	}
	return err
}

// handleTransfer settles a payout event. A transfer carrying one of our
// withdrawal references with no matching record means money left without a
// ledger entry, so it is retried and logged as an error instead of being
// acknowledged.
func (e *Engine) handleTransfer(ctx context.Context, reference string, fn func(TransferSettler) error) error {
	if e.transfers == nil {
		logger.FromContext(ctx).Warn().Msg("transfer webhook received but no settler is configured")
		return nil
	}
	err := fn(e.transfers)
	if errors.Is(err, withdrawal.ErrTransactionNotFound) && withdrawal.IsWithdrawalReference(reference) {
		return fmt.Errorf("%w: %w", errUnrecordedTransfer, err)
	}
	return err
}

// errUnrecordedTransfer is never acknowledged.
var errUnrecordedTransfer = errors.New("provider transfer has no withdrawal record")

func permanent(err error) bool {
	if errors.Is(err, errUnrecordedTransfer) {
		return false
	}
	for _, target := range []error{
		ErrTransactionNotFound,
		ErrPaymentNotSuccessful,
		ErrAmountMismatch,
		ErrReferenceMismatch,
		ErrUnsupportedType,
		transaction.ErrInvalidTransition,
		wallet.ErrWalletNotFound,
		withdrawal.ErrTransactionNotFound,
		withdrawal.ErrNotWithdrawal,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func payloadOf(raw json.RawMessage) transaction.Metadata {
	var m transaction.Metadata
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}
