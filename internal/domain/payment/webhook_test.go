package payment_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dispatchly/ledger-api/internal/domain/entity"
	"github.com/dispatchly/ledger-api/internal/domain/payment"
	"github.com/dispatchly/ledger-api/internal/domain/transaction"
	"github.com/dispatchly/ledger-api/internal/domain/withdrawal"
	"github.com/dispatchly/ledger-api/internal/pkg/paystack"
)

func TestWebhookRejectsBadSignature(t *testing.T) {
	h := newHarness()
	owner := h.NewEntity(entity.TypeCustomer, "0")
	h.register(t, owner, "REF-SIG", "100")
	h.Gateway.SetCharge("REF-SIG", paystack.ChargeSuccess, dec("100"), nil)

	body := webhookBody(t, paystack.EventChargeSuccess, "REF-SIG", 10000)
	signature := sign(body)
	tampered := webhookBody(t, paystack.EventChargeSuccess, "REF-SIG", 99990000)

	for name, tc := range map[string]struct {
		body []byte
		sig  string
	}{
		"tampered body":     {tampered, signature},
		"missing signature": {body, ""},
		"wrong secret":      {body, paystack.Sign(body, "sk_other")},
	} {
		t.Run(name, func(t *testing.T) {
			err := h.Engine.HandleWebhook(context.Background(), tc.body, tc.sig)
			assert.ErrorIs(t, err, payment.ErrSignatureInvalid)
		})
	}

	assert.Zero(t, h.Gateway.Calls("verify"))
	assert.Zero(t, h.Archive.Len())
	tx, err := h.Registrar.GetByReference(context.Background(), "REF-SIG")
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusPending, tx.Status)
	assert.True(t, h.Balance(owner).IsZero())
}

func TestWebhookChargeSuccessReverifies(t *testing.T) {
	h := newHarness()
	owner := h.NewEntity(entity.TypeCustomer, "0")
	h.register(t, owner, "REF-WH", "750")
	h.Gateway.SetCharge("REF-WH", paystack.ChargeSuccess, dec("750"), nil)
	ctx := context.Background()

	// The body claims a larger amount; only the provider's answer counts.
	body := webhookBody(t, paystack.EventChargeSuccess, "REF-WH", 9900000)
	require.NoError(t, h.Engine.HandleWebhook(ctx, body, sign(body)))
	require.NoError(t, h.Engine.HandleWebhook(ctx, body, sign(body)))

	assert.True(t, h.Balance(owner).Equal(dec("750")))
	assert.Equal(t, 1, h.Gateway.Calls("verify"))
	assert.Equal(t, 2, h.Archive.Len())

	tx, err := h.Registrar.GetByReference(ctx, "REF-WH")
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusCompleted, tx.Status)
	assert.Equal(t, "webhook", tx.Metadata["reconciled_via"])

	res, err := h.Engine.Verify(ctx, "REF-WH")
	require.NoError(t, err)
	assert.True(t, res.AlreadyApplied)
	assert.True(t, h.Balance(owner).Equal(dec("750")))
}

func TestWebhookAcknowledgesWithoutEffect(t *testing.T) {
	h := newHarness()
	owner := h.NewEntity(entity.TypeCustomer, "0")
	h.register(t, owner, "REF-SHORT", "500")
	h.Gateway.SetCharge("REF-SHORT", paystack.ChargeSuccess, dec("5"), nil)
	ctx := context.Background()

	unknown := webhookBody(t, paystack.EventChargeSuccess, "REF-UNKNOWN", 100)
	assert.NoError(t, h.Engine.HandleWebhook(ctx, unknown, sign(unknown)))

	mismatch := webhookBody(t, paystack.EventChargeSuccess, "REF-SHORT", 50000)
	assert.NoError(t, h.Engine.HandleWebhook(ctx, mismatch, sign(mismatch)))
	assert.True(t, h.Balance(owner).IsZero())

	malformed := []byte(`{"event":`)
	assert.NoError(t, h.Engine.HandleWebhook(ctx, malformed, sign(malformed)))

	other := webhookBody(t, "subscription.create", "SUB-1", 0)
	assert.NoError(t, h.Engine.HandleWebhook(ctx, other, sign(other)))
}

func TestWebhookTransientFailureIsReturned(t *testing.T) {
	h := newHarness()
	owner := h.NewEntity(entity.TypeCustomer, "0")
	h.register(t, owner, "REF-RETRY", "100")
	h.Gateway.VerifyErr = &paystack.Error{Op: "verify", StatusCode: 502, Message: "Bad gateway"}
	ctx := context.Background()

	body := webhookBody(t, paystack.EventChargeSuccess, "REF-RETRY", 10000)
	err := h.Engine.HandleWebhook(ctx, body, sign(body))
	var gwErr *paystack.Error
	require.True(t, errors.As(err, &gwErr))

	h.Gateway.VerifyErr = nil
	h.Gateway.SetCharge("REF-RETRY", paystack.ChargeSuccess, dec("100"), nil)
	require.NoError(t, h.Engine.HandleWebhook(ctx, body, sign(body)))
	assert.True(t, h.Balance(owner).Equal(dec("100")))
}

func TestWebhookTransferEvents(t *testing.T) {
	h := newHarness()
	svc := withdrawal.NewService(h.Tx, h.Ledger, h.Registrar, h.OTPs, h.Gateway, h.Notifier, withdrawal.Config{
		OTPThreshold: decimal.NewFromInt(1000000),
	}).WithClock(h.Clock.Now)
	h.Engine.WithTransferSettler(svc)
	rider := h.NewEntity(entity.TypeRider, "5000")
	ctx := context.Background()

	req := func(amount string) withdrawal.WithdrawRequest {
		return withdrawal.WithdrawRequest{
			Owner: rider, Amount: dec(amount),
			AccountNumber: "0123456789", BankCode: "058", AccountName: "Ada Rider",
		}
	}

	failed, err := svc.Withdraw(ctx, req("2000"))
	require.NoError(t, err)
	done, err := svc.Withdraw(ctx, req("1000"))
	require.NoError(t, err)
	require.True(t, h.Balance(rider).Equal(dec("2000")))

	failBody := webhookBody(t, paystack.EventTransferFailed, failed.Transaction.Reference, 200000)
	require.NoError(t, h.Engine.HandleWebhook(ctx, failBody, sign(failBody)))
	require.NoError(t, h.Engine.HandleWebhook(ctx, failBody, sign(failBody)))
	assert.True(t, h.Balance(rider).Equal(dec("4000")))

	okBody := webhookBody(t, paystack.EventTransferSuccess, done.Transaction.Reference, 100000)
	require.NoError(t, h.Engine.HandleWebhook(ctx, okBody, sign(okBody)))

	tx, err := h.Registrar.GetByReference(ctx, done.Transaction.Reference)
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusCompleted, tx.Status)

	tx, err = h.Registrar.GetByReference(ctx, failed.Transaction.Reference)
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusFailed, tx.Status)

	foreign := webhookBody(t, paystack.EventTransferSuccess, "PAYOUT-elsewhere", 100)
	assert.NoError(t, h.Engine.HandleWebhook(ctx, foreign, sign(foreign)))
}

// A transfer for one of our withdrawal references with no record behind it
// must be redelivered, not acknowledged.
func TestWebhookUnrecordedWithdrawalIsRetried(t *testing.T) {
	h := newHarness()
	svc := withdrawal.NewService(h.Tx, h.Ledger, h.Registrar, h.OTPs, h.Gateway, h.Notifier, withdrawal.Config{
		OTPThreshold: decimal.NewFromInt(1000000),
	}).WithClock(h.Clock.Now)
	h.Engine.WithTransferSettler(svc)
	ctx := context.Background()

	for _, event := range []string{paystack.EventTransferSuccess, paystack.EventTransferFailed} {
		body := webhookBody(t, event, "WDR-00000000-missing", 100)
		err := h.Engine.HandleWebhook(ctx, body, sign(body))
		assert.ErrorIs(t, err, withdrawal.ErrTransactionNotFound, event)
	}
}

// Provider charge outcomes never settle a payout: the withdrawal engine
// owns those rows.
func TestChargeOutcomeIgnoresWithdrawals(t *testing.T) {
	h := newHarness()
	svc := withdrawal.NewService(h.Tx, h.Ledger, h.Registrar, h.OTPs, h.Gateway, h.Notifier, withdrawal.Config{
		OTPThreshold: decimal.NewFromInt(1000000),
	}).WithClock(h.Clock.Now)
	h.Engine.WithTransferSettler(svc)
	rider := h.NewEntity(entity.TypeRider, "8000")
	ctx := context.Background()

	w, err := svc.Withdraw(ctx, withdrawal.WithdrawRequest{
		Owner: rider, Amount: dec("3000"),
		AccountNumber: "0123456789", BankCode: "058", AccountName: "Ada Rider",
	})
	require.NoError(t, err)
	ref := w.Transaction.Reference
	h.Gateway.SetCharge(ref, paystack.ChargeFailed, dec("3000"), nil)

	_, err = h.Engine.VerifyForOwner(ctx, rider, ref)
	assert.ErrorIs(t, err, payment.ErrTransactionNotFound)
	_, err = h.Engine.Verify(ctx, ref)
	assert.ErrorIs(t, err, payment.ErrTransactionNotFound)

	body := webhookBody(t, paystack.EventChargeSuccess, ref, 300000)
	require.NoError(t, h.Engine.HandleWebhook(ctx, body, sign(body)))
	assert.Zero(t, h.Gateway.Calls("verify"))

	tx, err := h.Registrar.GetByReference(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusProcessing, tx.Status)

	require.NoError(t, svc.ReverseTransfer(ctx, ref, "bank rejected", nil))
	assert.True(t, h.Balance(rider).Equal(dec("8000")))
}

// Every completed movement must satisfy before +/- amount = after, and
// the wallet must end at the sum of its movements.
func TestBalanceArithmeticAcrossFlows(t *testing.T) {
	h := newHarness()
	svc := withdrawal.NewService(h.Tx, h.Ledger, h.Registrar, h.OTPs, h.Gateway, h.Notifier, withdrawal.Config{
		OTPThreshold: decimal.NewFromInt(1000000),
	}).WithClock(h.Clock.Now)
	h.Engine.WithTransferSettler(svc)
	vendor := h.NewEntity(entity.TypeVendor, "100.50")
	ctx := context.Background()

	for i, amount := range []string{"250.25", "1000", "0.01"} {
		ref := []string{"R-A", "R-B", "R-C"}[i]
		h.register(t, vendor, ref, amount)
		h.Gateway.SetCharge(ref, paystack.ChargeSuccess, dec(amount), nil)
		_, err := h.Engine.Verify(ctx, ref)
		require.NoError(t, err)
	}
	w, err := svc.Withdraw(ctx, withdrawal.WithdrawRequest{
		Owner: vendor, Amount: dec("300.75"),
		AccountNumber: "0123456789", BankCode: "058", AccountName: "Shop",
	})
	require.NoError(t, err)
	require.NoError(t, svc.ReverseTransfer(ctx, w.Transaction.Reference, "bank rejected", nil))

	assert.True(t, h.Balance(vendor).Equal(dec("1350.76")), h.Balance(vendor).String())
	for _, tx := range h.Transactions.All() {
		if tx.Status != transaction.StatusCompleted {
			continue
		}
		assert.NoError(t, transaction.CheckBalances(tx.Type, tx.Amount, tx.BalanceBefore.Decimal, tx.BalanceAfter.Decimal), tx.Reference)
	}
}
