package withdrawal_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dispatchly/ledger-api/internal/domain/entity"
	"github.com/dispatchly/ledger-api/internal/domain/ledgertest"
	"github.com/dispatchly/ledger-api/internal/domain/transaction"
	"github.com/dispatchly/ledger-api/internal/domain/wallet"
	"github.com/dispatchly/ledger-api/internal/domain/withdrawal"
	"github.com/dispatchly/ledger-api/internal/pkg/events"
	"github.com/dispatchly/ledger-api/internal/pkg/paystack"
)

const testCode = "123456"

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newService(f *ledgertest.Fixture, threshold string) *withdrawal.Service {
	return withdrawal.NewService(f.Tx, f.Ledger, f.Registrar, f.OTPs, f.Gateway, f.Notifier, withdrawal.Config{
		OTPThreshold:      dec(threshold),
		OTPTTL:            10 * time.Minute,
		OTPResendInterval: time.Minute,
	}).
		WithClock(f.Clock.Now).
		WithCodeGenerator(func() (string, error) { return testCode, nil })
}

func request(owner entity.Ref, amount string) withdrawal.WithdrawRequest {
	return withdrawal.WithdrawRequest{
		Owner:         owner,
		Amount:        dec(amount),
		AccountNumber: "0123456789",
		BankCode:      "058",
		AccountName:   "Ada Rider",
	}
}

func TestWithdrawDebitsAndRecordsProcessingTransaction(t *testing.T) {
	f := ledgertest.New()
	svc := newService(f, "50000")
	rider := f.NewEntity(entity.TypeRider, "8000")

	res, err := svc.Withdraw(context.Background(), request(rider, "3000"))
	require.NoError(t, err)
	assert.False(t, res.OTPRequired)

	tx := res.Transaction
	assert.Equal(t, transaction.StatusProcessing, tx.Status)
	assert.Equal(t, transaction.TypeWalletWithdrawal, tx.Type)
	assert.True(t, tx.BalanceBefore.Decimal.Equal(dec("8000")))
	assert.True(t, tx.BalanceAfter.Decimal.Equal(dec("5000")))
	assert.NoError(t, transaction.CheckBalances(tx.Type, tx.Amount, tx.BalanceBefore.Decimal, tx.BalanceAfter.Decimal))
	assert.Equal(t, "RCP_0123456789", tx.Metadata["recipient_code"])
	assert.Equal(t, "TRF_"+tx.Reference, tx.Metadata["transfer_code"])
	assert.True(t, f.Balance(rider).Equal(dec("5000")))

	transfers := f.Gateway.Transfers()
	require.Len(t, transfers, 1)
	assert.Equal(t, int64(300000), transfers[0].AmountMinor)
	assert.Len(t, f.Notifier.OfType(events.TypeWalletDebited), 1)
}

func TestWithdrawInsufficientBalanceNoDebit(t *testing.T) {
	f := ledgertest.New()
	svc := newService(f, "50000")
	customer := f.NewEntity(entity.TypeCustomer, "500")

	_, err := svc.Withdraw(context.Background(), request(customer, "1000"))
	assert.ErrorIs(t, err, wallet.ErrInsufficientBalance)
	assert.True(t, f.Balance(customer).Equal(dec("500")))
	assert.Zero(t, f.Gateway.Calls("recipient"))
	assert.Empty(t, f.Transactions.All())
}

func TestWithdrawGatewayFailureRollsBackDebit(t *testing.T) {
	f := ledgertest.New()
	svc := newService(f, "50000")
	vendor := f.NewEntity(entity.TypeVendor, "10000")
	f.Gateway.TransferErr = &paystack.Error{Op: "transfer", StatusCode: 400, Message: "Insufficient balance in merchant account"}

	_, err := svc.Withdraw(context.Background(), request(vendor, "4000"))
	var gwErr *paystack.Error
	require.True(t, errors.As(err, &gwErr))
	assert.Equal(t, "Insufficient balance in merchant account", gwErr.Message)

	assert.True(t, f.Balance(vendor).Equal(dec("10000")))
	assert.Empty(t, f.Transactions.All())
	assert.Zero(t, f.Notifier.Len())
}

func TestWithdrawRejectsMissingAccount(t *testing.T) {
	f := ledgertest.New()
	svc := newService(f, "0")
	rider := f.NewEntity(entity.TypeRider, "100")

	req := request(rider, "10")
	req.BankCode = " "
	_, err := svc.Withdraw(context.Background(), req)
	assert.ErrorIs(t, err, withdrawal.ErrInvalidAccount)
}

func withdrawWithOTP(t *testing.T, f *ledgertest.Fixture, svc *withdrawal.Service, owner entity.Ref) string {
	t.Helper()
	req := request(owner, "60000")
	req.Email = "ada@example.com"
	res, err := svc.Withdraw(context.Background(), req)
	require.NoError(t, err)
	require.True(t, res.OTPRequired)
	require.NotNil(t, res.OTPExpiresAt)
	return res.Transaction.Reference
}

func TestFinalizeOTPCompletesWithdrawal(t *testing.T) {
	f := ledgertest.New()
	svc := newService(f, "50000")
	rider := f.NewEntity(entity.TypeRider, "100000")
	ref := withdrawWithOTP(t, f, svc, rider)

	sent := f.Notifier.OfType(events.TypeWithdrawalOTP)
	require.Len(t, sent, 1)
	assert.Equal(t, testCode, sent[0].Data[events.DataCode])
	assert.Equal(t, "ada@example.com", sent[0].Data[events.DataEmail])

	stored, err := f.OTPs.Get(context.Background(), ref)
	require.NoError(t, err)
	assert.NotEqual(t, testCode, stored.CodeHash)

	tx, err := svc.FinalizeOTP(context.Background(), rider, ref, testCode)
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusCompleted, tx.Status)
	assert.True(t, f.Balance(rider).Equal(dec("40000")))

	_, err = svc.FinalizeOTP(context.Background(), rider, ref, testCode)
	assert.ErrorIs(t, err, withdrawal.ErrOTPNotFound)
}

func TestFinalizeOTPAttemptExhaustion(t *testing.T) {
	f := ledgertest.New()
	svc := newService(f, "50000")
	rider := f.NewEntity(entity.TypeRider, "100000")
	ref := withdrawWithOTP(t, f, svc, rider)
	ctx := context.Background()

	for i := 0; i < withdrawal.MaxOTPAttempts; i++ {
		_, err := svc.FinalizeOTP(ctx, rider, ref, "000000")
		assert.ErrorIs(t, err, withdrawal.ErrOTPInvalid, "attempt %d", i+1)
	}

	_, err := svc.FinalizeOTP(ctx, rider, ref, testCode)
	assert.ErrorIs(t, err, withdrawal.ErrOTPMaxAttempts)

	tx, err := f.Registrar.GetByReference(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusProcessing, tx.Status)
}

func TestFinalizeOTPExpiredAndWrongOwner(t *testing.T) {
	f := ledgertest.New()
	svc := newService(f, "50000")
	rider := f.NewEntity(entity.TypeRider, "100000")
	stranger := f.NewEntity(entity.TypeRider, "0")
	ref := withdrawWithOTP(t, f, svc, rider)
	ctx := context.Background()

	_, err := svc.FinalizeOTP(ctx, stranger, ref, testCode)
	assert.ErrorIs(t, err, withdrawal.ErrOTPNotFound)

	_, err = svc.FinalizeOTP(ctx, rider, "WDR-unknown", testCode)
	assert.ErrorIs(t, err, withdrawal.ErrOTPNotFound)

	f.Clock.Advance(11 * time.Minute)
	_, err = svc.FinalizeOTP(ctx, rider, ref, testCode)
	assert.ErrorIs(t, err, withdrawal.ErrOTPExpired)
}

func TestResendOTPRespectsIntervalAndResetsAttempts(t *testing.T) {
	f := ledgertest.New()
	svc := newService(f, "50000")
	rider := f.NewEntity(entity.TypeRider, "100000")
	ref := withdrawWithOTP(t, f, svc, rider)
	ctx := context.Background()

	_, err := svc.FinalizeOTP(ctx, rider, ref, "999999")
	require.ErrorIs(t, err, withdrawal.ErrOTPInvalid)

	_, err = svc.ResendOTP(ctx, rider, ref)
	assert.ErrorIs(t, err, withdrawal.ErrOTPTooSoon)

	f.Clock.Advance(2 * time.Minute)
	challenge, err := svc.ResendOTP(ctx, rider, ref)
	require.NoError(t, err)
	assert.Equal(t, f.Clock.Now().Add(10*time.Minute), challenge.ExpiresAt)

	stored, err := f.OTPs.Get(ctx, ref)
	require.NoError(t, err)
	assert.Zero(t, stored.Attempts)
	resent := f.Notifier.OfType(events.TypeWithdrawalOTP)
	require.Len(t, resent, 2)
	assert.Equal(t, "ada@example.com", resent[1].Data[events.DataEmail])

	_, err = svc.FinalizeOTP(ctx, rider, ref, testCode)
	assert.NoError(t, err)
}

func TestZeroThresholdAlwaysRequiresOTP(t *testing.T) {
	f := ledgertest.New()
	svc := newService(f, "0")
	rider := f.NewEntity(entity.TypeRider, "100")

	res, err := svc.Withdraw(context.Background(), request(rider, "1"))
	require.NoError(t, err)
	assert.True(t, res.OTPRequired)
}

func TestCompleteTransferIsIdempotent(t *testing.T) {
	f := ledgertest.New()
	svc := newService(f, "50000")
	rider := f.NewEntity(entity.TypeRider, "5000")
	ctx := context.Background()

	res, err := svc.Withdraw(ctx, request(rider, "1000"))
	require.NoError(t, err)
	ref := res.Transaction.Reference

	require.NoError(t, svc.CompleteTransfer(ctx, ref, transaction.Metadata{"status": "success"}))
	require.NoError(t, svc.CompleteTransfer(ctx, ref, nil))

	tx, err := f.Registrar.GetByReference(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusCompleted, tx.Status)
	assert.True(t, f.Balance(rider).Equal(dec("4000")))
	assert.Len(t, f.Notifier.OfType(events.TypeWithdrawalCompleted), 1)

	assert.ErrorIs(t, svc.CompleteTransfer(ctx, "WDR-missing", nil), withdrawal.ErrTransactionNotFound)
}

func TestReverseTransferCreditsBackOnce(t *testing.T) {
	f := ledgertest.New()
	svc := newService(f, "50000")
	vendor := f.NewEntity(entity.TypeVendor, "5000")
	ctx := context.Background()

	res, err := svc.Withdraw(ctx, request(vendor, "2000"))
	require.NoError(t, err)
	ref := res.Transaction.Reference
	require.True(t, f.Balance(vendor).Equal(dec("3000")))

	require.NoError(t, svc.ReverseTransfer(ctx, ref, "Could not credit account", nil))
	require.NoError(t, svc.ReverseTransfer(ctx, ref, "Could not credit account", nil))

	assert.True(t, f.Balance(vendor).Equal(dec("5000")))
	tx, err := f.Registrar.GetByReference(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusFailed, tx.Status)
	assert.True(t, tx.BalanceAfter.Decimal.Equal(dec("3000")))
	assert.Equal(t, "5000", tx.Metadata["reversal_balance_after"])
	assert.Len(t, f.Notifier.OfType(events.TypeWithdrawalReversed), 1)

	require.NoError(t, svc.CompleteTransfer(ctx, ref, nil))
	tx, err = f.Registrar.GetByReference(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusFailed, tx.Status)
}

func TestReverseAfterCompletionWritesRefund(t *testing.T) {
	f := ledgertest.New()
	svc := newService(f, "50000")
	rider := f.NewEntity(entity.TypeRider, "70000")
	ctx := context.Background()
	ref := withdrawWithOTP(t, f, svc, rider)

	_, err := svc.FinalizeOTP(ctx, rider, ref, testCode)
	require.NoError(t, err)
	require.True(t, f.Balance(rider).Equal(dec("10000")))

	require.NoError(t, svc.ReverseTransfer(ctx, ref, "transfer.reversed", nil))
	require.NoError(t, svc.ReverseTransfer(ctx, ref, "transfer.reversed", nil))
	assert.True(t, f.Balance(rider).Equal(dec("70000")))

	original, err := f.Registrar.GetByReference(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusCompleted, original.Status)

	refund, err := f.Registrar.GetByReference(ctx, withdrawal.ReversalReference(ref))
	require.NoError(t, err)
	require.NotNil(t, refund)
	assert.Equal(t, transaction.TypeRefund, refund.Type)
	assert.Equal(t, transaction.StatusCompleted, refund.Status)
	assert.NoError(t, transaction.CheckBalances(refund.Type, refund.Amount, refund.BalanceBefore.Decimal, refund.BalanceAfter.Decimal))
}

func TestReverseTransferRejectsNonWithdrawal(t *testing.T) {
	f := ledgertest.New()
	svc := newService(f, "50000")
	owner := f.NewEntity(entity.TypeCustomer, "0")
	ctx := context.Background()

	_, err := f.Registrar.Create(ctx, transaction.CreateParams{
		Owner: owner, Amount: dec("10"), Type: transaction.TypeWalletFunding, Reference: "FND-1",
	})
	require.NoError(t, err)
	assert.ErrorIs(t, svc.ReverseTransfer(ctx, "FND-1", "x", nil), withdrawal.ErrNotWithdrawal)
}

type failingOTPs struct {
	*ledgertest.OTPs
	err error
}

func (o failingOTPs) Upsert(context.Context, *withdrawal.OTP) error { return o.err }

// Nothing may leave through the provider until the debit, the withdrawal
// record and its challenge are all in place.
func TestWithdrawStoreFailureSendsNoTransfer(t *testing.T) {
	f := ledgertest.New()
	otps := failingOTPs{OTPs: f.OTPs, err: errors.New("db blip")}
	svc := withdrawal.NewService(f.Tx, f.Ledger, f.Registrar, otps, f.Gateway, f.Notifier, withdrawal.Config{
		OTPTTL:            10 * time.Minute,
		OTPResendInterval: time.Minute,
	}).WithClock(f.Clock.Now)
	rider := f.NewEntity(entity.TypeRider, "8000")

	_, err := svc.Withdraw(context.Background(), request(rider, "3000"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db blip")

	assert.Zero(t, f.Gateway.Calls("transfer"))
	assert.Empty(t, f.Gateway.Transfers())
	assert.True(t, f.Balance(rider).Equal(dec("8000")))
	assert.Empty(t, f.Transactions.All())
	assert.Zero(t, f.Notifier.Len())
}

type recordCheckingGateway struct {
	*ledgertest.Gateway
	registrar *transaction.Registrar
	seen      *transaction.Transaction
}

func (g *recordCheckingGateway) CreateTransfer(ctx context.Context, recipientCode string, amountMinor int64, reference, reason string) (*paystack.Transfer, error) {
	g.seen, _ = g.registrar.GetByReference(ctx, reference)
	return g.Gateway.CreateTransfer(ctx, recipientCode, amountMinor, reference, reason)
}

func TestWithdrawRecordsBeforeTransfer(t *testing.T) {
	f := ledgertest.New()
	gw := &recordCheckingGateway{Gateway: f.Gateway, registrar: f.Registrar}
	svc := withdrawal.NewService(f.Tx, f.Ledger, f.Registrar, f.OTPs, gw, f.Notifier, withdrawal.Config{
		OTPThreshold: dec("50000"),
	}).WithClock(f.Clock.Now)
	rider := f.NewEntity(entity.TypeRider, "8000")

	res, err := svc.Withdraw(context.Background(), request(rider, "3000"))
	require.NoError(t, err)

	require.NotNil(t, gw.seen)
	assert.Equal(t, transaction.StatusProcessing, gw.seen.Status)
	assert.True(t, gw.seen.BalanceAfter.Decimal.Equal(dec("5000")))

	stored, err := f.Registrar.GetByReference(context.Background(), res.Transaction.Reference)
	require.NoError(t, err)
	assert.Equal(t, "TRF_"+res.Transaction.Reference, stored.Metadata["transfer_code"])
	assert.Equal(t, paystack.TransferPending, stored.Metadata["transfer_status"])
}

func TestWithdrawRejectsSubKoboAmount(t *testing.T) {
	f := ledgertest.New()
	svc := newService(f, "50000")
	rider := f.NewEntity(entity.TypeRider, "100")

	_, err := svc.Withdraw(context.Background(), request(rider, "10.005"))
	assert.ErrorIs(t, err, wallet.ErrAmountPrecision)
	assert.True(t, f.Balance(rider).Equal(dec("100")))
	assert.Zero(t, f.Gateway.Calls("recipient"))
}
