package withdrawal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/dispatchly/ledger-api/internal/domain/entity"
	"github.com/dispatchly/ledger-api/internal/domain/transaction"
	"github.com/dispatchly/ledger-api/internal/domain/wallet"
	"github.com/dispatchly/ledger-api/internal/pkg/database"
	"github.com/dispatchly/ledger-api/internal/pkg/events"
	"github.com/dispatchly/ledger-api/internal/pkg/metrics"
	"github.com/dispatchly/ledger-api/internal/pkg/paystack"
	"github.com/dispatchly/ledger-api/internal/pkg/secret"
)

// Gateway is the part of the provider client used for payouts.
type Gateway interface {
	CreateTransferRecipient(ctx context.Context, accountNumber, bankCode, name string) (string, error)
	CreateTransfer(ctx context.Context, recipientCode string, amountMinor int64, reference, reason string) (*paystack.Transfer, error)
}

// Config holds the OTP policy.
type Config struct {
	// OTPThreshold is the smallest amount that needs confirmation; zero means every withdrawal.
	OTPThreshold      decimal.Decimal
	OTPTTL            time.Duration
	OTPResendInterval time.Duration
}

// Service moves wallet money out to bank accounts.
type Service struct {
	tx        database.Transactor
	ledger    *wallet.Ledger
	registrar *transaction.Registrar
	otps      OTPRepository
	gateway   Gateway
	notifier  events.Notifier
	cfg       Config
	now       func() time.Time
	newCode   func() (string, error)
}

func NewService(
	tx database.Transactor,
	ledger *wallet.Ledger,
	registrar *transaction.Registrar,
	otps OTPRepository,
	gateway Gateway,
	notifier events.Notifier,
	cfg Config,
) *Service {
	if cfg.OTPTTL <= 0 {
		cfg.OTPTTL = 10 * time.Minute
	}
	return &Service{
		tx:        tx,
		ledger:    ledger,
		registrar: registrar,
		otps:      otps,
		gateway:   gateway,
		notifier:  notifier,
		cfg:       cfg,
		now:       time.Now,
		newCode:   func() (string, error) { return generateNumericCode(OTPLength) },
	}
}

// WithClock replaces the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// WithCodeGenerator replaces the OTP generator.
func (s *Service) WithCodeGenerator(gen func() (string, error)) *Service {
	s.newCode = gen
	return s
}

func (s *Service) otpRequired(amount decimal.Decimal) bool {
	return s.cfg.OTPThreshold.IsZero() || amount.GreaterThanOrEqual(s.cfg.OTPThreshold)
}

// Withdraw debits the wallet, records the processing withdrawal (and its
// OTP challenge) and only then asks the provider to send the transfer, as
// the last step before commit. Any failure up to and including the
// transfer request rolls everything back and nothing is paid out.
func (s *Service) Withdraw(ctx context.Context, req WithdrawRequest) (*Result, error) {
	if !req.Owner.Valid() {
		return nil, entity.ErrUnknownType
	}
	if err := wallet.CheckAmount(req.Amount); err != nil {
		return nil, err
	}
	req.AccountNumber = strings.TrimSpace(req.AccountNumber)
	req.BankCode = strings.TrimSpace(req.BankCode)
	if req.AccountNumber == "" || req.BankCode == "" {
		return nil, ErrInvalidAccount
	}
	if req.Reason == "" {
		req.Reason = "Wallet withdrawal"
	}

	reference := referencePrefix + uuid.NewString()
	withOTP := s.otpRequired(req.Amount)

	var code, codeHash string
	if withOTP {
		var err error
		if code, codeHash, err = s.issueCode(); err != nil {
			return nil, err
		}
	}

	var (
		result   = &Result{OTPRequired: withOTP}
		transfer *paystack.Transfer
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		mv, err := s.ledger.Debit(ctx, req.Owner, req.Amount)
		if err != nil {
			return err
		}

		recipient, err := s.gateway.CreateTransferRecipient(ctx, req.AccountNumber, req.BankCode, req.AccountName)
		if err != nil {
			return err
		}

		meta := transaction.Metadata{
			"recipient_code": recipient,
			"bank_code":      req.BankCode,
			"account_last4":  last4(req.AccountNumber),
			"otp_required":   withOTP,
		}
		if withOTP && req.Email != "" {
			meta[otpEmailKey] = req.Email
		}

		t, err := s.registrar.Create(ctx, transaction.CreateParams{
			Owner:         req.Owner,
			Amount:        req.Amount,
			Type:          transaction.TypeWalletWithdrawal,
			Reference:     reference,
			Description:   req.Reason,
			Status:        transaction.StatusProcessing,
			PaymentMethod: "bank_transfer",
			BalanceBefore: &mv.Before,
			BalanceAfter:  &mv.After,
			Metadata:      meta,
		})
		if err != nil {
			return err
		}
		result.Transaction = t

		if withOTP {
			now := s.now().UTC()
			expires := now.Add(s.cfg.OTPTTL)
			if err := s.otps.Upsert(ctx, &OTP{
				Reference:  reference,
				EntityID:   req.Owner.ID,
				EntityType: req.Owner.Type,
				CodeHash:   codeHash,
				ExpiresAt:  expires,
				IssuedAt:   now,
				CreatedAt:  now,
				UpdatedAt:  now,
			}); err != nil {
				return fmt.Errorf("store otp: %w", err)
			}
			result.OTPExpiresAt = &expires
		}

		transfer, err = s.gateway.CreateTransfer(ctx, recipient, paystack.ToMinor(req.Amount), reference, req.Reason)
		return err
	})
	if err != nil {
		outcome := "failed"
		switch {
		case errors.Is(err, wallet.ErrInsufficientBalance):
			outcome = "insufficient_balance"
		case transfer != nil:
			// The provider accepted the transfer but the commit failed.
			outcome = "unrecorded_transfer"
			log.Error().
				Err(err).
				Str("reference", reference).
				Str("transfer_code", transfer.TransferCode).
				Str("entity_id", req.Owner.ID.String()).
				Str("amount", req.Amount.String()).
				Msg("transfer sent but withdrawal was not recorded")
		}
		metrics.Withdrawal(outcome)
		return nil, err
	}

	patch := transaction.Metadata{
		"transfer_code":   transfer.TransferCode,
		"transfer_status": transfer.Status,
	}
	if t, err := s.registrar.PatchMetadata(ctx, reference, patch); err != nil {
		log.Warn().Err(err).Str("reference", reference).Msg("failed to record transfer code")
		result.Transaction.Metadata = result.Transaction.Metadata.Merge(patch)
	} else {
		result.Transaction = t
	}

	metrics.Withdrawal("initiated")
	log.Info().
		Str("reference", reference).
		Str("entity_id", req.Owner.ID.String()).
		Str("entity_type", string(req.Owner.Type)).
		Str("amount", req.Amount.String()).
		Bool("otp_required", withOTP).
		Msg("withdrawal initiated")

	s.notify(ctx, events.TypeWalletDebited, result.Transaction, nil)
	if withOTP {
		s.notify(ctx, events.TypeWithdrawalOTP, result.Transaction, otpData(code, req.Email))
	}
	return result, nil
}

// FinalizeOTP checks code against the withdrawal's challenge. A wrong code
// is counted even though the call fails. Once attempts reach the maximum
// every later submission fails, including the right code.
func (s *Service) FinalizeOTP(ctx context.Context, owner entity.Ref, reference, code string) (*transaction.Transaction, error) {
	var (
		out     *transaction.Transaction
		invalid bool
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		o, err := s.otps.GetForUpdate(ctx, reference)
		if err != nil {
			return err
		}
		if !o.Pending(owner) {
			return ErrOTPNotFound
		}
		now := s.now().UTC()
		if now.After(o.ExpiresAt) {
			return ErrOTPExpired
		}
		if o.Attempts >= MaxOTPAttempts {
			return ErrOTPMaxAttempts
		}
		if !secret.Verify(code, o.CodeHash) {
			if _, err := s.otps.IncrementAttempts(ctx, reference, now); err != nil {
				return err
			}
			invalid = true
			return nil
		}

		t, err := s.registrar.GetForUpdate(ctx, reference)
		if err != nil {
			return err
		}
		if t == nil {
			return ErrTransactionNotFound
		}
		switch t.Status {
		case transaction.StatusCompleted:
		case transaction.StatusPending, transaction.StatusProcessing:
			t, err = s.registrar.UpdateStatus(ctx, reference, transaction.UpdateParams{
				Status:        transaction.StatusCompleted,
				MetadataPatch: transaction.Metadata{"otp_verified_at": now.Format(time.RFC3339)},
			})
			if err != nil {
				return err
			}
		default:
			return transaction.ErrInvalidTransition
		}

		if err := s.otps.MarkVerified(ctx, reference, now); err != nil {
			return err
		}
		out = t
		return nil
	})
	switch {
	case invalid && err == nil:
		metrics.OTPCheck("invalid")
		return nil, ErrOTPInvalid
	case err != nil:
		metrics.OTPCheck(otpOutcome(err))
		return nil, err
	}

	metrics.OTPCheck("verified")
	log.Info().Str("reference", reference).Msg("withdrawal confirmed")
	s.notify(ctx, events.TypeWithdrawalCompleted, out, nil)
	return out, nil
}

// ResendOTP replaces the code of a pending challenge.
func (s *Service) ResendOTP(ctx context.Context, owner entity.Ref, reference string) (*Challenge, error) {
	code, codeHash, err := s.issueCode()
	if err != nil {
		return nil, err
	}

	var (
		challenge *Challenge
		t         *transaction.Transaction
	)
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		o, err := s.otps.GetForUpdate(ctx, reference)
		if err != nil {
			return err
		}
		if !o.Pending(owner) {
			return ErrOTPNotFound
		}
		now := s.now().UTC()
		if now.Sub(o.IssuedAt) < s.cfg.OTPResendInterval {
			return ErrOTPTooSoon
		}

		t, err = s.registrar.GetByReference(ctx, reference)
		if err != nil {
			return err
		}
		if t == nil || !t.Status.Open() {
			return ErrOTPNotFound
		}

		o.CodeHash = codeHash
		o.IssuedAt = now
		o.ExpiresAt = now.Add(s.cfg.OTPTTL)
		o.Attempts = 0
		o.UpdatedAt = now
		if err := s.otps.Upsert(ctx, o); err != nil {
			return err
		}
		challenge = &Challenge{Reference: reference, ExpiresAt: o.ExpiresAt}
		return nil
	})
	if err != nil {
		return nil, err
	}

	email, _ := t.Metadata[otpEmailKey].(string)
	s.notify(ctx, events.TypeWithdrawalOTP, t, otpData(code, email))
	return challenge, nil
}

// CompleteTransfer records the provider's success. The wallet was already
// debited, so only the transaction changes. Terminal withdrawals are left
// as they are.
func (s *Service) CompleteTransfer(ctx context.Context, reference string, payload transaction.Metadata) error {
	var done *transaction.Transaction
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		t, err := s.lockWithdrawal(ctx, reference)
		if err != nil {
			return err
		}
		if !t.Status.Open() {
			log.Debug().Str("reference", reference).Str("status", string(t.Status)).Msg("transfer success for settled withdrawal")
			return nil
		}
		done, err = s.registrar.UpdateStatus(ctx, reference, transaction.UpdateParams{
			Status:        transaction.StatusCompleted,
			MetadataPatch: transferPatch(paystack.TransferSuccess, payload),
		})
		return err
	})
	if err != nil || done == nil {
		return err
	}

	metrics.Withdrawal("completed")
	s.notify(ctx, events.TypeWithdrawalCompleted, done, nil)
	return nil
}

// ReverseTransfer returns a failed or reversed payout to the wallet. An
// open withdrawal is marked failed and credited back. A withdrawal that was
// already completed keeps its status and gets a separate refund record, so
// the credit happens at most once either way.
func (s *Service) ReverseTransfer(ctx context.Context, reference, reason string, payload transaction.Metadata) error {
	var reversed *transaction.Transaction
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		t, err := s.lockWithdrawal(ctx, reference)
		if err != nil {
			return err
		}

		switch t.Status {
		case transaction.StatusFailed, transaction.StatusCancelled:
			return nil

		case transaction.StatusPending, transaction.StatusProcessing:
			mv, err := s.ledger.Credit(ctx, t.Owner(), t.Amount)
			if err != nil {
				return err
			}
			patch := transferPatch(paystack.TransferFailed, payload)
			patch["reversal_reason"] = reason
			patch["reversal_balance_before"] = mv.Before.String()
			patch["reversal_balance_after"] = mv.After.String()
			reversed, err = s.registrar.UpdateStatus(ctx, reference, transaction.UpdateParams{
				Status:        transaction.StatusFailed,
				MetadataPatch: patch,
			})
			return err

		case transaction.StatusCompleted:
			refundRef := ReversalReference(reference)
			existing, err := s.registrar.GetByReference(ctx, refundRef)
			if err != nil {
				return err
			}
			if existing != nil {
				return nil
			}
			mv, err := s.ledger.Credit(ctx, t.Owner(), t.Amount)
			if err != nil {
				return err
			}
			reversed, err = s.registrar.Create(ctx, transaction.CreateParams{
				Owner:         t.Owner(),
				Amount:        t.Amount,
				Type:          transaction.TypeRefund,
				Reference:     refundRef,
				Description:   "Reversed withdrawal " + reference,
				Status:        transaction.StatusCompleted,
				BalanceBefore: &mv.Before,
				BalanceAfter:  &mv.After,
				Metadata: transaction.Metadata{
					"withdrawal_reference": reference,
					"reversal_reason":      reason,
				},
			})
			return err
		}
		return transaction.ErrInvalidTransition
	})
	if err != nil || reversed == nil {
		return err
	}

	metrics.Withdrawal("reversed")
	log.Warn().
		Str("reference", reference).
		Str("reason", reason).
		Str("amount", reversed.Amount.String()).
		Msg("withdrawal reversed, wallet credited back")
	s.notify(ctx, events.TypeWithdrawalReversed, reversed, map[string]string{"reason": reason})
	return nil
}

func (s *Service) lockWithdrawal(ctx context.Context, reference string) (*transaction.Transaction, error) {
	t, err := s.registrar.GetForUpdate(ctx, reference)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, ErrTransactionNotFound
	}
	if t.Type != transaction.TypeWalletWithdrawal {
		return nil, ErrNotWithdrawal
	}
	return t, nil
}

func (s *Service) issueCode() (code, hash string, err error) {
	code, err = s.newCode()
	if err != nil {
		return "", "", fmt.Errorf("generate otp: %w", err)
	}
	h, err := secret.Hash(code)
	if err != nil {
		return "", "", fmt.Errorf("hash otp: %w", err)
	}
	return code, h, nil
}

func (s *Service) notify(ctx context.Context, typ string, t *transaction.Transaction, data map[string]string) {
	if t == nil {
		return
	}
	s.notifier.Notify(ctx, events.Event{
		Type:       typ,
		EntityID:   t.EntityID.String(),
		EntityType: string(t.EntityType),
		Amount:     t.Amount,
		Reference:  t.Reference,
		Data:       data,
		OccurredAt: s.now().UTC(),
	})
}

func otpData(code, email string) map[string]string {
	data := map[string]string{events.DataCode: code}
	if email != "" {
		data[events.DataEmail] = email
	}
	return data
}

func transferPatch(status string, payload transaction.Metadata) transaction.Metadata {
	patch := transaction.Metadata{"transfer_status": status}
	if len(payload) > 0 {
		patch["provider_payload"] = payload
	}
	return patch
}

func otpOutcome(err error) string {
	switch {
	case errors.Is(err, ErrOTPNotFound):
		return "not_found"
	case errors.Is(err, ErrOTPExpired):
		return "expired"
	case errors.Is(err, ErrOTPMaxAttempts):
		return "max_attempts"
	}
	return "error"
}

func last4(account string) string {
	if len(account) <= 4 {
		return account
	}
	return account[len(account)-4:]
}
