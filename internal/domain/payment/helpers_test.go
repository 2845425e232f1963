package payment_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/dispatchly/ledger-api/internal/domain/entity"
	"github.com/dispatchly/ledger-api/internal/domain/ledgertest"
	"github.com/dispatchly/ledger-api/internal/domain/payment"
	"github.com/dispatchly/ledger-api/internal/domain/transaction"
	"github.com/dispatchly/ledger-api/internal/pkg/paystack"
	"github.com/dispatchly/ledger-api/internal/pkg/storage"
)

const webhookSecret = "sk_test_webhook_secret"

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type memStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemStorage() *memStorage {
	return &memStorage{objects: make(map[string][]byte)}
}

func (s *memStorage) Put(_ context.Context, key string, r io.Reader, _ string) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.objects[key] = b
	s.mu.Unlock()
	return nil
}

func (s *memStorage) Get(_ context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.objects[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (s *memStorage) Exists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[key]
	return ok, nil
}

func (s *memStorage) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

type harness struct {
	*ledgertest.Fixture
	Engine  *payment.Engine
	Archive *memStorage
}

func newHarness() *harness {
	f := ledgertest.New()
	archive := newMemStorage()
	e := payment.NewEngine(f.Tx, f.Ledger, f.Registrar, f.Vault, f.Gateway, f.Notifier, payment.Config{
		WebhookSecret: webhookSecret,
		CallbackURL:   "https://app.test/payments/callback",
	}).WithArchiver(payment.NewArchiver(archive, ""))
	return &harness{Fixture: f, Engine: e, Archive: archive}
}

func (h *harness) register(t *testing.T, owner entity.Ref, reference, amount string) *transaction.Transaction {
	t.Helper()
	tx, created, err := h.Engine.RegisterFrontendPayment(context.Background(), payment.RegisterParams{
		Reference: reference,
		Owner:     owner,
		Amount:    dec(amount),
		Purpose:   "wallet top-up",
		Type:      transaction.TypeWalletFunding,
	})
	require.NoError(t, err)
	require.True(t, created)
	return tx
}

func webhookBody(t *testing.T, event, reference string, amountMinor int64) []byte {
	t.Helper()
	b, err := json.Marshal(map[string]interface{}{
		"event": event,
		"data": map[string]interface{}{
			"reference": reference,
			"status":    "success",
			"amount":    amountMinor,
		},
	})
	require.NoError(t, err)
	return b
}

func sign(body []byte) string {
	return paystack.Sign(body, webhookSecret)
}

func reusableCard(code string) *paystack.Authorization {
	return &paystack.Authorization{
		AuthorizationCode: code,
		CardType:          "visa ",
		Last4:             "4081",
		ExpMonth:          "12",
		ExpYear:           "2030",
		Bank:              "TEST BANK",
		Brand:             "visa",
		Reusable:          true,
	}
}
