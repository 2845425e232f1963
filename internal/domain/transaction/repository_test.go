package transaction_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dispatchly/ledger-api/internal/domain/entity"
	"github.com/dispatchly/ledger-api/internal/domain/transaction"
	"github.com/dispatchly/ledger-api/internal/pkg/database/dbtest"
)

func seedTransaction(t *testing.T, repo transaction.Repository, status transaction.Status, meta transaction.Metadata) *transaction.Transaction {
	t.Helper()
	now := time.Now().UTC()
	tx := &transaction.Transaction{
		ID:          uuid.New(),
		EntityID:    uuid.New(),
		EntityType:  entity.TypeRider,
		Amount:      decimal.RequireFromString("2500.50"),
		Type:        transaction.TypeWalletWithdrawal,
		Reference:   "WDR-" + uuid.NewString(),
		Status:      status,
		Description: "payout",
		Metadata:    meta,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, repo.Create(context.Background(), tx))
	return tx
}

func TestConcurrentFinalizeHasOneWinner(t *testing.T) {
	db := dbtest.Open(t)
	repo := transaction.NewRepository(db)
	ctx := context.Background()

	seeded := seedTransaction(t, repo, transaction.StatusProcessing, transaction.Metadata{"bank_code": "058"})
	dbtest.Cleanup(t, db, `DELETE FROM transactions WHERE reference = $1`, seeded.Reference)

	const workers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	var winners []string

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			status := transaction.StatusCompleted
			if i%2 == 1 {
				status = transaction.StatusFailed
			}
			worker := fmt.Sprintf("worker-%d", i)
			_, err := repo.UpdateStatus(ctx, seeded.Reference, transaction.UpdateParams{
				Status:        status,
				MetadataPatch: transaction.Metadata{"settled_by": worker},
			}, time.Now().UTC())
			if err == nil {
				mu.Lock()
				winners = append(winners, worker)
				mu.Unlock()
				return
			}
			if !errors.Is(err, transaction.ErrInvalidTransition) {
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	require.Len(t, winners, 1)

	got, err := repo.GetByReference(ctx, seeded.Reference)
	require.NoError(t, err)
	assert.False(t, got.Status.Open())
	assert.Equal(t, "058", got.Metadata["bank_code"])
	assert.Equal(t, winners[0], got.Metadata["settled_by"])
}

func TestUpdateStatusMergesMetadataAndBalances(t *testing.T) {
	db := dbtest.Open(t)
	repo := transaction.NewRepository(db)
	ctx := context.Background()

	seeded := seedTransaction(t, repo, transaction.StatusPending, transaction.Metadata{"channel": "card"})
	dbtest.Cleanup(t, db, `DELETE FROM transactions WHERE reference = $1`, seeded.Reference)

	before := decimal.RequireFromString("3000")
	after := decimal.RequireFromString("499.50")
	got, err := repo.UpdateStatus(ctx, seeded.Reference, transaction.UpdateParams{
		Status:        transaction.StatusCompleted,
		BalanceBefore: &before,
		BalanceAfter:  &after,
		MetadataPatch: transaction.Metadata{"gateway_status": "success"},
	}, time.Now().UTC())
	require.NoError(t, err)

	assert.Equal(t, transaction.StatusCompleted, got.Status)
	assert.NotNil(t, got.CompletedAt)
	assert.True(t, got.BalanceAfter.Decimal.Equal(after))
	assert.Equal(t, "card", got.Metadata["channel"])
	assert.Equal(t, "success", got.Metadata["gateway_status"])

	_, err = repo.UpdateStatus(ctx, seeded.Reference, transaction.UpdateParams{Status: transaction.StatusFailed}, time.Now().UTC())
	assert.ErrorIs(t, err, transaction.ErrInvalidTransition)

	_, err = repo.UpdateStatus(ctx, "WDR-missing-"+uuid.NewString(), transaction.UpdateParams{Status: transaction.StatusFailed}, time.Now().UTC())
	assert.ErrorIs(t, err, transaction.ErrNotFound)
}

func TestPatchMetadataKeepsStatus(t *testing.T) {
	db := dbtest.Open(t)
	repo := transaction.NewRepository(db)
	ctx := context.Background()

	seeded := seedTransaction(t, repo, transaction.StatusProcessing, transaction.Metadata{
		"recipient_code": "RCP_1",
		"transfer_code":  "pending",
	})
	dbtest.Cleanup(t, db, `DELETE FROM transactions WHERE reference = $1`, seeded.Reference)

	got, err := repo.PatchMetadata(ctx, seeded.Reference, transaction.Metadata{"transfer_code": "TRF_9"}, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusProcessing, got.Status)
	assert.Equal(t, "RCP_1", got.Metadata["recipient_code"])
	assert.Equal(t, "TRF_9", got.Metadata["transfer_code"])

	_, err = repo.PatchMetadata(ctx, "WDR-missing-"+uuid.NewString(), transaction.Metadata{"x": "y"}, time.Now().UTC())
	assert.ErrorIs(t, err, transaction.ErrNotFound)
}

func TestCreateDuplicateReference(t *testing.T) {
	db := dbtest.Open(t)
	repo := transaction.NewRepository(db)

	seeded := seedTransaction(t, repo, transaction.StatusPending, nil)
	dbtest.Cleanup(t, db, `DELETE FROM transactions WHERE reference = $1`, seeded.Reference)

	dup := *seeded
	dup.ID = uuid.New()
	assert.ErrorIs(t, repo.Create(context.Background(), &dup), transaction.ErrDuplicateReference)
}
