package paymentmethod_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dispatchly/ledger-api/internal/domain/entity"
	"github.com/dispatchly/ledger-api/internal/domain/paymentmethod"
	"github.com/dispatchly/ledger-api/internal/pkg/database"
	"github.com/dispatchly/ledger-api/internal/pkg/database/dbtest"
)

func TestVaultConcurrentSetDefault(t *testing.T) {
	db := dbtest.Open(t)
	ctx := context.Background()

	owner := entity.NewRef(uuid.New(), entity.TypeCustomer)
	dbtest.Cleanup(t, db, `DELETE FROM payment_methods WHERE owner_id = $1`, owner.ID)

	vault := paymentmethod.NewVault(database.NewTransactor(db), paymentmethod.NewRepository(db))

	const cards = 5
	ids := make([]uuid.UUID, 0, cards)
	for i := 0; i < cards; i++ {
		m, err := vault.Save(ctx, owner, fmt.Sprintf("AUTH_%d", i), paymentmethod.CardDetails{
			Last4: fmt.Sprintf("000%d", i),
			Brand: "visa",
		}, false)
		require.NoError(t, err)
		ids = append(ids, m.ID)
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id uuid.UUID) {
			defer wg.Done()
			if _, err := vault.SetDefault(ctx, owner, id); err != nil {
				t.Errorf("set default %s: %v", id, err)
			}
		}(id)
	}
	wg.Wait()

	var defaults int
	require.NoError(t, db.GetContext(ctx, &defaults, `
		SELECT COUNT(*) FROM payment_methods
		WHERE owner_id = $1 AND owner_type = $2 AND is_default AND is_active
	`, owner.ID, owner.Type))
	assert.Equal(t, 1, defaults)

	list, err := vault.List(ctx, owner)
	require.NoError(t, err)
	require.Len(t, list, cards)
	assert.True(t, list[0].IsDefault)
}

func TestDefaultIndexRejectsSecondDefault(t *testing.T) {
	db := dbtest.Open(t)
	ctx := context.Background()

	owner := entity.NewRef(uuid.New(), entity.TypeVendor)
	dbtest.Cleanup(t, db, `DELETE FROM payment_methods WHERE owner_id = $1`, owner.ID)

	vault := paymentmethod.NewVault(database.NewTransactor(db), paymentmethod.NewRepository(db))
	first, err := vault.Save(ctx, owner, "AUTH_A", paymentmethod.CardDetails{Last4: "1111"}, true)
	require.NoError(t, err)
	second, err := vault.Save(ctx, owner, "AUTH_B", paymentmethod.CardDetails{Last4: "2222"}, false)
	require.NoError(t, err)
	require.True(t, first.IsDefault)

	// Setting a default without clearing the old one breaks the partial index.
	_, err = db.ExecContext(ctx, `UPDATE payment_methods SET is_default = TRUE WHERE id = $1`, second.ID)
	assert.True(t, database.IsUniqueViolation(err, "uq_payment_methods_default"))
}
