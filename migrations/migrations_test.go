package migrations_test

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dispatchly/ledger-api/migrations"
)

func TestSchemaFiles(t *testing.T) {
	names, err := fs.Glob(migrations.FS, "*.sql")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"0001_wallet_holders.sql",
		"0002_transactions.sql",
		"0003_payment_methods.sql",
		"0004_withdrawal_otps.sql",
	}, names)

	// The repository maps this constraint name to a duplicate reference.
	body, err := fs.ReadFile(migrations.FS, "0002_transactions.sql")
	require.NoError(t, err)
	assert.Contains(t, string(body), "CONSTRAINT transactions_reference_key UNIQUE (reference)")
}
