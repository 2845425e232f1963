package transaction

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestCheckBalancesFollowsDirection(t *testing.T) {
	d := decimal.RequireFromString
	amount := d("5000")

	assert.NoError(t, CheckBalances(TypeWalletFunding, amount, d("0"), d("5000")))
	assert.NoError(t, CheckBalances(TypeRefund, amount, d("100"), d("5100")))
	assert.NoError(t, CheckBalances(TypeWalletWithdrawal, amount, d("7000"), d("2000")))
	assert.NoError(t, CheckBalances(TypeWalletPayment, amount, d("5000"), d("0")))
	assert.NoError(t, CheckBalances(TypeOrderPayment, amount, d("10"), d("10")))

	assert.ErrorIs(t, CheckBalances(TypeWalletFunding, amount, d("0"), d("10000")), ErrBalanceArithmetic)
	assert.ErrorIs(t, CheckBalances(TypeWalletWithdrawal, amount, d("7000"), d("12000")), ErrBalanceArithmetic)
	assert.ErrorIs(t, CheckBalances("gift", amount, d("0"), d("0")), ErrInvalidType)
}

func TestStatusTransitions(t *testing.T) {
	assert.True(t, CanMove(StatusPending, StatusProcessing))
	assert.True(t, CanMove(StatusProcessing, StatusCompleted))
	assert.True(t, CanMove(StatusPending, StatusCancelled))
	assert.False(t, CanMove(StatusCompleted, StatusFailed))
	assert.False(t, CanMove(StatusFailed, StatusCompleted))
	assert.False(t, CanMove(StatusProcessing, StatusPending))
}

func TestMetadataRoundTripAndMerge(t *testing.T) {
	m := Metadata{"a": "1"}
	v, err := m.Value()
	assert.NoError(t, err)
	assert.IsType(t, "", v)

	var back Metadata
	assert.NoError(t, back.Scan([]byte(v.(string))))
	assert.Equal(t, "1", back["a"])

	merged := back.Merge(Metadata{"b": "2", "a": "3"})
	assert.Equal(t, "3", merged["a"])
	assert.Equal(t, "2", merged["b"])
	assert.Equal(t, "1", back["a"])

	var empty Metadata
	assert.NoError(t, empty.Scan(nil))
	assert.NotNil(t, empty)
}
