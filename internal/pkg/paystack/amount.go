package paystack

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// ToMinor converts a major-unit amount to kobo. Amounts finer than one
// kobo are rounded half away from zero.
func ToMinor(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

// FromMinor converts kobo received from the provider to major units.
func FromMinor(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}
