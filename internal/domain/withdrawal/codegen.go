package withdrawal

import (
	"crypto/rand"
	"math/big"
)

// generateNumericCode returns a uniformly random decimal code.
func generateNumericCode(length int) (string, error) {
	const digits = "0123456789"
	max := big.NewInt(int64(len(digits)))
	b := make([]byte, length)
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = digits[n.Int64()]
	}
	return string(b), nil
}
