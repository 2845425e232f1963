// Package secret hashes short-lived secrets such as withdrawal codes.
package secret

import (
	"golang.org/x/crypto/bcrypt"
)

// Codes expire within minutes and allow three attempts, so the default
// bcrypt cost is enough.
const cost = bcrypt.DefaultCost

// Hash hashes s using bcrypt
func Hash(s string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(s), cost)
	return string(bytes), err
}

// Verify compares s with hash
func Verify(s, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(s))
	return err == nil
}
