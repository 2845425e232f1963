package paystack

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"strings"
)

// SignatureHeader carries HMAC-SHA512(secret, rawBody) on webhook calls.
const SignatureHeader = "x-paystack-signature"

// VerifySignature checks a webhook signature against the raw request body.
// The body must be the exact bytes received; re-encoded JSON will not match.
func VerifySignature(rawBody []byte, signature, secretKey string) bool {
	if secretKey == "" || signature == "" {
		return false
	}

	given, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return false
	}

	return hmac.Equal(given, sign(rawBody, secretKey))
}

// Sign creates the hex signature the provider would send for rawBody.
func Sign(rawBody []byte, secretKey string) string {
	return hex.EncodeToString(sign(rawBody, secretKey))
}

func sign(rawBody []byte, secretKey string) []byte {
	h := hmac.New(sha512.New, []byte(secretKey))
	h.Write(rawBody)
	return h.Sum(nil)
}
