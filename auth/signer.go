package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Sign computes the hex-encoded HMAC-SHA256 of the canonical bytes under the
// shared signing secret. The secret never leaves this function.
func Sign(canonical, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(canonical)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether the provided hex signature matches the
// canonical bytes under the secret. The comparison is constant time.
func VerifySignature(canonical, secret []byte, provided string) bool {
	cleaned := strings.TrimSpace(provided)
	if cleaned == "" {
		return false
	}
	got, err := hex.DecodeString(cleaned)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(canonical)
	return hmac.Equal(got, mac.Sum(nil))
}
