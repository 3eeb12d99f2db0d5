package intake

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// SignatureHeaders lists the header names spec §6.1 accepts for the
// webhook HMAC signature, in priority order.
var SignatureHeaders = []string{"X-3JMS-Signature", "X-Webhook-Signature", "X-Signature"}

// VerifySignature reports whether sig is the hex HMAC-SHA256 of body
// under secret, using a constant-time comparison (spec §4.3).
func VerifySignature(secret string, body []byte, sig string) bool {
	if secret == "" || sig == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := mac.Sum(nil)

	decoded, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	return hmac.Equal(decoded, expected)
}
