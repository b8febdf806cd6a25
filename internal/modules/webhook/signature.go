package webhook

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Sign computes the delivery signature: HMAC-SHA256 over "{timestamp}.{body}"
// keyed by the webhook secret, encoded as "sha256=<hex>". Subscribers must
// verify with the same concatenation before trusting the payload.
func Sign(secret string, timestamp int64, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", timestamp, body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature matches Sign(secret, timestamp, body).
func Verify(secret string, timestamp int64, body, signature string) bool {
	return hmac.Equal([]byte(Sign(secret, timestamp, body)), []byte(signature))
}

// newSecret generates a webhook signing key with 256 bits of entropy.
func newSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
