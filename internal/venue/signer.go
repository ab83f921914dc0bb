package venue

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Sign computes the venue's request signature: HMAC-SHA256 over
// path + queryString + expiry + body, hex-encoded.
func Sign(secret, path, query, expiry, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(path + query + expiry + body))
	return hex.EncodeToString(mac.Sum(nil))
}
