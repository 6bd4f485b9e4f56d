package codec

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	"golang.org/x/text/unicode/norm"
)

// HashAttribute returns the hex HMAC-SHA-256 of "key=value".
// Both halves are NFC normalized first so visually identical input
// produces the same digest.
func (c *Codec) HashAttribute(key, value string) string {
	mac := hmac.New(sha256.New, c.hashKey)
	mac.Write([]byte(norm.NFC.String(key)))
	mac.Write([]byte{'='})
	mac.Write([]byte(norm.NFC.String(value)))
	return hex.EncodeToString(mac.Sum(nil))
}
