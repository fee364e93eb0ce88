package credential

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// generateAPIKey returns a random, URL-safe api_key. length is the number of
// output characters; the encoder is base64.RawURLEncoding (no padding), which
// yields 4 output chars per 3 input bytes, so bytes = ceil(length*6/8) and
// the encoded string is cut to exactly length chars. A length of 32 (the
// default) uses 24 random bytes, giving exactly 32 characters with no cut
// and 192 bits of entropy.
func generateAPIKey(length int) (string, error) {
	byteLen := (length*6 + 7) / 8
	buf := make([]byte, byteLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating api key: %w", err)
	}
	encoded := base64.RawURLEncoding.EncodeToString(buf)
	if len(encoded) < length {
		return "", fmt.Errorf("generated key shorter than requested length")
	}
	return encoded[:length], nil
}
