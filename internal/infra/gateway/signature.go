package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"strings"
)

// hmacSHA256Hex computes the hex HMAC-SHA256 of data under secret.
func hmacSHA256Hex(secret string, data []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// hmacSHA256Base64 computes the base64 HMAC-SHA256 of data under secret.
func hmacSHA256Base64(secret string, data []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(data)
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

func sha256Hex(data string) string {
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}

func sha512Hex(data string) string {
	sum := sha512.Sum512([]byte(data))
	return hex.EncodeToString(sum[:])
}

// equalHexDigest compares two hex digests in constant time. Hex case never
// decides a verification outcome.
func equalHexDigest(expected, presented string) bool {
	eb, err := hex.DecodeString(strings.ToLower(strings.TrimSpace(expected)))
	if err != nil {
		return false
	}
	pb, err := hex.DecodeString(strings.ToLower(strings.TrimSpace(presented)))
	if err != nil {
		return false
	}
	return hmac.Equal(eb, pb)
}

// equalDigest compares two opaque signature strings in constant time.
func equalDigest(expected, presented string) bool {
	return hmac.Equal([]byte(expected), []byte(strings.TrimSpace(presented)))
}

// bodyDigest is the dedupe fallback for providers that send no event ID.
func bodyDigest(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}
