package hashx

import (
	"crypto/sha256"
	"encoding/hex"
)

// Sum returns the hex SHA-256 digest of the concatenation of parts.
func Sum(parts ...[]byte) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// SumCanonical hashes the canonical JSON encoding of v.
func SumCanonical(v any) (string, error) {
	b, err := CanonicalJSON(v)
	if err != nil {
		return "", err
	}
	return Sum(b), nil
}

// Identifier hashes a request identifier (IP address, user agent, device
// fingerprint) with a deployment-wide salt. Only these digests are ever
// persisted; raw values never reach storage.
func Identifier(value, salt string) string {
	if value == "" {
		return ""
	}
	return Sum([]byte(salt), []byte(value))
}
