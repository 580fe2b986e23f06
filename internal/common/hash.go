package common

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Fingerprint computes a stable identity hash over the given parts.
// Parts are lowercased, trimmed and joined with "|" before hashing, so
// "Acme" and "acme " produce the same fingerprint. Returns a 16-hex digest.
func Fingerprint(parts ...string) string {
	normalized := make([]string, len(parts))
	for i, p := range parts {
		normalized[i] = strings.ToLower(strings.TrimSpace(p))
	}
	sum := sha256.Sum256([]byte(strings.Join(normalized, "|")))
	return hex.EncodeToString(sum[:])[:16]
}

// ContentHash computes the change-detection digest over the fields whose
// modification requires downstream re-processing. Returns a 32-hex digest.
func ContentHash(description, skills, title, company string) string {
	sum := sha256.Sum256([]byte(description + "\x00" + skills + "\x00" + title + "\x00" + company))
	return hex.EncodeToString(sum[:])[:32]
}

// HashKey computes a short digest over arbitrary "|"-joined parts without
// normalization. Used for notification dedup and content hashes.
func HashKey(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])[:32]
}
