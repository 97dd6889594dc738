// Copyright (c) 2026 Cathedra. All rights reserved.

package sec

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// GenerateSecureToken returns a URL-safe opaque secret built from byteLength
// bytes of CSPRNG output. 32 bytes (256 bits) is the standard size for
// refresh and reset tokens; never go below 16 (128 bits).
func GenerateSecureToken(byteLength int) (string, error) {
	buffer := make([]byte, byteLength)
	if _, err := rand.Read(buffer); err != nil {
		return "", fmt.Errorf("sec: failed to read random source: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buffer), nil
}

// HashToken returns the hex-encoded SHA-256 digest of an opaque token.
//
// Only the digest is ever persisted, so a database leak does not expose
// live refresh or reset secrets. SHA-256 is sufficient here (no bcrypt):
// the input is already a full-entropy random value, not a human password.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// SecureCompare reports whether two strings are equal in constant time.
//
// Used wherever an attacker controls one side of the comparison (verification
// codes, token digests) to avoid leaking match length through timing.
func SecureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
