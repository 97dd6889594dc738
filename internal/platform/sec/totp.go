// Copyright (c) 2026 Cathedra. All rights reserved.

package sec

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base32"
	"encoding/binary"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// TOTP parameters per RFC 6238, matching what Google Authenticator and
// compatible apps expect by default.
const (
	totpPeriod = 30 * time.Second
	totpDigits = 6

	// totpSkew is how many periods on either side of "now" are accepted,
	// tolerating clock drift between the server and the enrolled device.
	totpSkew = 1

	// totpSecretBytes is the raw entropy of a newly enrolled secret.
	totpSecretBytes = 20
)

// base32 without padding, the alphabet authenticator apps scan from QR codes.
var totpEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// NewTotpSecret generates a fresh base32-encoded secret for 2FA enrollment.
func NewTotpSecret() (string, error) {
	buffer := make([]byte, totpSecretBytes)
	if _, err := rand.Read(buffer); err != nil {
		return "", fmt.Errorf("sec: failed to generate totp secret: %w", err)
	}
	return totpEncoding.EncodeToString(buffer), nil
}

// TotpURL builds the otpauth:// provisioning URI encoded into the enrollment
// QR code.
func TotpURL(secret, issuer, account string) string {
	values := url.Values{}
	values.Set("secret", secret)
	values.Set("issuer", issuer)
	values.Set("digits", fmt.Sprintf("%d", totpDigits))
	values.Set("period", fmt.Sprintf("%d", int(totpPeriod.Seconds())))

	return fmt.Sprintf("otpauth://totp/%s:%s?%s",
		url.PathEscape(issuer),
		url.PathEscape(account),
		values.Encode(),
	)
}

// TotpCode computes the TOTP value for the secret at the given time, the way
// an enrolled authenticator app would.
func TotpCode(secret string, at time.Time) (string, error) {
	key, err := totpEncoding.DecodeString(strings.ToUpper(strings.TrimSpace(secret)))
	if err != nil {
		return "", fmt.Errorf("sec: invalid totp secret: %w", err)
	}

	counter := uint64(at.Unix()) / uint64(totpPeriod.Seconds())
	return hotpCode(key, counter), nil
}

// VerifyTotp reports whether code is a valid TOTP value for the secret at the
// given time, accepting ±totpSkew periods of drift. The comparison is
// constant-time; an invalid secret always fails closed.
func VerifyTotp(secret, code string, at time.Time) bool {
	key, err := totpEncoding.DecodeString(strings.ToUpper(strings.TrimSpace(secret)))
	if err != nil {
		return false
	}

	counter := uint64(at.Unix()) / uint64(totpPeriod.Seconds())
	for offset := -totpSkew; offset <= totpSkew; offset++ {
		expected := hotpCode(key, counter+uint64(offset))
		if SecureCompare(expected, code) {
			return true
		}
	}
	return false
}

// hotpCode computes an RFC 4226 HMAC-SHA1 one-time code for a counter value.
func hotpCode(key []byte, counter uint64) string {
	var message [8]byte
	binary.BigEndian.PutUint64(message[:], counter)

	mac := hmac.New(sha1.New, key)
	mac.Write(message[:])
	sum := mac.Sum(nil)

	// Dynamic truncation (RFC 4226 §5.3).
	offset := sum[len(sum)-1] & 0x0f
	value := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7fffffff

	modulo := uint32(1)
	for i := 0; i < totpDigits; i++ {
		modulo *= 10
	}
	return fmt.Sprintf("%0*d", totpDigits, value%modulo)
}
