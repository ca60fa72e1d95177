// Package totp implements RFC 6238 time-based one-time passwords on top of
// the RFC 4226 HMAC construction. Generation is a pure function of the
// shared secret and the supplied time; there is no state and no I/O.
package totp

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base32"
	"encoding/binary"
	"fmt"
	"strings"
	"time"
)

const (
	// DefaultDigits is the standard code length.
	DefaultDigits = 6

	// DefaultStep is the standard time step.
	DefaultStep = 30 * time.Second
)

// Options tunes code generation. The zero value means the RFC defaults.
type Options struct {
	// Digits is the code length; 6 when zero.
	Digits int

	// Step is the counter time step; 30s when zero.
	Step time.Duration
}

// Generate returns the 6-digit, 30-second-step code for the base32 secret
// at time t.
func Generate(secretBase32 string, t time.Time) (string, error) {
	return GenerateWithOptions(secretBase32, t, Options{})
}

// GenerateWithOptions returns the code for the base32 secret at time t with
// explicit digits/step. The secret is accepted case-insensitively, with or
// without padding and internal spaces.
func GenerateWithOptions(secretBase32 string, t time.Time, opts Options) (string, error) {
	if opts.Digits == 0 {
		opts.Digits = DefaultDigits
	}
	if opts.Step == 0 {
		opts.Step = DefaultStep
	}
	if opts.Digits < 6 || opts.Digits > 8 {
		return "", fmt.Errorf("totp: unsupported digit count %d", opts.Digits)
	}

	key, err := decodeSecret(secretBase32)
	if err != nil {
		return "", err
	}

	counter := uint64(t.Unix()) / uint64(opts.Step/time.Second)

	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], counter)

	mac := hmac.New(sha1.New, key)
	mac.Write(msg[:])
	sum := mac.Sum(nil)

	// Dynamic truncation per RFC 4226 section 5.3.
	offset := sum[len(sum)-1] & 0x0f
	code := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7fffffff

	mod := uint32(1)
	for i := 0; i < opts.Digits; i++ {
		mod *= 10
	}
	return fmt.Sprintf("%0*d", opts.Digits, code%mod), nil
}

func decodeSecret(secret string) ([]byte, error) {
	s := strings.ToUpper(strings.ReplaceAll(secret, " ", ""))
	s = strings.TrimRight(s, "=")
	key, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("totp: invalid base32 secret: %w", err)
	}
	if len(key) == 0 {
		return nil, fmt.Errorf("totp: empty secret")
	}
	return key, nil
}
