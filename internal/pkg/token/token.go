package token

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
)

const (
	keyBytes   = 16 // 128-bit verification keys
	codeDigits = 6
)

var codeSpace = big.NewInt(1_000_000)

// NewKey generates a 128-bit random token, hex-encoded without separators.
// crypto/rand.Reader is the process-wide source: seeded by the OS, safe for
// concurrent use and never reseeded by callers.
func NewKey() (string, error) {
	b := make([]byte, keyBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// NewCode returns a uniformly distributed 6-digit code, zero-padded ("000000"-"999999").
func NewCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpace)
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%0*d", codeDigits, n.Int64()), nil
}
