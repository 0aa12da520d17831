package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// NewOTP generates a 6-digit numeric one-time passcode using the
// crypto random source. Leading zeros are preserved by formatting.
func NewOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
