package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// GeneratePairingCode generates a cryptographically secure one-time pairing
// code in the form "123-456".
func GeneratePairingCode() (string, error) {
	max := big.NewInt(1000000)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("failed to generate random number: %w", err)
	}

	code := fmt.Sprintf("%06d", n.Int64())
	return code[:3] + "-" + code[3:], nil
}
