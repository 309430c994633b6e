package validation

import (
	"fmt"
	"strings"

	"github.com/mr-tron/base58"
)

// PublicKeyLength is the decoded size of a Solana public key.
const PublicKeyLength = 32

// ValidateAddress validates a Solana address (base58 encoded 32-byte public key)
func ValidateAddress(addr string) error {
	if addr == "" {
		return fmt.Errorf("address cannot be empty")
	}

	// Base58 strings of 32 bytes are 32 to 44 characters long
	if len(addr) < 32 || len(addr) > 44 {
		return fmt.Errorf("invalid address length: expected 32-44 characters, got %d", len(addr))
	}

	decoded, err := base58.Decode(addr)
	if err != nil {
		return fmt.Errorf("invalid base58 address: %w", err)
	}

	if len(decoded) != PublicKeyLength {
		return fmt.Errorf("invalid public key length: expected %d bytes, got %d", PublicKeyLength, len(decoded))
	}

	return nil
}

// NormalizeAddress trims surrounding whitespace. Base58 is case sensitive, so nothing else changes.
func NormalizeAddress(addr string) string {
	return strings.TrimSpace(addr)
}

// ValidateAndNormalizeAddress validates an address and returns its normalized form
func ValidateAndNormalizeAddress(addr string) (string, error) {
	addr = NormalizeAddress(addr)
	if err := ValidateAddress(addr); err != nil {
		return "", err
	}
	return addr, nil
}
