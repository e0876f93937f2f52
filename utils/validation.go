package utils

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

var hexPattern = regexp.MustCompile("^[0-9a-fA-F]+$")

// ValidateAmount checks if an amount string is a valid, positive decimal
func ValidateAmount(amount string) (*decimal.Decimal, error) {
	if amount == "" {
		return nil, fmt.Errorf("amount cannot be empty")
	}

	dec, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount format: %w", err)
	}

	if !dec.IsPositive() {
		return nil, fmt.Errorf("amount must be positive")
	}

	return &dec, nil
}

// ValidateTransactionHash validates an EVM transaction hash (0x + 64 hex)
func ValidateTransactionHash(hash string) error {
	if hash == "" {
		return fmt.Errorf("transaction hash cannot be empty")
	}
	if !strings.HasPrefix(hash, "0x") {
		return fmt.Errorf("transaction hash must start with 0x")
	}
	if len(hash) != 66 {
		return fmt.Errorf("transaction hash must be 66 characters long")
	}
	if !isHexString(hash[2:]) {
		return fmt.Errorf("transaction hash must be valid hex")
	}
	return nil
}

// ValidateAddress validates an EVM address. Mixed-case addresses must carry
// a valid EIP-55 checksum; all-lower or all-upper addresses are accepted as is.
// It returns the checksummed form.
func ValidateAddress(address string) (string, error) {
	if address == "" {
		return "", fmt.Errorf("address cannot be empty")
	}
	if !strings.HasPrefix(address, "0x") {
		return "", fmt.Errorf("address must start with 0x")
	}
	if len(address) != 42 {
		return "", fmt.Errorf("address must be 42 characters long")
	}
	body := address[2:]
	if !isHexString(body) {
		return "", fmt.Errorf("address must be valid hex")
	}

	checksummed := common.HexToAddress(address).Hex()
	if body != strings.ToLower(body) && body != strings.ToUpper(body) && checksummed != address {
		return "", fmt.Errorf("bad address checksum: %s", address)
	}
	return checksummed, nil
}

// Helper function to check if a string is valid hexadecimal
func isHexString(s string) bool {
	return hexPattern.MatchString(s)
}
