package domain

import (
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// WalletAddressLength is the exact length of an accepted wallet address.
const WalletAddressLength = 44

// ErrInvalidAddress is returned for addresses that fail validation.
var ErrInvalidAddress = errors.New("invalid wallet address")

// ValidateWalletAddress checks length and base58 alphabet.
func ValidateWalletAddress(address string) error {
	if len(address) != WalletAddressLength {
		return fmt.Errorf("%w: length %d, want %d", ErrInvalidAddress, len(address), WalletAddressLength)
	}
	if _, err := base58.Decode(address); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	return nil
}

// IsOnCurve reports whether the address decodes to a point on the ed25519 curve.
// Program-derived addresses are off-curve and cannot sign.
func IsOnCurve(address string) bool {
	key, err := base58.Decode(address)
	if err != nil || len(key) != 32 {
		return false
	}
	_, err = new(edwards25519.Point).SetBytes(key)
	return err == nil
}
