package domain

import (
	"fmt"
	"regexp"
)

var addressRegex = regexp.MustCompile(`^0x[0-9a-f]{40}$`)

// ValidateAddress checks that an address is a 0x-prefixed 20-byte hex string.
func ValidateAddress(a Address) error {
	if !addressRegex.MatchString(string(a)) {
		return ErrValidation(fmt.Sprintf("invalid address %q", a))
	}
	return nil
}

// ValidateAmount checks that an amount is a non-negative integer.
func ValidateAmount(a Amount) error {
	if a.IsNegative() {
		return ErrValidation(fmt.Sprintf("amount must not be negative, got %s", a))
	}
	if !a.IsInteger() {
		return ErrValidation(fmt.Sprintf("amount must be whole base units, got %s", a))
	}
	return nil
}

// ValidatePositiveAmount checks that an amount is a positive integer.
func ValidatePositiveAmount(a Amount, what string) error {
	if err := ValidateAmount(a); err != nil {
		return err
	}
	if a.IsZero() {
		return ErrZeroAmount(what)
	}
	return nil
}

// ValidateBps checks a basis-point value against [0, max].
func ValidateBps(bps, max int64, what string) error {
	if bps < 0 || bps > max {
		return ErrValidation(fmt.Sprintf("%s must be between 0 and %d bps, got %d", what, max, bps))
	}
	return nil
}
