// Package wallet holds the Dogecoin-facing helpers: deposit addresses,
// amount formatting and basic address validation.
package wallet

import (
	"fmt"
	"regexp"
)

var dogeAddressPattern = regexp.MustCompile(`^D[a-zA-Z0-9]{33}$`)

// GenerateDepositAddress returns the deposit address assigned to a new user.
// Real address derivation lives outside this service; until that integration
// lands this returns the shared pool address.
func GenerateDepositAddress() string {
	return "DN27evh4WA8bDgvUwQeRgRct8fwaTaKqrT"
}

// IsValidAddress does a shape check only: mainnet prefix plus 33 base
// characters. It does not verify the checksum.
func IsValidAddress(address string) bool {
	return dogeAddressPattern.MatchString(address)
}

// FormatDoge renders an amount for chat and log output.
func FormatDoge(amount float64) string {
	return fmt.Sprintf("%.2f DOGE", amount)
}

// FormatMultiplier renders a multiplier the way the game displays it.
func FormatMultiplier(multiplier float64) string {
	return fmt.Sprintf("%.2fx", multiplier)
}
