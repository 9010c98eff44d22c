package enums

import "fmt"

// InputMethod selects the funding-verification path for a payment intent.
type InputMethod string

const (
	InputMethodLedgerBalance InputMethod = "ledger_balance"
	InputMethodChainWallet   InputMethod = "chain_wallet"
	InputMethodFiatGateway   InputMethod = "fiat_gateway"
)

var validInputMethods = []InputMethod{
	InputMethodLedgerBalance,
	InputMethodChainWallet,
	InputMethodFiatGateway,
}

// String implements fmt.Stringer.
func (m InputMethod) String() string {
	return string(m)
}

// IsValid reports whether the value is a known InputMethod.
func (m InputMethod) IsValid() bool {
	for _, candidate := range validInputMethods {
		if candidate == m {
			return true
		}
	}
	return false
}

// ParseInputMethod converts raw input into an InputMethod.
func ParseInputMethod(value string) (InputMethod, error) {
	for _, candidate := range validInputMethods {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid input method %q", value)
}
