package enums

import "fmt"

// LedgerEventType classifies entries in the custodial balance journal.
type LedgerEventType string

const (
	// LedgerEventDebit records funds removed from a family balance to fund an intent.
	LedgerEventDebit LedgerEventType = "debit"
	// LedgerEventRefund records a compensating credit after a late-stage failure.
	LedgerEventRefund LedgerEventType = "refund"
	// LedgerEventCredit records external funding added to a family balance.
	LedgerEventCredit LedgerEventType = "credit"
)

var validLedgerEventTypes = []LedgerEventType{
	LedgerEventDebit,
	LedgerEventRefund,
	LedgerEventCredit,
}

// String implements fmt.Stringer.
func (t LedgerEventType) String() string {
	return string(t)
}

// IsValid reports whether the value is a known LedgerEventType.
func (t LedgerEventType) IsValid() bool {
	for _, candidate := range validLedgerEventTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseLedgerEventType converts raw input into a LedgerEventType.
func ParseLedgerEventType(value string) (LedgerEventType, error) {
	for _, candidate := range validLedgerEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid ledger event type %q", value)
}
