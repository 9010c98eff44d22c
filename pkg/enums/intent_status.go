package enums

import "fmt"

// IntentStatus tracks the settlement lifecycle of a payment intent.
type IntentStatus string

const (
	IntentStatusCreated         IntentStatus = "created"
	IntentStatusFundingDetected IntentStatus = "funding_detected"
	IntentStatusRouting         IntentStatus = "routing"
	IntentStatusShielding       IntentStatus = "shielding"
	IntentStatusSettled         IntentStatus = "settled"
	IntentStatusFailed          IntentStatus = "failed"
)

var validIntentStatuses = []IntentStatus{
	IntentStatusCreated,
	IntentStatusFundingDetected,
	IntentStatusRouting,
	IntentStatusShielding,
	IntentStatusSettled,
	IntentStatusFailed,
}

// nextIntentStatus encodes the forward-only transition graph. FAILED is
// reachable from every non-terminal state and is handled separately.
var nextIntentStatus = map[IntentStatus]IntentStatus{
	IntentStatusCreated:         IntentStatusFundingDetected,
	IntentStatusFundingDetected: IntentStatusRouting,
	IntentStatusRouting:         IntentStatusShielding,
	IntentStatusShielding:       IntentStatusSettled,
}

// String implements fmt.Stringer.
func (s IntentStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known IntentStatus.
func (s IntentStatus) IsValid() bool {
	for _, candidate := range validIntentStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status admits no further transitions.
func (s IntentStatus) IsTerminal() bool {
	return s == IntentStatusSettled || s == IntentStatusFailed
}

// Next returns the successor status on the happy path.
func (s IntentStatus) Next() (IntentStatus, bool) {
	next, ok := nextIntentStatus[s]
	return next, ok
}

// CanTransitionTo reports whether moving from s to target respects the
// forward-only graph.
func (s IntentStatus) CanTransitionTo(target IntentStatus) bool {
	if s.IsTerminal() {
		return false
	}
	if target == IntentStatusFailed {
		return true
	}
	next, ok := s.Next()
	return ok && next == target
}

// ParseIntentStatus converts raw input into an IntentStatus.
func ParseIntentStatus(value string) (IntentStatus, error) {
	for _, candidate := range validIntentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid intent status %q", value)
}
