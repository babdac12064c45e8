package enums

import "fmt"

// PaymentIntentStatus mirrors the provider's intent state machine.
type PaymentIntentStatus string

const (
	PaymentIntentStatusPending   PaymentIntentStatus = "pending"
	PaymentIntentStatusSucceeded PaymentIntentStatus = "succeeded"
	PaymentIntentStatusFailed    PaymentIntentStatus = "failed"
	PaymentIntentStatusCanceled  PaymentIntentStatus = "canceled"
)

var validPaymentIntentStatuses = []PaymentIntentStatus{
	PaymentIntentStatusPending,
	PaymentIntentStatusSucceeded,
	PaymentIntentStatusFailed,
	PaymentIntentStatusCanceled,
}

// String implements fmt.Stringer.
func (s PaymentIntentStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known PaymentIntentStatus.
func (s PaymentIntentStatus) IsValid() bool {
	for _, candidate := range validPaymentIntentStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the intent can never change state again.
func (s PaymentIntentStatus) IsTerminal() bool {
	switch s {
	case PaymentIntentStatusSucceeded, PaymentIntentStatusFailed, PaymentIntentStatusCanceled:
		return true
	default:
		return false
	}
}

// ParsePaymentIntentStatus converts raw input into a PaymentIntentStatus.
func ParsePaymentIntentStatus(value string) (PaymentIntentStatus, error) {
	for _, candidate := range validPaymentIntentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment intent status %q", value)
}
