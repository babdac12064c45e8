package enums

import "fmt"

// LifecycleEventType labels subscription/payment transitions in the audit log.
type LifecycleEventType string

const (
	LifecycleEventSubscriptionRequested LifecycleEventType = "subscription.requested"
	LifecycleEventIntentCreated         LifecycleEventType = "payment_intent.created"
	LifecycleEventSubscriptionActivated LifecycleEventType = "subscription.activated"
	LifecycleEventPaymentFailed         LifecycleEventType = "payment.failed"
	LifecycleEventIntentCanceled        LifecycleEventType = "payment_intent.canceled"
	LifecycleEventSubscriptionCanceled  LifecycleEventType = "subscription.canceled"
	LifecycleEventIntentStale           LifecycleEventType = "payment_intent.stale"
)

var validLifecycleEventTypes = []LifecycleEventType{
	LifecycleEventSubscriptionRequested,
	LifecycleEventIntentCreated,
	LifecycleEventSubscriptionActivated,
	LifecycleEventPaymentFailed,
	LifecycleEventIntentCanceled,
	LifecycleEventSubscriptionCanceled,
	LifecycleEventIntentStale,
}

// String implements fmt.Stringer.
func (t LifecycleEventType) String() string {
	return string(t)
}

// IsValid reports whether the value is a known LifecycleEventType.
func (t LifecycleEventType) IsValid() bool {
	for _, candidate := range validLifecycleEventTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseLifecycleEventType converts raw input into a LifecycleEventType.
func ParseLifecycleEventType(value string) (LifecycleEventType, error) {
	for _, candidate := range validLifecycleEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid lifecycle event type %q", value)
}
