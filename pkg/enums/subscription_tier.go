package enums

import "fmt"

// SubscriptionTier is the ordered plan level gating feature access.
type SubscriptionTier string

const (
	SubscriptionTierFree       SubscriptionTier = "free"
	SubscriptionTierPro        SubscriptionTier = "pro"
	SubscriptionTierEnterprise SubscriptionTier = "enterprise"
)

var validSubscriptionTiers = []SubscriptionTier{
	SubscriptionTierFree,
	SubscriptionTierPro,
	SubscriptionTierEnterprise,
}

var subscriptionTierRanks = map[SubscriptionTier]int{
	SubscriptionTierFree:       0,
	SubscriptionTierPro:        1,
	SubscriptionTierEnterprise: 2,
}

// String implements fmt.Stringer.
func (t SubscriptionTier) String() string {
	return string(t)
}

// IsValid reports whether the value is a known SubscriptionTier.
func (t SubscriptionTier) IsValid() bool {
	_, ok := subscriptionTierRanks[t]
	return ok
}

// Rank returns the tier's position in the free < pro < enterprise order.
func (t SubscriptionTier) Rank() int {
	return subscriptionTierRanks[t]
}

// AtLeast reports whether t grants everything required tier grants.
func (t SubscriptionTier) AtLeast(required SubscriptionTier) bool {
	return t.IsValid() && required.IsValid() && t.Rank() >= required.Rank()
}

// IsPaid reports whether subscribing to this tier requires a payment.
func (t SubscriptionTier) IsPaid() bool {
	return t.IsValid() && t != SubscriptionTierFree
}

// ParseSubscriptionTier converts raw input into a SubscriptionTier.
func ParseSubscriptionTier(value string) (SubscriptionTier, error) {
	for _, candidate := range validSubscriptionTiers {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid subscription tier %q", value)
}
