package enums

import "fmt"

// SubscriptionState is the entitlement-lifetime axis of a subscription
// purchase, independent of the payment-capture status: a subscription can
// stay paid while its entitlement is cancelled or expired.
type SubscriptionState string

const (
	SubscriptionStateActive    SubscriptionState = "active"
	SubscriptionStateCancelled SubscriptionState = "cancelled"
	SubscriptionStateExpired   SubscriptionState = "expired"
)

var validSubscriptionStates = []SubscriptionState{
	SubscriptionStateActive,
	SubscriptionStateCancelled,
	SubscriptionStateExpired,
}

// String implements fmt.Stringer.
func (s SubscriptionState) String() string {
	return string(s)
}

// IsValid reports whether the value is known.
func (s SubscriptionState) IsValid() bool {
	for _, candidate := range validSubscriptionStates {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseSubscriptionState converts raw input into a SubscriptionState.
func ParseSubscriptionState(value string) (SubscriptionState, error) {
	for _, candidate := range validSubscriptionStates {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid subscription state %q", value)
}
