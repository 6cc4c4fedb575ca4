package enums

import "fmt"

// PlanType distinguishes the three mentor offering variants.
type PlanType string

const (
	PlanTypePayPerSession PlanType = "pay_per_session"
	PlanTypePackage       PlanType = "package"
	PlanTypeSubscription  PlanType = "subscription"
)

var validPlanTypes = []PlanType{
	PlanTypePayPerSession,
	PlanTypePackage,
	PlanTypeSubscription,
}

// String implements fmt.Stringer.
func (p PlanType) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PlanType.
func (p PlanType) IsValid() bool {
	for _, candidate := range validPlanTypes {
		if candidate == p {
			return true
		}
	}
	return false
}

// Recurring reports whether the variant bills on a cycle.
func (p PlanType) Recurring() bool {
	return p == PlanTypeSubscription
}

// ParsePlanType converts raw input into a PlanType.
func ParsePlanType(value string) (PlanType, error) {
	for _, candidate := range validPlanTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid plan type %q", value)
}
