package enums

import "fmt"

// SessionStatus mirrors the scheduling collaborator's booking state.
// Only accepted and completed bookings count against a purchase quota.
type SessionStatus string

const (
	SessionStatusRequested SessionStatus = "requested"
	SessionStatusAccepted  SessionStatus = "accepted"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusDeclined  SessionStatus = "declined"
	SessionStatusCancelled SessionStatus = "cancelled"
)

var validSessionStatuses = []SessionStatus{
	SessionStatusRequested,
	SessionStatusAccepted,
	SessionStatusCompleted,
	SessionStatusDeclined,
	SessionStatusCancelled,
}

// String implements fmt.Stringer.
func (s SessionStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is known.
func (s SessionStatus) IsValid() bool {
	for _, candidate := range validSessionStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ConsumesQuota reports whether the booking state counts against the
// purchase's session quota.
func (s SessionStatus) ConsumesQuota() bool {
	return s == SessionStatusAccepted || s == SessionStatusCompleted
}

// ParseSessionStatus converts raw input into a SessionStatus.
func ParseSessionStatus(value string) (SessionStatus, error) {
	for _, candidate := range validSessionStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid session status %q", value)
}
