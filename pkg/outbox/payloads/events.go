package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/mentorloop/backend/pkg/enums"
)

// PurchasePaidEvent signals that a checkout converged to paid and the
// entitlement is live.
type PurchasePaidEvent struct {
	PurchaseID  uuid.UUID      `json:"purchase_id"`
	MenteeID    uuid.UUID      `json:"mentee_id"`
	MentorID    uuid.UUID      `json:"mentor_id"`
	PlanType    enums.PlanType `json:"plan_type"`
	PlanID      uuid.UUID      `json:"plan_id"`
	AmountCents int64          `json:"amount_cents"`
}

// PurchaseCancelledEvent is emitted when a pending or paid purchase is
// voided before fulfillment.
type PurchaseCancelledEvent struct {
	PurchaseID uuid.UUID `json:"purchase_id"`
	MenteeID   uuid.UUID `json:"mentee_id"`
	MentorID   uuid.UUID `json:"mentor_id"`
}

// PurchaseFailedEvent is emitted when a capture attempt fails.
type PurchaseFailedEvent struct {
	PurchaseID uuid.UUID `json:"purchase_id"`
	MenteeID   uuid.UUID `json:"mentee_id"`
	MentorID   uuid.UUID `json:"mentor_id"`
}

// SubscriptionRenewedEvent carries the refreshed billing window.
type SubscriptionRenewedEvent struct {
	PurchaseID  uuid.UUID `json:"purchase_id"`
	MenteeID    uuid.UUID `json:"mentee_id"`
	MentorID    uuid.UUID `json:"mentor_id"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
	AmountCents int64     `json:"amount_cents"`
}

// SubscriptionCancelledEvent signals the entitlement will lapse at the
// period end; already-paid time stays usable.
type SubscriptionCancelledEvent struct {
	PurchaseID uuid.UUID  `json:"purchase_id"`
	MenteeID   uuid.UUID  `json:"mentee_id"`
	MentorID   uuid.UUID  `json:"mentor_id"`
	PeriodEnd  *time.Time `json:"period_end,omitempty"`
}

// SubscriptionExpiredEvent is emitted when a renewal fails and the
// entitlement is revoked immediately.
type SubscriptionExpiredEvent struct {
	PurchaseID uuid.UUID `json:"purchase_id"`
	MenteeID   uuid.UUID `json:"mentee_id"`
	MentorID   uuid.UUID `json:"mentor_id"`
}

// SubscriptionReactivatedEvent is emitted when a cancelled subscription
// resumes before its period end.
type SubscriptionReactivatedEvent struct {
	PurchaseID uuid.UUID `json:"purchase_id"`
	MenteeID   uuid.UUID `json:"mentee_id"`
	MentorID   uuid.UUID `json:"mentor_id"`
}
