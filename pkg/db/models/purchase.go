package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/mentorloop/backend/pkg/enums"
)

// Purchase is the entitlement record for one buying action. It is created
// exactly once, in pending, before the checkout redirect is returned, and
// afterwards transitioned exclusively by webhook-driven events keyed by
// checkout_session_id or stripe_subscription_id.
type Purchase struct {
	ID       uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	MenteeID uuid.UUID      `gorm:"column:mentee_id;type:uuid;not null;index"`
	MentorID uuid.UUID      `gorm:"column:mentor_id;type:uuid;not null;index"`
	PlanType enums.PlanType `gorm:"column:plan_type;type:plan_type;not null"`

	// Exactly one of the three references is set, matching PlanType.
	// Construction goes through purchases.PlanRef so the invariant holds
	// structurally rather than by ad-hoc checks.
	PackageID            *uuid.UUID `gorm:"column:package_id;type:uuid"`
	SubscriptionPlanID   *uuid.UUID `gorm:"column:subscription_plan_id;type:uuid"`
	PayPerSessionID      *uuid.UUID `gorm:"column:pay_per_session_id;type:uuid"`

	AmountCents         int64 `gorm:"column:amount_cents;not null"`
	ApplicationFeeCents int64 `gorm:"column:application_fee_cents;not null;default:0"`

	CheckoutSessionID     string  `gorm:"column:checkout_session_id;not null;uniqueIndex"`
	StripeSubscriptionID  *string `gorm:"column:stripe_subscription_id"`
	StripePaymentIntentID *string `gorm:"column:stripe_payment_intent_id"`

	Status enums.PurchaseStatus `gorm:"column:status;type:purchase_status;not null;default:'pending'"`
	// PlanState is the subscription entitlement-lifetime axis; null for
	// packages and pay-per-session purchases.
	PlanState *enums.SubscriptionState `gorm:"column:plan_state;type:subscription_state"`

	PeriodStart *time.Time `gorm:"column:period_start"`
	PeriodEnd   *time.Time `gorm:"column:period_end"`

	RemainingSessions     *int `gorm:"column:remaining_sessions"`
	SubscriptionCancelled bool `gorm:"column:subscription_cancelled;not null;default:false"`
	IsActive              bool `gorm:"column:is_active;not null;default:false"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// PlanInstanceID returns whichever plan reference is set.
func (p *Purchase) PlanInstanceID() uuid.UUID {
	switch {
	case p.PackageID != nil:
		return *p.PackageID
	case p.SubscriptionPlanID != nil:
		return *p.SubscriptionPlanID
	case p.PayPerSessionID != nil:
		return *p.PayPerSessionID
	}
	return uuid.Nil
}
