package models

import (
	"time"

	"github.com/google/uuid"
)

// PayoutAccount links a mentor to their Stripe Connect account. Checkout
// creation fails fast when the mentor has no onboarded account.
type PayoutAccount struct {
	ID               uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	MentorID         uuid.UUID `gorm:"column:mentor_id;type:uuid;not null;uniqueIndex"`
	StripeAccountID  string    `gorm:"column:stripe_account_id;not null;uniqueIndex"`
	DetailsSubmitted bool      `gorm:"column:details_submitted;not null;default:false"`
	CreatedAt        time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// CustomerProfile maps a mentee to their Stripe customer id, created
// lazily on first checkout.
type CustomerProfile struct {
	ID               uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	MenteeID         uuid.UUID `gorm:"column:mentee_id;type:uuid;not null;uniqueIndex"`
	StripeCustomerID string    `gorm:"column:stripe_customer_id;not null;uniqueIndex"`
	Email            string    `gorm:"column:email;not null"`
	CreatedAt        time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
