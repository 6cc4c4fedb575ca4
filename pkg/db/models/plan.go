package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/mentorloop/backend/pkg/enums"
)

// Plan is a mentor-authored offering: a one-off session, a multi-session
// package, or a monthly subscription. Plans are soft-retired, never
// deleted, because purchases hold durable references to them.
type Plan struct {
	ID          uuid.UUID        `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	MentorID    uuid.UUID        `gorm:"column:mentor_id;type:uuid;not null;index"`
	Type        enums.PlanType   `gorm:"column:type;type:plan_type;not null"`
	Title       string           `gorm:"column:title;not null"`
	Description *string          `gorm:"column:description"`
	Perks       pq.StringArray   `gorm:"column:perks;type:text[];default:ARRAY[]::text[]"`
	AmountCents int64            `gorm:"column:amount_cents;not null"`
	Currency    string           `gorm:"column:currency;not null;default:'usd'"`
	// TotalSessions is the package size, or the per-period session quota
	// for subscriptions; 1 for pay-per-session plans.
	TotalSessions   int              `gorm:"column:total_sessions;not null;default:1"`
	DurationMinutes int              `gorm:"column:duration_minutes;not null;default:60"`
	StripeProductID *string          `gorm:"column:stripe_product_id"`
	StripePriceID   *string          `gorm:"column:stripe_price_id"`
	Status          enums.PlanStatus `gorm:"column:status;type:plan_status;not null;default:'active'"`
	CreatedAt       time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}
