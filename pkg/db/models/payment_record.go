package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/mentorloop/backend/pkg/enums"
)

// PaymentRecord is an append-only ledger entry for money that has actually
// and durably moved. Rows are written only as a side effect of confirmed
// purchase transitions; StripeInvoiceID, when present, is the dedup key
// for redelivered subscription renewal events.
type PaymentRecord struct {
	ID              uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	PurchaseID      uuid.UUID      `gorm:"column:purchase_id;type:uuid;not null;index"`
	MenteeID        uuid.UUID      `gorm:"column:mentee_id;type:uuid;not null;index"`
	MentorID        uuid.UUID      `gorm:"column:mentor_id;type:uuid;not null;index"`
	PlanType        enums.PlanType `gorm:"column:plan_type;type:plan_type;not null"`
	PlanID          uuid.UUID      `gorm:"column:plan_id;type:uuid;not null"`
	AmountCents     int64          `gorm:"column:amount_cents;not null"`
	FeeCents        int64          `gorm:"column:fee_cents;not null"`
	Currency        string         `gorm:"column:currency;not null;default:'usd'"`
	StripeInvoiceID *string        `gorm:"column:stripe_invoice_id"`
	CreatedAt       time.Time      `gorm:"column:created_at;autoCreateTime"`
}
