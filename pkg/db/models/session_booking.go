package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/mentorloop/backend/pkg/enums"
)

// SessionBooking is owned by the scheduling collaborator. This core reads
// it only to count sessions consumed against a purchase quota and never
// writes to it.
type SessionBooking struct {
	ID         uuid.UUID           `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	MentorID   uuid.UUID           `gorm:"column:mentor_id;type:uuid;not null;index"`
	MenteeID   uuid.UUID           `gorm:"column:mentee_id;type:uuid;not null;index"`
	PurchaseID *uuid.UUID          `gorm:"column:purchase_id;type:uuid;index"`
	Status     enums.SessionStatus `gorm:"column:status;type:session_status;not null"`
	StartsAt   time.Time           `gorm:"column:starts_at;not null"`
	CreatedAt  time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
