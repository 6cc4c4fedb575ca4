package sessions

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mentorloop/backend/pkg/db/models"
	"github.com/mentorloop/backend/pkg/enums"
)

// Repository reads session bookings owned by the scheduling collaborator.
// This side never writes booking rows.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	// CountConsumed returns bookings that count against a purchase quota:
	// accepted and completed sessions. Declined and cancelled ones give
	// the slot back.
	CountConsumed(ctx context.Context, purchaseID uuid.UUID) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a session booking reader bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CountConsumed(ctx context.Context, purchaseID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.SessionBooking{}).
		Where("purchase_id = ? AND status IN (?)", purchaseID, []enums.SessionStatus{
			enums.SessionStatusAccepted,
			enums.SessionStatusCompleted,
		}).
		Count(&count).Error
	return count, err
}
