package plans

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mentorloop/backend/pkg/db/models"
	"github.com/mentorloop/backend/pkg/enums"
)

// Repository handles plan persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, plan *models.Plan) error
	Update(ctx context.Context, plan *models.Plan) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Plan, error)
	ListByMentor(ctx context.Context, mentorID uuid.UUID, status *enums.PlanStatus) ([]models.Plan, error)
	CountActiveByType(ctx context.Context, mentorID uuid.UUID, planType enums.PlanType) (int64, error)
	ExistsActiveTitle(ctx context.Context, mentorID uuid.UUID, planType enums.PlanType, title string) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a plan repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, plan *models.Plan) error {
	return r.db.WithContext(ctx).Create(plan).Error
}

func (r *repository) Update(ctx context.Context, plan *models.Plan) error {
	return r.db.WithContext(ctx).Save(plan).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Plan, error) {
	var plan models.Plan
	if err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&plan).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &plan, nil
}

func (r *repository) ListByMentor(ctx context.Context, mentorID uuid.UUID, status *enums.PlanStatus) ([]models.Plan, error) {
	var plans []models.Plan
	query := r.db.WithContext(ctx).
		Where("mentor_id = ?", mentorID).
		Order("created_at DESC")
	if status != nil {
		query = query.Where("status = ?", *status)
	}
	if err := query.Find(&plans).Error; err != nil {
		return nil, err
	}
	return plans, nil
}

func (r *repository) CountActiveByType(ctx context.Context, mentorID uuid.UUID, planType enums.PlanType) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Plan{}).
		Where("mentor_id = ? AND type = ? AND status = ?", mentorID, planType, enums.PlanStatusActive).
		Count(&count).Error
	return count, err
}

func (r *repository) ExistsActiveTitle(ctx context.Context, mentorID uuid.UUID, planType enums.PlanType, title string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Plan{}).
		Where("mentor_id = ? AND type = ? AND title = ? AND status = ?", mentorID, planType, title, enums.PlanStatusActive).
		Count(&count).Error
	return count > 0, err
}
