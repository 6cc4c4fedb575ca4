package accounts

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mentorloop/backend/pkg/db/models"
)

// Repository handles payout account and customer profile persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreatePayoutAccount(ctx context.Context, account *models.PayoutAccount) error
	UpdatePayoutAccount(ctx context.Context, account *models.PayoutAccount) error
	FindPayoutAccountByMentor(ctx context.Context, mentorID uuid.UUID) (*models.PayoutAccount, error)
	FindPayoutAccountByStripeID(ctx context.Context, stripeAccountID string) (*models.PayoutAccount, error)
	CreateCustomerProfile(ctx context.Context, profile *models.CustomerProfile) error
	FindCustomerProfileByMentee(ctx context.Context, menteeID uuid.UUID) (*models.CustomerProfile, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an accounts repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreatePayoutAccount(ctx context.Context, account *models.PayoutAccount) error {
	return r.db.WithContext(ctx).Create(account).Error
}

func (r *repository) UpdatePayoutAccount(ctx context.Context, account *models.PayoutAccount) error {
	return r.db.WithContext(ctx).Save(account).Error
}

func (r *repository) FindPayoutAccountByMentor(ctx context.Context, mentorID uuid.UUID) (*models.PayoutAccount, error) {
	var account models.PayoutAccount
	if err := r.db.WithContext(ctx).
		Where("mentor_id = ?", mentorID).
		First(&account).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

func (r *repository) FindPayoutAccountByStripeID(ctx context.Context, stripeAccountID string) (*models.PayoutAccount, error) {
	var account models.PayoutAccount
	if err := r.db.WithContext(ctx).
		Where("stripe_account_id = ?", stripeAccountID).
		First(&account).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

func (r *repository) CreateCustomerProfile(ctx context.Context, profile *models.CustomerProfile) error {
	return r.db.WithContext(ctx).Create(profile).Error
}

func (r *repository) FindCustomerProfileByMentee(ctx context.Context, menteeID uuid.UUID) (*models.CustomerProfile, error) {
	var profile models.CustomerProfile
	if err := r.db.WithContext(ctx).
		Where("mentee_id = ?", menteeID).
		First(&profile).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &profile, nil
}
