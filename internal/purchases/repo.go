package purchases

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mentorloop/backend/pkg/db/models"
	"github.com/mentorloop/backend/pkg/enums"
)

// Repository handles purchase persistence. All state transitions are
// conditional updates: the WHERE clause encodes the legal prior state and
// callers inspect the affected row count, so concurrent deliveries of the
// same event collapse to exactly one effective write.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, purchase *models.Purchase) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Purchase, error)
	FindByCheckoutSessionID(ctx context.Context, sessionID string) (*models.Purchase, error)
	FindByStripeSubscriptionID(ctx context.Context, subscriptionID string) (*models.Purchase, error)
	FindByPaymentIntentID(ctx context.Context, paymentIntentID string) (*models.Purchase, error)
	ListActiveForPair(ctx context.Context, menteeID, mentorID uuid.UUID) ([]models.Purchase, error)
	ListByMentee(ctx context.Context, menteeID uuid.UUID) ([]models.Purchase, error)

	MarkPaid(ctx context.Context, id uuid.UUID, params MarkPaidParams) (int64, error)
	MarkCancelled(ctx context.Context, id uuid.UUID) (int64, error)
	MarkFailed(ctx context.Context, id uuid.UUID) (int64, error)
	ApplyRenewal(ctx context.Context, id uuid.UUID, params RenewalParams) (int64, error)
	MarkSubscriptionCancelled(ctx context.Context, id uuid.UUID) (int64, error)
	ReactivateSubscription(ctx context.Context, id uuid.UUID) (int64, error)
	ExpireSubscription(ctx context.Context, id uuid.UUID) (int64, error)
	ConsumeSession(ctx context.Context, id uuid.UUID) (int64, error)
}

// MarkPaidParams carries everything the pending->paid transition records.
type MarkPaidParams struct {
	StripePaymentIntentID *string
	StripeSubscriptionID  *string
	PlanState             *enums.SubscriptionState
	PeriodStart           *time.Time
	PeriodEnd             *time.Time
	RemainingSessions     *int
}

// RenewalParams carries the refreshed billing window for a renewal.
type RenewalParams struct {
	PeriodStart       time.Time
	PeriodEnd         time.Time
	RemainingSessions *int
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a purchase repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, purchase *models.Purchase) error {
	return r.db.WithContext(ctx).Create(purchase).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Purchase, error) {
	return r.findOne(ctx, "id = ?", id)
}

func (r *repository) FindByCheckoutSessionID(ctx context.Context, sessionID string) (*models.Purchase, error) {
	return r.findOne(ctx, "checkout_session_id = ?", sessionID)
}

func (r *repository) FindByStripeSubscriptionID(ctx context.Context, subscriptionID string) (*models.Purchase, error) {
	return r.findOne(ctx, "stripe_subscription_id = ?", subscriptionID)
}

func (r *repository) FindByPaymentIntentID(ctx context.Context, paymentIntentID string) (*models.Purchase, error) {
	return r.findOne(ctx, "stripe_payment_intent_id = ?", paymentIntentID)
}

func (r *repository) findOne(ctx context.Context, query string, args ...any) (*models.Purchase, error) {
	var purchase models.Purchase
	if err := r.db.WithContext(ctx).
		Where(query, args...).
		First(&purchase).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &purchase, nil
}

func (r *repository) ListActiveForPair(ctx context.Context, menteeID, mentorID uuid.UUID) ([]models.Purchase, error) {
	var purchases []models.Purchase
	if err := r.db.WithContext(ctx).
		Where("mentee_id = ? AND mentor_id = ? AND is_active", menteeID, mentorID).
		Order("created_at ASC").
		Find(&purchases).Error; err != nil {
		return nil, err
	}
	return purchases, nil
}

func (r *repository) ListByMentee(ctx context.Context, menteeID uuid.UUID) ([]models.Purchase, error) {
	var purchases []models.Purchase
	if err := r.db.WithContext(ctx).
		Where("mentee_id = ?", menteeID).
		Order("created_at DESC").
		Find(&purchases).Error; err != nil {
		return nil, err
	}
	return purchases, nil
}

func (r *repository) MarkPaid(ctx context.Context, id uuid.UUID, params MarkPaidParams) (int64, error) {
	updates := map[string]any{
		"status":    enums.PurchaseStatusPaid,
		"is_active": true,
	}
	if params.StripePaymentIntentID != nil {
		updates["stripe_payment_intent_id"] = *params.StripePaymentIntentID
	}
	if params.StripeSubscriptionID != nil {
		updates["stripe_subscription_id"] = *params.StripeSubscriptionID
	}
	if params.PlanState != nil {
		updates["plan_state"] = *params.PlanState
	}
	if params.PeriodStart != nil {
		updates["period_start"] = *params.PeriodStart
	}
	if params.PeriodEnd != nil {
		updates["period_end"] = *params.PeriodEnd
	}
	if params.RemainingSessions != nil {
		updates["remaining_sessions"] = *params.RemainingSessions
	}

	res := r.db.WithContext(ctx).
		Model(&models.Purchase{}).
		Where("id = ? AND status = ?", id, enums.PurchaseStatusPending).
		Updates(updates)
	return res.RowsAffected, res.Error
}

func (r *repository) MarkCancelled(ctx context.Context, id uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Purchase{}).
		Where("id = ? AND status = ?", id, enums.PurchaseStatusPending).
		Updates(map[string]any{
			"status":    enums.PurchaseStatusCancelled,
			"is_active": false,
		})
	return res.RowsAffected, res.Error
}

func (r *repository) MarkFailed(ctx context.Context, id uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Purchase{}).
		Where("id = ? AND status = ?", id, enums.PurchaseStatusPending).
		Updates(map[string]any{
			"status":    enums.PurchaseStatusFailed,
			"is_active": false,
		})
	return res.RowsAffected, res.Error
}

func (r *repository) ApplyRenewal(ctx context.Context, id uuid.UUID, params RenewalParams) (int64, error) {
	updates := map[string]any{
		"plan_state":             enums.SubscriptionStateActive,
		"is_active":              true,
		"subscription_cancelled": false,
		"period_start":           params.PeriodStart,
		"period_end":             params.PeriodEnd,
	}
	if params.RemainingSessions != nil {
		updates["remaining_sessions"] = *params.RemainingSessions
	}

	res := r.db.WithContext(ctx).
		Model(&models.Purchase{}).
		Where("id = ? AND status = ?", id, enums.PurchaseStatusPaid).
		Updates(updates)
	return res.RowsAffected, res.Error
}

func (r *repository) MarkSubscriptionCancelled(ctx context.Context, id uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Purchase{}).
		Where("id = ? AND plan_state = ?", id, enums.SubscriptionStateActive).
		Updates(map[string]any{
			"plan_state":             enums.SubscriptionStateCancelled,
			"subscription_cancelled": true,
		})
	return res.RowsAffected, res.Error
}

func (r *repository) ReactivateSubscription(ctx context.Context, id uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Purchase{}).
		Where("id = ? AND plan_state = ?", id, enums.SubscriptionStateCancelled).
		Updates(map[string]any{
			"plan_state":             enums.SubscriptionStateActive,
			"subscription_cancelled": false,
			"is_active":              true,
		})
	return res.RowsAffected, res.Error
}

func (r *repository) ExpireSubscription(ctx context.Context, id uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Purchase{}).
		Where("id = ? AND plan_state <> ?", id, enums.SubscriptionStateExpired).
		Updates(map[string]any{
			"plan_state": enums.SubscriptionStateExpired,
			"is_active":  false,
		})
	return res.RowsAffected, res.Error
}

func (r *repository) ConsumeSession(ctx context.Context, id uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Purchase{}).
		Where("id = ? AND is_active AND remaining_sessions > 0", id).
		Update("remaining_sessions", gorm.Expr("remaining_sessions - 1"))
	return res.RowsAffected, res.Error
}
