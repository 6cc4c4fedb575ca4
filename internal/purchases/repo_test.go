package purchases

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/mentorloop/backend/pkg/db/models"
	"github.com/mentorloop/backend/pkg/enums"
)

func setupPurchasesTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	schema := `
CREATE TABLE IF NOT EXISTS purchases (
  id TEXT PRIMARY KEY,
  mentee_id TEXT NOT NULL,
  mentor_id TEXT NOT NULL,
  plan_type TEXT NOT NULL,
  package_id TEXT,
  subscription_plan_id TEXT,
  pay_per_session_id TEXT,
  amount_cents INTEGER NOT NULL,
  application_fee_cents INTEGER NOT NULL DEFAULT 0,
  checkout_session_id TEXT NOT NULL UNIQUE,
  stripe_subscription_id TEXT,
  stripe_payment_intent_id TEXT,
  status TEXT NOT NULL DEFAULT 'pending',
  plan_state TEXT,
  period_start DATETIME,
  period_end DATETIME,
  remaining_sessions INTEGER,
  subscription_cancelled INTEGER NOT NULL DEFAULT 0,
  is_active INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, db.Exec(schema).Error)
	return db
}

func insertPendingPackage(t *testing.T, db *gorm.DB, remaining int) *models.Purchase {
	t.Helper()
	planID := uuid.New()
	purchase := &models.Purchase{
		ID:                uuid.New(),
		MenteeID:          uuid.New(),
		MentorID:          uuid.New(),
		PlanType:          enums.PlanTypePackage,
		PackageID:         &planID,
		AmountCents:       20000,
		CheckoutSessionID: "cs_" + uuid.NewString(),
		Status:            enums.PurchaseStatusPending,
		RemainingSessions: &remaining,
	}
	require.NoError(t, db.Create(purchase).Error)
	return purchase
}

func TestMarkPaidOnlyTransitionsPending(t *testing.T) {
	db := setupPurchasesTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	purchase := insertPendingPackage(t, db, 5)

	intent := "pi_1"
	affected, err := repo.MarkPaid(ctx, purchase.ID, MarkPaidParams{StripePaymentIntentID: &intent})
	require.NoError(t, err)
	assert.EqualValues(t, 1, affected)

	// replay: the guard sees paid and touches nothing
	affected, err = repo.MarkPaid(ctx, purchase.ID, MarkPaidParams{StripePaymentIntentID: &intent})
	require.NoError(t, err)
	assert.EqualValues(t, 0, affected)

	stored, err := repo.FindByID(ctx, purchase.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, enums.PurchaseStatusPaid, stored.Status)
	assert.True(t, stored.IsActive)
}

func TestMarkFailedNeverRegressesPaid(t *testing.T) {
	db := setupPurchasesTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	purchase := insertPendingPackage(t, db, 5)

	_, err := repo.MarkPaid(ctx, purchase.ID, MarkPaidParams{})
	require.NoError(t, err)

	affected, err := repo.MarkFailed(ctx, purchase.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 0, affected)

	stored, err := repo.FindByID(ctx, purchase.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PurchaseStatusPaid, stored.Status)
}

func TestConsumeSessionNeverOversells(t *testing.T) {
	db := setupPurchasesTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	purchase := insertPendingPackage(t, db, 2)

	_, err := repo.MarkPaid(ctx, purchase.ID, MarkPaidParams{})
	require.NoError(t, err)

	var consumed int
	for i := 0; i < 5; i++ {
		affected, err := repo.ConsumeSession(ctx, purchase.ID)
		require.NoError(t, err)
		consumed += int(affected)
	}
	assert.Equal(t, 2, consumed, "a 2-session package must never grant more than 2 consumes")

	stored, err := repo.FindByID(ctx, purchase.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.RemainingSessions)
	assert.Equal(t, 0, *stored.RemainingSessions)
}

func TestConsumeSessionRequiresActivePurchase(t *testing.T) {
	db := setupPurchasesTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	purchase := insertPendingPackage(t, db, 3)

	// still pending, not active
	affected, err := repo.ConsumeSession(ctx, purchase.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 0, affected)
}

func TestApplyRenewalRefreshesWindow(t *testing.T) {
	db := setupPurchasesTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	planID := uuid.New()
	subID := "sub_1"
	purchase := &models.Purchase{
		ID:                 uuid.New(),
		MenteeID:           uuid.New(),
		MentorID:           uuid.New(),
		PlanType:           enums.PlanTypeSubscription,
		SubscriptionPlanID: &planID,
		AmountCents:        15000,
		CheckoutSessionID:  "cs_" + uuid.NewString(),
		Status:             enums.PurchaseStatusPending,
	}
	require.NoError(t, db.Create(purchase).Error)

	state := enums.SubscriptionStateActive
	_, err := repo.MarkPaid(ctx, purchase.ID, MarkPaidParams{
		StripeSubscriptionID: &subID,
		PlanState:            &state,
	})
	require.NoError(t, err)

	start := time.Now().UTC().Truncate(time.Second)
	end := start.AddDate(0, 1, 0)
	quota := 4
	affected, err := repo.ApplyRenewal(ctx, purchase.ID, RenewalParams{
		PeriodStart:       start,
		PeriodEnd:         end,
		RemainingSessions: &quota,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, affected)

	stored, err := repo.FindByStripeSubscriptionID(ctx, subID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.NotNil(t, stored.PeriodEnd)
	assert.WithinDuration(t, end, *stored.PeriodEnd, time.Second)
	require.NotNil(t, stored.RemainingSessions)
	assert.Equal(t, 4, *stored.RemainingSessions)
	assert.False(t, stored.SubscriptionCancelled)
}

func TestDuplicateCheckoutSessionRejected(t *testing.T) {
	db := setupPurchasesTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	purchase := insertPendingPackage(t, db, 1)

	dup := *purchase
	dup.ID = uuid.New()
	err := repo.Create(ctx, &dup)
	require.Error(t, err, "checkout_session_id must be unique")
}
