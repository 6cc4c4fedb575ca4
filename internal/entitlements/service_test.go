package entitlements

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mentorloop/backend/internal/purchases"
	"github.com/mentorloop/backend/internal/sessions"
	"github.com/mentorloop/backend/pkg/db/models"
	"github.com/mentorloop/backend/pkg/enums"
	pkgerrors "github.com/mentorloop/backend/pkg/errors"
)

type stubPurchaseRepo struct {
	purchases.Repository
	rows map[uuid.UUID]*models.Purchase
}

func newStubPurchaseRepo() *stubPurchaseRepo {
	return &stubPurchaseRepo{rows: map[uuid.UUID]*models.Purchase{}}
}

func (s *stubPurchaseRepo) ListActiveForPair(_ context.Context, menteeID, mentorID uuid.UUID) ([]models.Purchase, error) {
	var out []models.Purchase
	for _, p := range s.rows {
		if p.MenteeID == menteeID && p.MentorID == mentorID && p.IsActive {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (s *stubPurchaseRepo) ConsumeSession(_ context.Context, id uuid.UUID) (int64, error) {
	p, ok := s.rows[id]
	if !ok || !p.IsActive || p.RemainingSessions == nil || *p.RemainingSessions <= 0 {
		return 0, nil
	}
	*p.RemainingSessions--
	return 1, nil
}

type stubSessionRepo struct {
	consumed map[uuid.UUID]int64
}

func (s *stubSessionRepo) WithTx(tx *gorm.DB) sessions.Repository { return s }

func (s *stubSessionRepo) CountConsumed(_ context.Context, purchaseID uuid.UUID) (int64, error) {
	return s.consumed[purchaseID], nil
}

type stubPlanLoader struct {
	plans map[uuid.UUID]*models.Plan
}

func (s *stubPlanLoader) FindByID(_ context.Context, id uuid.UUID) (*models.Plan, error) {
	return s.plans[id], nil
}

type fixture struct {
	svc       Service
	purchases *stubPurchaseRepo
	sessions  *stubSessionRepo
	plans     *stubPlanLoader
	now       time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		purchases: newStubPurchaseRepo(),
		sessions:  &stubSessionRepo{consumed: map[uuid.UUID]int64{}},
		plans:     &stubPlanLoader{plans: map[uuid.UUID]*models.Plan{}},
		now:       time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	}
	svc, err := NewService(ServiceParams{
		Purchases: f.purchases,
		Sessions:  f.sessions,
		Plans:     f.plans,
		Now:       func() time.Time { return f.now },
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	f.svc = svc
	return f
}

func (f *fixture) addPaidPackage(remaining, planTotal int) *models.Purchase {
	planID := uuid.New()
	f.plans.plans[planID] = &models.Plan{ID: planID, TotalSessions: planTotal}
	p := &models.Purchase{
		ID:                uuid.New(),
		MenteeID:          uuid.New(),
		MentorID:          uuid.New(),
		PlanType:          enums.PlanTypePackage,
		PackageID:         &planID,
		Status:            enums.PurchaseStatusPaid,
		IsActive:          true,
		RemainingSessions: &remaining,
	}
	f.purchases.rows[p.ID] = p
	return p
}

func (f *fixture) addPaidSubscription(state enums.SubscriptionState, periodEnd time.Time, remaining int) *models.Purchase {
	planID := uuid.New()
	f.plans.plans[planID] = &models.Plan{ID: planID, TotalSessions: 4}
	p := &models.Purchase{
		ID:                 uuid.New(),
		MenteeID:           uuid.New(),
		MentorID:           uuid.New(),
		PlanType:           enums.PlanTypeSubscription,
		SubscriptionPlanID: &planID,
		Status:             enums.PurchaseStatusPaid,
		IsActive:           true,
		PlanState:          &state,
		PeriodEnd:          &periodEnd,
		RemainingSessions:  &remaining,
	}
	f.purchases.rows[p.ID] = p
	return p
}

func TestNoEntitlementForStrangers(t *testing.T) {
	f := newFixture(t)
	got, err := f.svc.HasActiveEntitlement(context.Background(), uuid.New(), uuid.New())
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if got != nil {
		t.Fatalf("expected no entitlement, got %+v", got)
	}
}

func TestPackageEntitlementUsesLesserQuota(t *testing.T) {
	f := newFixture(t)
	// counter says 3 left, but bookings already consumed 4 of 5
	p := f.addPaidPackage(3, 5)
	f.sessions.consumed[p.ID] = 4

	got, err := f.svc.HasActiveEntitlement(context.Background(), p.MenteeID, p.MentorID)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if got == nil {
		t.Fatalf("expected entitlement")
	}
	if got.RemainingSessions == nil || *got.RemainingSessions != 1 {
		t.Fatalf("expected lesser quota 1, got %v", got.RemainingSessions)
	}
}

func TestExhaustedPackageGrantsNothing(t *testing.T) {
	f := newFixture(t)
	p := f.addPaidPackage(0, 5)

	got, err := f.svc.HasActiveEntitlement(context.Background(), p.MenteeID, p.MentorID)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if got != nil {
		t.Fatalf("expected no entitlement from an exhausted package")
	}
}

func TestDriftedCounterFailsClosed(t *testing.T) {
	f := newFixture(t)
	// counter drifted high, bookings show the package is fully consumed
	p := f.addPaidPackage(5, 5)
	f.sessions.consumed[p.ID] = 5

	got, err := f.svc.HasActiveEntitlement(context.Background(), p.MenteeID, p.MentorID)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if got != nil {
		t.Fatalf("drifted counter must not oversell")
	}
}

func TestLapsedSubscriptionWindowGrantsNothing(t *testing.T) {
	f := newFixture(t)
	p := f.addPaidSubscription(enums.SubscriptionStateActive, f.now.Add(-time.Hour), 4)

	got, err := f.svc.HasActiveEntitlement(context.Background(), p.MenteeID, p.MentorID)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if got != nil {
		t.Fatalf("lapsed billing window must not grant entitlement")
	}
}

func TestCancelledSubscriptionGrantsUntilPeriodEnd(t *testing.T) {
	f := newFixture(t)
	p := f.addPaidSubscription(enums.SubscriptionStateCancelled, f.now.Add(72*time.Hour), 2)

	got, err := f.svc.HasActiveEntitlement(context.Background(), p.MenteeID, p.MentorID)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if got == nil {
		t.Fatalf("cancelled subscription keeps its paid-for window")
	}
}

func TestExpiredSubscriptionGrantsNothing(t *testing.T) {
	f := newFixture(t)
	p := f.addPaidSubscription(enums.SubscriptionStateExpired, f.now.Add(72*time.Hour), 2)

	got, err := f.svc.HasActiveEntitlement(context.Background(), p.MenteeID, p.MentorID)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if got != nil {
		t.Fatalf("expired subscription must not grant entitlement")
	}
}

func TestConsumeSessionDecrements(t *testing.T) {
	f := newFixture(t)
	p := f.addPaidPackage(2, 5)

	got, err := f.svc.ConsumeSession(context.Background(), p.MenteeID, p.MentorID)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if got.RemainingSessions == nil || *got.RemainingSessions != 1 {
		t.Fatalf("expected 1 remaining, got %v", got.RemainingSessions)
	}
}

func TestConsumeSessionWithoutEntitlementForbidden(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.ConsumeSession(context.Background(), uuid.New(), uuid.New())
	appErr := pkgerrors.As(err)
	if appErr == nil || appErr.Code() != pkgerrors.CodeForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestConsumeSessionCannotDoubleSpendLastSlot(t *testing.T) {
	f := newFixture(t)
	p := f.addPaidPackage(1, 5)

	if _, err := f.svc.ConsumeSession(context.Background(), p.MenteeID, p.MentorID); err != nil {
		t.Fatalf("first consume: %v", err)
	}
	_, err := f.svc.ConsumeSession(context.Background(), p.MenteeID, p.MentorID)
	if err == nil {
		t.Fatalf("second consume of the last slot must fail")
	}
}
