package plans

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mentorloop/backend/pkg/db/models"
	"github.com/mentorloop/backend/pkg/enums"
	pkgerrors "github.com/mentorloop/backend/pkg/errors"
	"github.com/mentorloop/backend/pkg/stripe"
)

type stubRepo struct {
	plans        []models.Plan
	activeCounts map[enums.PlanType]int64
	titleTaken   bool
	created      []*models.Plan
	updated      []*models.Plan
}

func (s *stubRepo) WithTx(tx *gorm.DB) Repository { return s }

func (s *stubRepo) Create(_ context.Context, plan *models.Plan) error {
	plan.ID = uuid.New()
	s.created = append(s.created, plan)
	return nil
}

func (s *stubRepo) Update(_ context.Context, plan *models.Plan) error {
	s.updated = append(s.updated, plan)
	return nil
}

func (s *stubRepo) FindByID(_ context.Context, id uuid.UUID) (*models.Plan, error) {
	for i := range s.plans {
		if s.plans[i].ID == id {
			return &s.plans[i], nil
		}
	}
	return nil, nil
}

func (s *stubRepo) ListByMentor(_ context.Context, mentorID uuid.UUID, status *enums.PlanStatus) ([]models.Plan, error) {
	var out []models.Plan
	for _, p := range s.plans {
		if p.MentorID != mentorID {
			continue
		}
		if status != nil && p.Status != *status {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *stubRepo) CountActiveByType(_ context.Context, _ uuid.UUID, planType enums.PlanType) (int64, error) {
	return s.activeCounts[planType], nil
}

func (s *stubRepo) ExistsActiveTitle(_ context.Context, _ uuid.UUID, _ enums.PlanType, _ string) (bool, error) {
	return s.titleTaken, nil
}

type stubGateway struct {
	stripe.Gateway
	productCalls int
	recurring    bool
}

func (s *stubGateway) CreateProductAndPrice(_ context.Context, _ string, _ int64, _ string, recurring bool) (string, string, error) {
	s.productCalls++
	s.recurring = recurring
	return "prod_123", "price_123", nil
}

func newTestService(t *testing.T, repo Repository) Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Repo:            repo,
		Gateway:         &stubGateway{},
		DefaultCurrency: "usd",
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestCreateSyncsStripeAndPersists(t *testing.T) {
	repo := &stubRepo{activeCounts: map[enums.PlanType]int64{}}
	gw := &stubGateway{}
	svc, err := NewService(ServiceParams{Repo: repo, Gateway: gw})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	plan, err := svc.Create(context.Background(), uuid.New(), CreatePlanInput{
		Type:          enums.PlanTypeSubscription,
		Title:         "Monthly Mentorship",
		AmountCents:   15000,
		TotalSessions: 4,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if gw.productCalls != 1 {
		t.Fatalf("expected one stripe product sync, got %d", gw.productCalls)
	}
	if !gw.recurring {
		t.Fatalf("subscription plans must create a recurring price")
	}
	if plan.StripePriceID == nil || *plan.StripePriceID != "price_123" {
		t.Fatalf("expected price id persisted")
	}
	if plan.Status != enums.PlanStatusActive {
		t.Fatalf("expected active status, got %s", plan.Status)
	}
	if len(repo.created) != 1 {
		t.Fatalf("expected plan persisted")
	}
}

func TestCreatePayPerSessionForcesSingleSession(t *testing.T) {
	repo := &stubRepo{activeCounts: map[enums.PlanType]int64{}}
	svc := newTestService(t, repo)

	plan, err := svc.Create(context.Background(), uuid.New(), CreatePlanInput{
		Type:          enums.PlanTypePayPerSession,
		Title:         "Intro Call",
		AmountCents:   5000,
		TotalSessions: 10,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if plan.TotalSessions != 1 {
		t.Fatalf("pay-per-session total_sessions must be 1, got %d", plan.TotalSessions)
	}
}

func TestCreateEnforcesSubscriptionCap(t *testing.T) {
	repo := &stubRepo{activeCounts: map[enums.PlanType]int64{
		enums.PlanTypeSubscription: 1,
	}}
	svc := newTestService(t, repo)

	_, err := svc.Create(context.Background(), uuid.New(), CreatePlanInput{
		Type:          enums.PlanTypeSubscription,
		Title:         "Second Subscription",
		AmountCents:   10000,
		TotalSessions: 2,
	})
	assertCode(t, err, pkgerrors.CodeConflict)
}

func TestCreateEnforcesPackageCap(t *testing.T) {
	repo := &stubRepo{activeCounts: map[enums.PlanType]int64{
		enums.PlanTypePackage: 3,
	}}
	svc := newTestService(t, repo)

	_, err := svc.Create(context.Background(), uuid.New(), CreatePlanInput{
		Type:          enums.PlanTypePackage,
		Title:         "Fourth Package",
		AmountCents:   20000,
		TotalSessions: 5,
	})
	assertCode(t, err, pkgerrors.CodeConflict)
}

func TestCreateRejectsDuplicateTitle(t *testing.T) {
	repo := &stubRepo{activeCounts: map[enums.PlanType]int64{}, titleTaken: true}
	svc := newTestService(t, repo)

	_, err := svc.Create(context.Background(), uuid.New(), CreatePlanInput{
		Type:          enums.PlanTypePackage,
		Title:         "Deep Dive",
		AmountCents:   20000,
		TotalSessions: 5,
	})
	assertCode(t, err, pkgerrors.CodeConflict)
}

func TestListActiveGroupsByType(t *testing.T) {
	mentorID := uuid.New()
	repo := &stubRepo{plans: []models.Plan{
		{ID: uuid.New(), MentorID: mentorID, Type: enums.PlanTypePayPerSession, Status: enums.PlanStatusActive},
		{ID: uuid.New(), MentorID: mentorID, Type: enums.PlanTypePackage, Status: enums.PlanStatusActive},
		{ID: uuid.New(), MentorID: mentorID, Type: enums.PlanTypeSubscription, Status: enums.PlanStatusActive},
		{ID: uuid.New(), MentorID: mentorID, Type: enums.PlanTypePackage, Status: enums.PlanStatusInactive},
	}}
	svc := newTestService(t, repo)

	catalog, err := svc.ListActive(context.Background(), mentorID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(catalog.PayPerSession) != 1 || len(catalog.Packages) != 1 || len(catalog.Subscriptions) != 1 {
		t.Fatalf("unexpected grouping: %+v", catalog)
	}
}

func TestRetireRequiresOwnership(t *testing.T) {
	planID := uuid.New()
	repo := &stubRepo{plans: []models.Plan{
		{ID: planID, MentorID: uuid.New(), Type: enums.PlanTypePackage, Status: enums.PlanStatusActive},
	}}
	svc := newTestService(t, repo)

	_, err := svc.Retire(context.Background(), uuid.New(), planID)
	assertCode(t, err, pkgerrors.CodeForbidden)
}

func TestRetireSoftRetires(t *testing.T) {
	mentorID := uuid.New()
	planID := uuid.New()
	repo := &stubRepo{plans: []models.Plan{
		{ID: planID, MentorID: mentorID, Type: enums.PlanTypePackage, Status: enums.PlanStatusActive},
	}}
	svc := newTestService(t, repo)

	plan, err := svc.Retire(context.Background(), mentorID, planID)
	if err != nil {
		t.Fatalf("retire: %v", err)
	}
	if plan.Status != enums.PlanStatusInactive {
		t.Fatalf("expected inactive status, got %s", plan.Status)
	}
	if len(repo.updated) != 1 {
		t.Fatalf("expected one update")
	}

	// second retire is a no-op
	if _, err := svc.Retire(context.Background(), mentorID, planID); err != nil {
		t.Fatalf("retire twice: %v", err)
	}
	if len(repo.updated) != 1 {
		t.Fatalf("retire must be idempotent")
	}
}

func assertCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error with code %s", code)
	}
	appErr := pkgerrors.As(err)
	if appErr == nil {
		t.Fatalf("expected app error, got %v", err)
	}
	if appErr.Code() != code {
		t.Fatalf("expected code %s, got %s", code, appErr.Code())
	}
}
