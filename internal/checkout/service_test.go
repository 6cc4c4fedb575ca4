package checkout

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/mentorloop/backend/internal/purchases"
	"github.com/mentorloop/backend/pkg/db/models"
	"github.com/mentorloop/backend/pkg/enums"
	pkgerrors "github.com/mentorloop/backend/pkg/errors"
	"github.com/mentorloop/backend/pkg/logger"
	"github.com/mentorloop/backend/pkg/stripe"
)

type stubPlanLoader struct {
	plans map[uuid.UUID]*models.Plan
}

func (s *stubPlanLoader) FindByID(_ context.Context, id uuid.UUID) (*models.Plan, error) {
	return s.plans[id], nil
}

type stubAccounts struct {
	payout   *models.PayoutAccount
	customer string
}

func (s *stubAccounts) PayoutAccount(_ context.Context, _ uuid.UUID) (*models.PayoutAccount, error) {
	return s.payout, nil
}

func (s *stubAccounts) EnsureCustomer(_ context.Context, _ uuid.UUID, _ string) (string, error) {
	return s.customer, nil
}

type stubPurchases struct {
	created []purchases.CreatePendingInput
}

func (s *stubPurchases) CreatePending(_ context.Context, input purchases.CreatePendingInput) (*models.Purchase, error) {
	s.created = append(s.created, input)
	return &models.Purchase{ID: uuid.New(), CheckoutSessionID: input.CheckoutSessionID}, nil
}

type stubFees struct{}

func (stubFees) FeeCents(amountCents int64) int64 { return amountCents / 10 }

type stubGateway struct {
	stripe.Gateway
	lastParams stripe.CheckoutSessionParams
	calls      int
}

func (s *stubGateway) CreateCheckoutSession(_ context.Context, params stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	s.calls++
	s.lastParams = params
	return &stripe.CheckoutSession{ID: "cs_test", URL: "https://checkout.stripe.com/pay/cs_test"}, nil
}

type fixture struct {
	svc       Service
	plans     *stubPlanLoader
	accounts  *stubAccounts
	purchases *stubPurchases
	gateway   *stubGateway
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		plans:     &stubPlanLoader{plans: map[uuid.UUID]*models.Plan{}},
		accounts:  &stubAccounts{customer: "cus_1"},
		purchases: &stubPurchases{},
		gateway:   &stubGateway{},
	}
	svc, err := NewService(ServiceParams{
		Plans:      f.plans,
		Accounts:   f.accounts,
		Purchases:  f.purchases,
		Fees:       stubFees{},
		Gateway:    f.gateway,
		FeePercent: 10,
		SuccessURL: "https://app.mentorloop.dev/checkout/success",
		CancelURL:  "https://app.mentorloop.dev/checkout/cancel",
		Logger:     logger.New(logger.Options{ServiceName: "test"}),
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	f.svc = svc
	return f
}

func (f *fixture) addPlan(planType enums.PlanType, status enums.PlanStatus) *models.Plan {
	priceID := "price_1"
	plan := &models.Plan{
		ID:            uuid.New(),
		MentorID:      uuid.New(),
		Type:          planType,
		Title:         "Test Plan",
		AmountCents:   20000,
		TotalSessions: 5,
		StripePriceID: &priceID,
		Status:        status,
	}
	f.plans.plans[plan.ID] = plan
	return plan
}

func (f *fixture) onboardedMentor() {
	f.accounts.payout = &models.PayoutAccount{
		ID:               uuid.New(),
		StripeAccountID:  "acct_1",
		DetailsSubmitted: true,
	}
}

func TestCreateOpensSessionAndPendingPurchase(t *testing.T) {
	f := newFixture(t)
	plan := f.addPlan(enums.PlanTypePackage, enums.PlanStatusActive)
	f.onboardedMentor()
	menteeID := uuid.New()

	result, err := f.svc.Create(context.Background(), CreateCheckoutInput{
		MenteeID:    menteeID,
		MenteeEmail: "mentee@example.com",
		PlanID:      plan.ID,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if result.URL == "" || result.CheckoutSessionID != "cs_test" {
		t.Fatalf("unexpected result %+v", result)
	}

	if len(f.purchases.created) != 1 {
		t.Fatalf("expected pending purchase created before redirect")
	}
	created := f.purchases.created[0]
	if created.CheckoutSessionID != "cs_test" {
		t.Fatalf("purchase must be keyed by the session id")
	}
	if created.ApplicationFeeCents != 2000 {
		t.Fatalf("expected 10%% fee, got %d", created.ApplicationFeeCents)
	}

	params := f.gateway.lastParams
	if params.Mode != stripe.CheckoutModePayment {
		t.Fatalf("packages use one-time payment mode, got %s", params.Mode)
	}
	if params.Metadata[metaMenteeID] != menteeID.String() {
		t.Fatalf("metadata must carry mentee id")
	}
	if params.MentorAccountID != "acct_1" {
		t.Fatalf("expected funds routed to the mentor account")
	}
}

func TestCreateSubscriptionUsesSubscriptionMode(t *testing.T) {
	f := newFixture(t)
	plan := f.addPlan(enums.PlanTypeSubscription, enums.PlanStatusActive)
	f.onboardedMentor()

	_, err := f.svc.Create(context.Background(), CreateCheckoutInput{
		MenteeID:    uuid.New(),
		MenteeEmail: "mentee@example.com",
		PlanID:      plan.ID,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if f.gateway.lastParams.Mode != stripe.CheckoutModeSubscription {
		t.Fatalf("expected subscription mode")
	}
}

func TestCreateFailsFastWithoutPayoutAccount(t *testing.T) {
	f := newFixture(t)
	plan := f.addPlan(enums.PlanTypePackage, enums.PlanStatusActive)

	_, err := f.svc.Create(context.Background(), CreateCheckoutInput{
		MenteeID:    uuid.New(),
		MenteeEmail: "mentee@example.com",
		PlanID:      plan.ID,
	})
	appErr := pkgerrors.As(err)
	if appErr == nil || appErr.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}
	if f.gateway.calls != 0 {
		t.Fatalf("stripe must not be called without a payout destination")
	}
	if len(f.purchases.created) != 0 {
		t.Fatalf("no purchase row without a session")
	}
}

func TestCreateRejectsRetiredPlan(t *testing.T) {
	f := newFixture(t)
	plan := f.addPlan(enums.PlanTypePackage, enums.PlanStatusInactive)
	f.onboardedMentor()

	_, err := f.svc.Create(context.Background(), CreateCheckoutInput{
		MenteeID:    uuid.New(),
		MenteeEmail: "mentee@example.com",
		PlanID:      plan.ID,
	})
	appErr := pkgerrors.As(err)
	if appErr == nil || appErr.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestCreateUnknownPlan(t *testing.T) {
	f := newFixture(t)
	f.onboardedMentor()

	_, err := f.svc.Create(context.Background(), CreateCheckoutInput{
		MenteeID:    uuid.New(),
		MenteeEmail: "mentee@example.com",
		PlanID:      uuid.New(),
	})
	appErr := pkgerrors.As(err)
	if appErr == nil || appErr.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMetadataRoundTrip(t *testing.T) {
	meta := Metadata{
		MenteeID: uuid.New(),
		MentorID: uuid.New(),
		PlanType: enums.PlanTypeSubscription,
		PlanID:   uuid.New(),
	}
	encoded, err := meta.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	parsed, err := ParseMetadata(encoded)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if *parsed != meta {
		t.Fatalf("round trip mismatch: %+v != %+v", parsed, meta)
	}
}

func TestParseMetadataRejectsIncomplete(t *testing.T) {
	_, err := ParseMetadata(map[string]string{metaMenteeID: uuid.NewString()})
	if err == nil {
		t.Fatalf("expected validation error")
	}
}
