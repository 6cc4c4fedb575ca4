package accounts

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mentorloop/backend/pkg/db/models"
	pkgerrors "github.com/mentorloop/backend/pkg/errors"
	"github.com/mentorloop/backend/pkg/stripe"
)

type stubRepo struct {
	payoutAccounts []*models.PayoutAccount
	profiles       []*models.CustomerProfile
}

func (s *stubRepo) WithTx(tx *gorm.DB) Repository { return s }

func (s *stubRepo) CreatePayoutAccount(_ context.Context, account *models.PayoutAccount) error {
	account.ID = uuid.New()
	s.payoutAccounts = append(s.payoutAccounts, account)
	return nil
}

func (s *stubRepo) UpdatePayoutAccount(_ context.Context, account *models.PayoutAccount) error {
	return nil
}

func (s *stubRepo) FindPayoutAccountByMentor(_ context.Context, mentorID uuid.UUID) (*models.PayoutAccount, error) {
	for _, a := range s.payoutAccounts {
		if a.MentorID == mentorID {
			return a, nil
		}
	}
	return nil, nil
}

func (s *stubRepo) FindPayoutAccountByStripeID(_ context.Context, stripeAccountID string) (*models.PayoutAccount, error) {
	for _, a := range s.payoutAccounts {
		if a.StripeAccountID == stripeAccountID {
			return a, nil
		}
	}
	return nil, nil
}

func (s *stubRepo) CreateCustomerProfile(_ context.Context, profile *models.CustomerProfile) error {
	profile.ID = uuid.New()
	s.profiles = append(s.profiles, profile)
	return nil
}

func (s *stubRepo) FindCustomerProfileByMentee(_ context.Context, menteeID uuid.UUID) (*models.CustomerProfile, error) {
	for _, p := range s.profiles {
		if p.MenteeID == menteeID {
			return p, nil
		}
	}
	return nil, nil
}

type stubGateway struct {
	stripe.Gateway
	accountCalls  int
	linkCalls     int
	customerCalls int
}

func (s *stubGateway) CreateConnectAccount(_ context.Context) (string, error) {
	s.accountCalls++
	return "acct_123", nil
}

func (s *stubGateway) CreateAccountLink(_ context.Context, accountID, _, _ string) (string, error) {
	s.linkCalls++
	return "https://connect.stripe.com/setup/" + accountID, nil
}

func (s *stubGateway) CreateCustomer(_ context.Context, _ string, _ map[string]string) (string, error) {
	s.customerCalls++
	return "cus_123", nil
}

func newTestService(t *testing.T, repo Repository, gw stripe.Gateway) Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Repo:       repo,
		Gateway:    gw,
		ReturnURL:  "https://app.mentorloop.dev/connect/return",
		RefreshURL: "https://app.mentorloop.dev/connect/refresh",
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestStartOnboardingCreatesAccountOnce(t *testing.T) {
	repo := &stubRepo{}
	gw := &stubGateway{}
	svc := newTestService(t, repo, gw)
	mentorID := uuid.New()

	link, err := svc.StartOnboarding(context.Background(), mentorID)
	if err != nil {
		t.Fatalf("onboard: %v", err)
	}
	if link.AccountID != "acct_123" || link.URL == "" {
		t.Fatalf("unexpected link: %+v", link)
	}

	// second call reuses the stored account, only the link is fresh
	if _, err := svc.StartOnboarding(context.Background(), mentorID); err != nil {
		t.Fatalf("onboard twice: %v", err)
	}
	if gw.accountCalls != 1 {
		t.Fatalf("expected one connect account, got %d", gw.accountCalls)
	}
	if gw.linkCalls != 2 {
		t.Fatalf("expected two links, got %d", gw.linkCalls)
	}
}

func TestMarkOnboardedIsIdempotent(t *testing.T) {
	repo := &stubRepo{payoutAccounts: []*models.PayoutAccount{
		{ID: uuid.New(), MentorID: uuid.New(), StripeAccountID: "acct_9"},
	}}
	svc := newTestService(t, repo, &stubGateway{})

	if err := svc.MarkOnboarded(context.Background(), "acct_9"); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if !repo.payoutAccounts[0].DetailsSubmitted {
		t.Fatalf("expected details_submitted set")
	}
	if err := svc.MarkOnboarded(context.Background(), "acct_9"); err != nil {
		t.Fatalf("mark twice: %v", err)
	}
}

func TestMarkOnboardedUnknownAccount(t *testing.T) {
	svc := newTestService(t, &stubRepo{}, &stubGateway{})
	err := svc.MarkOnboarded(context.Background(), "acct_missing")
	appErr := pkgerrors.As(err)
	if appErr == nil || appErr.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestEnsureCustomerCreatesLazily(t *testing.T) {
	repo := &stubRepo{}
	gw := &stubGateway{}
	svc := newTestService(t, repo, gw)
	menteeID := uuid.New()

	id, err := svc.EnsureCustomer(context.Background(), menteeID, "mentee@example.com")
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if id != "cus_123" {
		t.Fatalf("unexpected customer id %s", id)
	}

	// second call hits the stored profile
	if _, err := svc.EnsureCustomer(context.Background(), menteeID, "mentee@example.com"); err != nil {
		t.Fatalf("ensure twice: %v", err)
	}
	if gw.customerCalls != 1 {
		t.Fatalf("expected one stripe customer, got %d", gw.customerCalls)
	}
}
