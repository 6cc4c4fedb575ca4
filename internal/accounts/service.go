package accounts

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	pkgdb "github.com/mentorloop/backend/pkg/db"
	"github.com/mentorloop/backend/pkg/db/models"
	pkgerrors "github.com/mentorloop/backend/pkg/errors"
	"github.com/mentorloop/backend/pkg/stripe"
)

// Service manages mentor payout accounts and mentee customer profiles.
type Service interface {
	// StartOnboarding creates (or reuses) the mentor's Connect account and
	// returns a fresh onboarding link.
	StartOnboarding(ctx context.Context, mentorID uuid.UUID) (*OnboardingLink, error)
	// MarkOnboarded flips the details_submitted flag once Stripe reports
	// the account is complete.
	MarkOnboarded(ctx context.Context, stripeAccountID string) error
	// PayoutAccount returns the mentor's payout account, nil when absent.
	PayoutAccount(ctx context.Context, mentorID uuid.UUID) (*models.PayoutAccount, error)
	// EnsureCustomer returns the mentee's Stripe customer id, creating the
	// customer and profile lazily on first use.
	EnsureCustomer(ctx context.Context, menteeID uuid.UUID, email string) (string, error)
}

// OnboardingLink is the redirect target for Connect onboarding.
type OnboardingLink struct {
	AccountID string `json:"account_id"`
	URL       string `json:"url"`
}

// ServiceParams groups dependencies for the accounts service.
type ServiceParams struct {
	Repo       Repository
	Gateway    stripe.Gateway
	ReturnURL  string
	RefreshURL string
}

type service struct {
	repo       Repository
	gateway    stripe.Gateway
	returnURL  string
	refreshURL string
}

// NewService builds an accounts service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("accounts repository required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("stripe gateway required")
	}
	if strings.TrimSpace(params.ReturnURL) == "" {
		return nil, fmt.Errorf("connect return url required")
	}
	if strings.TrimSpace(params.RefreshURL) == "" {
		return nil, fmt.Errorf("connect refresh url required")
	}
	return &service{
		repo:       params.Repo,
		gateway:    params.Gateway,
		returnURL:  strings.TrimSpace(params.ReturnURL),
		refreshURL: strings.TrimSpace(params.RefreshURL),
	}, nil
}

func (s *service) StartOnboarding(ctx context.Context, mentorID uuid.UUID) (*OnboardingLink, error) {
	if mentorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "mentor id is required")
	}

	account, err := s.repo.FindPayoutAccountByMentor(ctx, mentorID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "find payout account")
	}

	if account == nil {
		stripeAccountID, err := s.gateway.CreateConnectAccount(ctx)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create connect account")
		}
		account = &models.PayoutAccount{
			MentorID:        mentorID,
			StripeAccountID: stripeAccountID,
		}
		if err := s.repo.CreatePayoutAccount(ctx, account); err != nil {
			// concurrent onboarding start, reuse the winner's account
			if pkgdb.IsUniqueViolation(err, "uq_payout_accounts_mentor_id") {
				account, err = s.repo.FindPayoutAccountByMentor(ctx, mentorID)
				if err != nil || account == nil {
					return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload payout account")
				}
			} else {
				return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create payout account")
			}
		}
	}

	url, err := s.gateway.CreateAccountLink(ctx, account.StripeAccountID, s.returnURL, s.refreshURL)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create account link")
	}

	return &OnboardingLink{AccountID: account.StripeAccountID, URL: url}, nil
}

func (s *service) MarkOnboarded(ctx context.Context, stripeAccountID string) error {
	stripeAccountID = strings.TrimSpace(stripeAccountID)
	if stripeAccountID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe account id is required")
	}

	account, err := s.repo.FindPayoutAccountByStripeID(ctx, stripeAccountID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "find payout account")
	}
	if account == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "payout account not found")
	}
	if account.DetailsSubmitted {
		return nil
	}

	account.DetailsSubmitted = true
	if err := s.repo.UpdatePayoutAccount(ctx, account); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update payout account")
	}
	return nil
}

func (s *service) PayoutAccount(ctx context.Context, mentorID uuid.UUID) (*models.PayoutAccount, error) {
	if mentorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "mentor id is required")
	}
	account, err := s.repo.FindPayoutAccountByMentor(ctx, mentorID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "find payout account")
	}
	return account, nil
}

func (s *service) EnsureCustomer(ctx context.Context, menteeID uuid.UUID, email string) (string, error) {
	if menteeID == uuid.Nil {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "mentee id is required")
	}
	email = strings.TrimSpace(email)
	if email == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "email is required")
	}

	profile, err := s.repo.FindCustomerProfileByMentee(ctx, menteeID)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "find customer profile")
	}
	if profile != nil {
		return profile.StripeCustomerID, nil
	}

	customerID, err := s.gateway.CreateCustomer(ctx, email, map[string]string{
		"mentee_id": menteeID.String(),
	})
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create stripe customer")
	}

	profile = &models.CustomerProfile{
		MenteeID:         menteeID,
		StripeCustomerID: customerID,
		Email:            email,
	}
	if err := s.repo.CreateCustomerProfile(ctx, profile); err != nil {
		if pkgdb.IsUniqueViolation(err, "uq_customer_profiles_mentee_id") {
			existing, ferr := s.repo.FindCustomerProfileByMentee(ctx, menteeID)
			if ferr != nil || existing == nil {
				return "", pkgerrors.Wrap(pkgerrors.CodeInternal, ferr, "reload customer profile")
			}
			return existing.StripeCustomerID, nil
		}
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create customer profile")
	}
	return profile.StripeCustomerID, nil
}
