package checkout

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/mentorloop/backend/internal/purchases"
	"github.com/mentorloop/backend/pkg/db/models"
	"github.com/mentorloop/backend/pkg/enums"
	pkgerrors "github.com/mentorloop/backend/pkg/errors"
	"github.com/mentorloop/backend/pkg/logger"
	"github.com/mentorloop/backend/pkg/stripe"
)

type planLoader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Plan, error)
}

type accountProvider interface {
	PayoutAccount(ctx context.Context, mentorID uuid.UUID) (*models.PayoutAccount, error)
	EnsureCustomer(ctx context.Context, menteeID uuid.UUID, email string) (string, error)
}

type purchaseCreator interface {
	CreatePending(ctx context.Context, input purchases.CreatePendingInput) (*models.Purchase, error)
}

type feeCalculator interface {
	FeeCents(amountCents int64) int64
}

// Service opens hosted checkout sessions. The pending purchase row is
// written before the redirect URL is returned, so a webhook can never
// arrive for a purchase this system does not know about.
type Service interface {
	Create(ctx context.Context, input CreateCheckoutInput) (*CheckoutResult, error)
}

// CreateCheckoutInput identifies who is buying what.
type CreateCheckoutInput struct {
	MenteeID    uuid.UUID
	MenteeEmail string
	PlanID      uuid.UUID
}

// CheckoutResult carries the redirect target and the purchase it opens.
type CheckoutResult struct {
	PurchaseID        uuid.UUID `json:"purchase_id"`
	CheckoutSessionID string    `json:"checkout_session_id"`
	URL               string    `json:"url"`
}

// ServiceParams groups dependencies for the checkout service.
type ServiceParams struct {
	Plans      planLoader
	Accounts   accountProvider
	Purchases  purchaseCreator
	Fees       feeCalculator
	Gateway    stripe.Gateway
	FeePercent float64
	SuccessURL string
	CancelURL  string
	Logger     *logger.Logger
}

type service struct {
	plans      planLoader
	accounts   accountProvider
	purchases  purchaseCreator
	fees       feeCalculator
	gateway    stripe.Gateway
	feePercent float64
	successURL string
	cancelURL  string
	logg       *logger.Logger
}

// NewService builds a checkout service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Plans == nil {
		return nil, fmt.Errorf("plan loader required")
	}
	if params.Accounts == nil {
		return nil, fmt.Errorf("account provider required")
	}
	if params.Purchases == nil {
		return nil, fmt.Errorf("purchase service required")
	}
	if params.Fees == nil {
		return nil, fmt.Errorf("fee calculator required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("stripe gateway required")
	}
	if strings.TrimSpace(params.SuccessURL) == "" || strings.TrimSpace(params.CancelURL) == "" {
		return nil, fmt.Errorf("checkout redirect urls required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		plans:      params.Plans,
		accounts:   params.Accounts,
		purchases:  params.Purchases,
		fees:       params.Fees,
		gateway:    params.Gateway,
		feePercent: params.FeePercent,
		successURL: strings.TrimSpace(params.SuccessURL),
		cancelURL:  strings.TrimSpace(params.CancelURL),
		logg:       params.Logger,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateCheckoutInput) (*CheckoutResult, error) {
	if input.MenteeID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "mentee id is required")
	}
	if input.PlanID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "plan id is required")
	}

	plan, err := s.plans.FindByID(ctx, input.PlanID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load plan")
	}
	if plan == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "plan not found")
	}
	if plan.Status != enums.PlanStatusActive {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "plan is no longer offered")
	}
	if plan.StripePriceID == nil || *plan.StripePriceID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "plan is not synced with the payment processor")
	}

	// fail fast before touching Stripe: no payout destination, no checkout
	payout, err := s.accounts.PayoutAccount(ctx, plan.MentorID)
	if err != nil {
		return nil, err
	}
	if payout == nil || !payout.DetailsSubmitted {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "mentor has not completed payout onboarding")
	}

	customerID, err := s.accounts.EnsureCustomer(ctx, input.MenteeID, input.MenteeEmail)
	if err != nil {
		return nil, err
	}

	metadata, err := Metadata{
		MenteeID: input.MenteeID,
		MentorID: plan.MentorID,
		PlanType: plan.Type,
		PlanID:   plan.ID,
	}.Encode()
	if err != nil {
		return nil, err
	}

	mode := stripe.CheckoutModePayment
	if plan.Type.Recurring() {
		mode = stripe.CheckoutModeSubscription
	}
	feeCents := s.fees.FeeCents(plan.AmountCents)

	session, err := s.gateway.CreateCheckoutSession(ctx, stripe.CheckoutSessionParams{
		CustomerID:            customerID,
		PriceID:               *plan.StripePriceID,
		Mode:                  mode,
		MentorAccountID:       payout.StripeAccountID,
		ApplicationFeeCents:   feeCents,
		ApplicationFeePercent: s.feePercent,
		Metadata:              metadata,
		SuccessURL:            s.successURL,
		CancelURL:             s.cancelURL,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create checkout session")
	}

	ref, err := purchases.NewPlanRef(plan.Type, plan.ID)
	if err != nil {
		return nil, err
	}
	purchase, err := s.purchases.CreatePending(ctx, purchases.CreatePendingInput{
		MenteeID:            input.MenteeID,
		MentorID:            plan.MentorID,
		Plan:                ref,
		AmountCents:         plan.AmountCents,
		ApplicationFeeCents: feeCents,
		CheckoutSessionID:   session.ID,
		TotalSessions:       plan.TotalSessions,
	})
	if err != nil {
		return nil, err
	}

	ctx = s.logg.WithMenteeID(ctx, input.MenteeID.String())
	s.logg.Info(ctx, "checkout session opened")

	return &CheckoutResult{
		PurchaseID:        purchase.ID,
		CheckoutSessionID: session.ID,
		URL:               session.URL,
	}, nil
}
