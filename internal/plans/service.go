package plans

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/mentorloop/backend/pkg/db/models"
	"github.com/mentorloop/backend/pkg/enums"
	pkgerrors "github.com/mentorloop/backend/pkg/errors"
	"github.com/mentorloop/backend/pkg/stripe"
)

const (
	maxActiveSubscriptionPlans = 1
	maxActivePackages          = 3
)

// Service exposes mentor plan management operations.
type Service interface {
	Create(ctx context.Context, mentorID uuid.UUID, input CreatePlanInput) (*models.Plan, error)
	ListActive(ctx context.Context, mentorID uuid.UUID) (*PlanCatalog, error)
	Retire(ctx context.Context, mentorID, planID uuid.UUID) (*models.Plan, error)
}

// CreatePlanInput holds the validated payload to create a plan.
type CreatePlanInput struct {
	Type            enums.PlanType
	Title           string
	Description     *string
	Perks           []string
	AmountCents     int64
	Currency        string
	TotalSessions   int
	DurationMinutes int
}

// PlanCatalog groups a mentor's active plans by offering type.
type PlanCatalog struct {
	PayPerSession []models.Plan `json:"pay_per_session"`
	Packages      []models.Plan `json:"packages"`
	Subscriptions []models.Plan `json:"subscriptions"`
}

// ServiceParams groups dependencies for the plan service.
type ServiceParams struct {
	Repo            Repository
	Gateway         stripe.Gateway
	DefaultCurrency string
}

type service struct {
	repo     Repository
	gateway  stripe.Gateway
	currency string
}

// NewService builds a plan service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("plan repository required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("stripe gateway required")
	}
	currency := strings.TrimSpace(params.DefaultCurrency)
	if currency == "" {
		currency = "usd"
	}
	return &service{
		repo:     params.Repo,
		gateway:  params.Gateway,
		currency: currency,
	}, nil
}

// Create validates the offering, syncs it to Stripe, and persists it.
func (s *service) Create(ctx context.Context, mentorID uuid.UUID, input CreatePlanInput) (*models.Plan, error) {
	if mentorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "mentor id is required")
	}
	if !input.Type.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid plan type")
	}

	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "title is required")
	}
	if input.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount_cents must be positive")
	}

	totalSessions := input.TotalSessions
	switch input.Type {
	case enums.PlanTypePayPerSession:
		totalSessions = 1
	case enums.PlanTypePackage, enums.PlanTypeSubscription:
		if totalSessions <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "total_sessions must be positive")
		}
	}

	duration := input.DurationMinutes
	if duration <= 0 {
		duration = 60
	}

	if err := s.checkCaps(ctx, mentorID, input.Type); err != nil {
		return nil, err
	}

	exists, err := s.repo.ExistsActiveTitle(ctx, mentorID, input.Type, title)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check plan title")
	}
	if exists {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "an active plan with this title already exists")
	}

	currency := strings.ToLower(strings.TrimSpace(input.Currency))
	if currency == "" {
		currency = s.currency
	}

	productID, priceID, err := s.gateway.CreateProductAndPrice(ctx, title, input.AmountCents, currency, input.Type.Recurring())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sync plan with stripe")
	}

	plan := &models.Plan{
		MentorID:        mentorID,
		Type:            input.Type,
		Title:           title,
		Description:     input.Description,
		Perks:           input.Perks,
		AmountCents:     input.AmountCents,
		Currency:        currency,
		TotalSessions:   totalSessions,
		DurationMinutes: duration,
		StripeProductID: &productID,
		StripePriceID:   &priceID,
		Status:          enums.PlanStatusActive,
	}

	if err := s.repo.Create(ctx, plan); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create plan")
	}
	return plan, nil
}

func (s *service) checkCaps(ctx context.Context, mentorID uuid.UUID, planType enums.PlanType) error {
	var limit int64
	switch planType {
	case enums.PlanTypeSubscription:
		limit = maxActiveSubscriptionPlans
	case enums.PlanTypePackage:
		limit = maxActivePackages
	default:
		return nil
	}

	count, err := s.repo.CountActiveByType(ctx, mentorID, planType)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count active plans")
	}
	if count >= limit {
		return pkgerrors.New(pkgerrors.CodeConflict,
			fmt.Sprintf("active %s plan limit reached (%d)", planType, limit))
	}
	return nil
}

// ListActive returns the mentor's active plans grouped by type.
func (s *service) ListActive(ctx context.Context, mentorID uuid.UUID) (*PlanCatalog, error) {
	if mentorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "mentor id is required")
	}

	status := enums.PlanStatusActive
	list, err := s.repo.ListByMentor(ctx, mentorID, &status)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list plans")
	}

	catalog := &PlanCatalog{
		PayPerSession: []models.Plan{},
		Packages:      []models.Plan{},
		Subscriptions: []models.Plan{},
	}
	for _, plan := range list {
		switch plan.Type {
		case enums.PlanTypePayPerSession:
			catalog.PayPerSession = append(catalog.PayPerSession, plan)
		case enums.PlanTypePackage:
			catalog.Packages = append(catalog.Packages, plan)
		case enums.PlanTypeSubscription:
			catalog.Subscriptions = append(catalog.Subscriptions, plan)
		}
	}
	return catalog, nil
}

// Retire soft-retires a plan. Existing purchases keep their references,
// so plans are never deleted.
func (s *service) Retire(ctx context.Context, mentorID, planID uuid.UUID) (*models.Plan, error) {
	if mentorID == uuid.Nil || planID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "mentor id and plan id are required")
	}

	plan, err := s.repo.FindByID(ctx, planID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "find plan")
	}
	if plan == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "plan not found")
	}
	if plan.MentorID != mentorID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "plan belongs to another mentor")
	}
	if plan.Status == enums.PlanStatusInactive {
		return plan, nil
	}

	plan.Status = enums.PlanStatusInactive
	if err := s.repo.Update(ctx, plan); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "retire plan")
	}
	return plan, nil
}
