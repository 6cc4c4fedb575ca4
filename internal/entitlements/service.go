package entitlements

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mentorloop/backend/internal/purchases"
	"github.com/mentorloop/backend/internal/sessions"
	"github.com/mentorloop/backend/pkg/db/models"
	"github.com/mentorloop/backend/pkg/enums"
	pkgerrors "github.com/mentorloop/backend/pkg/errors"
)

type planLoader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Plan, error)
}

// Service answers the one question the rest of the product asks of
// billing: may this mentee book a session with this mentor right now?
// Any ambiguity fails closed.
type Service interface {
	HasActiveEntitlement(ctx context.Context, menteeID, mentorID uuid.UUID) (*Entitlement, error)
	// ConsumeSession burns one session off the winning entitlement. The
	// decrement is a single conditional update, so concurrent bookings
	// can never spend the same slot twice.
	ConsumeSession(ctx context.Context, menteeID, mentorID uuid.UUID) (*Entitlement, error)
}

// Entitlement describes why a mentee may book.
type Entitlement struct {
	PurchaseID        uuid.UUID      `json:"purchase_id"`
	PlanType          enums.PlanType `json:"plan_type"`
	RemainingSessions *int           `json:"remaining_sessions,omitempty"`
	PeriodEnd         *time.Time     `json:"period_end,omitempty"`
}

// ServiceParams groups dependencies for the entitlement service.
type ServiceParams struct {
	Purchases purchases.Repository
	Sessions  sessions.Repository
	Plans     planLoader
	Now       func() time.Time
}

type service struct {
	purchases purchases.Repository
	sessions  sessions.Repository
	plans     planLoader
	now       func() time.Time
}

// NewService builds an entitlement service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Purchases == nil {
		return nil, fmt.Errorf("purchase repository required")
	}
	if params.Sessions == nil {
		return nil, fmt.Errorf("session repository required")
	}
	if params.Plans == nil {
		return nil, fmt.Errorf("plan loader required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		purchases: params.Purchases,
		sessions:  params.Sessions,
		plans:     params.Plans,
		now:       now,
	}, nil
}

func (s *service) HasActiveEntitlement(ctx context.Context, menteeID, mentorID uuid.UUID) (*Entitlement, error) {
	if menteeID == uuid.Nil || mentorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "mentee id and mentor id are required")
	}

	candidates, err := s.purchases.ListActiveForPair(ctx, menteeID, mentorID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list active purchases")
	}

	for i := range candidates {
		entitlement, err := s.evaluate(ctx, &candidates[i])
		if err != nil {
			return nil, err
		}
		if entitlement != nil {
			return entitlement, nil
		}
	}
	return nil, nil
}

// evaluate returns the entitlement a purchase grants right now, or nil.
func (s *service) evaluate(ctx context.Context, purchase *models.Purchase) (*Entitlement, error) {
	if purchase.Status != enums.PurchaseStatusPaid || !purchase.IsActive {
		return nil, nil
	}

	if purchase.PlanType == enums.PlanTypeSubscription {
		if purchase.PlanState == nil || *purchase.PlanState == enums.SubscriptionStateExpired {
			return nil, nil
		}
		now := s.now().UTC()
		if purchase.PeriodEnd != nil && now.After(*purchase.PeriodEnd) {
			// billing window lapsed and no renewal arrived
			return nil, nil
		}
	}

	remaining, err := s.remainingQuota(ctx, purchase)
	if err != nil {
		return nil, err
	}
	if remaining != nil && *remaining <= 0 {
		return nil, nil
	}

	return &Entitlement{
		PurchaseID:        purchase.ID,
		PlanType:          purchase.PlanType,
		RemainingSessions: remaining,
		PeriodEnd:         purchase.PeriodEnd,
	}, nil
}

// remainingQuota reconciles the purchase counter with the booking count.
// The two can drift when event deliveries and bookings race; the lesser
// value wins so a drifted counter can never oversell.
func (s *service) remainingQuota(ctx context.Context, purchase *models.Purchase) (*int, error) {
	var fromCounter *int
	if purchase.RemainingSessions != nil {
		v := *purchase.RemainingSessions
		fromCounter = &v
	}

	var fromBookings *int
	if plan, err := s.plans.FindByID(ctx, purchase.PlanInstanceID()); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load plan")
	} else if plan != nil {
		consumed, err := s.sessions.CountConsumed(ctx, purchase.ID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count consumed sessions")
		}
		v := plan.TotalSessions - int(consumed)
		fromBookings = &v
	}

	switch {
	case fromCounter == nil && fromBookings == nil:
		// no counter and no plan row to derive one from: fail closed
		zero := 0
		return &zero, nil
	case fromCounter == nil:
		return fromBookings, nil
	case fromBookings == nil:
		return fromCounter, nil
	case *fromBookings < *fromCounter:
		return fromBookings, nil
	default:
		return fromCounter, nil
	}
}

func (s *service) ConsumeSession(ctx context.Context, menteeID, mentorID uuid.UUID) (*Entitlement, error) {
	entitlement, err := s.HasActiveEntitlement(ctx, menteeID, mentorID)
	if err != nil {
		return nil, err
	}
	if entitlement == nil {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "no active entitlement")
	}

	affected, err := s.purchases.ConsumeSession(ctx, entitlement.PurchaseID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "consume session")
	}
	if affected == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeQuotaExceeded, "no sessions remaining")
	}

	if entitlement.RemainingSessions != nil {
		remaining := *entitlement.RemainingSessions - 1
		entitlement.RemainingSessions = &remaining
	}
	return entitlement, nil
}
