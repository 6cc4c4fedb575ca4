package purchases

import (
	"github.com/google/uuid"

	"github.com/mentorloop/backend/pkg/db/models"
	"github.com/mentorloop/backend/pkg/enums"
	pkgerrors "github.com/mentorloop/backend/pkg/errors"
)

// PlanRef identifies which plan a purchase buys. Exactly one reference
// column is populated per purchase, matching the plan type; constructing
// through this type keeps that invariant structural.
type PlanRef struct {
	planType enums.PlanType
	id       uuid.UUID
}

// NewPlanRef builds a reference for the given plan type.
func NewPlanRef(planType enums.PlanType, id uuid.UUID) (PlanRef, error) {
	if !planType.IsValid() {
		return PlanRef{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid plan type")
	}
	if id == uuid.Nil {
		return PlanRef{}, pkgerrors.New(pkgerrors.CodeValidation, "plan id is required")
	}
	return PlanRef{planType: planType, id: id}, nil
}

// Type returns the plan type the reference points at.
func (r PlanRef) Type() enums.PlanType {
	return r.planType
}

// ID returns the referenced plan id.
func (r PlanRef) ID() uuid.UUID {
	return r.id
}

// IsZero reports whether the reference was never constructed.
func (r PlanRef) IsZero() bool {
	return r.id == uuid.Nil
}

// Apply sets the matching reference column on the purchase row.
func (r PlanRef) Apply(purchase *models.Purchase) {
	id := r.id
	purchase.PlanType = r.planType
	switch r.planType {
	case enums.PlanTypePackage:
		purchase.PackageID = &id
	case enums.PlanTypeSubscription:
		purchase.SubscriptionPlanID = &id
	case enums.PlanTypePayPerSession:
		purchase.PayPerSessionID = &id
	}
}
