package checkout

import (
	"github.com/google/uuid"

	"github.com/mentorloop/backend/pkg/enums"
	pkgerrors "github.com/mentorloop/backend/pkg/errors"
)

const (
	metaMenteeID = "mentee_id"
	metaMentorID = "mentor_id"
	metaPlanType = "plan_type"
	metaPlanID   = "plan_id"
)

// Metadata is the identity block stamped onto every checkout session and
// subscription so webhook deliveries can be traced back to the purchase.
type Metadata struct {
	MenteeID uuid.UUID
	MentorID uuid.UUID
	PlanType enums.PlanType
	PlanID   uuid.UUID
}

// Encode serializes the block for the Stripe metadata map.
func (m Metadata) Encode() (map[string]string, error) {
	if m.MenteeID == uuid.Nil || m.MentorID == uuid.Nil || m.PlanID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "checkout metadata incomplete")
	}
	if !m.PlanType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "checkout metadata has invalid plan type")
	}
	return map[string]string{
		metaMenteeID: m.MenteeID.String(),
		metaMentorID: m.MentorID.String(),
		metaPlanType: m.PlanType.String(),
		metaPlanID:   m.PlanID.String(),
	}, nil
}

// ParseMetadata reads the identity block back out of a webhook payload.
func ParseMetadata(raw map[string]string) (*Metadata, error) {
	menteeID, err := uuid.Parse(raw[metaMenteeID])
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "metadata missing mentee_id")
	}
	mentorID, err := uuid.Parse(raw[metaMentorID])
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "metadata missing mentor_id")
	}
	planID, err := uuid.Parse(raw[metaPlanID])
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "metadata missing plan_id")
	}
	planType, err := enums.ParsePlanType(raw[metaPlanType])
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "metadata has invalid plan_type")
	}
	return &Metadata{
		MenteeID: menteeID,
		MentorID: mentorID,
		PlanType: planType,
		PlanID:   planID,
	}, nil
}
