package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/mentorloop/backend/api/responses"
	"github.com/mentorloop/backend/api/validators"
	checkoutsvc "github.com/mentorloop/backend/internal/checkout"
	pkgerrors "github.com/mentorloop/backend/pkg/errors"
	"github.com/mentorloop/backend/pkg/logger"
)

type createCheckoutRequest struct {
	MenteeID    uuid.UUID `json:"mentee_id" validate:"required,uuid4"`
	MenteeEmail string    `json:"mentee_email" validate:"required,email"`
	PlanID      uuid.UUID `json:"plan_id" validate:"required,uuid4"`
}

// Checkout opens a Stripe checkout session and records the pending purchase.
func Checkout(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		var payload createCheckoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Create(r.Context(), checkoutsvc.CreateCheckoutInput{
			MenteeID:    payload.MenteeID,
			MenteeEmail: payload.MenteeEmail,
			PlanID:      payload.PlanID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}
