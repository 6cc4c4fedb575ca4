package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mentorloop/backend/api/responses"
	"github.com/mentorloop/backend/api/validators"
	"github.com/mentorloop/backend/internal/plans"
	"github.com/mentorloop/backend/pkg/enums"
	pkgerrors "github.com/mentorloop/backend/pkg/errors"
	"github.com/mentorloop/backend/pkg/logger"
)

type createPlanRequest struct {
	Type            string   `json:"type" validate:"required,oneof=pay_per_session package subscription"`
	Title           string   `json:"title" validate:"required,min=3,max=120"`
	Description     *string  `json:"description,omitempty" validate:"omitempty,max=2000"`
	Perks           []string `json:"perks,omitempty" validate:"omitempty,max=10,dive,max=200"`
	AmountCents     int64    `json:"amount_cents" validate:"required,min=100"`
	Currency        string   `json:"currency,omitempty" validate:"omitempty,len=3"`
	TotalSessions   int      `json:"total_sessions,omitempty" validate:"omitempty,min=1,max=100"`
	DurationMinutes int      `json:"duration_minutes,omitempty" validate:"omitempty,min=15,max=240"`
}

// CreatePlan publishes a new offering for the mentor in the path.
func CreatePlan(svc plans.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "plan service unavailable"))
			return
		}

		mentorID, err := pathUUID(r, "mentorId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload createPlanRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		planType, err := enums.ParsePlanType(payload.Type)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid plan type"))
			return
		}

		plan, err := svc.Create(r.Context(), mentorID, plans.CreatePlanInput{
			Type:            planType,
			Title:           payload.Title,
			Description:     payload.Description,
			Perks:           payload.Perks,
			AmountCents:     payload.AmountCents,
			Currency:        payload.Currency,
			TotalSessions:   payload.TotalSessions,
			DurationMinutes: payload.DurationMinutes,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, plan)
	}
}

// ListPlans returns the mentor's active catalog grouped by offering type.
func ListPlans(svc plans.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "plan service unavailable"))
			return
		}

		mentorID, err := pathUUID(r, "mentorId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		catalog, err := svc.ListActive(r.Context(), mentorID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, catalog)
	}
}

// RetirePlan soft-retires a plan; existing purchases keep their entitlements.
func RetirePlan(svc plans.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "plan service unavailable"))
			return
		}

		mentorID, err := pathUUID(r, "mentorId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		planID, err := pathUUID(r, "planId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		plan, err := svc.Retire(r.Context(), mentorID, planID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, plan)
	}
}

func pathUUID(r *http.Request, key string) (uuid.UUID, error) {
	raw := chi.URLParam(r, key)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "path parameter must be a uuid").
			WithDetails(map[string]any{"field": key})
	}
	return id, nil
}
