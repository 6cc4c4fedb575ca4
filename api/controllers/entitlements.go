package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/mentorloop/backend/api/responses"
	"github.com/mentorloop/backend/api/validators"
	"github.com/mentorloop/backend/internal/entitlements"
	pkgerrors "github.com/mentorloop/backend/pkg/errors"
	"github.com/mentorloop/backend/pkg/logger"
)

type entitlementResponse struct {
	Entitled    bool                      `json:"entitled"`
	Entitlement *entitlements.Entitlement `json:"entitlement,omitempty"`
}

// EntitlementCheck answers whether the mentee may book the mentor right now.
func EntitlementCheck(svc entitlements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "entitlement service unavailable"))
			return
		}

		menteeID, err := queryUUID(r, "mentee_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		mentorID, err := queryUUID(r, "mentor_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		entitlement, err := svc.HasActiveEntitlement(r.Context(), menteeID, mentorID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, entitlementResponse{
			Entitled:    entitlement != nil,
			Entitlement: entitlement,
		})
	}
}

type consumeSessionRequest struct {
	MenteeID uuid.UUID `json:"mentee_id" validate:"required,uuid4"`
	MentorID uuid.UUID `json:"mentor_id" validate:"required,uuid4"`
}

// ConsumeSession burns one session slot off the mentee's entitlement.
func ConsumeSession(svc entitlements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "entitlement service unavailable"))
			return
		}

		var payload consumeSessionRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		entitlement, err := svc.ConsumeSession(r.Context(), payload.MenteeID, payload.MentorID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, entitlement)
	}
}

func queryUUID(r *http.Request, key string) (uuid.UUID, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "query parameter is required").
			WithDetails(map[string]any{"field": key})
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "query parameter must be a uuid").
			WithDetails(map[string]any{"field": key})
	}
	return id, nil
}
