package controllers

import (
	"net/http"

	"github.com/mentorloop/backend/api/responses"
	"github.com/mentorloop/backend/internal/accounts"
	pkgerrors "github.com/mentorloop/backend/pkg/errors"
	"github.com/mentorloop/backend/pkg/logger"
)

// StartOnboarding opens a Stripe Connect onboarding link for the mentor.
func StartOnboarding(svc accounts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "accounts service unavailable"))
			return
		}

		mentorID, err := pathUUID(r, "mentorId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		link, err := svc.StartOnboarding(r.Context(), mentorID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, link)
	}
}

// PayoutAccountStatus reports whether the mentor can receive payouts yet.
func PayoutAccountStatus(svc accounts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "accounts service unavailable"))
			return
		}

		mentorID, err := pathUUID(r, "mentorId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		account, err := svc.PayoutAccount(r.Context(), mentorID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if account == nil {
			responses.WriteSuccess(w, map[string]any{"onboarded": false})
			return
		}

		responses.WriteSuccess(w, map[string]any{
			"onboarded":         account.DetailsSubmitted,
			"stripe_account_id": account.StripeAccountID,
		})
	}
}
