package controllers

import (
	"net/http"
	"time"

	"github.com/mentorloop/backend/api/responses"
	"github.com/mentorloop/backend/api/validators"
	"github.com/mentorloop/backend/internal/paymentrecords"
	"github.com/mentorloop/backend/pkg/db/models"
	pkgerrors "github.com/mentorloop/backend/pkg/errors"
	"github.com/mentorloop/backend/pkg/logger"
	"github.com/mentorloop/backend/pkg/pagination"
)

type paymentListResponse struct {
	Records    []models.PaymentRecord `json:"records"`
	NextCursor string                 `json:"next_cursor,omitempty"`
}

// MentorPayments lists the mentor's ledger entries, newest first.
func MentorPayments(svc paymentrecords.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}

		mentorID, err := pathUUID(r, "mentorId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		records, next, err := svc.ListByMentor(r.Context(), mentorID, pagination.Params{
			Limit:  limit,
			Cursor: r.URL.Query().Get("cursor"),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp := paymentListResponse{Records: records}
		if next != nil {
			resp.NextCursor = pagination.EncodeCursor(*next)
		}
		responses.WriteSuccess(w, resp)
	}
}

// MentorPaymentTotals sums the mentor's ledger for one calendar month.
func MentorPaymentTotals(svc paymentrecords.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}

		mentorID, err := pathUUID(r, "mentorId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		month := time.Now().UTC()
		if raw := r.URL.Query().Get("month"); raw != "" {
			parsed, err := time.Parse("2006-01", raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w,
					pkgerrors.New(pkgerrors.CodeValidation, "month must be formatted YYYY-MM"))
				return
			}
			month = parsed
		}

		totals, err := svc.MonthlyTotals(r.Context(), mentorID, month)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, totals)
	}
}
