package paymentrecords

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	pkgdb "github.com/mentorloop/backend/pkg/db"
	"github.com/mentorloop/backend/pkg/db/models"
	pkgerrors "github.com/mentorloop/backend/pkg/errors"
	"github.com/mentorloop/backend/pkg/pagination"
)

// Service is the append-only ledger surface. Rows are written only from
// confirmed purchase transitions, inside the caller's transaction.
type Service interface {
	Append(ctx context.Context, tx *gorm.DB, input AppendInput) (*models.PaymentRecord, error)
	ListByMentor(ctx context.Context, mentorID uuid.UUID, params pagination.Params) ([]models.PaymentRecord, *pagination.Cursor, error)
	MonthlyTotals(ctx context.Context, mentorID uuid.UUID, month time.Time) (*MentorTotals, error)
	FeeCents(amountCents int64) int64
}

// AppendInput describes one confirmed money movement.
type AppendInput struct {
	Purchase    *models.Purchase
	AmountCents int64
	// InvoiceID, when set, dedupes redelivered renewal events: a second
	// append with the same invoice id is a no-op.
	InvoiceID *string
}

// ServiceParams groups dependencies for the ledger service.
type ServiceParams struct {
	Repo       Repository
	FeePercent int64
	Currency   string
}

type service struct {
	repo       Repository
	feePercent decimal.Decimal
	currency   string
}

// NewService builds a ledger service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("payment record repository required")
	}
	if params.FeePercent < 0 || params.FeePercent > 100 {
		return nil, fmt.Errorf("fee percent out of range: %d", params.FeePercent)
	}
	currency := params.Currency
	if currency == "" {
		currency = "usd"
	}
	return &service{
		repo:       params.Repo,
		feePercent: decimal.NewFromInt(params.FeePercent),
		currency:   currency,
	}, nil
}

// FeeCents computes the platform cut, rounded down to whole cents.
func (s *service) FeeCents(amountCents int64) int64 {
	return decimal.NewFromInt(amountCents).
		Mul(s.feePercent).
		Div(decimal.NewFromInt(100)).
		Floor().
		IntPart()
}

func (s *service) Append(ctx context.Context, tx *gorm.DB, input AppendInput) (*models.PaymentRecord, error) {
	purchase := input.Purchase
	if purchase == nil || purchase.ID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "purchase is required")
	}
	if input.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount_cents must be positive")
	}

	repo := s.repo.WithTx(tx)

	if input.InvoiceID != nil && *input.InvoiceID != "" {
		exists, err := repo.ExistsByInvoiceID(ctx, *input.InvoiceID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check invoice dedup")
		}
		if exists {
			return nil, nil
		}
	}

	record := &models.PaymentRecord{
		PurchaseID:      purchase.ID,
		MenteeID:        purchase.MenteeID,
		MentorID:        purchase.MentorID,
		PlanType:        purchase.PlanType,
		PlanID:          purchase.PlanInstanceID(),
		AmountCents:     input.AmountCents,
		FeeCents:        s.FeeCents(input.AmountCents),
		Currency:        s.currency,
		StripeInvoiceID: input.InvoiceID,
	}

	if err := repo.Create(ctx, record); err != nil {
		// lost the race against a concurrent delivery of the same invoice
		if input.InvoiceID != nil && pkgdb.IsUniqueViolation(err, "uq_payment_records_stripe_invoice_id") {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "append payment record")
	}
	return record, nil
}

func (s *service) ListByMentor(ctx context.Context, mentorID uuid.UUID, params pagination.Params) ([]models.PaymentRecord, *pagination.Cursor, error) {
	if mentorID == uuid.Nil {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "mentor id is required")
	}
	records, next, err := s.repo.ListByMentor(ctx, mentorID, params)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list payment records")
	}
	return records, next, nil
}

func (s *service) MonthlyTotals(ctx context.Context, mentorID uuid.UUID, month time.Time) (*MentorTotals, error) {
	if mentorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "mentor id is required")
	}
	from := time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)
	totals, err := s.repo.MonthlyTotals(ctx, mentorID, from, to)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "monthly totals")
	}
	return totals, nil
}
