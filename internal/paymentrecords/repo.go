package paymentrecords

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mentorloop/backend/pkg/db/models"
	"github.com/mentorloop/backend/pkg/pagination"
)

// Repository handles the append-only payment ledger.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, record *models.PaymentRecord) error
	ExistsByInvoiceID(ctx context.Context, invoiceID string) (bool, error)
	ListByPurchase(ctx context.Context, purchaseID uuid.UUID) ([]models.PaymentRecord, error)
	ListByMentor(ctx context.Context, mentorID uuid.UUID, params pagination.Params) ([]models.PaymentRecord, *pagination.Cursor, error)
	MonthlyTotals(ctx context.Context, mentorID uuid.UUID, from, to time.Time) (*MentorTotals, error)
}

// MentorTotals aggregates ledger rows over a reporting window.
type MentorTotals struct {
	GrossCents int64 `json:"gross_cents"`
	FeeCents   int64 `json:"fee_cents"`
	NetCents   int64 `json:"net_cents"`
	Count      int64 `json:"count"`
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a payment ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, record *models.PaymentRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *repository) ExistsByInvoiceID(ctx context.Context, invoiceID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.PaymentRecord{}).
		Where("stripe_invoice_id = ?", invoiceID).
		Count(&count).Error
	return count > 0, err
}

func (r *repository) ListByPurchase(ctx context.Context, purchaseID uuid.UUID) ([]models.PaymentRecord, error) {
	var records []models.PaymentRecord
	if err := r.db.WithContext(ctx).
		Where("purchase_id = ?", purchaseID).
		Order("created_at ASC").
		Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func (r *repository) ListByMentor(ctx context.Context, mentorID uuid.UUID, params pagination.Params) ([]models.PaymentRecord, *pagination.Cursor, error) {
	limit := pagination.NormalizeLimit(params.Limit)

	query := r.db.WithContext(ctx).
		Where("mentor_id = ?", mentorID).
		Order("created_at DESC, id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit))

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, nil, err
	}
	if cursor != nil {
		query = query.Where(
			"(created_at < ?) OR (created_at = ? AND id < ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID,
		)
	}

	var records []models.PaymentRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, nil, err
	}

	var next *pagination.Cursor
	if len(records) > limit {
		records = records[:limit]
		last := records[len(records)-1]
		next = &pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}
	}
	return records, next, nil
}

func (r *repository) MonthlyTotals(ctx context.Context, mentorID uuid.UUID, from, to time.Time) (*MentorTotals, error) {
	var totals MentorTotals
	err := r.db.WithContext(ctx).
		Model(&models.PaymentRecord{}).
		Select("COALESCE(SUM(amount_cents), 0) AS gross_cents, COALESCE(SUM(fee_cents), 0) AS fee_cents, COUNT(*) AS count").
		Where("mentor_id = ? AND created_at >= ? AND created_at < ?", mentorID, from, to).
		Scan(&totals).Error
	if err != nil {
		return nil, err
	}
	totals.NetCents = totals.GrossCents - totals.FeeCents
	return &totals, nil
}
