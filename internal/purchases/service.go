package purchases

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mentorloop/backend/internal/paymentrecords"
	"github.com/mentorloop/backend/pkg/db/models"
	"github.com/mentorloop/backend/pkg/enums"
	pkgerrors "github.com/mentorloop/backend/pkg/errors"
	"github.com/mentorloop/backend/pkg/logger"
	"github.com/mentorloop/backend/pkg/outbox"
	"github.com/mentorloop/backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type planLoader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Plan, error)
}

type subscriptionCanceler interface {
	CancelSubscription(ctx context.Context, id string) error
}

// Service owns the purchase lifecycle. Purchases are created exactly once,
// in pending, before the checkout redirect; every later transition is
// driven by a payment event and is safe to replay.
type Service interface {
	CreatePending(ctx context.Context, input CreatePendingInput) (*models.Purchase, error)
	FindByCheckoutSessionID(ctx context.Context, sessionID string) (*models.Purchase, error)
	ListByMentee(ctx context.Context, menteeID uuid.UUID) ([]models.Purchase, error)
	RequestCancellation(ctx context.Context, menteeID, purchaseID uuid.UUID) error

	HandleCheckoutCompleted(ctx context.Context, input CheckoutCompletedInput) error
	HandleCheckoutFailed(ctx context.Context, sessionID string) error
	HandlePaymentCanceled(ctx context.Context, sessionID, paymentIntentID string) error
	HandleInvoicePaid(ctx context.Context, input InvoicePaidInput) error
	HandleInvoiceFailed(ctx context.Context, subscriptionID string) error
	HandleSubscriptionUpdated(ctx context.Context, subscriptionID string, cancelAtPeriodEnd bool) error
	HandleSubscriptionDeleted(ctx context.Context, subscriptionID string) error
}

// CreatePendingInput captures a checkout about to be redirected.
type CreatePendingInput struct {
	MenteeID            uuid.UUID
	MentorID            uuid.UUID
	Plan                PlanRef
	AmountCents         int64
	ApplicationFeeCents int64
	CheckoutSessionID   string
	TotalSessions       int
}

// CheckoutCompletedInput captures the confirmation for a checkout session.
// MenteeID and MentorID come from the metadata stamped at session creation;
// when present they are cross-checked against the purchase row.
type CheckoutCompletedInput struct {
	CheckoutSessionID     string
	StripePaymentIntentID string
	StripeSubscriptionID  string
	MenteeID              uuid.UUID
	MentorID              uuid.UUID
	PeriodStart           *time.Time
	PeriodEnd             *time.Time
}

// InvoicePaidInput captures one paid subscription invoice.
type InvoicePaidInput struct {
	StripeSubscriptionID string
	StripeInvoiceID      string
	AmountCents          int64
	PeriodStart          time.Time
	PeriodEnd            time.Time
}

// ServiceParams groups dependencies for the purchase service.
type ServiceParams struct {
	Repo              Repository
	Ledger            paymentrecords.Service
	Plans             planLoader
	Gateway           subscriptionCanceler
	Publisher         outbox.Publisher
	TransactionRunner txRunner
	Logger            *logger.Logger
}

type service struct {
	repo      Repository
	ledger    paymentrecords.Service
	plans     planLoader
	gateway   subscriptionCanceler
	publisher outbox.Publisher
	txRunner  txRunner
	logg      *logger.Logger
}

// NewService builds a purchase service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("purchase repository required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("payment ledger required")
	}
	if params.Plans == nil {
		return nil, fmt.Errorf("plan loader required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("stripe gateway required")
	}
	if params.Publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.TransactionRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:      params.Repo,
		ledger:    params.Ledger,
		plans:     params.Plans,
		gateway:   params.Gateway,
		publisher: params.Publisher,
		txRunner:  params.TransactionRunner,
		logg:      params.Logger,
	}, nil
}

// CreatePending inserts the pending purchase row keyed by the checkout
// session id. A replayed insert for the same session is a conflict, never
// a second purchase.
func (s *service) CreatePending(ctx context.Context, input CreatePendingInput) (*models.Purchase, error) {
	if input.MenteeID == uuid.Nil || input.MentorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "mentee id and mentor id are required")
	}
	if input.Plan.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "plan reference is required")
	}
	if input.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount_cents must be positive")
	}
	sessionID := strings.TrimSpace(input.CheckoutSessionID)
	if sessionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "checkout session id is required")
	}

	purchase := &models.Purchase{
		MenteeID:            input.MenteeID,
		MentorID:            input.MentorID,
		AmountCents:         input.AmountCents,
		ApplicationFeeCents: input.ApplicationFeeCents,
		CheckoutSessionID:   sessionID,
		Status:              enums.PurchaseStatusPending,
	}
	input.Plan.Apply(purchase)

	if input.Plan.Type() != enums.PlanTypeSubscription && input.TotalSessions > 0 {
		remaining := input.TotalSessions
		purchase.RemainingSessions = &remaining
	}

	if err := s.repo.Create(ctx, purchase); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create pending purchase")
	}
	return purchase, nil
}

func (s *service) FindByCheckoutSessionID(ctx context.Context, sessionID string) (*models.Purchase, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "checkout session id is required")
	}
	purchase, err := s.repo.FindByCheckoutSessionID(ctx, sessionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "find purchase")
	}
	return purchase, nil
}

func (s *service) ListByMentee(ctx context.Context, menteeID uuid.UUID) ([]models.Purchase, error) {
	if menteeID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "mentee id is required")
	}
	list, err := s.repo.ListByMentee(ctx, menteeID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list purchases")
	}
	return list, nil
}

// RequestCancellation asks the processor to stop renewing at period end.
// Local state is not touched here: the customer.subscription.updated
// delivery applies it, so the webhook stays the single writer.
func (s *service) RequestCancellation(ctx context.Context, menteeID, purchaseID uuid.UUID) error {
	if menteeID == uuid.Nil || purchaseID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "mentee id and purchase id are required")
	}
	purchase, err := s.repo.FindByID(ctx, purchaseID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "find purchase")
	}
	if purchase == nil || purchase.MenteeID != menteeID {
		return pkgerrors.New(pkgerrors.CodeNotFound, "purchase not found")
	}
	if purchase.PlanType != enums.PlanTypeSubscription || purchase.StripeSubscriptionID == nil {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "purchase is not a subscription")
	}
	if purchase.Status != enums.PurchaseStatusPaid {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "subscription has no active billing")
	}
	if purchase.SubscriptionCancelled {
		return nil
	}

	if err := s.gateway.CancelSubscription(ctx, *purchase.StripeSubscriptionID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel subscription")
	}
	s.logg.Info(ctx, "subscription cancellation requested")
	return nil
}

// HandleCheckoutCompleted converges the pending purchase to paid. Webhooks
// never create purchases: an unknown session id is an error for the caller
// to surface, not an insert.
func (s *service) HandleCheckoutCompleted(ctx context.Context, input CheckoutCompletedInput) error {
	purchase, err := s.repo.FindByCheckoutSessionID(ctx, input.CheckoutSessionID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "find purchase")
	}
	if purchase == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "no purchase for checkout session")
	}
	if input.MenteeID != uuid.Nil && input.MenteeID != purchase.MenteeID {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "checkout metadata does not match purchase mentee")
	}
	if input.MentorID != uuid.Nil && input.MentorID != purchase.MentorID {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "checkout metadata does not match purchase mentor")
	}
	if purchase.Status != enums.PurchaseStatusPending {
		s.logg.Info(ctx, "checkout completion replayed, purchase already settled")
		return nil
	}

	params := MarkPaidParams{
		PeriodStart: input.PeriodStart,
		PeriodEnd:   input.PeriodEnd,
	}
	if pi := strings.TrimSpace(input.StripePaymentIntentID); pi != "" {
		params.StripePaymentIntentID = &pi
	}
	if purchase.PlanType == enums.PlanTypeSubscription {
		sub := strings.TrimSpace(input.StripeSubscriptionID)
		if sub == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "subscription checkout missing subscription id")
		}
		params.StripeSubscriptionID = &sub
		state := enums.SubscriptionStateActive
		params.PlanState = &state
		if purchase.SubscriptionPlanID != nil {
			if plan, perr := s.plans.FindByID(ctx, *purchase.SubscriptionPlanID); perr != nil {
				// the entitlement read side reconciles from bookings, so the
				// payment still lands; the counter stays unset until renewal
				s.logg.Error(ctx, "plan lookup failed, session quota left unset", perr)
			} else if plan != nil {
				quota := plan.TotalSessions
				params.RemainingSessions = &quota
			}
		}
	}

	return s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		affected, err := s.repo.WithTx(tx).MarkPaid(ctx, purchase.ID, params)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark purchase paid")
		}
		if affected == 0 {
			// another delivery won the race
			return nil
		}

		// subscription money is recorded from invoice events, which carry
		// the invoice id used for deduplication
		if purchase.PlanType != enums.PlanTypeSubscription {
			if _, err := s.ledger.Append(ctx, tx, paymentrecords.AppendInput{
				Purchase:    purchase,
				AmountCents: purchase.AmountCents,
			}); err != nil {
				return err
			}
		}

		return s.publisher.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPurchasePaid,
			AggregateType: enums.AggregatePurchase,
			AggregateID:   purchase.ID,
			Data: payloads.PurchasePaidEvent{
				PurchaseID:  purchase.ID,
				MenteeID:    purchase.MenteeID,
				MentorID:    purchase.MentorID,
				PlanType:    purchase.PlanType,
				PlanID:      purchase.PlanInstanceID(),
				AmountCents: purchase.AmountCents,
			},
		})
	})
}

// HandleCheckoutFailed fails a pending purchase whose checkout session
// expired or whose async payment was declined, keyed by the session id.
func (s *service) HandleCheckoutFailed(ctx context.Context, sessionID string) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil
	}
	purchase, err := s.repo.FindByCheckoutSessionID(ctx, sessionID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "find purchase by session")
	}
	if purchase == nil {
		return nil
	}
	if purchase.Status != enums.PurchaseStatusPending {
		// a completion delivery already won
		return nil
	}
	return s.failPending(ctx, purchase)
}

// HandlePaymentCanceled voids a pending purchase. The lookup tries the
// session id first and falls back to the payment intent recorded at
// completion time, since cancel events only carry the intent.
func (s *service) HandlePaymentCanceled(ctx context.Context, sessionID, paymentIntentID string) error {
	purchase, err := s.findBySessionOrIntent(ctx, sessionID, paymentIntentID)
	if err != nil {
		return err
	}
	if purchase == nil {
		// cancel for a checkout this system never initiated
		return nil
	}
	if purchase.Status != enums.PurchaseStatusPending {
		return nil
	}

	return s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		affected, err := s.repo.WithTx(tx).MarkCancelled(ctx, purchase.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark purchase cancelled")
		}
		if affected == 0 {
			return nil
		}
		return s.publisher.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPurchaseCancelled,
			AggregateType: enums.AggregatePurchase,
			AggregateID:   purchase.ID,
			Data: payloads.PurchaseCancelledEvent{
				PurchaseID: purchase.ID,
				MenteeID:   purchase.MenteeID,
				MentorID:   purchase.MentorID,
			},
		})
	})
}

func (s *service) findBySessionOrIntent(ctx context.Context, sessionID, paymentIntentID string) (*models.Purchase, error) {
	if sessionID = strings.TrimSpace(sessionID); sessionID != "" {
		purchase, err := s.repo.FindByCheckoutSessionID(ctx, sessionID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "find purchase by session")
		}
		if purchase != nil {
			return purchase, nil
		}
	}
	if paymentIntentID = strings.TrimSpace(paymentIntentID); paymentIntentID != "" {
		purchase, err := s.repo.FindByPaymentIntentID(ctx, paymentIntentID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "find purchase by payment intent")
		}
		return purchase, nil
	}
	return nil, nil
}

// HandleInvoicePaid records a subscription payment and refreshes the
// billing window. The invoice id makes replays and concurrent deliveries
// converge on a single ledger row.
func (s *service) HandleInvoicePaid(ctx context.Context, input InvoicePaidInput) error {
	subscriptionID := strings.TrimSpace(input.StripeSubscriptionID)
	if subscriptionID == "" {
		return nil
	}
	purchase, err := s.repo.FindByStripeSubscriptionID(ctx, subscriptionID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "find purchase by subscription")
	}
	if purchase == nil {
		// the initial invoice can arrive before checkout.session.completed
		// links the subscription id; that delivery retries later
		return pkgerrors.New(pkgerrors.CodeNotFound, "no purchase for subscription")
	}
	if purchase.Status != enums.PurchaseStatusPaid {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "purchase not yet paid")
	}

	var renewTo *int
	if purchase.SubscriptionPlanID != nil {
		if plan, perr := s.plans.FindByID(ctx, *purchase.SubscriptionPlanID); perr != nil {
			s.logg.Error(ctx, "plan lookup failed, session quota left unchanged", perr)
		} else if plan != nil {
			quota := plan.TotalSessions
			renewTo = &quota
		}
	}

	return s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		affected, err := s.repo.WithTx(tx).ApplyRenewal(ctx, purchase.ID, RenewalParams{
			PeriodStart:       input.PeriodStart,
			PeriodEnd:         input.PeriodEnd,
			RemainingSessions: renewTo,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "apply renewal")
		}
		if affected == 0 {
			return nil
		}

		invoiceID := strings.TrimSpace(input.StripeInvoiceID)
		var invoiceRef *string
		if invoiceID != "" {
			invoiceRef = &invoiceID
		}
		record, err := s.ledger.Append(ctx, tx, paymentrecords.AppendInput{
			Purchase:    purchase,
			AmountCents: input.AmountCents,
			InvoiceID:   invoiceRef,
		})
		if err != nil {
			return err
		}
		if record == nil {
			s.logg.Info(ctx, "duplicate invoice delivery, ledger row already written")
			return nil
		}

		eventType := enums.EventSubscriptionRenewed
		if purchase.PlanState != nil && *purchase.PlanState == enums.SubscriptionStateExpired {
			// a successful charge after a failed one restores the entitlement
			eventType = enums.EventSubscriptionReactivated
		}
		return s.publisher.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     eventType,
			AggregateType: enums.AggregatePurchase,
			AggregateID:   purchase.ID,
			Data: payloads.SubscriptionRenewedEvent{
				PurchaseID:  purchase.ID,
				MenteeID:    purchase.MenteeID,
				MentorID:    purchase.MentorID,
				PeriodStart: input.PeriodStart,
				PeriodEnd:   input.PeriodEnd,
				AmountCents: input.AmountCents,
			},
		})
	})
}

// HandleInvoiceFailed regresses a pending purchase to failed, or expires a
// live subscription whose renewal charge failed. A stale failure arriving
// after a successful payment never regresses paid state.
func (s *service) HandleInvoiceFailed(ctx context.Context, subscriptionID string) error {
	subscriptionID = strings.TrimSpace(subscriptionID)
	if subscriptionID == "" {
		return nil
	}
	purchase, err := s.repo.FindByStripeSubscriptionID(ctx, subscriptionID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "find purchase by subscription")
	}
	if purchase == nil {
		return nil
	}

	switch purchase.Status {
	case enums.PurchaseStatusPending:
		return s.failPending(ctx, purchase)

	case enums.PurchaseStatusPaid:
		return s.expire(ctx, purchase)

	default:
		return nil
	}
}

func (s *service) failPending(ctx context.Context, purchase *models.Purchase) error {
	return s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		affected, err := s.repo.WithTx(tx).MarkFailed(ctx, purchase.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark purchase failed")
		}
		if affected == 0 {
			return nil
		}
		return s.publisher.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPurchaseFailed,
			AggregateType: enums.AggregatePurchase,
			AggregateID:   purchase.ID,
			Data: payloads.PurchaseFailedEvent{
				PurchaseID: purchase.ID,
				MenteeID:   purchase.MenteeID,
				MentorID:   purchase.MentorID,
			},
		})
	})
}

func (s *service) expire(ctx context.Context, purchase *models.Purchase) error {
	return s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		affected, err := s.repo.WithTx(tx).ExpireSubscription(ctx, purchase.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "expire subscription")
		}
		if affected == 0 {
			return nil
		}
		if err := s.publisher.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventSubscriptionExpired,
			AggregateType: enums.AggregatePurchase,
			AggregateID:   purchase.ID,
			Data: payloads.SubscriptionExpiredEvent{
				PurchaseID: purchase.ID,
				MenteeID:   purchase.MenteeID,
				MentorID:   purchase.MentorID,
			},
		}); err != nil {
			return err
		}
		return s.publisher.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventEntitlementRevoked,
			AggregateType: enums.AggregatePurchase,
			AggregateID:   purchase.ID,
			Data: payloads.SubscriptionExpiredEvent{
				PurchaseID: purchase.ID,
				MenteeID:   purchase.MenteeID,
				MentorID:   purchase.MentorID,
			},
		})
	})
}

// HandleSubscriptionUpdated tracks cancel-at-period-end flips. Cancelling
// keeps the entitlement live until the window closes; flipping the flag
// back reactivates it.
func (s *service) HandleSubscriptionUpdated(ctx context.Context, subscriptionID string, cancelAtPeriodEnd bool) error {
	subscriptionID = strings.TrimSpace(subscriptionID)
	if subscriptionID == "" {
		return nil
	}
	purchase, err := s.repo.FindByStripeSubscriptionID(ctx, subscriptionID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "find purchase by subscription")
	}
	if purchase == nil {
		return nil
	}

	if cancelAtPeriodEnd {
		return s.cancelSubscription(ctx, purchase)
	}

	return s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		affected, err := s.repo.WithTx(tx).ReactivateSubscription(ctx, purchase.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reactivate subscription")
		}
		if affected == 0 {
			return nil
		}
		return s.publisher.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventSubscriptionReactivated,
			AggregateType: enums.AggregatePurchase,
			AggregateID:   purchase.ID,
			Data: payloads.SubscriptionReactivatedEvent{
				PurchaseID: purchase.ID,
				MenteeID:   purchase.MenteeID,
				MentorID:   purchase.MentorID,
			},
		})
	})
}

func (s *service) cancelSubscription(ctx context.Context, purchase *models.Purchase) error {
	return s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		affected, err := s.repo.WithTx(tx).MarkSubscriptionCancelled(ctx, purchase.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark subscription cancelled")
		}
		if affected == 0 {
			return nil
		}
		return s.publisher.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventSubscriptionCancelled,
			AggregateType: enums.AggregatePurchase,
			AggregateID:   purchase.ID,
			Data: payloads.SubscriptionCancelledEvent{
				PurchaseID: purchase.ID,
				MenteeID:   purchase.MenteeID,
				MentorID:   purchase.MentorID,
				PeriodEnd:  purchase.PeriodEnd,
			},
		})
	})
}

// HandleSubscriptionDeleted records the definitive cancellation. The paid
// window stays usable: is_active holds until period_end lapses, and the
// entitlement read side enforces the date. Expiry is reserved for failed
// renewal charges.
func (s *service) HandleSubscriptionDeleted(ctx context.Context, subscriptionID string) error {
	subscriptionID = strings.TrimSpace(subscriptionID)
	if subscriptionID == "" {
		return nil
	}
	purchase, err := s.repo.FindByStripeSubscriptionID(ctx, subscriptionID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "find purchase by subscription")
	}
	if purchase == nil {
		return nil
	}
	return s.cancelSubscription(ctx, purchase)
}
