package stripewebhook

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/stripe/stripe-go/v84"

	"github.com/mentorloop/backend/internal/checkout"
	"github.com/mentorloop/backend/internal/purchases"
	pkgerrors "github.com/mentorloop/backend/pkg/errors"
	"github.com/mentorloop/backend/pkg/logger"
	"github.com/mentorloop/backend/pkg/metrics"
	pkgstripe "github.com/mentorloop/backend/pkg/stripe"
)

type purchaseEvents interface {
	HandleCheckoutCompleted(ctx context.Context, input purchases.CheckoutCompletedInput) error
	HandleCheckoutFailed(ctx context.Context, sessionID string) error
	HandlePaymentCanceled(ctx context.Context, sessionID, paymentIntentID string) error
	HandleInvoicePaid(ctx context.Context, input purchases.InvoicePaidInput) error
	HandleInvoiceFailed(ctx context.Context, subscriptionID string) error
	HandleSubscriptionUpdated(ctx context.Context, subscriptionID string, cancelAtPeriodEnd bool) error
	HandleSubscriptionDeleted(ctx context.Context, subscriptionID string) error
}

type accountEvents interface {
	MarkOnboarded(ctx context.Context, stripeAccountID string) error
}

type subscriptionFetcher interface {
	GetSubscription(ctx context.Context, id string) (*pkgstripe.SubscriptionInfo, error)
}

// ServiceParams groups dependencies for the webhook service.
type ServiceParams struct {
	Purchases purchaseEvents
	Accounts  accountEvents
	Gateway   subscriptionFetcher
	Guard     *IdempotencyGuard
	Metrics   *metrics.WebhookMetrics
	Logger    *logger.Logger
}

// Service turns verified Stripe events into purchase transitions. Events
// are acknowledged only when handling succeeds; failures clear the
// idempotency mark so the redelivery gets a clean attempt.
type Service struct {
	purchases purchaseEvents
	accounts  accountEvents
	gateway   subscriptionFetcher
	guard     *IdempotencyGuard
	metrics   *metrics.WebhookMetrics
	logg      *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Purchases == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "purchase service required")
	}
	if params.Accounts == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "accounts service required")
	}
	if params.Gateway == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "stripe gateway required")
	}
	if params.Guard == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "idempotency guard required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{
		purchases: params.Purchases,
		accounts:  params.Accounts,
		gateway:   params.Gateway,
		guard:     params.Guard,
		metrics:   params.Metrics,
		logg:      params.Logger,
	}, nil
}

// Process guards, dispatches, and meters one verified event.
func (s *Service) Process(ctx context.Context, event *stripe.Event) error {
	if event == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event required")
	}
	eventType := string(event.Type)
	ctx = s.logg.WithEventID(ctx, event.ID)

	duplicate, err := s.guard.CheckAndMark(ctx, event.ID)
	if err != nil {
		// redis being down must not drop payments; the conditional
		// updates underneath still make the replay safe
		s.logg.Warn(ctx, "idempotency guard unavailable, processing anyway")
	} else if duplicate {
		s.metrics.IncDuplicate(eventType)
		s.logg.Info(ctx, "duplicate webhook delivery skipped")
		return nil
	}

	start := time.Now()
	err = s.HandleEvent(ctx, event)
	s.metrics.ObserveDuration(eventType, time.Since(start))

	if err != nil {
		s.metrics.IncFailure(eventType)
		if delErr := s.guard.Delete(ctx, event.ID); delErr != nil {
			s.logg.Warn(ctx, "failed to clear idempotency mark")
		}
		return err
	}
	s.metrics.IncProcessed(eventType)
	return nil
}

// HandleEvent dispatches on the event type. Unrecognized events are
// acknowledged without action.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		return s.handleCheckoutCompleted(ctx, event)

	case stripe.EventTypeCheckoutSessionExpired, stripe.EventTypeCheckoutSessionAsyncPaymentFailed:
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode checkout session event")
		}
		return s.purchases.HandleCheckoutFailed(ctx, session.ID)

	case stripe.EventTypePaymentIntentCanceled:
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode payment intent event")
		}
		return s.purchases.HandlePaymentCanceled(ctx, "", intent.ID)

	case stripe.EventTypeInvoicePaymentSucceeded, stripe.EventTypeInvoicePaid:
		return s.handleInvoicePaid(ctx, event)

	case stripe.EventTypeInvoicePaymentFailed:
		subscriptionID := event.GetObjectValue("subscription")
		if subscriptionID == "" {
			return nil
		}
		return s.purchases.HandleInvoiceFailed(ctx, subscriptionID)

	case stripe.EventTypeCustomerSubscriptionUpdated:
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode subscription event")
		}
		return s.purchases.HandleSubscriptionUpdated(ctx, sub.ID, sub.CancelAtPeriodEnd)

	case stripe.EventTypeCustomerSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode subscription event")
		}
		return s.purchases.HandleSubscriptionDeleted(ctx, sub.ID)

	case stripe.EventTypeAccountUpdated:
		var account stripe.Account
		if err := json.Unmarshal(event.Data.Raw, &account); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode account event")
		}
		if !account.DetailsSubmitted {
			return nil
		}
		err := s.accounts.MarkOnboarded(ctx, account.ID)
		if appErr := pkgerrors.As(err); appErr != nil && appErr.Code() == pkgerrors.CodeNotFound {
			// account updates for platforms this backend never onboarded
			return nil
		}
		return err

	default:
		return nil
	}
}

func (s *Service) handleCheckoutCompleted(ctx context.Context, event *stripe.Event) error {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode checkout session event")
	}

	input := purchases.CheckoutCompletedInput{CheckoutSessionID: session.ID}
	if meta, err := checkout.ParseMetadata(session.Metadata); err != nil {
		// every session this system opens carries the identity block
		s.logg.Warn(ctx, "checkout session missing identity metadata")
	} else {
		input.MenteeID = meta.MenteeID
		input.MentorID = meta.MentorID
	}
	if session.PaymentIntent != nil {
		input.StripePaymentIntentID = session.PaymentIntent.ID
	}
	if session.Subscription != nil {
		input.StripeSubscriptionID = session.Subscription.ID
		info, err := s.gateway.GetSubscription(ctx, session.Subscription.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch subscription period")
		}
		if !info.Period.Start.IsZero() {
			start := info.Period.Start
			end := info.Period.End
			input.PeriodStart = &start
			input.PeriodEnd = &end
		}
	}
	return s.purchases.HandleCheckoutCompleted(ctx, input)
}

func (s *Service) handleInvoicePaid(ctx context.Context, event *stripe.Event) error {
	subscriptionID := event.GetObjectValue("subscription")
	if subscriptionID == "" {
		// one-off invoices are outside this billing model
		return nil
	}

	var invoice stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode invoice event")
	}

	amount := invoice.AmountPaid
	if amount == 0 {
		if parsed, err := strconv.ParseInt(event.GetObjectValue("amount_paid"), 10, 64); err == nil {
			amount = parsed
		}
	}

	info, err := s.gateway.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch subscription period")
	}

	return s.purchases.HandleInvoicePaid(ctx, purchases.InvoicePaidInput{
		StripeSubscriptionID: subscriptionID,
		StripeInvoiceID:      invoice.ID,
		AmountCents:          amount,
		PeriodStart:          info.Period.Start,
		PeriodEnd:            info.Period.End,
	})
}
