package stripewebhook

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/mentorloop/backend/internal/purchases"
	pkgerrors "github.com/mentorloop/backend/pkg/errors"
	"github.com/mentorloop/backend/pkg/logger"
	pkgstripe "github.com/mentorloop/backend/pkg/stripe"
)

type stubPurchases struct {
	checkoutInputs []purchases.CheckoutCompletedInput
	checkoutFailed []string
	canceled       [][2]string
	invoicesPaid   []purchases.InvoicePaidInput
	invoicesFailed []string
	updated        []struct {
		subID        string
		cancelAtEnd  bool
	}
	deleted []string
	err     error
}

func (s *stubPurchases) HandleCheckoutCompleted(_ context.Context, input purchases.CheckoutCompletedInput) error {
	s.checkoutInputs = append(s.checkoutInputs, input)
	return s.err
}

func (s *stubPurchases) HandleCheckoutFailed(_ context.Context, sessionID string) error {
	s.checkoutFailed = append(s.checkoutFailed, sessionID)
	return s.err
}

func (s *stubPurchases) HandlePaymentCanceled(_ context.Context, sessionID, paymentIntentID string) error {
	s.canceled = append(s.canceled, [2]string{sessionID, paymentIntentID})
	return s.err
}

func (s *stubPurchases) HandleInvoicePaid(_ context.Context, input purchases.InvoicePaidInput) error {
	s.invoicesPaid = append(s.invoicesPaid, input)
	return s.err
}

func (s *stubPurchases) HandleInvoiceFailed(_ context.Context, subscriptionID string) error {
	s.invoicesFailed = append(s.invoicesFailed, subscriptionID)
	return s.err
}

func (s *stubPurchases) HandleSubscriptionUpdated(_ context.Context, subscriptionID string, cancelAtPeriodEnd bool) error {
	s.updated = append(s.updated, struct {
		subID       string
		cancelAtEnd bool
	}{subscriptionID, cancelAtPeriodEnd})
	return s.err
}

func (s *stubPurchases) HandleSubscriptionDeleted(_ context.Context, subscriptionID string) error {
	s.deleted = append(s.deleted, subscriptionID)
	return s.err
}

type stubAccounts struct {
	onboarded []string
	err       error
}

func (s *stubAccounts) MarkOnboarded(_ context.Context, stripeAccountID string) error {
	s.onboarded = append(s.onboarded, stripeAccountID)
	return s.err
}

type stubGateway struct {
	info *pkgstripe.SubscriptionInfo
	err  error
}

func (s *stubGateway) GetSubscription(context.Context, string) (*pkgstripe.SubscriptionInfo, error) {
	return s.info, s.err
}

type stubStore struct {
	keys map[string]string
	fail bool
}

func newStubStore() *stubStore {
	return &stubStore{keys: map[string]string{}}
}

func (s *stubStore) Get(_ context.Context, key string) (string, error) {
	return s.keys[key], nil
}

func (s *stubStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if s.fail {
		return false, errors.New("redis down")
	}
	if _, ok := s.keys[key]; ok {
		return false, nil
	}
	s.keys[key] = "1"
	return true, nil
}

func (s *stubStore) IdempotencyKey(scope, id string) string {
	return "idem:" + scope + ":" + id
}

func (s *stubStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(s.keys, key)
	}
	return nil
}

type fixture struct {
	service   *Service
	purchases *stubPurchases
	accounts  *stubAccounts
	gateway   *stubGateway
	store     *stubStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := newStubStore()
	guard, err := NewIdempotencyGuard(store, time.Hour, "stripe")
	if err != nil {
		t.Fatalf("new guard: %v", err)
	}
	p := &stubPurchases{}
	a := &stubAccounts{}
	g := &stubGateway{info: &pkgstripe.SubscriptionInfo{
		ID: "sub_123",
		Period: pkgstripe.BillingPeriod{
			Start: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
			End:   time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		},
	}}
	service, err := NewService(ServiceParams{
		Purchases: p,
		Accounts:  a,
		Gateway:   g,
		Guard:     guard,
		Logger:    logger.New(logger.Options{ServiceName: "test"}),
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return &fixture{service: service, purchases: p, accounts: a, gateway: g, store: store}
}

func newEvent(t *testing.T, id string, eventType stripe.EventType, object map[string]any) *stripe.Event {
	t.Helper()
	raw, err := json.Marshal(object)
	if err != nil {
		t.Fatalf("marshal event object: %v", err)
	}
	return &stripe.Event{
		ID:   id,
		Type: eventType,
		Data: &stripe.EventData{
			Raw:    raw,
			Object: object,
		},
	}
}

func TestCheckoutCompletedDispatchesWithSubscriptionPeriod(t *testing.T) {
	f := newFixture(t)

	event := newEvent(t, "evt_1", stripe.EventTypeCheckoutSessionCompleted, map[string]any{
		"id":           "cs_123",
		"subscription": map[string]any{"id": "sub_123"},
	})
	if err := f.service.Process(context.Background(), event); err != nil {
		t.Fatalf("process: %v", err)
	}

	if len(f.purchases.checkoutInputs) != 1 {
		t.Fatalf("expected one checkout dispatch, got %d", len(f.purchases.checkoutInputs))
	}
	input := f.purchases.checkoutInputs[0]
	if input.CheckoutSessionID != "cs_123" {
		t.Fatalf("unexpected session id %q", input.CheckoutSessionID)
	}
	if input.StripeSubscriptionID != "sub_123" {
		t.Fatalf("unexpected subscription id %q", input.StripeSubscriptionID)
	}
	if input.PeriodStart == nil || input.PeriodEnd == nil {
		t.Fatal("expected billing period from the gateway")
	}
	if !input.PeriodEnd.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected period end %v", input.PeriodEnd)
	}
}

func TestCheckoutCompletedCarriesIdentityMetadata(t *testing.T) {
	f := newFixture(t)
	menteeID := uuid.New()
	mentorID := uuid.New()

	event := newEvent(t, "evt_meta", stripe.EventTypeCheckoutSessionCompleted, map[string]any{
		"id":             "cs_meta",
		"payment_intent": map[string]any{"id": "pi_meta"},
		"metadata": map[string]any{
			"mentee_id": menteeID.String(),
			"mentor_id": mentorID.String(),
			"plan_type": "package",
			"plan_id":   uuid.NewString(),
		},
	})
	if err := f.service.Process(context.Background(), event); err != nil {
		t.Fatalf("process: %v", err)
	}

	input := f.purchases.checkoutInputs[0]
	if input.MenteeID != menteeID || input.MentorID != mentorID {
		t.Fatalf("expected metadata identities on the dispatch, got %+v", input)
	}
}

func TestCheckoutExpiredDispatchesFailure(t *testing.T) {
	f := newFixture(t)

	event := newEvent(t, "evt_exp", stripe.EventTypeCheckoutSessionExpired, map[string]any{
		"id": "cs_expired",
	})
	if err := f.service.Process(context.Background(), event); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(f.purchases.checkoutFailed) != 1 || f.purchases.checkoutFailed[0] != "cs_expired" {
		t.Fatalf("unexpected failure dispatches %v", f.purchases.checkoutFailed)
	}
}

func TestCheckoutCompletedOneTimeSkipsGatewayLookup(t *testing.T) {
	f := newFixture(t)
	f.gateway.err = errors.New("should not be called")

	event := newEvent(t, "evt_1", stripe.EventTypeCheckoutSessionCompleted, map[string]any{
		"id":             "cs_456",
		"payment_intent": map[string]any{"id": "pi_456"},
	})
	if err := f.service.Process(context.Background(), event); err != nil {
		t.Fatalf("process: %v", err)
	}

	input := f.purchases.checkoutInputs[0]
	if input.StripePaymentIntentID != "pi_456" {
		t.Fatalf("unexpected intent id %q", input.StripePaymentIntentID)
	}
	if input.StripeSubscriptionID != "" || input.PeriodStart != nil {
		t.Fatal("one-time checkout must not carry subscription fields")
	}
}

func TestDuplicateDeliveryIsSkipped(t *testing.T) {
	f := newFixture(t)

	event := newEvent(t, "evt_dup", stripe.EventTypeCustomerSubscriptionDeleted, map[string]any{
		"id": "sub_123",
	})
	if err := f.service.Process(context.Background(), event); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if err := f.service.Process(context.Background(), event); err != nil {
		t.Fatalf("second delivery: %v", err)
	}

	if len(f.purchases.deleted) != 1 {
		t.Fatalf("expected one dispatch across duplicate deliveries, got %d", len(f.purchases.deleted))
	}
}

func TestHandlerFailureClearsIdempotencyMark(t *testing.T) {
	f := newFixture(t)
	f.purchases.err = pkgerrors.New(pkgerrors.CodeStateConflict, "purchase not yet paid")

	event := newEvent(t, "evt_retry", stripe.EventTypeCustomerSubscriptionDeleted, map[string]any{
		"id": "sub_123",
	})
	if err := f.service.Process(context.Background(), event); err == nil {
		t.Fatal("expected handler error")
	}

	f.purchases.err = nil
	if err := f.service.Process(context.Background(), event); err != nil {
		t.Fatalf("redelivery after failure: %v", err)
	}
	if len(f.purchases.deleted) != 2 {
		t.Fatalf("expected redelivery to reach the handler, got %d dispatches", len(f.purchases.deleted))
	}
}

func TestGuardOutageStillProcesses(t *testing.T) {
	f := newFixture(t)
	f.store.fail = true

	event := newEvent(t, "evt_outage", stripe.EventTypeCustomerSubscriptionDeleted, map[string]any{
		"id": "sub_123",
	})
	if err := f.service.Process(context.Background(), event); err != nil {
		t.Fatalf("process during guard outage: %v", err)
	}
	if len(f.purchases.deleted) != 1 {
		t.Fatal("expected dispatch despite guard outage")
	}
}

func TestInvoicePaidCarriesDedupKeyAndPeriod(t *testing.T) {
	f := newFixture(t)

	event := newEvent(t, "evt_inv", stripe.EventTypeInvoicePaymentSucceeded, map[string]any{
		"id":           "in_789",
		"subscription": "sub_123",
		"amount_paid":  5000,
	})
	if err := f.service.Process(context.Background(), event); err != nil {
		t.Fatalf("process: %v", err)
	}

	if len(f.purchases.invoicesPaid) != 1 {
		t.Fatalf("expected one invoice dispatch, got %d", len(f.purchases.invoicesPaid))
	}
	input := f.purchases.invoicesPaid[0]
	if input.StripeInvoiceID != "in_789" {
		t.Fatalf("unexpected invoice id %q", input.StripeInvoiceID)
	}
	if input.StripeSubscriptionID != "sub_123" {
		t.Fatalf("unexpected subscription id %q", input.StripeSubscriptionID)
	}
	if input.AmountCents != 5000 {
		t.Fatalf("unexpected amount %d", input.AmountCents)
	}
	if input.PeriodEnd.IsZero() {
		t.Fatal("expected billing period from the gateway")
	}
}

func TestInvoiceWithoutSubscriptionIsIgnored(t *testing.T) {
	f := newFixture(t)

	event := newEvent(t, "evt_oneoff", stripe.EventTypeInvoicePaymentSucceeded, map[string]any{
		"id":          "in_oneoff",
		"amount_paid": 5000,
	})
	if err := f.service.Process(context.Background(), event); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(f.purchases.invoicesPaid) != 0 {
		t.Fatal("one-off invoices must not reach the purchase service")
	}
}

func TestInvoiceFailedDispatches(t *testing.T) {
	f := newFixture(t)

	event := newEvent(t, "evt_fail", stripe.EventTypeInvoicePaymentFailed, map[string]any{
		"id":           "in_fail",
		"subscription": "sub_123",
	})
	if err := f.service.Process(context.Background(), event); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(f.purchases.invoicesFailed) != 1 || f.purchases.invoicesFailed[0] != "sub_123" {
		t.Fatalf("unexpected failed-invoice dispatches %v", f.purchases.invoicesFailed)
	}
}

func TestSubscriptionUpdatedCarriesCancelFlag(t *testing.T) {
	f := newFixture(t)

	event := newEvent(t, "evt_upd", stripe.EventTypeCustomerSubscriptionUpdated, map[string]any{
		"id":                   "sub_123",
		"cancel_at_period_end": true,
	})
	if err := f.service.Process(context.Background(), event); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(f.purchases.updated) != 1 {
		t.Fatalf("expected one update dispatch, got %d", len(f.purchases.updated))
	}
	if f.purchases.updated[0].subID != "sub_123" || !f.purchases.updated[0].cancelAtEnd {
		t.Fatalf("unexpected update dispatch %+v", f.purchases.updated[0])
	}
}

func TestPaymentIntentCanceledDispatchesByIntent(t *testing.T) {
	f := newFixture(t)

	event := newEvent(t, "evt_pi", stripe.EventTypePaymentIntentCanceled, map[string]any{
		"id": "pi_cancel",
	})
	if err := f.service.Process(context.Background(), event); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(f.purchases.canceled) != 1 || f.purchases.canceled[0][1] != "pi_cancel" {
		t.Fatalf("unexpected cancel dispatches %v", f.purchases.canceled)
	}
}

func TestAccountUpdatedMarksOnboarding(t *testing.T) {
	f := newFixture(t)

	event := newEvent(t, "evt_acct", stripe.EventTypeAccountUpdated, map[string]any{
		"id":                "acct_123",
		"details_submitted": true,
	})
	if err := f.service.Process(context.Background(), event); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(f.accounts.onboarded) != 1 || f.accounts.onboarded[0] != "acct_123" {
		t.Fatalf("unexpected onboarding dispatches %v", f.accounts.onboarded)
	}

	// incomplete onboarding updates are ignored
	pending := newEvent(t, "evt_acct_2", stripe.EventTypeAccountUpdated, map[string]any{
		"id": "acct_456",
	})
	if err := f.service.Process(context.Background(), pending); err != nil {
		t.Fatalf("process pending account: %v", err)
	}
	if len(f.accounts.onboarded) != 1 {
		t.Fatal("expected pending account update to be ignored")
	}
}

func TestUnknownEventTypeIsAcknowledged(t *testing.T) {
	f := newFixture(t)

	event := newEvent(t, "evt_unknown", "charge.refunded", map[string]any{"id": "ch_1"})
	if err := f.service.Process(context.Background(), event); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(f.purchases.checkoutInputs)+len(f.purchases.invoicesPaid)+len(f.purchases.deleted) != 0 {
		t.Fatal("unknown events must not reach domain handlers")
	}
}
