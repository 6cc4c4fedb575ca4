package stripe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/account"
	"github.com/stripe/stripe-go/v84/accountlink"
	checkoutsession "github.com/stripe/stripe-go/v84/checkout/session"
	"github.com/stripe/stripe-go/v84/customer"
	"github.com/stripe/stripe-go/v84/price"
	"github.com/stripe/stripe-go/v84/product"
	"github.com/stripe/stripe-go/v84/subscription"
)

// CheckoutMode selects one-off payment vs recurring billing.
type CheckoutMode string

const (
	CheckoutModePayment      CheckoutMode = "payment"
	CheckoutModeSubscription CheckoutMode = "subscription"
)

// CheckoutSessionParams carries everything needed to open a hosted
// checkout. Metadata values must already be primitive strings; the
// webhook handler recovers all business context from them.
type CheckoutSessionParams struct {
	CustomerID            string
	PriceID               string
	Mode                  CheckoutMode
	MentorAccountID       string
	ApplicationFeeCents   int64
	ApplicationFeePercent float64
	Metadata              map[string]string
	SuccessURL            string
	CancelURL             string
}

// CheckoutSession is the subset of the processor's session the core needs.
type CheckoutSession struct {
	ID  string
	URL string
}

// BillingPeriod is a subscription's current paid window.
type BillingPeriod struct {
	Start time.Time
	End   time.Time
}

// SubscriptionInfo summarizes processor-side subscription state.
type SubscriptionInfo struct {
	ID                string
	Status            string
	Period            BillingPeriod
	CancelAtPeriodEnd bool
}

// Gateway is the narrow processor capability surface the core depends on.
// The concrete processor stays swappable behind it.
type Gateway interface {
	CreateProductAndPrice(ctx context.Context, title string, amountCents int64, currency string, recurring bool) (productID, priceID string, err error)
	CreateCheckoutSession(ctx context.Context, params CheckoutSessionParams) (*CheckoutSession, error)
	GetSubscription(ctx context.Context, id string) (*SubscriptionInfo, error)
	CancelSubscription(ctx context.Context, id string) error
	CreateCustomer(ctx context.Context, email string, metadata map[string]string) (customerID string, err error)
	CreateConnectAccount(ctx context.Context) (accountID string, err error)
	CreateAccountLink(ctx context.Context, accountID, returnURL, refreshURL string) (url string, err error)
}

type gateway struct{}

// NewGateway wraps the initialized Stripe client in the Gateway interface.
func NewGateway(client *Client) (Gateway, error) {
	if client == nil {
		return nil, errors.New("stripe client is required")
	}
	return &gateway{}, nil
}

func (g *gateway) CreateProductAndPrice(ctx context.Context, title string, amountCents int64, currency string, recurring bool) (string, string, error) {
	prodParams := &stripe.ProductParams{
		Name: stripe.String(title),
	}
	prodParams.Context = ctx
	prod, err := product.New(prodParams)
	if err != nil {
		return "", "", fmt.Errorf("create product: %w", err)
	}

	priceParams := &stripe.PriceParams{
		Product:    stripe.String(prod.ID),
		UnitAmount: stripe.Int64(amountCents),
		Currency:   stripe.String(currency),
	}
	priceParams.Context = ctx
	if recurring {
		priceParams.Recurring = &stripe.PriceRecurringParams{
			Interval: stripe.String(string(stripe.PriceRecurringIntervalMonth)),
		}
	}
	pr, err := price.New(priceParams)
	if err != nil {
		return "", "", fmt.Errorf("create price: %w", err)
	}

	return prod.ID, pr.ID, nil
}

func (g *gateway) CreateCheckoutSession(ctx context.Context, params CheckoutSessionParams) (*CheckoutSession, error) {
	sessionParams := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(params.Mode)),
		Customer:   stripe.String(params.CustomerID),
		SuccessURL: stripe.String(params.SuccessURL),
		CancelURL:  stripe.String(params.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(params.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
	}
	sessionParams.Context = ctx
	for key, value := range params.Metadata {
		sessionParams.AddMetadata(key, value)
	}

	switch params.Mode {
	case CheckoutModePayment:
		sessionParams.PaymentIntentData = &stripe.CheckoutSessionPaymentIntentDataParams{
			ApplicationFeeAmount: stripe.Int64(params.ApplicationFeeCents),
			TransferData: &stripe.CheckoutSessionPaymentIntentDataTransferDataParams{
				Destination: stripe.String(params.MentorAccountID),
			},
		}
	case CheckoutModeSubscription:
		sessionParams.SubscriptionData = &stripe.CheckoutSessionSubscriptionDataParams{
			ApplicationFeePercent: stripe.Float64(params.ApplicationFeePercent),
			Metadata:              params.Metadata,
			TransferData: &stripe.CheckoutSessionSubscriptionDataTransferDataParams{
				Destination: stripe.String(params.MentorAccountID),
			},
		}
	default:
		return nil, fmt.Errorf("unsupported checkout mode %q", params.Mode)
	}

	sess, err := checkoutsession.New(sessionParams)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}

	return &CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

func (g *gateway) GetSubscription(ctx context.Context, id string) (*SubscriptionInfo, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	sub, err := subscription.Get(id, params)
	if err != nil {
		return nil, fmt.Errorf("fetch subscription: %w", err)
	}
	return subscriptionInfoFrom(sub), nil
}

// CancelSubscription flags the subscription to stop at period end. The
// already-paid window keeps billing-period access; Stripe confirms via
// a customer.subscription.updated delivery.
func (g *gateway) CancelSubscription(ctx context.Context, id string) error {
	params := &stripe.SubscriptionParams{
		CancelAtPeriodEnd: stripe.Bool(true),
	}
	params.Context = ctx
	if _, err := subscription.Update(id, params); err != nil {
		return fmt.Errorf("cancel subscription: %w", err)
	}
	return nil
}

func (g *gateway) CreateCustomer(ctx context.Context, email string, metadata map[string]string) (string, error) {
	params := &stripe.CustomerParams{
		Email: stripe.String(email),
	}
	params.Context = ctx
	for key, value := range metadata {
		params.AddMetadata(key, value)
	}
	cust, err := customer.New(params)
	if err != nil {
		return "", fmt.Errorf("create customer: %w", err)
	}
	return cust.ID, nil
}

func (g *gateway) CreateConnectAccount(ctx context.Context) (string, error) {
	params := &stripe.AccountParams{
		Type: stripe.String(string(stripe.AccountTypeExpress)),
	}
	params.Context = ctx
	acct, err := account.New(params)
	if err != nil {
		return "", fmt.Errorf("create connect account: %w", err)
	}
	return acct.ID, nil
}

func (g *gateway) CreateAccountLink(ctx context.Context, accountID, returnURL, refreshURL string) (string, error) {
	params := &stripe.AccountLinkParams{
		Account:    stripe.String(accountID),
		ReturnURL:  stripe.String(returnURL),
		RefreshURL: stripe.String(refreshURL),
		Type:       stripe.String("account_onboarding"),
	}
	params.Context = ctx
	link, err := accountlink.New(params)
	if err != nil {
		return "", fmt.Errorf("create account link: %w", err)
	}
	return link.URL, nil
}

func subscriptionInfoFrom(sub *stripe.Subscription) *SubscriptionInfo {
	info := &SubscriptionInfo{
		ID:                sub.ID,
		Status:            string(sub.Status),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		info.Period = BillingPeriod{
			Start: time.Unix(item.CurrentPeriodStart, 0).UTC(),
			End:   time.Unix(item.CurrentPeriodEnd, 0).UTC(),
		}
	}
	return info
}
