// Package billing wraps the Stripe API for subscription management.
package billing

import (
	"fmt"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/customer"
	"github.com/stripe/stripe-go/v82/subscription"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/unbuiltapp/unbuilt/internal/model"
)

type Config struct {
	SecretKey         string
	WebhookSecret     string
	ProPriceID        string
	EnterprisePriceID string
}

type Client struct {
	cfg Config
}

func NewClient(cfg Config) *Client {
	stripe.Key = cfg.SecretKey
	return &Client{cfg: cfg}
}

// CreateCustomer creates a Stripe customer and returns the customer ID.
func (c *Client) CreateCustomer(email string) (string, error) {
	params := &stripe.CustomerParams{
		Email: stripe.String(email),
	}
	cust, err := customer.New(params)
	if err != nil {
		return "", fmt.Errorf("create stripe customer: %w", err)
	}
	return cust.ID, nil
}

// CreateSubscription starts an incomplete subscription and returns its ID
// plus the client secret the frontend confirms payment with.
func (c *Client) CreateSubscription(customerID, priceID string) (subscriptionID, clientSecret string, err error) {
	params := &stripe.SubscriptionParams{
		Customer: stripe.String(customerID),
		Items: []*stripe.SubscriptionItemsParams{
			{Price: stripe.String(priceID)},
		},
		PaymentBehavior: stripe.String("default_incomplete"),
		PaymentSettings: &stripe.SubscriptionPaymentSettingsParams{
			SaveDefaultPaymentMethod: stripe.String("on_subscription"),
		},
	}
	params.AddExpand("latest_invoice.confirmation_secret")

	sub, err := subscription.New(params)
	if err != nil {
		return "", "", fmt.Errorf("create subscription: %w", err)
	}
	return sub.ID, invoiceClientSecret(sub.LatestInvoice), nil
}

// invoiceClientSecret pulls the confirmation client secret off an expanded
// invoice, tolerating unexpanded or secret-less invoices.
func invoiceClientSecret(inv *stripe.Invoice) string {
	if inv == nil || inv.ConfirmationSecret == nil {
		return ""
	}
	return inv.ConfirmationSecret.ClientSecret
}

// PriceIDForPlan returns the Stripe price ID for the given plan, or empty for
// an unknown plan.
func (c *Client) PriceIDForPlan(plan string) string {
	switch plan {
	case model.PlanPro:
		return c.cfg.ProPriceID
	case model.PlanEnterprise:
		return c.cfg.EnterprisePriceID
	}
	return ""
}

// ConstructWebhookEvent verifies the signature and returns the parsed event.
func (c *Client) ConstructWebhookEvent(payload []byte, sigHeader string) (stripe.Event, error) {
	return webhook.ConstructEvent(payload, sigHeader, c.cfg.WebhookSecret)
}
