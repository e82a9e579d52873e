package model

import "time"

const (
	PlanFree       = "free"
	PlanPro        = "pro"
	PlanEnterprise = "enterprise"
)

// FreeMonthlySearchLimit is the number of searches a free-plan user may run
// per calendar month.
const FreeMonthlySearchLimit = 5

type User struct {
	ID                   int64      `json:"id"`
	Email                string     `json:"email"`
	PasswordHash         *string    `json:"-"`
	Name                 string     `json:"name"`
	Plan                 string     `json:"plan"`
	SearchCount          int        `json:"search_count"`
	LastResetDate        time.Time  `json:"last_reset_date"`
	TrialUsed            bool       `json:"trial_used"`
	TrialExpiresAt       *time.Time `json:"trial_expires_at"`
	StripeCustomerID     *string    `json:"stripe_customer_id"`
	StripeSubscriptionID *string    `json:"stripe_subscription_id"`
	SubscriptionStatus   *string    `json:"subscription_status"`
	Provider             *string    `json:"provider"`
	ProviderID           *string    `json:"-"`
	Active               bool       `json:"active"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}
