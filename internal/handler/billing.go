package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	stripe "github.com/stripe/stripe-go/v82"

	"github.com/unbuiltapp/unbuilt/internal/auth"
	"github.com/unbuiltapp/unbuilt/internal/billing"
	"github.com/unbuiltapp/unbuilt/internal/entitlement"
	"github.com/unbuiltapp/unbuilt/internal/model"
	"github.com/unbuiltapp/unbuilt/internal/store"
)

type BillingHandler struct {
	stripeClient *billing.Client
	userStore    *store.UserStore
	entitlements *entitlement.Service
	logger       *slog.Logger
}

// NewBillingHandler accepts a nil stripeClient when billing is not
// configured; subscription endpoints then answer with an explicit error.
func NewBillingHandler(sc *billing.Client, us *store.UserStore, ent *entitlement.Service, logger *slog.Logger) *BillingHandler {
	return &BillingHandler{stripeClient: sc, userStore: us, entitlements: ent, logger: logger}
}

func (h *BillingHandler) ActivateTrial(w http.ResponseWriter, r *http.Request) {
	user, err := h.userStore.GetByID(auth.UserID(r.Context()))
	if err != nil || user == nil {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	updated, err := h.entitlements.ActivateTrial(user)
	switch {
	case errors.Is(err, entitlement.ErrAlreadyOnPaidPlan):
		writeError(w, http.StatusBadRequest, "already on a paid plan")
		return
	case errors.Is(err, entitlement.ErrTrialAlreadyUsed):
		writeError(w, http.StatusBadRequest, "trial has already been used")
		return
	case err != nil:
		h.logger.Error("activate trial", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":          true,
		"trial_expires_at": updated.TrialExpiresAt,
	})
}

func (h *BillingHandler) CreateSubscription(w http.ResponseWriter, r *http.Request) {
	if h.stripeClient == nil {
		writeError(w, http.StatusServiceUnavailable, "billing is not configured")
		return
	}

	var req struct {
		Plan string `json:"plan"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	priceID := h.stripeClient.PriceIDForPlan(req.Plan)
	if priceID == "" {
		writeError(w, http.StatusBadRequest, "plan must be pro or enterprise")
		return
	}

	user, err := h.userStore.GetByID(auth.UserID(r.Context()))
	if err != nil || user == nil {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	customerID := ""
	if user.StripeCustomerID != nil {
		customerID = *user.StripeCustomerID
	}
	if customerID == "" {
		customerID, err = h.stripeClient.CreateCustomer(user.Email)
		if err != nil {
			h.writeStripeError(w, err)
			return
		}
		if err := h.userStore.SetStripeCustomerID(user.ID, customerID); err != nil {
			h.logger.Error("save stripe customer", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
	}

	subscriptionID, clientSecret, err := h.stripeClient.CreateSubscription(customerID, priceID)
	if err != nil {
		h.writeStripeError(w, err)
		return
	}

	status := "incomplete"
	if err := h.entitlements.UpdatePlan(user.ID, req.Plan, &customerID, &subscriptionID, &status); err != nil {
		h.logger.Error("update plan", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"subscription_id": subscriptionID,
		"client_secret":   clientSecret,
	})
}

// Webhook applies Stripe subscription lifecycle events to the local plan
// state.
func (h *BillingHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	if h.stripeClient == nil {
		writeError(w, http.StatusServiceUnavailable, "billing is not configured")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 65536))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body")
		return
	}

	event, err := h.stripeClient.ConstructWebhookEvent(body, r.Header.Get("Stripe-Signature"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid signature")
		return
	}

	switch event.Type {
	case "invoice.paid":
		h.setStatusFromEvent(event, "active", nil)
	case "invoice.payment_failed":
		h.setStatusFromEvent(event, "past_due", nil)
	case "customer.subscription.updated":
		h.applySubscriptionUpdate(event)
	case "customer.subscription.deleted":
		free := model.PlanFree
		h.setStatusFromEvent(event, "canceled", &free)
	}

	w.WriteHeader(http.StatusOK)
}

func (h *BillingHandler) applySubscriptionUpdate(event stripe.Event) {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		h.logger.Error("webhook: unmarshal subscription", "error", err)
		return
	}
	if sub.Customer == nil {
		return
	}
	user, err := h.userStore.GetByStripeCustomerID(sub.Customer.ID)
	if err != nil || user == nil {
		return
	}
	status := string(sub.Status)
	if err := h.userStore.UpdatePlan(user.ID, user.Plan, user.StripeCustomerID, &sub.ID, &status); err != nil {
		h.logger.Error("webhook: update subscription", "error", err)
	}
}

func (h *BillingHandler) setStatusFromEvent(event stripe.Event, status string, plan *string) {
	var payload struct {
		Customer *stripe.Customer `json:"customer"`
	}
	if err := json.Unmarshal(event.Data.Raw, &payload); err != nil || payload.Customer == nil {
		h.logger.Error("webhook: missing customer", "type", event.Type)
		return
	}
	user, err := h.userStore.GetByStripeCustomerID(payload.Customer.ID)
	if err != nil || user == nil {
		return
	}
	newPlan := user.Plan
	if plan != nil {
		newPlan = *plan
	}
	if err := h.userStore.UpdatePlan(user.ID, newPlan, user.StripeCustomerID, user.StripeSubscriptionID, &status); err != nil {
		h.logger.Error("webhook: update plan", "error", err)
	}
}

// writeStripeError passes the provider message through on payment errors.
func (h *BillingHandler) writeStripeError(w http.ResponseWriter, err error) {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		writeError(w, http.StatusBadRequest, stripeErr.Msg)
		return
	}
	h.logger.Error("stripe request", "error", err)
	writeError(w, http.StatusInternalServerError, "billing provider error")
}
