// Package entitlement decides whether a user may perform quota-gated actions
// and manages trial and plan transitions.
package entitlement

import (
	"errors"
	"fmt"
	"time"

	"github.com/unbuiltapp/unbuilt/internal/model"
	"github.com/unbuiltapp/unbuilt/internal/store"
)

var (
	ErrTrialAlreadyUsed  = errors.New("trial has already been used")
	ErrAlreadyOnPaidPlan = errors.New("already on a paid plan")
	ErrQuotaExceeded     = errors.New("monthly search limit reached")
)

// TrialDuration is how long a free trial promotes a user to pro.
const TrialDuration = 7 * 24 * time.Hour

type Service struct {
	users *store.UserStore
	now   func() time.Time
}

func NewService(users *store.UserStore) *Service {
	return &Service{users: users, now: time.Now}
}

// EffectivePlan derives the plan in force at the given instant. A trial that
// has lapsed counts as free even though the stored plan still reads pro, so
// expiry needs no background sweep.
func EffectivePlan(u *model.User, now time.Time) string {
	if u.Plan == model.PlanPro &&
		u.SubscriptionStatus != nil && *u.SubscriptionStatus == "trialing" &&
		u.TrialExpiresAt != nil && !now.Before(*u.TrialExpiresAt) {
		return model.PlanFree
	}
	return u.Plan
}

// CanSearch reports whether the user may run another search. Paid plans are
// unlimited. Free users get model.FreeMonthlySearchLimit per calendar month;
// crossing into a new month resets the counter as a side effect.
func (s *Service) CanSearch(u *model.User) (bool, error) {
	now := s.now().UTC()
	switch EffectivePlan(u, now) {
	case model.PlanPro, model.PlanEnterprise:
		return true, nil
	}

	if !sameMonth(u.LastResetDate, now) {
		if err := s.users.ResetSearchCount(u.ID, now); err != nil {
			return false, fmt.Errorf("reset search count: %w", err)
		}
		u.SearchCount = 0
		u.LastResetDate = now
		return true, nil
	}

	return u.SearchCount < model.FreeMonthlySearchLimit, nil
}

// RecordSearch bumps the usage counter after a successful search. Callers
// must gate with CanSearch first; there is no upper clamp here.
func (s *Service) RecordSearch(u *model.User) error {
	return s.users.IncrementSearchCount(u.ID)
}

// ActivateTrial promotes a free user to a 7-day pro trial. A trial can be
// consumed at most once per user.
func (s *Service) ActivateTrial(u *model.User) (*model.User, error) {
	now := s.now().UTC()
	switch EffectivePlan(u, now) {
	case model.PlanPro, model.PlanEnterprise:
		return nil, ErrAlreadyOnPaidPlan
	}
	if u.TrialUsed {
		return nil, ErrTrialAlreadyUsed
	}

	expiresAt := now.Add(TrialDuration)
	if err := s.users.ActivateTrial(u.ID, expiresAt); err != nil {
		return nil, err
	}
	return s.users.GetByID(u.ID)
}

// UpdatePlan writes the plan together with its billing identifiers after a
// successful subscription change.
func (s *Service) UpdatePlan(userID int64, plan string, customerID, subscriptionID, status *string) error {
	return s.users.UpdatePlan(userID, plan, customerID, subscriptionID, status)
}

func sameMonth(a, b time.Time) bool {
	a, b = a.UTC(), b.UTC()
	return a.Year() == b.Year() && a.Month() == b.Month()
}
