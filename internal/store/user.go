package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/unbuiltapp/unbuilt/internal/model"
)

type UserStore struct {
	db *sql.DB
}

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

func scanUser(scanner interface{ Scan(...any) error }) (*model.User, error) {
	var u model.User
	err := scanner.Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.Plan,
		&u.SearchCount, &u.LastResetDate, &u.TrialUsed, &u.TrialExpiresAt,
		&u.StripeCustomerID, &u.StripeSubscriptionID, &u.SubscriptionStatus,
		&u.Provider, &u.ProviderID, &u.Active, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

const userCols = `id, email, password_hash, name, plan, search_count, last_reset_date,
	trial_used, trial_expires_at, stripe_customer_id, stripe_subscription_id,
	subscription_status, provider, provider_id, active, created_at, updated_at`

func (s *UserStore) Create(email string, passwordHash *string, name string) (*model.User, error) {
	result, err := s.db.Exec(
		`INSERT INTO users (email, password_hash, name) VALUES (?, ?, ?)`,
		email, passwordHash, name,
	)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

// CreateOAuth creates a user backed by an OAuth provider identity. The
// password hash stays NULL for these users.
func (s *UserStore) CreateOAuth(email, name, provider, providerID string) (*model.User, error) {
	result, err := s.db.Exec(
		`INSERT INTO users (email, name, provider, provider_id) VALUES (?, ?, ?, ?)`,
		email, name, provider, providerID,
	)
	if err != nil {
		return nil, fmt.Errorf("insert oauth user: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *UserStore) GetByID(id int64) (*model.User, error) {
	row := s.db.QueryRow(`SELECT `+userCols+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *UserStore) GetByEmail(email string) (*model.User, error) {
	row := s.db.QueryRow(`SELECT `+userCols+` FROM users WHERE email = ?`, email)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

func (s *UserStore) GetByProvider(provider, providerID string) (*model.User, error) {
	row := s.db.QueryRow(
		`SELECT `+userCols+` FROM users WHERE provider = ? AND provider_id = ?`,
		provider, providerID,
	)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by provider: %w", err)
	}
	return u, nil
}

func (s *UserStore) GetByStripeCustomerID(customerID string) (*model.User, error) {
	row := s.db.QueryRow(
		`SELECT `+userCols+` FROM users WHERE stripe_customer_id = ?`,
		customerID,
	)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by stripe customer: %w", err)
	}
	return u, nil
}

func (s *UserStore) UpdateProfile(id int64, email, name string) (*model.User, error) {
	_, err := s.db.Exec(
		`UPDATE users SET email = ?, name = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		email, name, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}
	return s.GetByID(id)
}

func (s *UserStore) UpdatePassword(id int64, passwordHash string) error {
	_, err := s.db.Exec(
		`UPDATE users SET password_hash = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		passwordHash, id,
	)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// IncrementSearchCount bumps the monthly usage counter in a single UPDATE so
// concurrent searches by the same user cannot undercount.
func (s *UserStore) IncrementSearchCount(id int64) error {
	_, err := s.db.Exec(
		`UPDATE users SET search_count = search_count + 1, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		id,
	)
	if err != nil {
		return fmt.Errorf("increment search count: %w", err)
	}
	return nil
}

func (s *UserStore) ResetSearchCount(id int64, now time.Time) error {
	_, err := s.db.Exec(
		`UPDATE users SET search_count = 0, last_reset_date = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		now.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("reset search count: %w", err)
	}
	return nil
}

// ActivateTrial marks the trial consumed and promotes the user to pro until
// expiresAt. trial_used never transitions back to 0.
func (s *UserStore) ActivateTrial(id int64, expiresAt time.Time) error {
	_, err := s.db.Exec(
		`UPDATE users SET plan = ?, trial_used = 1, trial_expires_at = ?,
			subscription_status = 'trialing', updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		model.PlanPro, expiresAt.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("activate trial: %w", err)
	}
	return nil
}

// UpdatePlan writes the plan and billing identifiers in one statement.
func (s *UserStore) UpdatePlan(id int64, plan string, customerID, subscriptionID, status *string) error {
	_, err := s.db.Exec(
		`UPDATE users SET plan = ?, stripe_customer_id = ?, stripe_subscription_id = ?,
			subscription_status = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		plan, customerID, subscriptionID, status, id,
	)
	if err != nil {
		return fmt.Errorf("update plan: %w", err)
	}
	return nil
}

func (s *UserStore) SetStripeCustomerID(id int64, customerID string) error {
	_, err := s.db.Exec(
		`UPDATE users SET stripe_customer_id = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		customerID, id,
	)
	if err != nil {
		return fmt.Errorf("set stripe customer id: %w", err)
	}
	return nil
}
