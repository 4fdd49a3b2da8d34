package points

import (
	"context"
	"errors"
	"fmt"
	"irouter/internal/logger"
	"irouter/internal/repository/db"

	"github.com/sirupsen/logrus"
)

// Service hands out per-request point accounts
type Service struct {
	db          db.Database
	defaultPlan string
}

// NewService creates the point service
func NewService(database db.Database, defaultPlan string) *Service {
	return &Service{db: database, defaultPlan: defaultPlan}
}

// Account is the point state of one user for the duration of one request
type Account struct {
	db          db.Database
	email       string
	user        *db.User
	defaultPlan string
}

// Initialize loads the user document for email. An unknown user yields an account
// without a document, which never passes the availability check.
func (s *Service) Initialize(ctx context.Context, email string) (*Account, error) {
	user, err := s.db.GetUserByEmail(ctx, email)
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("error loading user points: %w", err)
	}
	if user == nil {
		logger.Log.WithField("email", email).Warn("No point document for user")
	}
	return &Account{db: s.db, email: email, user: user, defaultPlan: s.defaultPlan}, nil
}

// User returns a copy of the user document, or nil when the user is unknown
func (a *Account) User() *db.User {
	if a.user == nil {
		return nil
	}
	u := *a.user
	return &u
}

// UserID returns the document id or ""
func (a *Account) UserID() string {
	if a.user == nil {
		return ""
	}
	return a.user.ID
}

// PlanID returns the user's current plan or the default plan
func (a *Account) PlanID() string {
	if a.user == nil || a.user.CurrentPlan == "" {
		return a.defaultPlan
	}
	return a.user.CurrentPlan
}

// AvailablePoints returns the current balance
func (a *Account) AvailablePoints() float64 {
	if a.user == nil {
		return 0
	}
	return a.user.AvailablePoints
}

// PointsUsed returns the lifetime spent counter
func (a *Account) PointsUsed() float64 {
	if a.user == nil {
		return 0
	}
	return a.user.PointsUsed
}

// CheckUserAvailableToChat reports whether the balance covers the estimated points
func (a *Account) CheckUserAvailableToChat(estimated float64, cfg db.AiConfig) bool {
	ok := a.user != nil && a.user.AvailablePoints >= estimated
	logger.Log.WithFields(logrus.Fields{
		"email":     a.email,
		"model":     cfg.ID,
		"estimated": estimated,
		"available": a.AvailablePoints(),
		"allowed":   ok,
	}).Debug("Checked point availability")
	return ok
}

// SaveUserPoints debits points from the user and refreshes the document
func (a *Account) SaveUserPoints(ctx context.Context, points float64) error {
	if a.user == nil {
		return fmt.Errorf("no point document for %s", a.email)
	}
	updated, err := a.db.DebitUserPoints(ctx, a.user.ID, points)
	if err != nil {
		return fmt.Errorf("error saving user points: %w", err)
	}
	a.user = updated
	return nil
}
