package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"irouter/internal/logger"
	"irouter/internal/repository/db"

	"github.com/sirupsen/logrus"
)

// GetUserByEmail retrieves a user's point document by email
func (p *PostgresDB) GetUserByEmail(ctx context.Context, email string) (*db.User, error) {
	var user db.User
	query := `
	SELECT id, email, available_points, points_used, COALESCE(current_plan, '')
	FROM users
	WHERE email = $1
	`

	err := p.conn.QueryRowContext(ctx, query, email).Scan(
		&user.ID, &user.Email, &user.AvailablePoints, &user.PointsUsed, &user.CurrentPlan,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, db.ErrNotFound
		}
		return nil, fmt.Errorf("error retrieving user: %w", err)
	}

	return &user, nil
}

// DebitUserPoints moves points from the available balance to the used counter in one statement
func (p *PostgresDB) DebitUserPoints(ctx context.Context, userID string, points float64) (*db.User, error) {
	var user db.User
	query := `
	UPDATE users
	SET available_points = available_points - $2,
	    points_used = points_used + $2
	WHERE id = $1
	RETURNING id, email, available_points, points_used, COALESCE(current_plan, '')
	`

	err := p.conn.QueryRowContext(ctx, query, userID, points).Scan(
		&user.ID, &user.Email, &user.AvailablePoints, &user.PointsUsed, &user.CurrentPlan,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, db.ErrNotFound
		}
		return nil, fmt.Errorf("error debiting user points: %w", err)
	}

	logger.Log.WithFields(logrus.Fields{"user_id": userID, "points": points}).Debug("Debited user points")
	return &user, nil
}
