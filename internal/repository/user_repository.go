package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jansampark/event-desk-api/internal/models"
)

const userColumns = `id, code, name, role, designation, last_visit, monthly_visit_count`

// UserRepository handles persistence for users.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository instantiates a user repository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByCode looks a user up by their unique 4-digit login code.
func (r *UserRepository) FindByCode(ctx context.Context, code string) (*models.User, error) {
	query := fmt.Sprintf("SELECT %s FROM users WHERE code = $1 LIMIT 1", userColumns)
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, code); err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByID loads a user by identifier.
func (r *UserRepository) FindByID(ctx context.Context, id int64) (*models.User, error) {
	query := fmt.Sprintf("SELECT %s FROM users WHERE id = $1 LIMIT 1", userColumns)
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		return nil, err
	}
	return &user, nil
}

// RecordVisit stamps the last visit and bumps the monthly counter. The
// counter is never reset by this system.
func (r *UserRepository) RecordVisit(ctx context.Context, id int64) error {
	const query = `UPDATE users SET last_visit = $1, monthly_visit_count = COALESCE(monthly_visit_count, 0) + 1 WHERE id = $2`
	if _, err := r.db.ExecContext(ctx, query, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("record user visit: %w", err)
	}
	return nil
}

// List returns users matching the provided filters, in natural storage order.
func (r *UserRepository) List(ctx context.Context, filter models.UserFilter) ([]models.User, error) {
	base := fmt.Sprintf("SELECT %s FROM users WHERE 1=1", userColumns)
	var conditions []string
	var args []interface{}

	if filter.Role != nil {
		conditions = append(conditions, fmt.Sprintf("role = $%d", len(args)+1))
		args = append(args, *filter.Role)
	}
	if filter.Designation != "" {
		conditions = append(conditions, fmt.Sprintf("designation = $%d", len(args)+1))
		args = append(args, filter.Designation)
	}
	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	users := []models.User{}
	if err := r.db.SelectContext(ctx, &users, base, args...); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}
