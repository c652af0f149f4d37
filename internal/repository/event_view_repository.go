package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jansampark/event-desk-api/internal/models"
)

// EventViewRepository persists per-user interaction flags for events. The
// (event, user) pair has no unique constraint in the schema; uniqueness is
// maintained by the find-then-insert-or-update flow below.
type EventViewRepository struct {
	db *sqlx.DB
}

// NewEventViewRepository instantiates an event view repository.
func NewEventViewRepository(db *sqlx.DB) *EventViewRepository {
	return &EventViewRepository{db: db}
}

// Find returns the view row for the pair, or nil when none exists.
func (r *EventViewRepository) Find(ctx context.Context, eventID, userID int64) (*models.EventView, error) {
	const query = `SELECT id, event_id, user_id, viewed, updated_details, accepted, updated_at FROM event_views WHERE event_id = $1 AND user_id = $2 LIMIT 1`
	var view models.EventView
	if err := r.db.GetContext(ctx, &view, query, eventID, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find event view: %w", err)
	}
	return &view, nil
}

// Insert creates a view row with the provided flags.
func (r *EventViewRepository) Insert(ctx context.Context, view *models.EventView) error {
	if view.UpdatedAt.IsZero() {
		view.UpdatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO event_views (event_id, user_id, viewed, updated_details, accepted, updated_at) VALUES (:event_id, :user_id, :viewed, :updated_details, :accepted, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, view); err != nil {
		return fmt.Errorf("insert event view: %w", err)
	}
	return nil
}

// MarkViewed sets viewed=1 on an existing row, leaving other flags untouched.
func (r *EventViewRepository) MarkViewed(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE event_views SET viewed = 1, updated_at = $1 WHERE id = $2`, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("mark event view viewed: %w", err)
	}
	return nil
}

// MarkUpdatedDetails sets updated_details=1 on an existing row.
func (r *EventViewRepository) MarkUpdatedDetails(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE event_views SET updated_details = 1, updated_at = $1 WHERE id = $2`, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("mark event view updated: %w", err)
	}
	return nil
}

// MarkAccepted sets accepted=1 on an existing row.
func (r *EventViewRepository) MarkAccepted(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE event_views SET accepted = 1, updated_at = $1 WHERE id = $2`, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("mark event view accepted: %w", err)
	}
	return nil
}

// Report projects every user against their view row for the event; flags
// default to 0 where no row exists.
func (r *EventViewRepository) Report(ctx context.Context, eventID int64) ([]models.ReportRow, error) {
	const query = `SELECT u.id, u.name, u.designation,
  COALESCE(ev.viewed, 0) AS viewed,
  COALESCE(ev.updated_details, 0) AS updated,
  COALESCE(ev.accepted, 0) AS accepted
FROM users u
LEFT JOIN event_views ev ON u.id = ev.user_id AND ev.event_id = $1`

	rows := []models.ReportRow{}
	if err := r.db.SelectContext(ctx, &rows, query, eventID); err != nil {
		return nil, fmt.Errorf("event report: %w", err)
	}
	return rows, nil
}
