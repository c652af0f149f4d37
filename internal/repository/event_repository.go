package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jansampark/event-desk-api/internal/models"
)

const eventColumns = `id, name, description, start_datetime, end_datetime, issue_date, location, level, event_type, attendees_count, photos, media_photos, video_path, created_by, created_at, updated_at`

// EventRepository handles persistence for events. Mutations that read current
// attachment state run inside a transaction holding a row lock so concurrent
// updates to the same event cannot interleave.
type EventRepository struct {
	db *sqlx.DB
}

// NewEventRepository instantiates an event repository.
func NewEventRepository(db *sqlx.DB) *EventRepository {
	return &EventRepository{db: db}
}

// List returns events partitioned by the ongoing/previous classification.
// Ongoing events (end >= now) come soonest-first, previous events most
// recent-first.
func (r *EventRepository) List(ctx context.Context, classification models.EventClassification) ([]models.Event, error) {
	query := fmt.Sprintf("SELECT %s FROM events WHERE end_datetime >= NOW() ORDER BY start_datetime ASC", eventColumns)
	if classification == models.ClassificationPrevious {
		query = fmt.Sprintf("SELECT %s FROM events WHERE end_datetime < NOW() ORDER BY start_datetime DESC", eventColumns)
	}

	events := []models.Event{}
	if err := r.db.SelectContext(ctx, &events, query); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}

// FindByID loads an event by identifier.
func (r *EventRepository) FindByID(ctx context.Context, id int64) (*models.Event, error) {
	query := fmt.Sprintf("SELECT %s FROM events WHERE id = $1 LIMIT 1", eventColumns)
	var event models.Event
	if err := r.db.GetContext(ctx, &event, query, id); err != nil {
		return nil, err
	}
	return &event, nil
}

// Create inserts a new event row and fills in the generated id.
func (r *EventRepository) Create(ctx context.Context, event *models.Event) error {
	now := time.Now().UTC()
	if event.CreatedAt.IsZero() {
		event.CreatedAt = now
	}
	event.UpdatedAt = now

	const query = `INSERT INTO events (name, description, start_datetime, end_datetime, issue_date, location, level, event_type, attendees_count, photos, media_photos, video_path, created_by, created_at, updated_at)
VALUES (:name, :description, :start_datetime, :end_datetime, :issue_date, :location, :level, :event_type, :attendees_count, :photos, :media_photos, :video_path, :created_by, :created_at, :updated_at)
RETURNING id`

	rows, err := r.db.NamedQueryContext(ctx, query, event)
	if err != nil {
		return fmt.Errorf("create event: %w", err)
	}
	defer rows.Close() //nolint:errcheck
	if rows.Next() {
		if err := rows.Scan(&event.ID); err != nil {
			return fmt.Errorf("scan event id: %w", err)
		}
	}
	return nil
}

// Reconcile loads the event under a row lock, lets the caller mutate it, and
// persists the result in the same transaction. The returned event reflects
// the persisted state. sql.ErrNoRows surfaces unchanged when the row is gone.
func (r *EventRepository) Reconcile(ctx context.Context, id int64, apply func(*models.Event) error) (*models.Event, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin event update tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	query := fmt.Sprintf("SELECT %s FROM events WHERE id = $1 FOR UPDATE", eventColumns)
	var event models.Event
	if err := tx.GetContext(ctx, &event, query, id); err != nil {
		return nil, err
	}

	if err := apply(&event); err != nil {
		return nil, err
	}
	event.UpdatedAt = time.Now().UTC()

	const update = `UPDATE events SET name = :name, description = :description, start_datetime = :start_datetime, end_datetime = :end_datetime, issue_date = :issue_date, location = :location, level = :level, event_type = :event_type, attendees_count = :attendees_count, photos = :photos, media_photos = :media_photos, video_path = :video_path, updated_at = :updated_at WHERE id = :id`
	if _, err := tx.NamedExecContext(ctx, update, &event); err != nil {
		return nil, fmt.Errorf("update event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit event update tx: %w", err)
	}
	return &event, nil
}

// DeleteCascade removes the event and its dependent view rows in one
// transaction, returning the deleted row so callers can clean up files. The
// event_views cascade is application-enforced; the schema has no FK cascade.
func (r *EventRepository) DeleteCascade(ctx context.Context, id int64) (*models.Event, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin event delete tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	query := fmt.Sprintf("SELECT %s FROM events WHERE id = $1 FOR UPDATE", eventColumns)
	var event models.Event
	if err := tx.GetContext(ctx, &event, query, id); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM event_views WHERE event_id = $1`, id); err != nil {
		return nil, fmt.Errorf("delete event views: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM events WHERE id = $1`, id); err != nil {
		return nil, fmt.Errorf("delete event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit event delete tx: %w", err)
	}
	return &event, nil
}
