package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/jansampark/event-desk-api/internal/models"
	appErrors "github.com/jansampark/event-desk-api/pkg/errors"
)

type eventViewRepository interface {
	Find(ctx context.Context, eventID, userID int64) (*models.EventView, error)
	Insert(ctx context.Context, view *models.EventView) error
	MarkViewed(ctx context.Context, id int64) error
	MarkUpdatedDetails(ctx context.Context, id int64) error
	MarkAccepted(ctx context.Context, id int64) error
	Report(ctx context.Context, eventID int64) ([]models.ReportRow, error)
}

// ViewService is the view/acceptance tracker. Each operation upserts one
// (event, user) row; flags are only ever raised, never cleared.
type ViewService struct {
	repo   eventViewRepository
	logger *zap.Logger
}

// NewViewService creates a view service instance.
func NewViewService(repo eventViewRepository, logger *zap.Logger) *ViewService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ViewService{repo: repo, logger: logger}
}

// MarkViewed records that the user opened the event.
func (s *ViewService) MarkViewed(ctx context.Context, eventID, userID int64) error {
	return s.upsert(ctx, eventID, userID, models.EventView{Viewed: 1}, s.repo.MarkViewed)
}

// RecordUpdate records that the user changed event details. A fresh row is
// created as viewed too, since updating implies having seen the event.
func (s *ViewService) RecordUpdate(ctx context.Context, eventID, userID int64) error {
	return s.upsert(ctx, eventID, userID, models.EventView{Viewed: 1, UpdatedDetails: 1}, s.repo.MarkUpdatedDetails)
}

// Accept records an admin's acceptance of the user's attendance.
func (s *ViewService) Accept(ctx context.Context, eventID, userID int64) error {
	return s.upsert(ctx, eventID, userID, models.EventView{Accepted: 1}, s.repo.MarkAccepted)
}

// Report returns the per-user interaction projection for one event.
func (s *ViewService) Report(ctx context.Context, eventID int64) ([]models.ReportRow, error) {
	rows, err := s.repo.Report(ctx, eventID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to build event report")
	}
	return rows, nil
}

func (s *ViewService) upsert(ctx context.Context, eventID, userID int64, fresh models.EventView, raise func(context.Context, int64) error) error {
	existing, err := s.repo.Find(ctx, eventID, userID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load event view")
	}

	if existing == nil {
		fresh.EventID = eventID
		fresh.UserID = userID
		if err := s.repo.Insert(ctx, &fresh); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record event view")
		}
		return nil
	}

	if err := raise(ctx, existing.ID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record event view")
	}
	return nil
}
