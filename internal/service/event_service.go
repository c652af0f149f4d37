package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"mime/multipart"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/jansampark/event-desk-api/internal/models"
	appErrors "github.com/jansampark/event-desk-api/pkg/errors"
)

const eventListCachePattern = "events:list:*"

type eventRepository interface {
	List(ctx context.Context, classification models.EventClassification) ([]models.Event, error)
	FindByID(ctx context.Context, id int64) (*models.Event, error)
	Create(ctx context.Context, event *models.Event) error
	Reconcile(ctx context.Context, id int64, apply func(*models.Event) error) (*models.Event, error)
	DeleteCascade(ctx context.Context, id int64) (*models.Event, error)
}

type attachmentStore interface {
	SaveMultipart(fh *multipart.FileHeader) (string, error)
	Delete(filename string) error
	DeleteURL(fileURL string) error
	URL(baseURL, filename string) string
}

type updateTracker interface {
	RecordUpdate(ctx context.Context, eventID, userID int64) error
}

type listCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Invalidate(ctx context.Context, pattern string) error
}

// EventPolicy bundles the attachment limits and the update policy knobs.
type EventPolicy struct {
	VideoMinBytes      int64
	MaxPhotos          int
	MaxMediaPhotos     int
	SelfServiceUpdates bool
	ListCacheTTL       time.Duration
}

// CreateEventRequest carries the scalar fields of a new event.
type CreateEventRequest struct {
	Name          string    `validate:"required"`
	Description   string
	StartDatetime time.Time `validate:"required"`
	EndDatetime   time.Time `validate:"required"`
	IssueDate     *time.Time
	Location      string
	Level         models.EventLevel `validate:"omitempty,oneof=jila block"`
	EventType     string
	CreatedBy     *int64
}

// UpdateEventRequest is a partial update: nil fields keep their stored value.
type UpdateEventRequest struct {
	Name           *string
	Description    *string
	StartDatetime  *time.Time
	EndDatetime    *time.Time
	IssueDate      *time.Time
	Location       *string
	Level          *models.EventLevel
	EventType      *string
	AttendeesCount *int

	RemovePhotos      []string
	RemoveMediaPhotos []string
	RemoveVideo       bool

	// UserID marks the acting user's view record as having updated details.
	UserID *int64
}

// EventUploads groups the multipart attachments of a create/update request.
type EventUploads struct {
	Photos      []*multipart.FileHeader
	MediaPhotos []*multipart.FileHeader
	Video       *multipart.FileHeader
}

// EventService is the event lifecycle manager: it reconciles an event's
// persisted state (scalar fields plus three attachment collections) against
// partial requests, keeping the database row and the attachment store in
// lockstep.
type EventService struct {
	repo      eventRepository
	store     attachmentStore
	tracker   updateTracker
	cache     listCache
	validator *validator.Validate
	logger    *zap.Logger
	policy    EventPolicy
	baseURL   string

	// Per-event mutation locks so file deletions for the same event never
	// interleave; the database row lock covers the row itself.
	locks sync.Map
}

// NewEventService creates an event service instance.
func NewEventService(repo eventRepository, store attachmentStore, tracker updateTracker, cache listCache, validate *validator.Validate, logger *zap.Logger, policy EventPolicy, baseURL string) *EventService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if policy.MaxPhotos <= 0 {
		policy.MaxPhotos = 10
	}
	if policy.MaxMediaPhotos <= 0 {
		policy.MaxMediaPhotos = 5
	}
	if policy.VideoMinBytes <= 0 {
		policy.VideoMinBytes = 10 * 1024 * 1024
	}
	return &EventService{
		repo:      repo,
		store:     store,
		tracker:   tracker,
		cache:     cache,
		validator: validate,
		logger:    logger,
		policy:    policy,
		baseURL:   baseURL,
	}
}

func (s *EventService) lock(id int64) func() {
	value, _ := s.locks.LoadOrStore(id, &sync.Mutex{})
	mu := value.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// Create persists a new event with its initial attachments and returns it.
// Uploaded files are written before the insert; if the insert fails they are
// removed again so no orphaned files are left behind.
func (s *EventService) Create(ctx context.Context, actor *models.JWTClaims, req CreateEventRequest, uploads EventUploads) (*models.Event, error) {
	if err := s.requireAdmin(actor); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "name, start_datetime and end_datetime are required")
	}
	if err := s.checkUploadCounts(len(uploads.Photos), len(uploads.MediaPhotos)); err != nil {
		return nil, err
	}
	if err := s.checkVideoFloor(uploads.Video); err != nil {
		return nil, err
	}

	saved, err := s.saveUploads(uploads)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store uploads")
	}

	event := &models.Event{
		Name:          req.Name,
		Description:   req.Description,
		StartDatetime: req.StartDatetime,
		EndDatetime:   req.EndDatetime,
		IssueDate:     req.IssueDate,
		Location:      req.Location,
		Level:         req.Level,
		EventType:     req.EventType,
		Photos:        saved.photoURLs,
		MediaPhotos:   saved.mediaURLs,
		VideoPath:     saved.videoURL,
		CreatedBy:     req.CreatedBy,
	}
	if event.Level == "" {
		event.Level = models.LevelJila
	}

	if err := s.repo.Create(ctx, event); err != nil {
		saved.discard(s.store, s.logger)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create event")
	}

	s.invalidateLists(ctx)
	return event, nil
}

// Update reconciles the stored event against a partial update. The
// reconciliation order is fixed: photo removals, media removals, new photo
// and media appends, video removal, then video replacement. Scalar fields
// present in the request overwrite stored values; absent fields are kept.
func (s *EventService) Update(ctx context.Context, actor *models.JWTClaims, id int64, req UpdateEventRequest, uploads EventUploads) (*models.Event, error) {
	if err := s.checkUpdatePolicy(actor, req, uploads); err != nil {
		return nil, err
	}
	if err := s.checkVideoFloor(uploads.Video); err != nil {
		return nil, err
	}

	unlock := s.lock(id)
	defer unlock()

	saved, err := s.saveUploads(uploads)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store uploads")
	}

	var obsolete []string
	event, err := s.repo.Reconcile(ctx, id, func(event *models.Event) error {
		event.Photos = pruneURLs(event.Photos, req.RemovePhotos)
		event.MediaPhotos = pruneURLs(event.MediaPhotos, req.RemoveMediaPhotos)
		obsolete = append(obsolete, nonEmpty(req.RemovePhotos)...)
		obsolete = append(obsolete, nonEmpty(req.RemoveMediaPhotos)...)

		event.Photos = append(event.Photos, saved.photoURLs...)
		event.MediaPhotos = append(event.MediaPhotos, saved.mediaURLs...)
		if len(event.Photos) > s.policy.MaxPhotos {
			return appErrors.Clone(appErrors.ErrTooManyUploads, fmt.Sprintf("an event can hold at most %d photos", s.policy.MaxPhotos))
		}
		if len(event.MediaPhotos) > s.policy.MaxMediaPhotos {
			return appErrors.Clone(appErrors.ErrTooManyUploads, fmt.Sprintf("an event can hold at most %d media photos", s.policy.MaxMediaPhotos))
		}

		if req.RemoveVideo && event.VideoPath != nil && *event.VideoPath != "" {
			obsolete = append(obsolete, *event.VideoPath)
			event.VideoPath = nil
		}
		if saved.videoURL != nil {
			if event.VideoPath != nil && *event.VideoPath != "" {
				obsolete = append(obsolete, *event.VideoPath)
			}
			event.VideoPath = saved.videoURL
		}

		applyScalarUpdates(event, req)
		return nil
	})
	if err != nil {
		saved.discard(s.store, s.logger)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "event not found")
		}
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update event")
	}

	// Files come off disk only after the row change is durable.
	s.removeFiles(obsolete)

	if req.UserID != nil && s.tracker != nil {
		if err := s.tracker.RecordUpdate(ctx, id, *req.UserID); err != nil {
			s.logger.Warn("failed to record update view", zap.Int64("event_id", id), zap.Error(err))
		}
	}

	s.invalidateLists(ctx)
	return event, nil
}

// Delete removes the event row, its dependent view rows, and every file its
// attachments reference. Missing files are tolerated.
func (s *EventService) Delete(ctx context.Context, actor *models.JWTClaims, id int64) error {
	if err := s.requireAdmin(actor); err != nil {
		return err
	}

	unlock := s.lock(id)
	defer unlock()

	event, err := s.repo.DeleteCascade(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "event not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete event")
	}

	s.removeFiles(event.AttachmentURLs())
	s.locks.Delete(id)
	s.invalidateLists(ctx)
	return nil
}

// List returns events for the requested classification, consulting the cache
// first. Anything that is not "previous" lists ongoing events.
func (s *EventService) List(ctx context.Context, classification models.EventClassification) ([]models.Event, error) {
	if classification != models.ClassificationPrevious {
		classification = models.ClassificationOngoing
	}

	key := "events:list:" + string(classification)
	if s.cache != nil {
		var cached []models.Event
		if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
			return cached, nil
		}
	}

	events, err := s.repo.List(ctx, classification)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list events")
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, events, s.policy.ListCacheTTL); err != nil {
			s.logger.Warn("failed to cache event list", zap.String("key", key), zap.Error(err))
		}
	}
	return events, nil
}

// Get returns an event by ID.
func (s *EventService) Get(ctx context.Context, id int64) (*models.Event, error) {
	event, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "event not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load event")
	}
	return event, nil
}

func (s *EventService) requireAdmin(actor *models.JWTClaims) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleAdmin {
		return appErrors.Clone(appErrors.ErrForbidden, "admin role required")
	}
	return nil
}

// checkUpdatePolicy enforces the field-level write policy. Admins may change
// anything. Other identified users may change location and attendees_count
// only, and only while the self-service policy is enabled.
func (s *EventService) checkUpdatePolicy(actor *models.JWTClaims, req UpdateEventRequest, uploads EventUploads) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	if actor.Role == models.RoleAdmin {
		return nil
	}
	if !s.policy.SelfServiceUpdates {
		return appErrors.Clone(appErrors.ErrForbidden, "admin role required")
	}

	touchesRestricted := req.Name != nil || req.Description != nil || req.StartDatetime != nil ||
		req.EndDatetime != nil || req.IssueDate != nil || req.Level != nil || req.EventType != nil ||
		len(req.RemovePhotos) > 0 || len(req.RemoveMediaPhotos) > 0 || req.RemoveVideo ||
		len(uploads.Photos) > 0 || len(uploads.MediaPhotos) > 0 || uploads.Video != nil
	if touchesRestricted {
		return appErrors.Clone(appErrors.ErrForbidden, "only location and attendees_count may be updated")
	}
	return nil
}

func (s *EventService) checkUploadCounts(photos, mediaPhotos int) error {
	if photos > s.policy.MaxPhotos {
		return appErrors.Clone(appErrors.ErrTooManyUploads, fmt.Sprintf("an event can hold at most %d photos", s.policy.MaxPhotos))
	}
	if mediaPhotos > s.policy.MaxMediaPhotos {
		return appErrors.Clone(appErrors.ErrTooManyUploads, fmt.Sprintf("an event can hold at most %d media photos", s.policy.MaxMediaPhotos))
	}
	return nil
}

// checkVideoFloor rejects undersized videos before anything touches disk, so
// a failed update leaves the previous video untouched.
func (s *EventService) checkVideoFloor(video *multipart.FileHeader) error {
	if video == nil {
		return nil
	}
	if video.Size < s.policy.VideoMinBytes {
		mib := s.policy.VideoMinBytes / (1024 * 1024)
		return appErrors.Clone(appErrors.ErrVideoTooSmall, fmt.Sprintf("video must be at least %dMB", mib))
	}
	return nil
}

type savedUploads struct {
	filenames []string
	photoURLs models.StringList
	mediaURLs models.StringList
	videoURL  *string
}

// discard removes every file this batch wrote, used when the database write
// that would have referenced them fails.
func (u *savedUploads) discard(store attachmentStore, logger *zap.Logger) {
	for _, filename := range u.filenames {
		if err := store.Delete(filename); err != nil {
			logger.Warn("failed to discard upload", zap.String("filename", filename), zap.Error(err))
		}
	}
}

// saveUploads writes every accepted upload to the attachment store, keeping
// upload order. On failure it cleans up whatever it already wrote.
func (s *EventService) saveUploads(uploads EventUploads) (*savedUploads, error) {
	saved := &savedUploads{photoURLs: models.StringList{}, mediaURLs: models.StringList{}}

	storeOne := func(fh *multipart.FileHeader) (string, error) {
		filename, err := s.store.SaveMultipart(fh)
		if err != nil {
			saved.discard(s.store, s.logger)
			return "", err
		}
		saved.filenames = append(saved.filenames, filename)
		return s.store.URL(s.baseURL, filename), nil
	}

	for _, fh := range uploads.Photos {
		url, err := storeOne(fh)
		if err != nil {
			return nil, err
		}
		saved.photoURLs = append(saved.photoURLs, url)
	}
	for _, fh := range uploads.MediaPhotos {
		url, err := storeOne(fh)
		if err != nil {
			return nil, err
		}
		saved.mediaURLs = append(saved.mediaURLs, url)
	}
	if uploads.Video != nil {
		url, err := storeOne(uploads.Video)
		if err != nil {
			return nil, err
		}
		saved.videoURL = &url
	}
	return saved, nil
}

func (s *EventService) removeFiles(urls []string) {
	for _, url := range urls {
		if err := s.store.DeleteURL(url); err != nil {
			s.logger.Warn("failed to delete attachment file", zap.String("url", url), zap.Error(err))
		}
	}
}

func (s *EventService) invalidateLists(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, eventListCachePattern); err != nil {
		s.logger.Warn("failed to invalidate event list cache", zap.Error(err))
	}
}

func applyScalarUpdates(event *models.Event, req UpdateEventRequest) {
	if req.Name != nil {
		event.Name = *req.Name
	}
	if req.Description != nil {
		event.Description = *req.Description
	}
	if req.StartDatetime != nil {
		event.StartDatetime = *req.StartDatetime
	}
	if req.EndDatetime != nil {
		event.EndDatetime = *req.EndDatetime
	}
	if req.IssueDate != nil {
		event.IssueDate = req.IssueDate
	}
	if req.Location != nil {
		event.Location = *req.Location
	}
	if req.Level != nil {
		event.Level = *req.Level
	}
	if req.EventType != nil {
		event.EventType = *req.EventType
	}
	if req.AttendeesCount != nil && *req.AttendeesCount >= 0 {
		event.AttendeesCount = *req.AttendeesCount
	}
}
