package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/jansampark/event-desk-api/internal/models"
	"github.com/jansampark/event-desk-api/internal/repository"
	appErrors "github.com/jansampark/event-desk-api/pkg/errors"
	"github.com/jansampark/event-desk-api/pkg/export"
	"github.com/jansampark/event-desk-api/pkg/jobs"
	"github.com/jansampark/event-desk-api/pkg/storage"
)

type exportJobStore interface {
	Create(ctx context.Context, job *models.ExportJob) error
	GetByID(ctx context.Context, id string) (*models.ExportJob, error)
	Update(ctx context.Context, id string, params repository.UpdateExportJobParams) error
	ListQueued(ctx context.Context, limit int) ([]models.ExportJob, error)
}

type reportSource interface {
	Report(ctx context.Context, eventID int64) ([]models.ReportRow, error)
}

type exportEventFinder interface {
	FindByID(ctx context.Context, id int64) (*models.Event, error)
}

// ExportConfig tunes the background export pipeline.
type ExportConfig struct {
	WorkerConcurrency int
	WorkerRetries     int
	DownloadPath      string
}

// ExportService runs attendance report exports asynchronously: jobs are
// persisted, rendered by a worker pool, and downloaded through signed URLs.
type ExportService struct {
	repo    exportJobStore
	reports reportSource
	events  exportEventFinder
	store   *storage.ExportStore
	signer  *storage.SignedURLSigner
	csv     *export.CSVExporter
	pdf     *export.PDFExporter
	queue   *jobs.Queue
	logger  *zap.Logger
	config  ExportConfig
}

type exportJobPayload struct {
	JobID string
}

// NewExportService wires the export pipeline together.
func NewExportService(
	repo exportJobStore,
	reports reportSource,
	events exportEventFinder,
	store *storage.ExportStore,
	signer *storage.SignedURLSigner,
	logger *zap.Logger,
	config ExportConfig,
) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.DownloadPath == "" {
		config.DownloadPath = "/api/events/reports/download"
	}

	s := &ExportService{
		repo:    repo,
		reports: reports,
		events:  events,
		store:   store,
		signer:  signer,
		csv:     export.NewCSVExporter(),
		pdf:     export.NewPDFExporter(),
		logger:  logger,
		config:  config,
	}
	s.queue = jobs.NewQueue("report-exports", s.process, jobs.QueueConfig{
		Workers:    config.WorkerConcurrency,
		MaxRetries: config.WorkerRetries,
		Logger:     logger,
	})
	return s
}

// Start launches the worker pool.
func (s *ExportService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the worker pool.
func (s *ExportService) Stop() {
	s.queue.Stop()
}

// CreateJob persists a new export job and enqueues it for processing.
// Only admins may export attendance reports.
func (s *ExportService) CreateJob(ctx context.Context, claims *models.JWTClaims, eventID int64, params models.ExportJobParams) (*models.ExportJob, error) {
	if claims == nil || claims.Role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only admins can export reports")
	}
	switch params.Format {
	case models.ExportFormatCSV, models.ExportFormatPDF:
	case "":
		params.Format = models.ExportFormatCSV
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}

	event, err := s.events.FindByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "event not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load event")
	}
	if params.Title == "" {
		params.Title = event.Name
	}

	job := &models.ExportJob{
		EventID:   eventID,
		Params:    params,
		Status:    models.ExportStatusQueued,
		CreatedBy: claims.UserID,
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create export job")
	}

	if err := s.enqueue(job.ID); err != nil {
		s.failJob(ctx, job.ID, err)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue export job")
	}
	return job, nil
}

// GetStatus returns the current state of an export job.
func (s *ExportService) GetStatus(ctx context.Context, jobID string) (*models.ExportJob, error) {
	job, err := s.repo.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "export job not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load export job")
	}
	return job, nil
}

// ResolveDownload validates a signed token and opens the stored file. The
// returned filename is the suggested attachment name.
func (s *ExportService) ResolveDownload(ctx context.Context, token string) (*os.File, string, error) {
	jobID, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired download link")
	}

	job, err := s.repo.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", appErrors.Clone(appErrors.ErrNotFound, "export job not found")
		}
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load export job")
	}
	if job.Status != models.ExportStatusFinished {
		return nil, "", appErrors.Clone(appErrors.ErrConflict, "export is not finished yet")
	}

	file, err := s.store.Open(relPath)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open export file")
	}
	return file, relPath, nil
}

// RecoverPendingJobs re-enqueues jobs left queued by a previous run.
func (s *ExportService) RecoverPendingJobs(ctx context.Context) error {
	pending, err := s.repo.ListQueued(ctx, 0)
	if err != nil {
		return err
	}
	for _, job := range pending {
		if err := s.enqueue(job.ID); err != nil {
			s.logger.Warn("failed to recover export job", zap.String("job_id", job.ID), zap.Error(err))
		}
	}
	if len(pending) > 0 {
		s.logger.Info("recovered pending export jobs", zap.Int("count", len(pending)))
	}
	return nil
}

func (s *ExportService) enqueue(jobID string) error {
	return s.queue.Enqueue(jobs.Job{
		ID:      jobID,
		Type:    "report-export",
		Payload: exportJobPayload{JobID: jobID},
	})
}

func (s *ExportService) process(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(exportJobPayload)
	if !ok {
		s.logger.Error("unexpected export payload", zap.String("job_id", job.ID))
		return nil
	}

	record, err := s.repo.GetByID(ctx, payload.JobID)
	if err != nil {
		return fmt.Errorf("load export job %s: %w", payload.JobID, err)
	}
	if record.Status == models.ExportStatusFinished {
		return nil
	}

	if err := s.markProcessing(ctx, record.ID); err != nil {
		return err
	}

	rows, err := s.reports.Report(ctx, record.EventID)
	if err != nil {
		s.failJob(ctx, record.ID, err)
		return err
	}

	data, relPath, err := s.render(record, rows)
	if err != nil {
		s.failJob(ctx, record.ID, err)
		return err
	}

	if _, err := s.store.Save(relPath, data); err != nil {
		s.failJob(ctx, record.ID, err)
		return err
	}

	token, _, err := s.signer.Generate(record.ID, relPath)
	if err != nil {
		s.failJob(ctx, record.ID, err)
		return err
	}

	resultURL := fmt.Sprintf("%s?token=%s", s.config.DownloadPath, token)
	now := time.Now().UTC()
	status := models.ExportStatusFinished
	progress := 100
	if err := s.repo.Update(ctx, record.ID, repository.UpdateExportJobParams{
		Status:     &status,
		Progress:   &progress,
		ResultURL:  &resultURL,
		FinishedAt: &now,
	}); err != nil {
		return fmt.Errorf("finish export job %s: %w", record.ID, err)
	}

	s.logger.Info("export job finished",
		zap.String("job_id", record.ID),
		zap.Int64("event_id", record.EventID),
		zap.String("format", string(record.Params.Format)))
	return nil
}

func (s *ExportService) render(job *models.ExportJob, rows []models.ReportRow) ([]byte, string, error) {
	headers := []string{"ID", "Name", "Designation", "Viewed", "Updated", "Accepted"}
	dataset := export.Dataset{Headers: headers, Rows: make([]map[string]string, 0, len(rows))}
	for _, row := range rows {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"ID":          fmt.Sprintf("%d", row.ID),
			"Name":        row.Name,
			"Designation": row.Designation,
			"Viewed":      fmt.Sprintf("%d", row.Viewed),
			"Updated":     fmt.Sprintf("%d", row.Updated),
			"Accepted":    fmt.Sprintf("%d", row.Accepted),
		})
	}

	switch job.Params.Format {
	case models.ExportFormatPDF:
		data, err := s.pdf.Render(dataset, job.Params.Title)
		if err != nil {
			return nil, "", err
		}
		return data, fmt.Sprintf("attendance-%d-%s.pdf", job.EventID, job.ID), nil
	default:
		data, err := s.csv.Render(dataset)
		if err != nil {
			return nil, "", err
		}
		return data, fmt.Sprintf("attendance-%d-%s.csv", job.EventID, job.ID), nil
	}
}

func (s *ExportService) markProcessing(ctx context.Context, jobID string) error {
	status := models.ExportStatusProcessing
	progress := 10
	if err := s.repo.Update(ctx, jobID, repository.UpdateExportJobParams{Status: &status, Progress: &progress}); err != nil {
		return fmt.Errorf("mark export job %s processing: %w", jobID, err)
	}
	return nil
}

func (s *ExportService) failJob(ctx context.Context, jobID string, cause error) {
	status := models.ExportStatusFailed
	message := cause.Error()
	now := time.Now().UTC()
	if err := s.repo.Update(ctx, jobID, repository.UpdateExportJobParams{
		Status:       &status,
		ErrorMessage: &message,
		FinishedAt:   &now,
	}); err != nil {
		s.logger.Error("failed to mark export job failed", zap.String("job_id", jobID), zap.Error(err))
	}
}
