package service

import (
	"context"
	"database/sql"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jansampark/event-desk-api/internal/models"
	"github.com/jansampark/event-desk-api/internal/repository"
	appErrors "github.com/jansampark/event-desk-api/pkg/errors"
	"github.com/jansampark/event-desk-api/pkg/storage"
)

type memExportJobStore struct {
	mu   sync.Mutex
	jobs map[string]*models.ExportJob
}

func newMemExportJobStore() *memExportJobStore {
	return &memExportJobStore{jobs: map[string]*models.ExportJob{}}
}

func (s *memExportJobStore) Create(ctx context.Context, job *models.ExportJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = models.ExportStatusQueued
	}
	clone := *job
	s.jobs[job.ID] = &clone
	return nil
}

func (s *memExportJobStore) GetByID(ctx context.Context, id string) (*models.ExportJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *job
	return &clone, nil
}

func (s *memExportJobStore) Update(ctx context.Context, id string, params repository.UpdateExportJobParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return sql.ErrNoRows
	}
	if params.Status != nil {
		job.Status = *params.Status
	}
	if params.Progress != nil {
		job.Progress = *params.Progress
	}
	if params.ResultURL != nil {
		job.ResultURL = params.ResultURL
	}
	if params.ErrorMessage != nil {
		job.ErrorMessage = params.ErrorMessage
	}
	if params.FinishedAt != nil {
		job.FinishedAt = params.FinishedAt
	}
	return nil
}

func (s *memExportJobStore) ListQueued(ctx context.Context, limit int) ([]models.ExportJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ExportJob
	for _, job := range s.jobs {
		if job.Status == models.ExportStatusQueued {
			out = append(out, *job)
		}
	}
	return out, nil
}

type staticReportSource struct {
	rows []models.ReportRow
}

func (s staticReportSource) Report(ctx context.Context, eventID int64) ([]models.ReportRow, error) {
	return s.rows, nil
}

type staticEventFinder struct {
	event *models.Event
}

func (f staticEventFinder) FindByID(ctx context.Context, id int64) (*models.Event, error) {
	if f.event == nil || f.event.ID != id {
		return nil, sql.ErrNoRows
	}
	clone := *f.event
	return &clone, nil
}

func newTestExportService(t *testing.T, jobs *memExportJobStore) *ExportService {
	t.Helper()
	store, err := storage.NewExportStore(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("export-test-secret", time.Hour)

	reports := staticReportSource{rows: []models.ReportRow{
		{ID: 7, Name: "Asha", Designation: models.DesignationDistrictChair, Viewed: 1},
		{ID: 8, Name: "Ravi", Designation: models.DesignationDistrictChair},
	}}
	events := staticEventFinder{event: &models.Event{ID: 5, Name: "जनसभा"}}

	return NewExportService(jobs, reports, events, store, signer, zap.NewNop(), ExportConfig{
		WorkerConcurrency: 1,
		WorkerRetries:     1,
	})
}

func TestExportServiceCreateJobRequiresAdmin(t *testing.T) {
	svc := newTestExportService(t, newMemExportJobStore())

	_, err := svc.CreateJob(context.Background(), userClaims(7), 5, models.ExportJobParams{Format: models.ExportFormatCSV})
	require.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	_, err = svc.CreateJob(context.Background(), nil, 5, models.ExportJobParams{Format: models.ExportFormatCSV})
	require.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestExportServiceCreateJobValidatesInput(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc := newTestExportService(t, newMemExportJobStore())
	svc.Start(ctx)
	defer svc.Stop()

	_, err := svc.CreateJob(ctx, adminClaims(), 5, models.ExportJobParams{Format: "xlsx"})
	require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.CreateJob(ctx, adminClaims(), 404, models.ExportJobParams{Format: models.ExportFormatCSV})
	require.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestExportServiceCSVEndToEnd(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	jobs := newMemExportJobStore()
	svc := newTestExportService(t, jobs)
	svc.Start(ctx)
	defer svc.Stop()

	job, err := svc.CreateJob(ctx, adminClaims(), 5, models.ExportJobParams{Format: models.ExportFormatCSV})
	require.NoError(t, err)
	require.Equal(t, "जनसभा", job.Params.Title)

	require.Eventually(t, func() bool {
		current, err := jobs.GetByID(ctx, job.ID)
		return err == nil && current.Status == models.ExportStatusFinished
	}, 3*time.Second, 10*time.Millisecond)

	finished, err := svc.GetStatus(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, 100, finished.Progress)
	require.NotNil(t, finished.ResultURL)
	require.NotNil(t, finished.FinishedAt)

	_, token, found := strings.Cut(*finished.ResultURL, "token=")
	require.True(t, found)

	file, name, err := svc.ResolveDownload(ctx, token)
	require.NoError(t, err)
	defer file.Close()
	require.True(t, strings.HasSuffix(name, ".csv"))

	data, err := io.ReadAll(file)
	require.NoError(t, err)
	content := string(data)
	require.Contains(t, content, "ID,Name,Designation,Viewed,Updated,Accepted")
	require.Contains(t, content, "Asha")
	require.Contains(t, content, "Ravi")
}

func TestExportServicePDFEndToEnd(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	jobs := newMemExportJobStore()
	svc := newTestExportService(t, jobs)
	svc.Start(ctx)
	defer svc.Stop()

	job, err := svc.CreateJob(ctx, adminClaims(), 5, models.ExportJobParams{Format: models.ExportFormatPDF, Title: "Attendance"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		current, err := jobs.GetByID(ctx, job.ID)
		return err == nil && current.Status == models.ExportStatusFinished
	}, 3*time.Second, 10*time.Millisecond)

	finished, err := svc.GetStatus(ctx, job.ID)
	require.NoError(t, err)
	_, token, found := strings.Cut(*finished.ResultURL, "token=")
	require.True(t, found)

	file, name, err := svc.ResolveDownload(ctx, token)
	require.NoError(t, err)
	defer file.Close()
	require.True(t, strings.HasSuffix(name, ".pdf"))

	header := make([]byte, 5)
	_, err = io.ReadFull(file, header)
	require.NoError(t, err)
	require.Equal(t, "%PDF-", string(header))
}

func TestExportServiceResolveDownloadRejectsBadToken(t *testing.T) {
	svc := newTestExportService(t, newMemExportJobStore())

	_, _, err := svc.ResolveDownload(context.Background(), "not-a-token")
	require.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestExportServiceRecoverPendingJobs(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	jobs := newMemExportJobStore()
	require.NoError(t, jobs.Create(ctx, &models.ExportJob{
		EventID:   5,
		Params:    models.ExportJobParams{Format: models.ExportFormatCSV},
		Status:    models.ExportStatusQueued,
		CreatedBy: 1,
		CreatedAt: time.Now(),
	}))

	svc := newTestExportService(t, jobs)
	svc.Start(ctx)
	defer svc.Stop()

	require.NoError(t, svc.RecoverPendingJobs(ctx))
	require.Eventually(t, func() bool {
		queued, err := jobs.ListQueued(ctx, 0)
		return err == nil && len(queued) == 0
	}, 3*time.Second, 10*time.Millisecond)
}
