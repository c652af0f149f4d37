package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	internalmiddleware "github.com/jansampark/event-desk-api/internal/middleware"
	"github.com/jansampark/event-desk-api/internal/models"
	"github.com/jansampark/event-desk-api/internal/service"
)

const testBaseURL = "http://localhost:4000"

type memEventRepo struct {
	mu     sync.Mutex
	nextID int64
	events map[int64]*models.Event
}

func newMemEventRepo() *memEventRepo {
	return &memEventRepo{events: map[int64]*models.Event{}}
}

func (r *memEventRepo) List(ctx context.Context, classification models.EventClassification) ([]models.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	out := []models.Event{}
	for _, event := range r.events {
		previous := event.EndDatetime.Before(now)
		if (classification == models.ClassificationPrevious) == previous {
			out = append(out, *event)
		}
	}
	return out, nil
}

func (r *memEventRepo) FindByID(ctx context.Context, id int64) (*models.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	event, ok := r.events[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *event
	return &clone, nil
}

func (r *memEventRepo) Create(ctx context.Context, event *models.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	event.ID = r.nextID
	clone := *event
	r.events[event.ID] = &clone
	return nil
}

func (r *memEventRepo) Reconcile(ctx context.Context, id int64, apply func(*models.Event) error) (*models.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	event, ok := r.events[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	draft := *event
	if err := apply(&draft); err != nil {
		return nil, err
	}
	r.events[id] = &draft
	result := draft
	return &result, nil
}

func (r *memEventRepo) DeleteCascade(ctx context.Context, id int64) (*models.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	event, ok := r.events[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	delete(r.events, id)
	return event, nil
}

type memAttachmentStore struct {
	mu      sync.Mutex
	counter int
}

func (s *memAttachmentStore) SaveMultipart(fh *multipart.FileHeader) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counter++
	return fmt.Sprintf("f%d-%s", s.counter, fh.Filename), nil
}

func (s *memAttachmentStore) Delete(filename string) error  { return nil }
func (s *memAttachmentStore) DeleteURL(fileURL string) error { return nil }
func (s *memAttachmentStore) URL(baseURL, filename string) string {
	return baseURL + "/uploads/" + filename
}

type memViewRepo struct {
	mu     sync.Mutex
	nextID int64
	users  []models.User
	rows   map[int64]*models.EventView
}

func newMemViewRepo(users ...models.User) *memViewRepo {
	return &memViewRepo{users: users, rows: map[int64]*models.EventView{}}
}

func (r *memViewRepo) Find(ctx context.Context, eventID, userID int64) (*models.EventView, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.EventID == eventID && row.UserID == userID {
			clone := *row
			return &clone, nil
		}
	}
	return nil, nil
}

func (r *memViewRepo) Insert(ctx context.Context, view *models.EventView) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	view.ID = r.nextID
	clone := *view
	r.rows[view.ID] = &clone
	return nil
}

func (r *memViewRepo) MarkViewed(ctx context.Context, id int64) error {
	return r.raise(id, func(row *models.EventView) { row.Viewed = 1 })
}

func (r *memViewRepo) MarkUpdatedDetails(ctx context.Context, id int64) error {
	return r.raise(id, func(row *models.EventView) { row.UpdatedDetails = 1 })
}

func (r *memViewRepo) MarkAccepted(ctx context.Context, id int64) error {
	return r.raise(id, func(row *models.EventView) { row.Accepted = 1 })
}

func (r *memViewRepo) raise(id int64, set func(*models.EventView)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if row, ok := r.rows[id]; ok {
		set(row)
	}
	return nil
}

func (r *memViewRepo) Report(ctx context.Context, eventID int64) ([]models.ReportRow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rows := []models.ReportRow{}
	for _, user := range r.users {
		projected := models.ReportRow{ID: user.ID, Name: user.Name, Designation: user.Designation}
		for _, row := range r.rows {
			if row.EventID == eventID && row.UserID == user.ID {
				projected.Viewed = row.Viewed
				projected.Updated = row.UpdatedDetails
				projected.Accepted = row.Accepted
			}
		}
		rows = append(rows, projected)
	}
	return rows, nil
}

type routerFixture struct {
	router    *gin.Engine
	eventRepo *memEventRepo
	viewRepo  *memViewRepo
}

// buildRouter assembles the event routes with in-memory collaborators. The
// X-Test-Role header stands in for the JWT middleware.
func buildRouter(t *testing.T) *routerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	eventRepo := newMemEventRepo()
	viewRepo := newMemViewRepo(
		models.User{ID: 7, Name: "Asha", Designation: models.DesignationDistrictChair},
		models.User{ID: 8, Name: "Ravi", Designation: models.DesignationDistrictChair},
	)

	viewSvc := service.NewViewService(viewRepo, zap.NewNop())
	eventSvc := service.NewEventService(eventRepo, &memAttachmentStore{}, viewSvc, nil, nil, zap.NewNop(), service.EventPolicy{
		VideoMinBytes:      10 * 1024 * 1024,
		MaxPhotos:          10,
		MaxMediaPhotos:     5,
		SelfServiceUpdates: true,
	}, testBaseURL)

	eventHandler := NewEventHandler(eventSvc, viewSvc)
	reportHandler := NewReportHandler(viewSvc)

	router := gin.New()
	router.Use(func(c *gin.Context) {
		if role := c.GetHeader("X-Test-Role"); role != "" {
			c.Set(internalmiddleware.ContextUserKey, &models.JWTClaims{
				UserID: 1,
				Role:   models.UserRole(role),
			})
		}
		c.Next()
	})

	events := router.Group("/events")
	events.GET("", eventHandler.List)
	events.GET("/:id", eventHandler.Get)
	events.POST("", eventHandler.Create)
	events.POST("/:id/update", eventHandler.Update)
	events.DELETE("/:id", eventHandler.Delete)
	events.POST("/:id/view", eventHandler.MarkViewed)
	events.GET("/:id/report", reportHandler.Report)
	events.POST("/:id/report/accept", reportHandler.Accept)

	return &routerFixture{router: router, eventRepo: eventRepo, viewRepo: viewRepo}
}

func performRequest(router *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func multipartBody(t *testing.T, fields map[string]string, files map[string][]string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for key, value := range fields {
		require.NoError(t, writer.WriteField(key, value))
	}
	for field, names := range files {
		for _, name := range names {
			part, err := writer.CreateFormFile(field, name)
			require.NoError(t, err)
			_, err = io.WriteString(part, "binary-content")
			require.NoError(t, err)
		}
	}
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func createEvent(t *testing.T, fx *routerFixture, fields map[string]string, files map[string][]string) int64 {
	t.Helper()
	body, contentType := multipartBody(t, fields, files)
	req, _ := http.NewRequest(http.MethodPost, "/events", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Test-Role", string(models.RoleAdmin))
	resp := performRequest(fx.router, req)
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())

	var envelope struct {
		Success bool  `json:"success"`
		ID      int64 `json:"id"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &envelope))
	require.True(t, envelope.Success)
	require.NotZero(t, envelope.ID)
	return envelope.ID
}

func defaultCreateFields() map[string]string {
	return map[string]string{
		"name":           "जनसभा",
		"start_datetime": "2025-01-01T10:00",
		"end_datetime":   "2025-01-01T12:00",
	}
}

func TestEventHandlerCreateThenGetReturnsPhotos(t *testing.T) {
	fx := buildRouter(t)

	id := createEvent(t, fx, defaultCreateFields(), map[string][]string{
		"photos": {"one.jpg", "two.jpg"},
	})

	req, _ := http.NewRequest(http.MethodGet, fmt.Sprintf("/events/%d", id), nil)
	req.Header.Set("X-Test-Role", string(models.RoleUser))
	resp := performRequest(fx.router, req)
	require.Equal(t, http.StatusOK, resp.Code)

	var envelope struct {
		Success bool         `json:"success"`
		Data    models.Event `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &envelope))
	require.True(t, envelope.Success)
	require.Len(t, envelope.Data.Photos, 2)
}

func TestEventHandlerCreateMissingName(t *testing.T) {
	fx := buildRouter(t)

	fields := defaultCreateFields()
	delete(fields, "name")
	body, contentType := multipartBody(t, fields, nil)
	req, _ := http.NewRequest(http.MethodPost, "/events", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Test-Role", string(models.RoleAdmin))

	resp := performRequest(fx.router, req)
	require.Equal(t, http.StatusBadRequest, resp.Code)
	require.Contains(t, resp.Body.String(), `"success":false`)
}

func TestEventHandlerCreateForbiddenForUsers(t *testing.T) {
	fx := buildRouter(t)

	body, contentType := multipartBody(t, defaultCreateFields(), nil)
	req, _ := http.NewRequest(http.MethodPost, "/events", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Test-Role", string(models.RoleUser))

	resp := performRequest(fx.router, req)
	require.Equal(t, http.StatusForbidden, resp.Code)
}

func TestEventHandlerGetMalformedID(t *testing.T) {
	fx := buildRouter(t)

	req, _ := http.NewRequest(http.MethodGet, "/events/abc", nil)
	resp := performRequest(fx.router, req)
	require.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestEventHandlerGetMissing(t *testing.T) {
	fx := buildRouter(t)

	req, _ := http.NewRequest(http.MethodGet, "/events/999", nil)
	resp := performRequest(fx.router, req)
	require.Equal(t, http.StatusNotFound, resp.Code)
}

func TestEventHandlerUpdateRemovesAndAppends(t *testing.T) {
	fx := buildRouter(t)

	id := createEvent(t, fx, defaultCreateFields(), map[string][]string{
		"photos": {"one.jpg", "two.jpg"},
	})
	stored, err := fx.eventRepo.FindByID(context.Background(), id)
	require.NoError(t, err)

	body, contentType := multipartBody(t, map[string]string{
		"removePhotos": stored.Photos[0],
		"location":     "Gaya",
	}, map[string][]string{"photos": {"three.jpg"}})
	req, _ := http.NewRequest(http.MethodPost, fmt.Sprintf("/events/%d/update", id), body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Test-Role", string(models.RoleAdmin))

	resp := performRequest(fx.router, req)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	require.Contains(t, resp.Body.String(), "Event updated successfully")

	current, err := fx.eventRepo.FindByID(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, current.Photos, 2)
	require.Equal(t, stored.Photos[1], current.Photos[0])
	require.Equal(t, "Gaya", current.Location)
}

func TestEventHandlerUpdateMissingEvent(t *testing.T) {
	fx := buildRouter(t)

	body, contentType := multipartBody(t, map[string]string{"location": "Gaya"}, nil)
	req, _ := http.NewRequest(http.MethodPost, "/events/999/update", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Test-Role", string(models.RoleAdmin))

	resp := performRequest(fx.router, req)
	require.Equal(t, http.StatusNotFound, resp.Code)
}

func TestEventHandlerDelete(t *testing.T) {
	fx := buildRouter(t)

	id := createEvent(t, fx, defaultCreateFields(), nil)

	req, _ := http.NewRequest(http.MethodDelete, fmt.Sprintf("/events/%d", id), nil)
	req.Header.Set("X-Test-Role", string(models.RoleAdmin))
	resp := performRequest(fx.router, req)
	require.Equal(t, http.StatusOK, resp.Code)

	req, _ = http.NewRequest(http.MethodGet, fmt.Sprintf("/events/%d", id), nil)
	resp = performRequest(fx.router, req)
	require.Equal(t, http.StatusNotFound, resp.Code)
}

func TestEventHandlerListClassification(t *testing.T) {
	fx := buildRouter(t)

	past := defaultCreateFields()
	past["name"] = "past"
	past["start_datetime"] = time.Now().Add(-3 * time.Hour).Format(time.RFC3339)
	past["end_datetime"] = time.Now().Add(-time.Hour).Format(time.RFC3339)
	createEvent(t, fx, past, nil)

	future := defaultCreateFields()
	future["name"] = "future"
	future["start_datetime"] = time.Now().Add(time.Hour).Format(time.RFC3339)
	future["end_datetime"] = time.Now().Add(3 * time.Hour).Format(time.RFC3339)
	createEvent(t, fx, future, nil)

	assertNames := func(query string, want []string) {
		req, _ := http.NewRequest(http.MethodGet, "/events"+query, nil)
		resp := performRequest(fx.router, req)
		require.Equal(t, http.StatusOK, resp.Code)
		var envelope struct {
			Data []models.Event `json:"data"`
		}
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &envelope))
		names := make([]string, 0, len(envelope.Data))
		for _, event := range envelope.Data {
			names = append(names, event.Name)
		}
		require.ElementsMatch(t, want, names)
	}

	assertNames("?type=ongoing", []string{"future"})
	assertNames("?type=previous", []string{"past"})
	assertNames("", []string{"future"})
}

func TestEventHandlerMarkViewedRequiresUserID(t *testing.T) {
	fx := buildRouter(t)

	id := createEvent(t, fx, defaultCreateFields(), nil)

	req, _ := http.NewRequest(http.MethodPost, fmt.Sprintf("/events/%d/view", id), bytes.NewBufferString(`{}`))
	req.Header.Set("Content-Type", "application/json")
	resp := performRequest(fx.router, req)
	require.Equal(t, http.StatusBadRequest, resp.Code)

	req, _ = http.NewRequest(http.MethodPost, fmt.Sprintf("/events/%d/view", id), bytes.NewBufferString(`{"userId":7}`))
	req.Header.Set("Content-Type", "application/json")
	resp = performRequest(fx.router, req)
	require.Equal(t, http.StatusOK, resp.Code)
	require.Contains(t, resp.Body.String(), `"success":true`)
}
