package handler

import (
	"encoding/json"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jansampark/event-desk-api/internal/models"
	"github.com/jansampark/event-desk-api/internal/service"
	appErrors "github.com/jansampark/event-desk-api/pkg/errors"
	"github.com/jansampark/event-desk-api/pkg/response"
)

// EventHandler wires the event lifecycle endpoints to the event service.
type EventHandler struct {
	events *service.EventService
	views  *service.ViewService
}

// NewEventHandler creates a new handler.
func NewEventHandler(events *service.EventService, views *service.ViewService) *EventHandler {
	return &EventHandler{events: events, views: views}
}

// datetimeLayouts covers the formats the legacy frontend submits.
var datetimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// List godoc
// @Summary List events by classification
// @Tags Events
// @Produce json
// @Param type query string false "ongoing or previous (defaults to ongoing)"
// @Success 200 {object} response.Envelope
// @Router /events [get]
func (h *EventHandler) List(c *gin.Context) {
	classification := models.EventClassification(c.Query("type"))
	events, err := h.events.List(c.Request.Context(), classification)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, events)
}

// Get godoc
// @Summary Get one event
// @Tags Events
// @Produce json
// @Param id path int true "Event ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /events/{id} [get]
func (h *EventHandler) Get(c *gin.Context) {
	id, err := parseEventID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	event, err := h.events.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, event)
}

// Create godoc
// @Summary Create an event
// @Description Multipart form with scalar fields plus photos[], mediaPhotos[] and video
// @Tags Events
// @Accept multipart/form-data
// @Produce json
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /events [post]
func (h *EventHandler) Create(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid multipart payload"))
		return
	}

	req, err := createRequestFromForm(form)
	if err != nil {
		response.Error(c, err)
		return
	}

	event, err := h.events.Create(c.Request.Context(), claimsFromContext(c), req, uploadsFromForm(form))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, event.ID)
}

// Update godoc
// @Summary Update an event
// @Description Multipart form with present-only scalar fields, removal lists and new uploads
// @Tags Events
// @Accept multipart/form-data
// @Produce json
// @Param id path int true "Event ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /events/{id}/update [post]
func (h *EventHandler) Update(c *gin.Context) {
	id, err := parseEventID(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid multipart payload"))
		return
	}

	req, err := updateRequestFromForm(form)
	if err != nil {
		response.Error(c, err)
		return
	}

	if _, err := h.events.Update(c.Request.Context(), claimsFromContext(c), id, req, uploadsFromForm(form)); err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, "Event updated successfully")
}

// Delete godoc
// @Summary Delete an event with its views and files
// @Tags Events
// @Produce json
// @Param id path int true "Event ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /events/{id} [delete]
func (h *EventHandler) Delete(c *gin.Context) {
	id, err := parseEventID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.events.Delete(c.Request.Context(), claimsFromContext(c), id); err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, "Event deleted successfully")
}

type viewRequest struct {
	UserID int64 `json:"userId"`
}

// MarkViewed godoc
// @Summary Record that a user opened an event
// @Tags Events
// @Accept json
// @Produce json
// @Param id path int true "Event ID"
// @Param payload body viewRequest true "Viewing user"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /events/{id}/view [post]
func (h *EventHandler) MarkViewed(c *gin.Context) {
	id, err := parseEventID(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	var req viewRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.UserID == 0 {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "userId is required"))
		return
	}

	if err := h.views.MarkViewed(c.Request.Context(), id, req.UserID); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c)
}

func parseEventID(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, appErrors.Clone(appErrors.ErrValidation, "invalid event id")
	}
	return id, nil
}

func createRequestFromForm(form *multipart.Form) (service.CreateEventRequest, error) {
	req := service.CreateEventRequest{
		Name:        formValue(form, "name"),
		Description: formValue(form, "description"),
		Location:    formValue(form, "location"),
		Level:       models.EventLevel(formValue(form, "level")),
		EventType:   formValue(form, "event_type"),
	}

	start, err := requiredTime(form, "start_datetime")
	if err != nil {
		return req, err
	}
	end, err := requiredTime(form, "end_datetime")
	if err != nil {
		return req, err
	}
	req.StartDatetime = start
	req.EndDatetime = end

	issue, err := optionalTime(form, "issue_date")
	if err != nil {
		return req, err
	}
	req.IssueDate = issue

	createdBy, err := optionalInt64(form, "created_by")
	if err != nil {
		return req, err
	}
	req.CreatedBy = createdBy

	return req, nil
}

func updateRequestFromForm(form *multipart.Form) (service.UpdateEventRequest, error) {
	req := service.UpdateEventRequest{
		Name:        optionalString(form, "name"),
		Description: optionalString(form, "description"),
		Location:    optionalString(form, "location"),
		EventType:   optionalString(form, "event_type"),
	}

	if raw := formValue(form, "level"); raw != "" {
		level := models.EventLevel(raw)
		req.Level = &level
	}

	for _, field := range []struct {
		key  string
		dest **time.Time
	}{
		{"start_datetime", &req.StartDatetime},
		{"end_datetime", &req.EndDatetime},
		{"issue_date", &req.IssueDate},
	} {
		value, err := optionalTime(form, field.key)
		if err != nil {
			return req, err
		}
		*field.dest = value
	}

	if raw := formValue(form, "attendees_count"); raw != "" {
		count, err := strconv.Atoi(raw)
		if err != nil || count < 0 {
			return req, appErrors.Clone(appErrors.ErrValidation, "attendees_count must be a non-negative integer")
		}
		req.AttendeesCount = &count
	}

	req.RemovePhotos = formValues(form, "removePhotos")
	req.RemoveMediaPhotos = formValues(form, "removeMediaPhotos")
	if raw := formValue(form, "removeVideo"); raw != "" {
		req.RemoveVideo = raw == "true" || raw == "1"
	}

	userID, err := optionalInt64(form, "userId")
	if err != nil {
		return req, err
	}
	req.UserID = userID

	return req, nil
}

func uploadsFromForm(form *multipart.Form) service.EventUploads {
	uploads := service.EventUploads{
		Photos:      fileHeaders(form, "photos"),
		MediaPhotos: fileHeaders(form, "mediaPhotos"),
	}
	if videos := fileHeaders(form, "video"); len(videos) > 0 {
		uploads.Video = videos[0]
	}
	return uploads
}

func fileHeaders(form *multipart.Form, key string) []*multipart.FileHeader {
	if files := form.File[key]; len(files) > 0 {
		return files
	}
	return form.File[key+"[]"]
}

func formValue(form *multipart.Form, key string) string {
	if values := form.Value[key]; len(values) > 0 {
		return strings.TrimSpace(values[0])
	}
	return ""
}

// formValues accepts repeated fields, the PHP-style bracket suffix, and a
// single JSON-encoded array, all of which the legacy frontend has sent.
func formValues(form *multipart.Form, key string) []string {
	values := form.Value[key]
	if len(values) == 0 {
		values = form.Value[key+"[]"]
	}
	if len(values) == 1 && strings.HasPrefix(strings.TrimSpace(values[0]), "[") {
		var decoded []string
		if err := json.Unmarshal([]byte(values[0]), &decoded); err == nil {
			return decoded
		}
	}
	return values
}

func optionalString(form *multipart.Form, key string) *string {
	if values := form.Value[key]; len(values) > 0 {
		value := values[0]
		return &value
	}
	return nil
}

func optionalInt64(form *multipart.Form, key string) (*int64, error) {
	raw := formValue(form, key)
	if raw == "" {
		return nil, nil
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, key+" must be numeric")
	}
	return &value, nil
}

func requiredTime(form *multipart.Form, key string) (time.Time, error) {
	raw := formValue(form, key)
	if raw == "" {
		return time.Time{}, appErrors.Clone(appErrors.ErrValidation, key+" is required")
	}
	return parseDatetime(raw, key)
}

func optionalTime(form *multipart.Form, key string) (*time.Time, error) {
	raw := formValue(form, key)
	if raw == "" {
		return nil, nil
	}
	value, err := parseDatetime(raw, key)
	if err != nil {
		return nil, err
	}
	return &value, nil
}

func parseDatetime(raw, key string) (time.Time, error) {
	for _, layout := range datetimeLayouts {
		if value, err := time.Parse(layout, raw); err == nil {
			return value, nil
		}
	}
	return time.Time{}, appErrors.Clone(appErrors.ErrValidation, key+" has an invalid datetime format")
}
