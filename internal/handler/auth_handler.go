package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jansampark/event-desk-api/internal/models"
	"github.com/jansampark/event-desk-api/internal/service"
	appErrors "github.com/jansampark/event-desk-api/pkg/errors"
	"github.com/jansampark/event-desk-api/pkg/response"
)

// AuthHandler wires HTTP endpoints to the auth service.
type AuthHandler struct {
	service *service.AuthService
}

// NewAuthHandler creates a new handler.
func NewAuthHandler(svc *service.AuthService) *AuthHandler {
	return &AuthHandler{service: svc}
}

// Login godoc
// @Summary Authenticate by access code
// @Description Exchange a 4-digit access code for a signed token
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.LoginRequest true "Login payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid login payload"))
		return
	}

	res, err := h.service.Login(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, res)
}

// Users godoc
// @Summary List users for the creator picker
// @Tags Authentication
// @Produce json
// @Param role query string false "Role filter (defaults to user)"
// @Param designation query string false "Designation filter"
// @Success 200 {object} response.Envelope
// @Router /auth/users [get]
func (h *AuthHandler) Users(c *gin.Context) {
	filter := models.UserFilter{Designation: c.Query("designation")}
	if raw := c.Query("role"); raw != "" {
		role := models.UserRole(raw)
		filter.Role = &role
	}

	users, err := h.service.ListUsers(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, users)
}
