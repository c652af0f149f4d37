package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jansampark/event-desk-api/internal/models"
	"github.com/jansampark/event-desk-api/internal/service"
)

type memUserRepo struct {
	users map[string]*models.User
}

func (r *memUserRepo) FindByCode(ctx context.Context, code string) (*models.User, error) {
	if user, ok := r.users[code]; ok {
		clone := *user
		return &clone, nil
	}
	return nil, sql.ErrNoRows
}

func (r *memUserRepo) FindByID(ctx context.Context, id int64) (*models.User, error) {
	for _, user := range r.users {
		if user.ID == id {
			clone := *user
			return &clone, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r *memUserRepo) RecordVisit(ctx context.Context, id int64) error {
	for _, user := range r.users {
		if user.ID == id {
			now := time.Now()
			user.LastVisit = &now
			user.MonthlyVisitCount++
		}
	}
	return nil
}

func (r *memUserRepo) List(ctx context.Context, filter models.UserFilter) ([]models.User, error) {
	out := []models.User{}
	for _, user := range r.users {
		if filter.Role != nil && user.Role != *filter.Role {
			continue
		}
		if filter.Designation != "" && user.Designation != filter.Designation {
			continue
		}
		out = append(out, *user)
	}
	return out, nil
}

func buildAuthRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := &memUserRepo{users: map[string]*models.User{
		"1234": {ID: 7, Code: "1234", Name: "Asha", Role: models.RoleUser, Designation: models.DesignationDistrictChair},
	}}
	authSvc := service.NewAuthService(repo, nil, zap.NewNop(), service.AuthConfig{
		TokenSecret: "test-secret",
		TokenExpiry: time.Hour,
	})
	authHandler := NewAuthHandler(authSvc)

	router := gin.New()
	router.POST("/auth/login", authHandler.Login)
	router.GET("/auth/users", authHandler.Users)
	return router
}

func TestAuthHandlerLoginSuccess(t *testing.T) {
	router := buildAuthRouter(t)

	req, _ := http.NewRequest(http.MethodPost, "/auth/login", bytes.NewBufferString(`{"code":"1234"}`))
	req.Header.Set("Content-Type", "application/json")
	resp := performRequest(router, req)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var envelope struct {
		Success bool                 `json:"success"`
		Data    models.LoginResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &envelope))
	require.True(t, envelope.Success)
	require.NotEmpty(t, envelope.Data.Token)
	require.Equal(t, int64(7), envelope.Data.User.ID)
	require.Equal(t, 1, envelope.Data.User.MonthlyVisitCount)
}

func TestAuthHandlerLoginFailures(t *testing.T) {
	router := buildAuthRouter(t)

	req, _ := http.NewRequest(http.MethodPost, "/auth/login", bytes.NewBufferString(`{"code":"12"}`))
	req.Header.Set("Content-Type", "application/json")
	resp := performRequest(router, req)
	require.Equal(t, http.StatusBadRequest, resp.Code)

	req, _ = http.NewRequest(http.MethodPost, "/auth/login", bytes.NewBufferString(`{"code":"9999"}`))
	req.Header.Set("Content-Type", "application/json")
	resp = performRequest(router, req)
	require.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestAuthHandlerUsersDefaultsFilter(t *testing.T) {
	router := buildAuthRouter(t)

	req, _ := http.NewRequest(http.MethodGet, "/auth/users", nil)
	resp := performRequest(router, req)
	require.Equal(t, http.StatusOK, resp.Code)

	var envelope struct {
		Data []models.User `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &envelope))
	require.Len(t, envelope.Data, 1)
	require.Equal(t, "Asha", envelope.Data[0].Name)
}
