package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// LoginRequest carries the 4-digit access code.
type LoginRequest struct {
	Code string `json:"code" validate:"required,len=4,numeric"`
}

// LoginResponse returns the issued token and user info.
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresIn int64     `json:"expires_in"`
	User      UserInfo  `json:"user"`
	IssuedAt  time.Time `json:"issued_at"`
}

// UserInfo describes the authenticated user in responses.
type UserInfo struct {
	ID                int64      `json:"id"`
	Name              string     `json:"name"`
	Role              UserRole   `json:"role"`
	Designation       string     `json:"designation"`
	LastVisit         *time.Time `json:"last_visit,omitempty"`
	MonthlyVisitCount int        `json:"monthly_visit_count"`
}

// JWTClaims represents the JWT payload for access tokens.
type JWTClaims struct {
	UserID      int64    `json:"user_id"`
	Role        UserRole `json:"role"`
	Name        string   `json:"name"`
	Designation string   `json:"designation"`
	jwt.RegisteredClaims
}
