package models

import "time"

// UserRole represents the two access levels in the reporting workflow.
type UserRole string

const (
	RoleAdmin UserRole = "admin"
	RoleUser  UserRole = "user"
)

// DesignationDistrictChair is the free-text label carried by district-level
// office holders; the creator picker filters on it by default.
const DesignationDistrictChair = "जिला अध्यक्ष"

// User represents an application user stored in the users table. Users log in
// with a 4-digit code; every successful login bumps the monthly visit counter.
type User struct {
	ID                int64      `db:"id" json:"id"`
	Code              string     `db:"code" json:"-"`
	Name              string     `db:"name" json:"name"`
	Role              UserRole   `db:"role" json:"role"`
	Designation       string     `db:"designation" json:"designation"`
	LastVisit         *time.Time `db:"last_visit" json:"last_visit,omitempty"`
	MonthlyVisitCount int        `db:"monthly_visit_count" json:"monthly_visit_count"`
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Role        *UserRole
	Designation string
}
