package models

import "time"

// EventView tracks one user's interaction with one event. The (event, user)
// pair is kept unique by lookup-then-write, not by a database constraint.
// Flags are 0/1 and are never unset once set.
type EventView struct {
	ID             int64     `db:"id" json:"id"`
	EventID        int64     `db:"event_id" json:"event_id"`
	UserID         int64     `db:"user_id" json:"user_id"`
	Viewed         int       `db:"viewed" json:"viewed"`
	UpdatedDetails int       `db:"updated_details" json:"updated_details"`
	Accepted       int       `db:"accepted" json:"accepted"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// ReportRow is the left-join projection of every user against their view
// record for a single event. Flags default to 0 when no record exists.
type ReportRow struct {
	ID          int64  `db:"id" json:"id"`
	Name        string `db:"name" json:"name"`
	Designation string `db:"designation" json:"designation"`
	Viewed      int    `db:"viewed" json:"viewed"`
	Updated     int    `db:"updated" json:"updated"`
	Accepted    int    `db:"accepted" json:"accepted"`
}
