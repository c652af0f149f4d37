package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// EventLevel distinguishes district-level from block-level events.
type EventLevel string

const (
	LevelJila  EventLevel = "jila"
	LevelBlock EventLevel = "block"
)

// EventClassification partitions events by comparing end time to now. It is
// computed at query time, never stored.
type EventClassification string

const (
	ClassificationOngoing  EventClassification = "ongoing"
	ClassificationPrevious EventClassification = "previous"
)

// StringList is an ordered sequence of attachment URLs persisted as a JSON
// array in a text column. Malformed stored values scan to an empty list so a
// corrupt row never takes the whole event down with it.
type StringList []string

// Value marshals the list to JSON for persistence.
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		l = StringList{}
	}
	data, err := json.Marshal(l)
	if err != nil {
		return nil, fmt.Errorf("marshal url list: %w", err)
	}
	return string(data), nil
}

// Scan unmarshals a stored JSON payload into the list.
func (l *StringList) Scan(value interface{}) error {
	if value == nil {
		*l = StringList{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for StringList", value)
	}
	if len(data) == 0 {
		*l = StringList{}
		return nil
	}
	var out []string
	if err := json.Unmarshal(data, &out); err != nil {
		*l = StringList{}
		return nil
	}
	*l = out
	return nil
}

// Event is the central entity: a scheduled organizational activity with photo
// and video attachments and a reporting audience.
type Event struct {
	ID             int64      `db:"id" json:"id"`
	Name           string     `db:"name" json:"name"`
	Description    string     `db:"description" json:"description"`
	StartDatetime  time.Time  `db:"start_datetime" json:"start_datetime"`
	EndDatetime    time.Time  `db:"end_datetime" json:"end_datetime"`
	IssueDate      *time.Time `db:"issue_date" json:"issue_date,omitempty"`
	Location       string     `db:"location" json:"location"`
	Level          EventLevel `db:"level" json:"level"`
	EventType      string     `db:"event_type" json:"event_type"`
	AttendeesCount int        `db:"attendees_count" json:"attendees_count"`
	Photos         StringList `db:"photos" json:"photos"`
	MediaPhotos    StringList `db:"media_photos" json:"media_photos"`
	VideoPath      *string    `db:"video_path" json:"video_path"`
	CreatedBy      *int64     `db:"created_by" json:"created_by,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// AttachmentURLs collects every file URL the event owns, video included.
func (e *Event) AttachmentURLs() []string {
	urls := make([]string, 0, len(e.Photos)+len(e.MediaPhotos)+1)
	urls = append(urls, e.Photos...)
	urls = append(urls, e.MediaPhotos...)
	if e.VideoPath != nil && *e.VideoPath != "" {
		urls = append(urls, *e.VideoPath)
	}
	return urls
}
