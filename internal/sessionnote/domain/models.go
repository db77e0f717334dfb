// Package domain holds session notes: one per patient, psychologist and
// calendar day, editable for a fixed window after creation.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// SessionNote is the stored row. Content is sealed and never serialized.
type SessionNote struct {
	ID             snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID          snowflake.ID `gorm:"not null;index" json:"org_id"`
	PatientID      snowflake.ID `gorm:"not null;uniqueIndex:ux_session_notes_daily,priority:1" json:"patient_id"`
	PsychologistID snowflake.ID `gorm:"not null;uniqueIndex:ux_session_notes_daily,priority:2" json:"psychologist_id"`
	SessionDate    string       `gorm:"type:varchar(10);not null;uniqueIndex:ux_session_notes_daily,priority:3" json:"session_date"`
	AssignmentID   snowflake.ID `gorm:"not null;index" json:"assignment_id"`
	Content        string       `gorm:"type:text;not null" json:"-"`
	EditableUntil  time.Time    `gorm:"not null" json:"editable_until"`
	CreatedAt      time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time    `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (SessionNote) TableName() string { return "session_notes" }

// EditableAt reports whether the note may still change at now. The window
// is half-open: at exactly EditableUntil the note is locked.
func (n SessionNote) EditableAt(now time.Time) bool {
	return now.Before(n.EditableUntil)
}

// Note is the decrypted view returned to callers.
type Note struct {
	ID             snowflake.ID `json:"id"`
	PatientID      snowflake.ID `json:"patient_id"`
	PsychologistID snowflake.ID `json:"psychologist_id"`
	AssignmentID   snowflake.ID `json:"assignment_id"`
	SessionDate    string       `json:"session_date"`
	Content        string       `json:"content"`
	EditableUntil  time.Time    `json:"editable_until"`
	Editable       bool         `json:"editable"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}
