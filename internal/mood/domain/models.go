// Package domain holds daily mood check-ins recorded by patients.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	identitydomain "github.com/smallbiznis/carelog/internal/identity/domain"
)

const (
	MinScore         = 1
	MaxScore         = 10
	MaxCommentLength = 1000
)

// MoodEntry holds at most one row per patient per calendar day.
type MoodEntry struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID     snowflake.ID `gorm:"not null;index" json:"org_id"`
	PatientID snowflake.ID `gorm:"not null;uniqueIndex:ux_mood_entries_daily,priority:1" json:"patient_id"`
	EntryDate string       `gorm:"type:varchar(10);not null;uniqueIndex:ux_mood_entries_daily,priority:2" json:"entry_date"`
	Score     int          `gorm:"not null" json:"score"`
	Comment   *string      `gorm:"type:text" json:"comment,omitempty"`
	CreatedAt time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (MoodEntry) TableName() string { return "mood_entries" }

type RecordRequest struct {
	Score   *int    `json:"score" validate:"required,min=1,max=10"`
	Comment *string `json:"comment" validate:"omitempty,max=1000"`
}

type ListRequest struct {
	From string `form:"from" validate:"omitempty,datetime=2006-01-02"`
	To   string `form:"to" validate:"omitempty,datetime=2006-01-02"`
}

type Repository interface {
	// Upsert writes the day's entry and reports whether the row was new.
	Upsert(ctx context.Context, entry *MoodEntry) (*MoodEntry, bool, error)
	ListForPatient(ctx context.Context, patientID snowflake.ID, from, to string) ([]MoodEntry, error)
}

type Service interface {
	// Record upserts today's entry and reports whether a new row was created.
	Record(ctx context.Context, principal identitydomain.Principal, score int, comment *string) (*MoodEntry, bool, error)
	ListForPatient(ctx context.Context, principal identitydomain.Principal, patientID snowflake.ID, from, to string) ([]MoodEntry, error)
}

var (
	ErrInvalidScore   = errors.New("invalid_score")
	ErrCommentTooLong = errors.New("comment_too_long")
	ErrInvalidRange   = errors.New("invalid_range")
	ErrPatientOnly    = errors.New("patient_only")
)
