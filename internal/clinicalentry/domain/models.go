// Package domain holds clinical entries attached to an assignment.
package domain

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	identitydomain "github.com/smallbiznis/carelog/internal/identity/domain"
)

type Kind string

const (
	KindObservation   Kind = "OBSERVATION"
	KindAssessment    Kind = "ASSESSMENT"
	KindTreatmentPlan Kind = "TREATMENT_PLAN"
	KindHomework      Kind = "HOMEWORK"
	KindJournal       Kind = "JOURNAL"
)

func ParseKind(value string) (Kind, bool) {
	switch kind := Kind(strings.ToUpper(strings.TrimSpace(value))); kind {
	case KindObservation, KindAssessment, KindTreatmentPlan, KindHomework, KindJournal:
		return kind, true
	default:
		return "", false
	}
}

// ClinicalEntry is the stored row. Content is sealed.
type ClinicalEntry struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID        snowflake.ID `gorm:"not null;index" json:"org_id"`
	AssignmentID snowflake.ID `gorm:"not null;index" json:"assignment_id"`
	PatientID    snowflake.ID `gorm:"not null;index" json:"patient_id"`
	AuthorID     snowflake.ID `gorm:"not null" json:"author_id"`
	Kind         Kind         `gorm:"type:varchar(32);not null" json:"kind"`
	Content      string       `gorm:"type:text;not null" json:"-"`
	CreatedAt    time.Time    `gorm:"not null" json:"created_at"`
}

// TableName sets the database table name.
func (ClinicalEntry) TableName() string { return "clinical_entries" }

type Entry struct {
	ID           snowflake.ID `json:"id"`
	AssignmentID snowflake.ID `json:"assignment_id"`
	PatientID    snowflake.ID `json:"patient_id"`
	AuthorID     snowflake.ID `json:"author_id"`
	Kind         Kind         `json:"kind"`
	Content      string       `json:"content"`
	CreatedAt    time.Time    `json:"created_at"`
}

type CreateRequest struct {
	Kind    string `json:"kind" validate:"required,oneof=OBSERVATION ASSESSMENT TREATMENT_PLAN HOMEWORK JOURNAL"`
	Content string `json:"content" validate:"required,max=20000"`
}

type Repository interface {
	Insert(ctx context.Context, entry *ClinicalEntry) error
	ListForPatient(ctx context.Context, patientID snowflake.ID, psychologistID *snowflake.ID) ([]ClinicalEntry, error)
}

type Service interface {
	Create(ctx context.Context, principal identitydomain.Principal, patientID snowflake.ID, req CreateRequest) (*Entry, error)
	ListForPatient(ctx context.Context, principal identitydomain.Principal, patientID snowflake.ID) ([]Entry, error)
}

var (
	ErrInvalidKind     = errors.New("invalid_kind")
	ErrContentRequired = errors.New("content_required")
)
