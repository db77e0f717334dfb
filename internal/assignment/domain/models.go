// Package domain holds the assignment ledger: which psychologist treats which
// patient, with full history.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	identitydomain "github.com/smallbiznis/carelog/internal/identity/domain"
)

type Status string

const (
	StatusActive Status = "ACTIVE"
	StatusEnded  Status = "ENDED"
)

// PatientAssignment is one row of the ledger. ActivePatientID mirrors
// PatientID while the row is ACTIVE and is NULL once ENDED; its unique index
// allows at most one ACTIVE row per patient.
type PatientAssignment struct {
	ID              snowflake.ID  `gorm:"primaryKey" json:"id"`
	OrgID           snowflake.ID  `gorm:"not null;index" json:"org_id"`
	PatientID       snowflake.ID  `gorm:"not null;index" json:"patient_id"`
	PsychologistID  snowflake.ID  `gorm:"not null;index:ix_patient_assignments_psychologist_status,priority:1" json:"psychologist_id"`
	Status          Status        `gorm:"type:varchar(16);not null;index:ix_patient_assignments_psychologist_status,priority:2" json:"status"`
	ActivePatientID *snowflake.ID `gorm:"uniqueIndex:ux_patient_assignments_active" json:"-"`
	StartedAt       time.Time     `gorm:"not null" json:"started_at"`
	EndedAt         *time.Time    `json:"ended_at,omitempty"`
	AssignedBy      snowflake.ID  `gorm:"not null" json:"assigned_by"`
	EndedBy         *snowflake.ID `json:"ended_by,omitempty"`
}

// TableName sets the database table name.
func (PatientAssignment) TableName() string { return "patient_assignments" }

func (a PatientAssignment) IsActive() bool { return a.Status == StatusActive }

// PatientSummary is the list view of a patient.
type PatientSummary struct {
	ID                     snowflake.ID              `json:"id"`
	FirstName              string                    `json:"first_name"`
	LastName               string                    `json:"last_name"`
	Email                  string                    `json:"email"`
	Status                 identitydomain.UserStatus `json:"status"`
	AssignedPsychologistID *snowflake.ID             `json:"assigned_psychologist_id,omitempty"`
}

func SummaryFromUser(u identitydomain.User) PatientSummary {
	return PatientSummary{
		ID:                     u.ID,
		FirstName:              u.FirstName,
		LastName:               u.LastName,
		Email:                  u.Email,
		Status:                 u.Status,
		AssignedPsychologistID: u.AssignedPsychologistID,
	}
}
