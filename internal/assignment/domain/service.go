package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	identitydomain "github.com/smallbiznis/carelog/internal/identity/domain"
	"gorm.io/gorm"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Insert(ctx context.Context, a *PatientAssignment) error
	End(ctx context.Context, a *PatientAssignment) error
	ActiveForPatient(ctx context.Context, patientID snowflake.ID) (*PatientAssignment, error)
	HistoryForPatient(ctx context.Context, patientID snowflake.ID) ([]PatientAssignment, error)
	SetPointer(ctx context.Context, patientID snowflake.ID, psychologistID *snowflake.ID) error
	ListPatientsOf(ctx context.Context, orgID, psychologistID snowflake.ID) ([]identitydomain.User, error)
	ListUnassigned(ctx context.Context, orgID snowflake.ID) ([]identitydomain.User, error)
}

type Service interface {
	Assign(ctx context.Context, principal identitydomain.Principal, patientID, psychologistID snowflake.ID) (*PatientAssignment, error)
	Unassign(ctx context.Context, principal identitydomain.Principal, patientID snowflake.ID) (*PatientAssignment, error)
	ListMine(ctx context.Context, principal identitydomain.Principal, psychologistID snowflake.ID) ([]PatientSummary, error)
	ListPool(ctx context.Context, principal identitydomain.Principal) ([]PatientSummary, error)
	ActiveForPatient(ctx context.Context, patientID snowflake.ID) (*PatientAssignment, error)
	History(ctx context.Context, principal identitydomain.Principal, patientID snowflake.ID) ([]PatientAssignment, error)
	// IsAssignedTo reports whether psychologistID holds the ACTIVE assignment of patientID.
	IsAssignedTo(ctx context.Context, patientID, psychologistID snowflake.ID) (bool, error)
}

type AssignRequest struct {
	PatientID      snowflake.ID `json:"patient_id" validate:"required"`
	PsychologistID snowflake.ID `json:"psychologist_id" validate:"required"`
}

type UnassignRequest struct {
	PatientID snowflake.ID `json:"patient_id" validate:"required"`
}

var (
	ErrInvalidPatient       = errors.New("invalid_patient")
	ErrInvalidPsychologist  = errors.New("invalid_psychologist")
	ErrPatientNotFound      = errors.New("patient_not_found")
	ErrPsychologistNotFound = errors.New("psychologist_not_found")
	ErrNotInScope           = errors.New("not_in_scope")
	ErrSelfAssignOnly       = errors.New("self_assign_only")
	ErrAlreadyAssigned      = errors.New("already_assigned")
	ErrNoActiveAssignment   = errors.New("no_active_assignment")
	ErrPatientInactive      = errors.New("patient_inactive")
	ErrPsychologistInactive = errors.New("psychologist_inactive")
)
