// Package domain exposes patient records to staff and treating psychologists.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	identitydomain "github.com/smallbiznis/carelog/internal/identity/domain"
)

type Patient struct {
	ID                     snowflake.ID              `json:"id"`
	FirstName              string                    `json:"first_name"`
	LastName               string                    `json:"last_name"`
	Email                  string                    `json:"email"`
	NationalID             string                    `json:"national_id,omitempty"`
	DateOfBirth            *time.Time                `json:"date_of_birth,omitempty"`
	Status                 identitydomain.UserStatus `json:"status"`
	AssignedPsychologistID *snowflake.ID             `json:"assigned_psychologist_id,omitempty"`
	CreatedAt              time.Time                 `json:"created_at"`
}

func FromUser(u identitydomain.User) Patient {
	return Patient{
		ID:                     u.ID,
		FirstName:              u.FirstName,
		LastName:               u.LastName,
		Email:                  u.Email,
		NationalID:             u.NationalID,
		DateOfBirth:            u.DateOfBirth,
		Status:                 u.Status,
		AssignedPsychologistID: u.AssignedPsychologistID,
		CreatedAt:              u.CreatedAt,
	}
}

type Repository interface {
	ListInOrg(ctx context.Context, orgID snowflake.ID) ([]identitydomain.User, error)
	ListAssignedTo(ctx context.Context, orgID, psychologistID snowflake.ID) ([]identitydomain.User, error)
}

type Service interface {
	Get(ctx context.Context, principal identitydomain.Principal, patientID snowflake.ID) (*Patient, error)
	List(ctx context.Context, principal identitydomain.Principal) ([]Patient, error)
	// Lookup loads a non-deleted patient within the principal's
	// organization scope without checking the caller's relationship to it.
	Lookup(ctx context.Context, principal identitydomain.Principal, patientID snowflake.ID) (*identitydomain.User, error)
}

var ErrPatientNotFound = errors.New("patient_not_found")
