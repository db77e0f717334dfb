package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	GetBySubject(ctx context.Context, subject string) (*User, error)
	GetByID(ctx context.Context, id snowflake.ID) (*User, error)
	SetActiveRole(ctx context.Context, userID snowflake.ID, role Role) error
}

// OrganizationSummary is the part of the organization shown on /me.
type OrganizationSummary struct {
	ID   snowflake.ID `json:"id"`
	Name string       `json:"name"`
	Slug string       `json:"slug"`
	Plan string       `json:"plan"`
}

type Profile struct {
	ID           snowflake.ID         `json:"id"`
	Email        string               `json:"email"`
	FirstName    string               `json:"first_name"`
	LastName     string               `json:"last_name"`
	Status       UserStatus           `json:"status"`
	Roles        RoleSet              `json:"roles"`
	ActiveRole   Role                 `json:"active_role"`
	Organization *OrganizationSummary `json:"organization,omitempty"`
}

type Service interface {
	// Authenticate verifies the credential and resolves the local principal.
	Authenticate(ctx context.Context, credential Credential) (Principal, Claims, error)
	Verify(ctx context.Context, credential Credential) (Claims, error)
	Resolve(ctx context.Context, claims Claims) (Principal, error)
	SetActiveRole(ctx context.Context, principal Principal, role Role) (Principal, error)
	Me(ctx context.Context, principal Principal) (Profile, error)
}

type CredentialKind string

const (
	CredentialBearer CredentialKind = "bearer"
	CredentialCookie CredentialKind = "cookie"
)

// Credential is an unverified value lifted from the request.
type Credential struct {
	Kind  CredentialKind
	Value string
}
