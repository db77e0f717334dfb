package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	identitydomain "github.com/smallbiznis/carelog/internal/identity/domain"
)

type Service interface {
	Register(ctx context.Context, claims identitydomain.Claims, req RegisterRequest) (*RegisterResponse, error)
	Get(ctx context.Context, principal identitydomain.Principal, orgID snowflake.ID) (*Organization, error)
	List(ctx context.Context, principal identitydomain.Principal) ([]Organization, error)

	ListMembers(ctx context.Context, principal identitydomain.Principal, orgID snowflake.ID, filter MemberFilter) ([]Member, error)
	SetMemberStatus(ctx context.Context, principal identitydomain.Principal, orgID, userID snowflake.ID, status identitydomain.UserStatus) (*Member, error)
	RemoveMember(ctx context.Context, principal identitydomain.Principal, orgID, userID snowflake.ID) error
}

type RegisterRequest struct {
	OrganizationName string `json:"organization_name" validate:"required,max=200"`
	NationalID       string `json:"national_id" validate:"max=64"`
	Plan             string `json:"plan" validate:"required,oneof=SOLO TEAM TRIAL"`
	FirstName        string `json:"first_name" validate:"required,max=120"`
	LastName         string `json:"last_name" validate:"required,max=120"`
	Email            string `json:"email" validate:"omitempty,email,max=320"`
}

type RegisterResponse struct {
	Organization Organization `json:"organization"`
	User         Member       `json:"user"`
}

// Member is the public view of a user within an organization.
type Member struct {
	ID        snowflake.ID              `json:"id"`
	Email     string                    `json:"email"`
	FirstName string                    `json:"first_name"`
	LastName  string                    `json:"last_name"`
	Status    identitydomain.UserStatus `json:"status"`
	Roles     identitydomain.RoleSet    `json:"roles"`
}

func MemberFromUser(u identitydomain.User) Member {
	return Member{
		ID:        u.ID,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Status:    u.Status,
		Roles:     u.RoleSet(),
	}
}

var (
	ErrInvalidName          = errors.New("invalid_name")
	ErrInvalidPlan          = errors.New("invalid_plan")
	ErrInvalidStatus        = errors.New("invalid_status")
	ErrOrganizationNotFound = errors.New("organization_not_found")
	ErrMemberNotFound       = errors.New("member_not_found")
	ErrAlreadyRegistered    = errors.New("already_registered")
	ErrCannotModifySelf     = errors.New("cannot_modify_self")
	ErrCannotModifyOwner    = errors.New("cannot_modify_owner")
)
