package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	identitydomain "github.com/smallbiznis/carelog/internal/identity/domain"
	"gorm.io/gorm"
)

// MemberFilter narrows ListMembers. Zero values match everything except
// DELETED users, which are never listed.
type MemberFilter struct {
	Role   identitydomain.Role
	Status identitydomain.UserStatus
}

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateOrganization(ctx context.Context, org *Organization) error
	GetOrganization(ctx context.Context, id snowflake.ID) (*Organization, error)
	// LockOrganization reads the row with FOR UPDATE where the dialect supports it.
	LockOrganization(ctx context.Context, id snowflake.ID) (*Organization, error)
	ListOrganizations(ctx context.Context) ([]Organization, error)
	UpdatePlan(ctx context.Context, id snowflake.ID, plan Plan, at time.Time) error
	SlugExists(ctx context.Context, slug string) (bool, error)

	CreateUser(ctx context.Context, user *identitydomain.User, roles []identitydomain.Role) error
	GetMember(ctx context.Context, orgID, userID snowflake.ID) (*identitydomain.User, error)
	ListMembers(ctx context.Context, orgID snowflake.ID, filter MemberFilter) ([]identitydomain.User, error)
	SetUserStatus(ctx context.Context, userID snowflake.ID, status identitydomain.UserStatus, at time.Time) error
	// EndAssignmentsOf ends every ACTIVE assignment where the user is the
	// patient or the psychologist and clears the matching pointers.
	EndAssignmentsOf(ctx context.Context, userID, endedBy snowflake.ID, at time.Time) (int64, error)
	RevokeInvitationsOf(ctx context.Context, userID snowflake.ID) error
}
