package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	identitydomain "github.com/smallbiznis/carelog/internal/identity/domain"
	"gorm.io/gorm"
)

type InviteRequest struct {
	Email      string `json:"email" validate:"required,email,max=320"`
	FirstName  string `json:"first_name" validate:"required,max=120"`
	LastName   string `json:"last_name" validate:"required,max=120"`
	NationalID string `json:"national_id" validate:"max=64"`
	Role       string `json:"role" validate:"required,oneof=ADMIN ASSISTANT PSYCHOLOGIST PATIENT"`
}

type AcceptRequest struct {
	Code string `json:"code" validate:"required,len=26"`
}

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Insert(ctx context.Context, inv *Invitation) error
	Get(ctx context.Context, orgID, id snowflake.ID) (*Invitation, error)
	GetByCode(ctx context.Context, code string) (*Invitation, error)
	ListPending(ctx context.Context, orgID snowflake.ID) ([]Invitation, error)
	// EmailInUse reports whether a non-deleted user of orgID, pending
	// invitees included, already has email.
	EmailInUse(ctx context.Context, orgID snowflake.ID, email string) (bool, error)
	SetStatus(ctx context.Context, id snowflake.ID, from, to Status, acceptedAt *time.Time) (bool, error)
	// ActivateUser binds subject to a PENDING user and makes it ACTIVE.
	ActivateUser(ctx context.Context, userID snowflake.ID, subject string, at time.Time) (bool, error)
}

type Service interface {
	Invite(ctx context.Context, principal identitydomain.Principal, req InviteRequest) (*Invitation, error)
	Accept(ctx context.Context, claims identitydomain.Claims, code string) (*Invitation, error)
	ListPending(ctx context.Context, principal identitydomain.Principal) ([]Invitation, error)
	Revoke(ctx context.Context, principal identitydomain.Principal, id snowflake.ID) error
}

var (
	ErrInvalidRole          = errors.New("invalid_role")
	ErrInvalidEmail         = errors.New("invalid_email")
	ErrRoleNotInvitable     = errors.New("role_not_invitable")
	ErrDuplicateInvitation  = errors.New("duplicate_invitation")
	ErrInvitationNotFound   = errors.New("invitation_not_found")
	ErrInvitationNotPending = errors.New("invitation_not_pending")
	ErrSubjectAlreadyBound  = errors.New("subject_already_bound")
	ErrRateLimited          = errors.New("rate_limited")
	ErrLimiterUnavailable   = errors.New("rate_limiter_unavailable")
)

// RateLimitError carries the suggested wait of a throttled invite.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string { return ErrRateLimited.Error() }

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }
