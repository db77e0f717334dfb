// Package domain holds organization plan change requests.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	identitydomain "github.com/smallbiznis/carelog/internal/identity/domain"
	orgdomain "github.com/smallbiznis/carelog/internal/organization/domain"
	"gorm.io/gorm"
)

type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusDenied   Status = "DENIED"
)

// Request is a plan change asked by an owner and decided by a superadmin.
// PendingOrgID equals OrgID while PENDING and is NULL once decided, so at
// most one request per organization is pending.
type Request struct {
	ID            snowflake.ID   `gorm:"primaryKey" json:"id"`
	OrgID         snowflake.ID   `gorm:"not null;index" json:"org_id"`
	RequestedBy   snowflake.ID   `gorm:"not null" json:"requested_by"`
	CurrentPlan   orgdomain.Plan `gorm:"type:varchar(16);not null" json:"current_plan"`
	RequestedPlan orgdomain.Plan `gorm:"type:varchar(16);not null" json:"requested_plan"`
	Reason        string         `gorm:"type:text" json:"reason,omitempty"`
	Status        Status         `gorm:"type:varchar(16);not null;index" json:"status"`
	PendingOrgID  *snowflake.ID  `gorm:"uniqueIndex:ux_plan_change_requests_pending" json:"-"`
	DecidedBy     *snowflake.ID  `json:"decided_by,omitempty"`
	DecidedAt     *time.Time     `json:"decided_at,omitempty"`
	DecisionNote  string         `gorm:"type:text" json:"decision_note,omitempty"`
	CreatedAt     time.Time      `gorm:"not null" json:"created_at"`
}

// TableName sets the database table name.
func (Request) TableName() string { return "plan_change_requests" }

type CreateRequest struct {
	Plan   string `json:"plan" validate:"required,oneof=SOLO TEAM TRIAL"`
	Reason string `json:"reason" validate:"max=2000"`
}

type DecideRequest struct {
	Note string `json:"note" validate:"max=2000"`
}

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Insert(ctx context.Context, req *Request) error
	Lock(ctx context.Context, id snowflake.ID) (*Request, error)
	Decide(ctx context.Context, req *Request) error
	List(ctx context.Context, orgID *snowflake.ID, status Status) ([]Request, error)
}

type Service interface {
	Request(ctx context.Context, principal identitydomain.Principal, plan orgdomain.Plan, reason string) (*Request, error)
	List(ctx context.Context, principal identitydomain.Principal, status Status) ([]Request, error)
	Decide(ctx context.Context, principal identitydomain.Principal, id snowflake.ID, approve bool, note string) (*Request, error)
}

var (
	ErrSamePlan         = errors.New("same_plan")
	ErrPendingExists    = errors.New("pending_request_exists")
	ErrNotPending       = errors.New("request_not_pending")
	ErrNotFound         = errors.New("plan_change_request_not_found")
	ErrInvalidStatus    = errors.New("invalid_status")
	ErrDowngradeBlocked = errors.New("PLAN_DOWNGRADE_BLOCKED")
)
