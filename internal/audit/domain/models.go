package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ActorType string

const (
	ActorTypeUser   ActorType = "user"
	ActorTypeSystem ActorType = "system"
)

const (
	ActionAssignmentAssign       = "assignment.assign"
	ActionAssignmentUnassign     = "assignment.unassign"
	ActionSessionNoteCreate      = "session_note.create"
	ActionSessionNoteUpdate      = "session_note.update"
	ActionClinicalEntryCreate    = "clinical_entry.create"
	ActionMemberStatus           = "member.status"
	ActionMemberRemove           = "member.remove"
	ActionInvitationCreate       = "invitation.create"
	ActionInvitationAccept       = "invitation.accept"
	ActionInvitationRevoke       = "invitation.revoke"
	ActionOrganizationRegister   = "organization.register"
	ActionPlanChangeRequest      = "plan_change.request"
	ActionPlanChangeApprove      = "plan_change.approve"
	ActionPlanChangeDeny         = "plan_change.deny"
	ActionAuthorizationDenied    = "authorization.denied"
	ActionUserActiveRoleSwitched = "user.active_role"
)

// AuditLog is an immutable record of a state change or a denied request.
type AuditLog struct {
	ID          snowflake.ID      `gorm:"primaryKey" json:"id"`
	OrgID       *snowflake.ID     `gorm:"index:ix_audit_logs_org_created,priority:1" json:"org_id,omitempty"`
	ActorType   string            `gorm:"type:varchar(16);not null" json:"actor_type"`
	ActorID     *string           `gorm:"type:varchar(64)" json:"actor_id,omitempty"`
	Action      string            `gorm:"type:varchar(64);not null;index" json:"action"`
	TargetType  string            `gorm:"type:varchar(64);not null" json:"target_type"`
	TargetID    *string           `gorm:"type:varchar(64)" json:"target_id,omitempty"`
	Description string            `gorm:"type:text" json:"description,omitempty"`
	Metadata    datatypes.JSONMap `json:"metadata"`
	IPAddress   *string           `gorm:"type:varchar(64)" json:"ip_address,omitempty"`
	UserAgent   *string           `gorm:"type:text" json:"user_agent,omitempty"`
	CreatedAt   time.Time         `gorm:"not null;index:ix_audit_logs_org_created,priority:2" json:"created_at"`
}

// TableName sets the database table name.
func (AuditLog) TableName() string { return "audit_logs" }

type AuditCursor struct {
	ID        snowflake.ID
	CreatedAt time.Time
}

type ListFilter struct {
	OrgID      *snowflake.ID
	Action     string
	TargetType string
	TargetID   string
	ActorType  string
	StartAt    *time.Time
	EndAt      *time.Time
	Cursor     *AuditCursor
	Limit      int
}

// Repository has no update or delete: audit rows are append-only.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *AuditLog) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*AuditLog, error)
}
