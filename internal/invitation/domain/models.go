// Package domain holds organization invitations. Each invitation owns the
// PENDING user it created until the invitee accepts.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	identitydomain "github.com/smallbiznis/carelog/internal/identity/domain"
)

type Status string

const (
	StatusPending  Status = "PENDING"
	StatusAccepted Status = "ACCEPTED"
	StatusRevoked  Status = "REVOKED"
)

type Invitation struct {
	ID         snowflake.ID        `gorm:"primaryKey" json:"id"`
	OrgID      snowflake.ID        `gorm:"not null;index" json:"org_id"`
	UserID     snowflake.ID        `gorm:"not null;index" json:"user_id"`
	Email      string              `gorm:"type:varchar(320);not null" json:"email"`
	Role       identitydomain.Role `gorm:"type:varchar(16);not null" json:"role"`
	Code       string              `gorm:"type:varchar(26);not null;uniqueIndex:ux_invitations_code" json:"code,omitempty"`
	Status     Status              `gorm:"type:varchar(16);not null;index" json:"status"`
	InvitedBy  snowflake.ID        `gorm:"not null" json:"invited_by"`
	CreatedAt  time.Time           `gorm:"not null" json:"created_at"`
	AcceptedAt *time.Time          `json:"accepted_at,omitempty"`
}

// TableName sets the database table name.
func (Invitation) TableName() string { return "invitations" }
