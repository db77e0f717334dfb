// Package domain contains persistence models for the org service.
package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Plan is the subscription tier that gates staffing quotas.
type Plan string

const (
	PlanSolo  Plan = "SOLO"
	PlanTeam  Plan = "TEAM"
	PlanTrial Plan = "TRIAL"
)

func ParsePlan(value string) (Plan, bool) {
	switch plan := Plan(strings.ToUpper(strings.TrimSpace(value))); plan {
	case PlanSolo, PlanTeam, PlanTrial:
		return plan, true
	default:
		return "", false
	}
}

// Organization represents a tenant.
type Organization struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	Name       string       `gorm:"type:varchar(200);not null" json:"name"`
	Slug       string       `gorm:"type:varchar(200);not null;uniqueIndex:ux_organizations_slug" json:"slug"`
	NationalID string       `gorm:"column:national_id;type:varchar(64)" json:"national_id,omitempty"`
	Plan       Plan         `gorm:"type:varchar(16);not null" json:"plan"`
	CreatedAt  time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time    `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Organization) TableName() string { return "organizations" }

// PlanLimit overrides the configured assistant quota for one organization.
type PlanLimit struct {
	OrgID         snowflake.ID `gorm:"primaryKey" json:"org_id"`
	AssistantsMax int          `gorm:"not null" json:"assistants_max"`
	UpdatedAt     time.Time    `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (PlanLimit) TableName() string { return "plan_limits" }
