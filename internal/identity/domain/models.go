// Package domain contains the identity models shared by every service.
package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

type UserStatus string

const (
	UserStatusActive    UserStatus = "ACTIVE"
	UserStatusInactive  UserStatus = "INACTIVE"
	UserStatusPending   UserStatus = "PENDING"
	UserStatusSuspended UserStatus = "SUSPENDED"
	UserStatusDeleted   UserStatus = "DELETED"
)

// User is a local account. ExternalSubject binds it to the identity
// provider and stays nil until an invitation is accepted.
type User struct {
	ID                     snowflake.ID  `gorm:"primaryKey" json:"id"`
	ExternalSubject        *string       `gorm:"type:varchar(255);uniqueIndex:ux_users_external_subject" json:"-"`
	Email                  string        `gorm:"type:varchar(320);not null;index" json:"email"`
	FirstName              string        `gorm:"type:varchar(120);not null" json:"first_name"`
	LastName               string        `gorm:"type:varchar(120);not null" json:"last_name"`
	NationalID             string        `gorm:"column:national_id;type:varchar(64)" json:"national_id,omitempty"`
	DateOfBirth            *time.Time    `gorm:"type:date" json:"date_of_birth,omitempty"`
	OrgID                  *snowflake.ID `gorm:"index" json:"org_id,omitempty"`
	Status                 UserStatus    `gorm:"type:varchar(16);not null;index" json:"status"`
	AssignedPsychologistID *snowflake.ID `gorm:"index" json:"assigned_psychologist_id,omitempty"`
	ActiveRole             *Role         `gorm:"type:varchar(16)" json:"active_role,omitempty"`
	Roles                  []UserRole    `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	CreatedAt              time.Time     `gorm:"not null" json:"created_at"`
	UpdatedAt              time.Time     `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (User) TableName() string { return "users" }

func (u User) RoleSet() RoleSet {
	var set RoleSet
	for _, r := range u.Roles {
		set = set.With(r.Role)
	}
	return set
}

func (u User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

func (u User) InOrg(orgID snowflake.ID) bool {
	return u.OrgID != nil && *u.OrgID == orgID
}

// UserRole grants one role to a user.
type UserRole struct {
	UserID    snowflake.ID `gorm:"primaryKey" json:"user_id"`
	Role      Role         `gorm:"primaryKey;type:varchar(16)" json:"role"`
	CreatedAt time.Time    `gorm:"not null" json:"created_at"`
}

// TableName sets the database table name.
func (UserRole) TableName() string { return "user_roles" }

// Claims is what the identity provider vouches for.
type Claims struct {
	Subject   string
	Email     string
	ExpiresAt time.Time
}

// Principal is the resolved caller of a request. It is computed once per
// request and never mutated.
type Principal struct {
	UserID     snowflake.ID
	OrgID      snowflake.ID
	Roles      RoleSet
	ActiveRole Role
	Status     UserStatus
	Name       string
	Email      string
}

func (p Principal) IsZero() bool {
	return p.UserID == 0
}

// ActorID renders the user id for audit entries.
func (p Principal) ActorID() *string {
	if p.IsZero() {
		return nil
	}
	id := p.UserID.String()
	return &id
}

// OrgPtr returns nil for principals without an organization.
func (p Principal) OrgPtr() *snowflake.ID {
	if p.OrgID == 0 {
		return nil
	}
	id := p.OrgID
	return &id
}

// PrincipalFromUser builds the immutable principal of u.
func PrincipalFromUser(u User) Principal {
	p := Principal{
		UserID: u.ID,
		Roles:  u.RoleSet(),
		Status: u.Status,
		Name:   u.FullName(),
		Email:  u.Email,
	}
	if u.OrgID != nil {
		p.OrgID = *u.OrgID
	}
	if u.ActiveRole != nil && p.Roles.Has(*u.ActiveRole) {
		p.ActiveRole = *u.ActiveRole
	} else if roles := p.Roles.Roles(); len(roles) > 0 {
		p.ActiveRole = roles[0]
	}
	return p
}
