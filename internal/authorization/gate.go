package authorization

import (
	"context"

	"github.com/bwmarrin/snowflake"
	identitydomain "github.com/smallbiznis/carelog/internal/identity/domain"
	"github.com/smallbiznis/carelog/internal/orgcontext"
)

// Elevated roles bypass psychologist ownership checks.
var elevated = identitydomain.NewRoleSet(
	identitydomain.RoleSuperadmin,
	identitydomain.RoleOwner,
	identitydomain.RoleAdmin,
)

// RequireAnyRole allows the principal when it holds at least one of the
// permitted roles.
func RequireAnyRole(principal identitydomain.Principal, permitted ...identitydomain.Role) error {
	if principal.IsZero() {
		return ErrUnauthorized
	}
	if !principal.Roles.HasAny(permitted...) {
		return ErrForbidden
	}
	return nil
}

// RequireOrg rejects principals acting outside their own organization.
// Superadmins are organization-agnostic.
func RequireOrg(principal identitydomain.Principal, orgID snowflake.ID) error {
	if principal.IsZero() {
		return ErrUnauthorized
	}
	if principal.Roles.Has(identitydomain.RoleSuperadmin) {
		return nil
	}
	if principal.OrgID == 0 || principal.OrgID != orgID {
		return ErrForbiddenOrganization
	}
	return nil
}

// RequireOrgMember combines RequireOrg with the target user's organization.
func RequireOrgMember(principal identitydomain.Principal, user identitydomain.User) error {
	if user.OrgID == nil {
		if principal.Roles.Has(identitydomain.RoleSuperadmin) {
			return nil
		}
		return ErrForbiddenOrganization
	}
	return RequireOrg(principal, *user.OrgID)
}

func IsElevated(principal identitydomain.Principal) bool {
	return principal.Roles&elevated != 0
}

func IsSuperadmin(principal identitydomain.Principal) bool {
	return principal.Roles.Has(identitydomain.RoleSuperadmin)
}

// IsStaff reports whether the principal sees every patient of its
// organization: elevated roles and assistants.
func IsStaff(principal identitydomain.Principal) bool {
	return IsElevated(principal) || principal.Roles.Has(identitydomain.RoleAssistant)
}

// OrgScope returns the organization a request acts in: the organization
// selected in ctx when the principal may act there, else the principal's own.
func OrgScope(ctx context.Context, principal identitydomain.Principal) (snowflake.ID, error) {
	if principal.IsZero() {
		return 0, ErrUnauthorized
	}
	if orgID, ok := orgcontext.OrgIDFromContext(ctx); ok {
		if err := RequireOrg(principal, orgID); err != nil {
			return 0, err
		}
		return orgID, nil
	}
	if principal.OrgID == 0 {
		return 0, ErrForbiddenOrganization
	}
	return principal.OrgID, nil
}
