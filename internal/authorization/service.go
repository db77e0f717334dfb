package authorization

import (
	"context"

	identitydomain "github.com/smallbiznis/carelog/internal/identity/domain"
)

// Service checks route capabilities against the casbin policy.
type Service interface {
	// Authorize allows the principal when any of its roles may perform
	// action on object. Denials are written to the audit log.
	Authorize(ctx context.Context, principal identitydomain.Principal, object string, action string) error
	// PermittedRoles lists, in canonical order, the roles allowed to perform
	// action on object.
	PermittedRoles(object string, action string) ([]identitydomain.Role, error)
}
