package authorization

import "errors"

var (
	ErrUnauthorized          = errors.New("unauthorized")
	ErrForbidden             = errors.New("forbidden")
	ErrForbiddenOrganization = errors.New("forbidden_organization")
	ErrInvalidObject         = errors.New("invalid_object")
	ErrInvalidAction         = errors.New("invalid_action")
)
