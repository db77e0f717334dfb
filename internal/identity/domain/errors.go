package domain

import "errors"

var (
	ErrMissingCredential = errors.New("missing_credential")
	ErrInvalidCredential = errors.New("invalid_credential")
	ErrUserNotRegistered = errors.New("user_not_registered")
	ErrAccountDisabled   = errors.New("account_disabled")
	ErrRoleNotHeld       = errors.New("role_not_held")
	ErrInvalidRole       = errors.New("invalid_role")
	ErrUserNotFound      = errors.New("user_not_found")
)
