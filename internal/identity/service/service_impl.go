package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/smallbiznis/carelog/internal/identity/domain"
	orgdomain "github.com/smallbiznis/carelog/internal/organization/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	Repo   domain.Repository
	Bearer domain.Verifier `name:"bearer" optional:"true"`
	Cookie domain.Verifier `name:"cookie" optional:"true"`
}

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	repo   domain.Repository
	bearer domain.Verifier
	cookie domain.Verifier
}

func NewService(p Params) domain.Service {
	return &Service{
		db:     p.DB,
		log:    p.Log.Named("identity.service"),
		repo:   p.Repo,
		bearer: p.Bearer,
		cookie: p.Cookie,
	}
}

func (s *Service) Authenticate(ctx context.Context, credential domain.Credential) (domain.Principal, domain.Claims, error) {
	claims, err := s.Verify(ctx, credential)
	if err != nil {
		return domain.Principal{}, domain.Claims{}, err
	}
	principal, err := s.Resolve(ctx, claims)
	if err != nil {
		return domain.Principal{}, claims, err
	}
	return principal, claims, nil
}

func (s *Service) Verify(ctx context.Context, credential domain.Credential) (domain.Claims, error) {
	var verifier domain.Verifier
	switch credential.Kind {
	case domain.CredentialBearer:
		verifier = s.bearer
	case domain.CredentialCookie:
		verifier = s.cookie
	}
	if credential.Value == "" {
		return domain.Claims{}, domain.ErrMissingCredential
	}
	if verifier == nil {
		return domain.Claims{}, domain.ErrInvalidCredential
	}
	claims, err := verifier.Verify(ctx, credential.Value)
	if err != nil {
		s.log.Debug("credential rejected", zap.String("kind", string(credential.Kind)), zap.Error(err))
		if errors.Is(err, domain.ErrMissingCredential) || errors.Is(err, domain.ErrInvalidCredential) {
			return domain.Claims{}, err
		}
		return domain.Claims{}, fmt.Errorf("%w: %v", domain.ErrInvalidCredential, err)
	}
	return claims, nil
}

func (s *Service) Resolve(ctx context.Context, claims domain.Claims) (domain.Principal, error) {
	user, err := s.repo.GetBySubject(ctx, claims.Subject)
	if errors.Is(err, domain.ErrUserNotFound) {
		return domain.Principal{}, domain.ErrUserNotRegistered
	}
	if err != nil {
		return domain.Principal{}, err
	}

	switch user.Status {
	case domain.UserStatusActive:
	case domain.UserStatusDeleted:
		return domain.Principal{}, domain.ErrUserNotRegistered
	default:
		return domain.Principal{}, domain.ErrAccountDisabled
	}

	return domain.PrincipalFromUser(*user), nil
}

func (s *Service) SetActiveRole(ctx context.Context, principal domain.Principal, role domain.Role) (domain.Principal, error) {
	if !role.Valid() {
		return domain.Principal{}, domain.ErrInvalidRole
	}
	if !principal.Roles.Has(role) {
		return domain.Principal{}, domain.ErrRoleNotHeld
	}
	if err := s.repo.SetActiveRole(ctx, principal.UserID, role); err != nil {
		return domain.Principal{}, err
	}
	updated := principal
	updated.ActiveRole = role
	return updated, nil
}

func (s *Service) Me(ctx context.Context, principal domain.Principal) (domain.Profile, error) {
	user, err := s.repo.GetByID(ctx, principal.UserID)
	if err != nil {
		return domain.Profile{}, err
	}
	profile := domain.Profile{
		ID:         user.ID,
		Email:      user.Email,
		FirstName:  user.FirstName,
		LastName:   user.LastName,
		Status:     user.Status,
		Roles:      principal.Roles,
		ActiveRole: principal.ActiveRole,
	}
	if principal.OrgID == 0 {
		return profile, nil
	}

	var org orgdomain.Organization
	err = s.db.WithContext(ctx).Where("id = ?", principal.OrgID).First(&org).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return profile, nil
	}
	if err != nil {
		return domain.Profile{}, err
	}
	profile.Organization = &domain.OrganizationSummary{
		ID:   org.ID,
		Name: org.Name,
		Slug: org.Slug,
		Plan: string(org.Plan),
	}
	return profile, nil
}
