package service

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	assignmentdomain "github.com/smallbiznis/carelog/internal/assignment/domain"
	"github.com/smallbiznis/carelog/internal/authorization"
	identitydomain "github.com/smallbiznis/carelog/internal/identity/domain"
	"github.com/smallbiznis/carelog/internal/patient/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log         *zap.Logger
	Repo        domain.Repository
	Users       identitydomain.Repository
	Assignments assignmentdomain.Service
}

type Service struct {
	log         *zap.Logger
	repo        domain.Repository
	users       identitydomain.Repository
	assignments assignmentdomain.Service
}

func NewService(p Params) domain.Service {
	return &Service{
		log:         p.Log.Named("patient.service"),
		repo:        p.Repo,
		users:       p.Users,
		assignments: p.Assignments,
	}
}

func (s *Service) Get(ctx context.Context, principal identitydomain.Principal, patientID snowflake.ID) (*domain.Patient, error) {
	user, err := s.Lookup(ctx, principal, patientID)
	if err != nil {
		return nil, err
	}

	switch {
	case principal.UserID == user.ID:
	case authorization.IsStaff(principal):
	case principal.Roles.Has(identitydomain.RolePsychologist):
		ok, err := s.assignments.IsAssignedTo(ctx, user.ID, principal.UserID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, authorization.ErrForbidden
		}
	default:
		return nil, authorization.ErrForbidden
	}

	patient := domain.FromUser(*user)
	return &patient, nil
}

func (s *Service) List(ctx context.Context, principal identitydomain.Principal) ([]domain.Patient, error) {
	if err := authorization.RequireAnyRole(principal,
		identitydomain.RoleSuperadmin,
		identitydomain.RoleOwner,
		identitydomain.RoleAdmin,
		identitydomain.RoleAssistant,
		identitydomain.RolePsychologist,
	); err != nil {
		return nil, err
	}
	orgID, err := authorization.OrgScope(ctx, principal)
	if err != nil {
		return nil, err
	}

	var users []identitydomain.User
	if authorization.IsStaff(principal) {
		users, err = s.repo.ListInOrg(ctx, orgID)
	} else {
		users, err = s.repo.ListAssignedTo(ctx, orgID, principal.UserID)
	}
	if err != nil {
		return nil, err
	}

	out := make([]domain.Patient, 0, len(users))
	for _, u := range users {
		out = append(out, domain.FromUser(u))
	}
	return out, nil
}

func (s *Service) Lookup(ctx context.Context, principal identitydomain.Principal, patientID snowflake.ID) (*identitydomain.User, error) {
	if principal.IsZero() {
		return nil, authorization.ErrUnauthorized
	}
	if patientID == 0 {
		return nil, domain.ErrPatientNotFound
	}
	user, err := s.users.GetByID(ctx, patientID)
	if errors.Is(err, identitydomain.ErrUserNotFound) {
		return nil, domain.ErrPatientNotFound
	}
	if err != nil {
		return nil, err
	}
	if user.Status == identitydomain.UserStatusDeleted || !user.RoleSet().Has(identitydomain.RolePatient) {
		return nil, domain.ErrPatientNotFound
	}
	if err := authorization.RequireOrgMember(principal, *user); err != nil {
		return nil, err
	}
	return user, nil
}
