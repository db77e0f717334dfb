package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	auditdomain "github.com/smallbiznis/carelog/internal/audit/domain"
	"github.com/smallbiznis/carelog/internal/authorization"
	"github.com/smallbiznis/carelog/internal/clock"
	identitydomain "github.com/smallbiznis/carelog/internal/identity/domain"
	"github.com/smallbiznis/carelog/internal/organization/domain"
	"github.com/smallbiznis/carelog/internal/planlimit"
	"github.com/smallbiznis/carelog/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxSlugAttempts = 20

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Repo     domain.Repository
	Users    identitydomain.Repository
	Limits   *planlimit.Enforcer
	AuditSvc auditdomain.Service `optional:"true"`
	Clock    clock.Clock         `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	repo     domain.Repository
	users    identitydomain.Repository
	limits   *planlimit.Enforcer
	auditSvc auditdomain.Service
	clock    clock.Clock
}

func NewService(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("organization.service"),
		genID:    p.GenID,
		repo:     p.Repo,
		users:    p.Users,
		limits:   p.Limits,
		auditSvc: p.AuditSvc,
		clock:    clk,
	}
}

// OwnerRoles returns the roles granted to the registering user. A solo
// practitioner is also the practice's psychologist.
func OwnerRoles(plan domain.Plan) []identitydomain.Role {
	roles := []identitydomain.Role{identitydomain.RoleOwner, identitydomain.RoleAdmin}
	if plan == domain.PlanSolo {
		roles = append(roles, identitydomain.RolePsychologist)
	}
	return roles
}

func (s *Service) Register(ctx context.Context, claims identitydomain.Claims, req domain.RegisterRequest) (*domain.RegisterResponse, error) {
	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return nil, authorization.ErrUnauthorized
	}
	name := strings.TrimSpace(req.OrganizationName)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	plan, ok := domain.ParsePlan(req.Plan)
	if !ok {
		return nil, domain.ErrInvalidPlan
	}
	if strings.TrimSpace(req.FirstName) == "" || strings.TrimSpace(req.LastName) == "" {
		return nil, domain.ErrInvalidName
	}

	if _, err := s.users.GetBySubject(ctx, subject); err == nil {
		return nil, domain.ErrAlreadyRegistered
	} else if !errors.Is(err, identitydomain.ErrUserNotFound) {
		return nil, err
	}

	orgSlug, err := s.uniqueSlug(ctx, name)
	if err != nil {
		return nil, err
	}

	email := strings.TrimSpace(req.Email)
	if email == "" {
		email = strings.TrimSpace(claims.Email)
	}

	now := s.clock.Now()
	org := &domain.Organization{
		ID:         s.genID.Generate(),
		Name:       name,
		Slug:       orgSlug,
		NationalID: strings.TrimSpace(req.NationalID),
		Plan:       plan,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	orgID := org.ID
	user := &identitydomain.User{
		ID:              s.genID.Generate(),
		ExternalSubject: &subject,
		Email:           strings.ToLower(email),
		FirstName:       strings.TrimSpace(req.FirstName),
		LastName:        strings.TrimSpace(req.LastName),
		OrgID:           &orgID,
		Status:          identitydomain.UserStatusActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.CreateOrganization(ctx, org); err != nil {
			return err
		}
		return repo.CreateUser(ctx, user, OwnerRoles(plan))
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrAlreadyRegistered
		}
		return nil, err
	}

	s.log.Info("organization registered",
		zap.String("org_id", org.ID.String()),
		zap.String("plan", string(plan)),
	)
	targetID := org.ID.String()
	s.audit(ctx, &orgID, user.ID, auditdomain.ActionOrganizationRegister, "organization", &targetID, "organization registered", map[string]any{
		"plan": string(plan),
		"slug": org.Slug,
	})

	return &domain.RegisterResponse{
		Organization: *org,
		User:         domain.MemberFromUser(*user),
	}, nil
}

func (s *Service) Get(ctx context.Context, principal identitydomain.Principal, orgID snowflake.ID) (*domain.Organization, error) {
	if err := authorization.RequireOrg(principal, orgID); err != nil {
		return nil, err
	}
	return s.repo.GetOrganization(ctx, orgID)
}

func (s *Service) List(ctx context.Context, principal identitydomain.Principal) ([]domain.Organization, error) {
	if err := authorization.RequireAnyRole(principal, identitydomain.RoleSuperadmin); err != nil {
		return nil, err
	}
	return s.repo.ListOrganizations(ctx)
}

func (s *Service) ListMembers(ctx context.Context, principal identitydomain.Principal, orgID snowflake.ID, filter domain.MemberFilter) ([]domain.Member, error) {
	if !authorization.IsStaff(principal) {
		if principal.IsZero() {
			return nil, authorization.ErrUnauthorized
		}
		return nil, authorization.ErrForbidden
	}
	if err := authorization.RequireOrg(principal, orgID); err != nil {
		return nil, err
	}
	if filter.Role != "" && !filter.Role.Valid() {
		return nil, identitydomain.ErrInvalidRole
	}
	if filter.Status != "" && !validStatus(filter.Status) {
		return nil, domain.ErrInvalidStatus
	}

	users, err := s.repo.ListMembers(ctx, orgID, filter)
	if err != nil {
		return nil, err
	}
	members := make([]domain.Member, 0, len(users))
	for _, u := range users {
		members = append(members, domain.MemberFromUser(u))
	}
	return members, nil
}

func (s *Service) SetMemberStatus(ctx context.Context, principal identitydomain.Principal, orgID, userID snowflake.ID, status identitydomain.UserStatus) (*domain.Member, error) {
	if status != identitydomain.UserStatusActive && status != identitydomain.UserStatusInactive {
		return nil, domain.ErrInvalidStatus
	}
	target, err := s.manageable(ctx, principal, orgID, userID)
	if err != nil {
		return nil, err
	}
	if target.Status == identitydomain.UserStatusPending {
		return nil, domain.ErrInvalidStatus
	}

	now := s.clock.Now()
	if target.Status != status {
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			if status == identitydomain.UserStatusActive {
				org, err := repo.LockOrganization(ctx, orgID)
				if err != nil {
					return err
				}
				if err := s.limits.CheckActivate(ctx, tx, *org, target.RoleSet()); err != nil {
					return err
				}
			}
			return repo.SetUserStatus(ctx, target.ID, status, now)
		})
		if err != nil {
			return nil, err
		}
	}
	previous := target.Status
	target.Status = status
	target.UpdatedAt = now

	targetID := target.ID.String()
	s.audit(ctx, &orgID, principal.UserID, auditdomain.ActionMemberStatus, "user", &targetID, "member status changed", map[string]any{
		"from": string(previous),
		"to":   string(status),
	})

	member := domain.MemberFromUser(*target)
	return &member, nil
}

func (s *Service) RemoveMember(ctx context.Context, principal identitydomain.Principal, orgID, userID snowflake.ID) error {
	target, err := s.manageable(ctx, principal, orgID, userID)
	if err != nil {
		return err
	}

	now := s.clock.Now()
	var ended int64
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.SetUserStatus(ctx, target.ID, identitydomain.UserStatusDeleted, now); err != nil {
			return err
		}
		var err error
		if ended, err = repo.EndAssignmentsOf(ctx, target.ID, principal.UserID, now); err != nil {
			return err
		}
		return repo.RevokeInvitationsOf(ctx, target.ID)
	})
	if err != nil {
		return err
	}

	targetID := target.ID.String()
	s.audit(ctx, &orgID, principal.UserID, auditdomain.ActionMemberRemove, "user", &targetID, "member removed", map[string]any{
		"ended_assignments": ended,
		"previous_status":   string(target.Status),
	})
	return nil
}

// manageable loads a member the principal may change: never themself, and
// an OWNER only when the principal is an OWNER or SUPERADMIN.
func (s *Service) manageable(ctx context.Context, principal identitydomain.Principal, orgID, userID snowflake.ID) (*identitydomain.User, error) {
	if err := authorization.RequireAnyRole(principal,
		identitydomain.RoleSuperadmin,
		identitydomain.RoleOwner,
		identitydomain.RoleAdmin,
	); err != nil {
		return nil, err
	}
	if err := authorization.RequireOrg(principal, orgID); err != nil {
		return nil, err
	}
	if userID == principal.UserID {
		return nil, domain.ErrCannotModifySelf
	}
	target, err := s.repo.GetMember(ctx, orgID, userID)
	if err != nil {
		return nil, err
	}
	if target.RoleSet().Has(identitydomain.RoleOwner) &&
		!principal.Roles.HasAny(identitydomain.RoleOwner, identitydomain.RoleSuperadmin) {
		return nil, domain.ErrCannotModifyOwner
	}
	return target, nil
}

func (s *Service) uniqueSlug(ctx context.Context, name string) (string, error) {
	base := slug.Make(name)
	if base == "" {
		base = "practice"
	}
	candidate := base
	for i := 2; i <= maxSlugAttempts+1; i++ {
		exists, err := s.repo.SlugExists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, i)
	}
	return fmt.Sprintf("%s-%s", base, s.genID.Generate().Base36()), nil
}

func (s *Service) audit(ctx context.Context, orgID *snowflake.ID, actor snowflake.ID, action, targetType string, targetID *string, description string, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	actorID := actor.String()
	if err := s.auditSvc.AuditLog(ctx, orgID, string(auditdomain.ActorTypeUser), &actorID, action, targetType, targetID, description, metadata); err != nil {
		s.log.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
	}
}

func validStatus(status identitydomain.UserStatus) bool {
	switch status {
	case identitydomain.UserStatusActive,
		identitydomain.UserStatusInactive,
		identitydomain.UserStatusPending,
		identitydomain.UserStatusSuspended:
		return true
	default:
		return false
	}
}
