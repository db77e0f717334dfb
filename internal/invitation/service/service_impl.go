package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	auditdomain "github.com/smallbiznis/carelog/internal/audit/domain"
	"github.com/smallbiznis/carelog/internal/authorization"
	"github.com/smallbiznis/carelog/internal/clock"
	identitydomain "github.com/smallbiznis/carelog/internal/identity/domain"
	"github.com/smallbiznis/carelog/internal/invitation/domain"
	"github.com/smallbiznis/carelog/internal/observability/metrics"
	orgdomain "github.com/smallbiznis/carelog/internal/organization/domain"
	"github.com/smallbiznis/carelog/internal/planlimit"
	"github.com/smallbiznis/carelog/internal/ratelimit"
	"github.com/smallbiznis/carelog/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const rateLimitEndpoint = "invitations"

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Repo         domain.Repository
	Orgs         orgdomain.Repository
	Users        identitydomain.Repository
	Limits       *planlimit.Enforcer
	Limiter      *ratelimit.InviteLimiter `optional:"true"`
	AuditSvc     auditdomain.Service      `optional:"true"`
	Clock        clock.Clock              `optional:"true"`
	Metrics      *metrics.Metrics         `optional:"true"`
	StoreMetrics *metrics.StoreMetrics    `optional:"true"`
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	repo         domain.Repository
	orgs         orgdomain.Repository
	users        identitydomain.Repository
	limits       *planlimit.Enforcer
	limiter      *ratelimit.InviteLimiter
	auditSvc     auditdomain.Service
	clock        clock.Clock
	metrics      *metrics.Metrics
	storeMetrics *metrics.StoreMetrics
}

func NewService(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("invitation.service"),
		genID:        p.GenID,
		repo:         p.Repo,
		orgs:         p.Orgs,
		users:        p.Users,
		limits:       p.Limits,
		limiter:      p.Limiter,
		auditSvc:     p.AuditSvc,
		clock:        clk,
		metrics:      p.Metrics,
		storeMetrics: p.StoreMetrics,
	}
}

var inviters = []identitydomain.Role{
	identitydomain.RoleSuperadmin,
	identitydomain.RoleOwner,
	identitydomain.RoleAdmin,
	identitydomain.RoleAssistant,
	identitydomain.RolePsychologist,
}

func (s *Service) Invite(ctx context.Context, principal identitydomain.Principal, req domain.InviteRequest) (*domain.Invitation, error) {
	if err := authorization.RequireAnyRole(principal, inviters...); err != nil {
		return nil, err
	}
	role, ok := identitydomain.ParseRole(req.Role)
	if !ok {
		return nil, domain.ErrInvalidRole
	}
	switch role {
	case identitydomain.RoleAdmin, identitydomain.RoleAssistant, identitydomain.RolePsychologist:
		if !authorization.IsElevated(principal) {
			return nil, domain.ErrRoleNotInvitable
		}
	case identitydomain.RolePatient:
	default:
		return nil, domain.ErrInvalidRole
	}

	orgID, err := authorization.OrgScope(ctx, principal)
	if err != nil {
		return nil, err
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" {
		return nil, domain.ErrInvalidEmail
	}

	release, err := s.throttle(ctx, orgID, email)
	if err != nil {
		return nil, err
	}
	defer release()

	now := s.clock.Now()
	org := orgID
	user := &identitydomain.User{
		ID:         s.genID.Generate(),
		Email:      email,
		FirstName:  strings.TrimSpace(req.FirstName),
		LastName:   strings.TrimSpace(req.LastName),
		NationalID: strings.TrimSpace(req.NationalID),
		OrgID:      &org,
		Status:     identitydomain.UserStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	inv := &domain.Invitation{
		ID:        s.genID.Generate(),
		OrgID:     orgID,
		UserID:    user.ID,
		Email:     email,
		Role:      role,
		Code:      newCode(now),
		Status:    domain.StatusPending,
		InvitedBy: principal.UserID,
		CreatedAt: now,
	}

	started := time.Now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		orgs := s.orgs.WithTx(tx)
		repo := s.repo.WithTx(tx)

		lockStarted := time.Now()
		locked, err := orgs.LockOrganization(ctx, orgID)
		s.storeMetrics.ObserveLockWait(metrics.ResourceInvitation, time.Since(lockStarted))
		if err != nil {
			return err
		}
		if err := s.limits.CheckInvite(ctx, tx, *locked, role); err != nil {
			return err
		}
		inUse, err := repo.EmailInUse(ctx, orgID, email)
		if err != nil {
			return err
		}
		if inUse {
			return domain.ErrDuplicateInvitation
		}
		if err := orgs.CreateUser(ctx, user, []identitydomain.Role{role}); err != nil {
			return err
		}
		return repo.Insert(ctx, inv)
	})
	s.storeMetrics.ObserveTx(metrics.ResourceInvitation, time.Since(started))
	if err != nil {
		s.storeMetrics.IncWriteError(metrics.ResourceInvitation, err)
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrDuplicateInvitation
		}
		return nil, err
	}
	s.storeMetrics.IncWrite(metrics.ResourceInvitation, "create")

	targetID := inv.ID.String()
	s.audit(ctx, orgID, principal.ActorID(), auditdomain.ActionInvitationCreate, &targetID, "invitation created", map[string]any{
		"role":    string(role),
		"user_id": user.ID.String(),
	})
	return inv, nil
}

func (s *Service) Accept(ctx context.Context, claims identitydomain.Claims, code string) (*domain.Invitation, error) {
	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return nil, authorization.ErrUnauthorized
	}
	code = strings.ToUpper(strings.TrimSpace(code))
	if _, err := ulid.ParseStrict(code); err != nil {
		return nil, domain.ErrInvitationNotFound
	}

	inv, err := s.repo.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if inv.Status != domain.StatusPending {
		return nil, domain.ErrInvitationNotPending
	}
	if _, err := s.users.GetBySubject(ctx, subject); err == nil {
		return nil, domain.ErrSubjectAlreadyBound
	} else if !errors.Is(err, identitydomain.ErrUserNotFound) {
		return nil, err
	}

	now := s.clock.Now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ok, err := repo.SetStatus(ctx, inv.ID, domain.StatusPending, domain.StatusAccepted, &now)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrInvitationNotPending
		}
		ok, err = repo.ActivateUser(ctx, inv.UserID, subject, now)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrInvitationNotPending
		}
		return nil
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrSubjectAlreadyBound
		}
		s.storeMetrics.IncWriteError(metrics.ResourceInvitation, err)
		return nil, err
	}
	s.storeMetrics.IncWrite(metrics.ResourceInvitation, "accept")

	inv.Status = domain.StatusAccepted
	inv.AcceptedAt = &now
	actor := inv.UserID.String()
	targetID := inv.ID.String()
	s.audit(ctx, inv.OrgID, &actor, auditdomain.ActionInvitationAccept, &targetID, "invitation accepted", map[string]any{
		"role": string(inv.Role),
	})
	return inv, nil
}

func (s *Service) ListPending(ctx context.Context, principal identitydomain.Principal) ([]domain.Invitation, error) {
	if err := authorization.RequireAnyRole(principal, inviters...); err != nil {
		return nil, err
	}
	orgID, err := authorization.OrgScope(ctx, principal)
	if err != nil {
		return nil, err
	}
	items, err := s.repo.ListPending(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if authorization.IsElevated(principal) {
		return items, nil
	}
	own := items[:0]
	for _, item := range items {
		if item.InvitedBy == principal.UserID {
			own = append(own, item)
		}
	}
	return own, nil
}

// Revoke is allowed to elevated roles and to the original inviter.
func (s *Service) Revoke(ctx context.Context, principal identitydomain.Principal, id snowflake.ID) error {
	if err := authorization.RequireAnyRole(principal, inviters...); err != nil {
		return err
	}
	orgID, err := authorization.OrgScope(ctx, principal)
	if err != nil {
		return err
	}
	inv, err := s.repo.Get(ctx, orgID, id)
	if err != nil {
		return err
	}
	if !authorization.IsElevated(principal) && inv.InvitedBy != principal.UserID {
		return authorization.ErrForbidden
	}
	if inv.Status != domain.StatusPending {
		return domain.ErrInvitationNotPending
	}

	now := s.clock.Now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := s.repo.WithTx(tx).SetStatus(ctx, inv.ID, domain.StatusPending, domain.StatusRevoked, nil)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrInvitationNotPending
		}
		return s.orgs.WithTx(tx).SetUserStatus(ctx, inv.UserID, identitydomain.UserStatusDeleted, now)
	})
	if err != nil {
		return err
	}
	s.storeMetrics.IncWrite(metrics.ResourceInvitation, "revoke")

	targetID := inv.ID.String()
	s.audit(ctx, orgID, principal.ActorID(), auditdomain.ActionInvitationRevoke, &targetID, "invitation revoked", map[string]any{
		"user_id": inv.UserID.String(),
	})
	return nil
}

// throttle applies the per-organization token bucket and holds the invitee
// lease until the returned func runs.
func (s *Service) throttle(ctx context.Context, orgID snowflake.ID, email string) (func(), error) {
	noop := func() {}
	if !s.limiter.Enabled() {
		return noop, nil
	}
	org := orgID.String()

	res, err := s.limiter.AllowOrg(ctx, org)
	if err != nil {
		s.log.Warn("invitation rate limit check failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", domain.ErrLimiterUnavailable, err)
	}
	if !res.Allowed {
		s.metrics.RecordRateLimitDenied(ctx, org, rateLimitEndpoint, "org-rate")
		return nil, &domain.RateLimitError{RetryAfter: res.RetryAfter}
	}

	lease, ok, err := s.limiter.LockInvitee(ctx, org, email)
	if err != nil {
		s.log.Warn("invitation lock failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", domain.ErrLimiterUnavailable, err)
	}
	if !ok {
		s.metrics.RecordRateLimitDenied(ctx, org, rateLimitEndpoint, "invitee-concurrency")
		return nil, &domain.RateLimitError{RetryAfter: time.Second}
	}
	s.metrics.RecordRateLimitAllowed(ctx, org, rateLimitEndpoint)

	return func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			s.log.Warn("invitation unlock failed", zap.Error(err))
		}
	}, nil
}

func (s *Service) audit(ctx context.Context, orgID snowflake.ID, actorID *string, action string, targetID *string, description string, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	org := orgID
	if err := s.auditSvc.AuditLog(ctx, &org, string(auditdomain.ActorTypeUser), actorID, action, "invitation", targetID, description, metadata); err != nil {
		s.log.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
	}
}

func newCode(now time.Time) string {
	return ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String()
}
