package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/carelog/internal/audit/domain"
	"github.com/smallbiznis/carelog/internal/authorization"
	"github.com/smallbiznis/carelog/internal/clock"
	identitydomain "github.com/smallbiznis/carelog/internal/identity/domain"
	"github.com/smallbiznis/carelog/internal/observability/metrics"
	orgdomain "github.com/smallbiznis/carelog/internal/organization/domain"
	"github.com/smallbiznis/carelog/internal/orgcontext"
	"github.com/smallbiznis/carelog/internal/planchange/domain"
	"github.com/smallbiznis/carelog/internal/planlimit"
	"github.com/smallbiznis/carelog/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Repo         domain.Repository
	Orgs         orgdomain.Repository
	Limits       *planlimit.Enforcer
	AuditSvc     auditdomain.Service   `optional:"true"`
	Clock        clock.Clock           `optional:"true"`
	StoreMetrics *metrics.StoreMetrics `optional:"true"`
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	repo         domain.Repository
	orgs         orgdomain.Repository
	limits       *planlimit.Enforcer
	auditSvc     auditdomain.Service
	clock        clock.Clock
	storeMetrics *metrics.StoreMetrics
}

func NewService(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("planchange.service"),
		genID:        p.GenID,
		repo:         p.Repo,
		orgs:         p.Orgs,
		limits:       p.Limits,
		auditSvc:     p.AuditSvc,
		clock:        clk,
		storeMetrics: p.StoreMetrics,
	}
}

func (s *Service) Request(ctx context.Context, principal identitydomain.Principal, plan orgdomain.Plan, reason string) (*domain.Request, error) {
	if err := authorization.RequireAnyRole(principal, identitydomain.RoleOwner); err != nil {
		return nil, err
	}
	requested, ok := orgdomain.ParsePlan(string(plan))
	if !ok {
		return nil, orgdomain.ErrInvalidPlan
	}
	orgID, err := authorization.OrgScope(ctx, principal)
	if err != nil {
		return nil, err
	}
	org, err := s.orgs.GetOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if org.Plan == requested {
		return nil, domain.ErrSamePlan
	}

	pending := org.ID
	req := &domain.Request{
		ID:            s.genID.Generate(),
		OrgID:         org.ID,
		RequestedBy:   principal.UserID,
		CurrentPlan:   org.Plan,
		RequestedPlan: requested,
		Reason:        strings.TrimSpace(reason),
		Status:        domain.StatusPending,
		PendingOrgID:  &pending,
		CreatedAt:     s.clock.Now(),
	}
	if err := s.repo.Insert(ctx, req); err != nil {
		s.storeMetrics.IncWriteError(metrics.ResourcePlanChange, err)
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrPendingExists
		}
		return nil, err
	}
	s.storeMetrics.IncWrite(metrics.ResourcePlanChange, "request")

	s.audit(ctx, principal, req, auditdomain.ActionPlanChangeRequest, "plan change requested")
	return req, nil
}

func (s *Service) List(ctx context.Context, principal identitydomain.Principal, status domain.Status) ([]domain.Request, error) {
	if err := authorization.RequireAnyRole(principal, identitydomain.RoleSuperadmin, identitydomain.RoleOwner); err != nil {
		return nil, err
	}
	status = domain.Status(strings.ToUpper(strings.TrimSpace(string(status))))
	switch status {
	case "", domain.StatusPending, domain.StatusApproved, domain.StatusDenied:
	default:
		return nil, domain.ErrInvalidStatus
	}

	if authorization.IsSuperadmin(principal) {
		if orgID, ok := orgcontext.OrgIDFromContext(ctx); ok {
			return s.repo.List(ctx, &orgID, status)
		}
		return s.repo.List(ctx, nil, status)
	}
	orgID, err := authorization.OrgScope(ctx, principal)
	if err != nil {
		return nil, err
	}
	return s.repo.List(ctx, &orgID, status)
}

// Decide approves or denies a pending request. Approval changes the
// organization plan in the same transaction and is refused while the
// current staff would not fit the requested plan.
func (s *Service) Decide(ctx context.Context, principal identitydomain.Principal, id snowflake.ID, approve bool, note string) (*domain.Request, error) {
	if err := authorization.RequireAnyRole(principal, identitydomain.RoleSuperadmin); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	decider := principal.UserID
	var decided *domain.Request
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		req, err := repo.Lock(ctx, id)
		if err != nil {
			return err
		}
		if req.Status != domain.StatusPending {
			return domain.ErrNotPending
		}

		req.Status = domain.StatusDenied
		if approve {
			orgs := s.orgs.WithTx(tx)
			if _, err := orgs.LockOrganization(ctx, req.OrgID); err != nil {
				return err
			}
			fits, err := s.limits.Fits(ctx, tx, req.OrgID, req.RequestedPlan)
			if err != nil {
				return err
			}
			if !fits {
				return domain.ErrDowngradeBlocked
			}
			if err := orgs.UpdatePlan(ctx, req.OrgID, req.RequestedPlan, now); err != nil {
				return err
			}
			req.Status = domain.StatusApproved
		}

		req.PendingOrgID = nil
		req.DecidedBy = &decider
		req.DecidedAt = &now
		req.DecisionNote = strings.TrimSpace(note)
		if err := repo.Decide(ctx, req); err != nil {
			return err
		}
		decided = req
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.storeMetrics.IncWrite(metrics.ResourcePlanChange, strings.ToLower(string(decided.Status)))

	action, description := auditdomain.ActionPlanChangeDeny, "plan change denied"
	if decided.Status == domain.StatusApproved {
		action, description = auditdomain.ActionPlanChangeApprove, "plan change approved"
		s.log.Info("organization plan changed",
			zap.String("org_id", decided.OrgID.String()),
			zap.String("from", string(decided.CurrentPlan)),
			zap.String("to", string(decided.RequestedPlan)),
		)
	}
	s.audit(ctx, principal, decided, action, description)
	return decided, nil
}

func (s *Service) audit(ctx context.Context, principal identitydomain.Principal, req *domain.Request, action, description string) {
	if s.auditSvc == nil {
		return
	}
	org := req.OrgID
	targetID := req.ID.String()
	if err := s.auditSvc.AuditLog(ctx, &org, string(auditdomain.ActorTypeUser), principal.ActorID(), action, "plan_change_request", &targetID, description, map[string]any{
		"current_plan":   string(req.CurrentPlan),
		"requested_plan": string(req.RequestedPlan),
		"status":         string(req.Status),
	}); err != nil {
		s.log.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
	}
}
