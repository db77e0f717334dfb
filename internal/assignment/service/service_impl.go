package service

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/carelog/internal/assignment/domain"
	auditdomain "github.com/smallbiznis/carelog/internal/audit/domain"
	"github.com/smallbiznis/carelog/internal/authorization"
	"github.com/smallbiznis/carelog/internal/clock"
	identitydomain "github.com/smallbiznis/carelog/internal/identity/domain"
	"github.com/smallbiznis/carelog/internal/observability/metrics"
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
	Users        identitydomain.Repository
	AuditSvc     auditdomain.Service   `optional:"true"`
	Clock        clock.Clock           `optional:"true"`
	Metrics      *metrics.Metrics      `optional:"true"`
	StoreMetrics *metrics.StoreMetrics `optional:"true"`
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	repo         domain.Repository
	users        identitydomain.Repository
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
		log:          p.Log.Named("assignment.service"),
		genID:        p.GenID,
		repo:         p.Repo,
		users:        p.Users,
		auditSvc:     p.AuditSvc,
		clock:        clk,
		metrics:      p.Metrics,
		storeMetrics: p.StoreMetrics,
	}
}

var assigners = []identitydomain.Role{
	identitydomain.RoleSuperadmin,
	identitydomain.RoleOwner,
	identitydomain.RoleAdmin,
	identitydomain.RoleAssistant,
	identitydomain.RolePsychologist,
}

func (s *Service) Assign(ctx context.Context, principal identitydomain.Principal, patientID, psychologistID snowflake.ID) (*domain.PatientAssignment, error) {
	if err := authorization.RequireAnyRole(principal, assigners...); err != nil {
		return nil, err
	}
	if patientID == 0 {
		return nil, domain.ErrInvalidPatient
	}
	if psychologistID == 0 {
		return nil, domain.ErrInvalidPsychologist
	}
	if !authorization.IsStaff(principal) && psychologistID != principal.UserID {
		return nil, domain.ErrSelfAssignOnly
	}

	patient, err := s.loadPatient(ctx, principal, patientID)
	if err != nil {
		return nil, err
	}
	psychologist, err := s.loadPsychologist(ctx, principal, psychologistID)
	if err != nil {
		return nil, err
	}
	if !psychologist.InOrg(*patient.OrgID) {
		return nil, domain.ErrNotInScope
	}

	now := s.clock.Now()
	active := patient.ID
	row := &domain.PatientAssignment{
		ID:              s.genID.Generate(),
		OrgID:           *patient.OrgID,
		PatientID:       patient.ID,
		PsychologistID:  psychologist.ID,
		Status:          domain.StatusActive,
		ActivePatientID: &active,
		StartedAt:       now,
		AssignedBy:      principal.UserID,
	}

	started := time.Now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if _, err := repo.ActiveForPatient(ctx, patient.ID); err == nil {
			return domain.ErrAlreadyAssigned
		} else if !errors.Is(err, domain.ErrNoActiveAssignment) {
			return err
		}
		if err := repo.Insert(ctx, row); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrAlreadyAssigned
			}
			return err
		}
		return repo.SetPointer(ctx, patient.ID, &row.PsychologistID)
	})
	s.storeMetrics.ObserveTx(metrics.ResourceAssignment, time.Since(started))
	if err != nil {
		s.storeMetrics.IncWriteError(metrics.ResourceAssignment, err)
		s.metrics.RecordAssignment(ctx, "assign", resultOf(err))
		return nil, err
	}
	s.storeMetrics.IncWrite(metrics.ResourceAssignment, "assign")
	s.metrics.RecordAssignment(ctx, "assign", "success")

	s.audit(ctx, principal, row.OrgID, auditdomain.ActionAssignmentAssign, row, "patient assigned to psychologist")
	return row, nil
}

func (s *Service) Unassign(ctx context.Context, principal identitydomain.Principal, patientID snowflake.ID) (*domain.PatientAssignment, error) {
	if err := authorization.RequireAnyRole(principal, assigners...); err != nil {
		return nil, err
	}
	if patientID == 0 {
		return nil, domain.ErrInvalidPatient
	}
	patient, err := s.loadPatient(ctx, principal, patientID)
	if err != nil {
		return nil, err
	}

	var ended *domain.PatientAssignment
	started := time.Now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		active, err := repo.ActiveForPatient(ctx, patient.ID)
		if err != nil {
			return err
		}
		if !authorization.IsStaff(principal) && active.PsychologistID != principal.UserID {
			return authorization.ErrForbidden
		}
		now := s.clock.Now()
		endedBy := principal.UserID
		active.EndedAt = &now
		active.EndedBy = &endedBy
		if err := repo.End(ctx, active); err != nil {
			return err
		}
		if err := repo.SetPointer(ctx, patient.ID, nil); err != nil {
			return err
		}
		ended = active
		return nil
	})
	s.storeMetrics.ObserveTx(metrics.ResourceAssignment, time.Since(started))
	if err != nil {
		s.storeMetrics.IncWriteError(metrics.ResourceAssignment, err)
		s.metrics.RecordAssignment(ctx, "unassign", resultOf(err))
		return nil, err
	}
	s.storeMetrics.IncWrite(metrics.ResourceAssignment, "unassign")
	s.metrics.RecordAssignment(ctx, "unassign", "success")

	s.audit(ctx, principal, ended.OrgID, auditdomain.ActionAssignmentUnassign, ended, "patient unassigned")
	return ended, nil
}

func (s *Service) ListMine(ctx context.Context, principal identitydomain.Principal, psychologistID snowflake.ID) ([]domain.PatientSummary, error) {
	if principal.IsZero() {
		return nil, authorization.ErrUnauthorized
	}
	if psychologistID == 0 {
		psychologistID = principal.UserID
	}

	var orgID snowflake.ID
	if psychologistID == principal.UserID {
		if err := authorization.RequireAnyRole(principal, identitydomain.RolePsychologist); err != nil {
			return nil, err
		}
		scope, err := authorization.OrgScope(ctx, principal)
		if err != nil {
			return nil, err
		}
		orgID = scope
	} else {
		if !authorization.IsElevated(principal) {
			return nil, authorization.ErrForbidden
		}
		psychologist, err := s.loadPsychologist(ctx, principal, psychologistID)
		if err != nil {
			return nil, err
		}
		orgID = *psychologist.OrgID
	}

	users, err := s.repo.ListPatientsOf(ctx, orgID, psychologistID)
	if err != nil {
		return nil, err
	}
	return summaries(users), nil
}

func (s *Service) ListPool(ctx context.Context, principal identitydomain.Principal) ([]domain.PatientSummary, error) {
	if err := authorization.RequireAnyRole(principal, assigners...); err != nil {
		return nil, err
	}
	orgID, err := authorization.OrgScope(ctx, principal)
	if err != nil {
		return nil, err
	}
	users, err := s.repo.ListUnassigned(ctx, orgID)
	if err != nil {
		return nil, err
	}
	return summaries(users), nil
}

func (s *Service) ActiveForPatient(ctx context.Context, patientID snowflake.ID) (*domain.PatientAssignment, error) {
	return s.repo.ActiveForPatient(ctx, patientID)
}

func (s *Service) History(ctx context.Context, principal identitydomain.Principal, patientID snowflake.ID) ([]domain.PatientAssignment, error) {
	if principal.IsZero() {
		return nil, authorization.ErrUnauthorized
	}
	patient, err := s.users.GetByID(ctx, patientID)
	if err != nil || patient.Status == identitydomain.UserStatusDeleted || !patient.RoleSet().Has(identitydomain.RolePatient) {
		if err != nil && !errors.Is(err, identitydomain.ErrUserNotFound) {
			return nil, err
		}
		return nil, domain.ErrPatientNotFound
	}
	if err := authorization.RequireOrgMember(principal, *patient); err != nil {
		return nil, err
	}

	switch {
	case authorization.IsStaff(principal):
	case principal.UserID == patient.ID:
	case principal.Roles.Has(identitydomain.RolePsychologist):
		ok, err := s.IsAssignedTo(ctx, patient.ID, principal.UserID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, authorization.ErrForbidden
		}
	default:
		return nil, authorization.ErrForbidden
	}

	return s.repo.HistoryForPatient(ctx, patient.ID)
}

func (s *Service) IsAssignedTo(ctx context.Context, patientID, psychologistID snowflake.ID) (bool, error) {
	active, err := s.repo.ActiveForPatient(ctx, patientID)
	if errors.Is(err, domain.ErrNoActiveAssignment) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return active.PsychologistID == psychologistID, nil
}

// loadPatient returns an ACTIVE patient the principal may act on.
func (s *Service) loadPatient(ctx context.Context, principal identitydomain.Principal, id snowflake.ID) (*identitydomain.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if errors.Is(err, identitydomain.ErrUserNotFound) {
		return nil, domain.ErrPatientNotFound
	}
	if err != nil {
		return nil, err
	}
	if user.Status == identitydomain.UserStatusDeleted {
		return nil, domain.ErrPatientNotFound
	}
	if user.OrgID == nil || authorization.RequireOrgMember(principal, *user) != nil {
		return nil, domain.ErrNotInScope
	}
	if !user.RoleSet().Has(identitydomain.RolePatient) {
		return nil, domain.ErrNotInScope
	}
	if user.Status != identitydomain.UserStatusActive {
		return nil, domain.ErrPatientInactive
	}
	return user, nil
}

func (s *Service) loadPsychologist(ctx context.Context, principal identitydomain.Principal, id snowflake.ID) (*identitydomain.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if errors.Is(err, identitydomain.ErrUserNotFound) {
		return nil, domain.ErrPsychologistNotFound
	}
	if err != nil {
		return nil, err
	}
	if user.Status == identitydomain.UserStatusDeleted {
		return nil, domain.ErrPsychologistNotFound
	}
	if user.OrgID == nil || authorization.RequireOrgMember(principal, *user) != nil {
		return nil, domain.ErrNotInScope
	}
	if !user.RoleSet().Has(identitydomain.RolePsychologist) {
		return nil, domain.ErrNotInScope
	}
	if user.Status != identitydomain.UserStatusActive {
		return nil, domain.ErrPsychologistInactive
	}
	return user, nil
}

func (s *Service) audit(ctx context.Context, principal identitydomain.Principal, orgID snowflake.ID, action string, row *domain.PatientAssignment, description string) {
	if s.auditSvc == nil {
		return
	}
	targetID := row.PatientID.String()
	org := orgID
	if err := s.auditSvc.AuditLog(ctx, &org, string(auditdomain.ActorTypeUser), principal.ActorID(), action, "patient", &targetID, description, map[string]any{
		"assignment_id":   row.ID.String(),
		"psychologist_id": row.PsychologistID.String(),
		"status":          string(row.Status),
	}); err != nil {
		s.log.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
	}
}

func summaries(users []identitydomain.User) []domain.PatientSummary {
	out := make([]domain.PatientSummary, 0, len(users))
	for _, u := range users {
		out = append(out, domain.SummaryFromUser(u))
	}
	return out
}

func resultOf(err error) string {
	switch {
	case errors.Is(err, domain.ErrAlreadyAssigned):
		return "conflict"
	case errors.Is(err, domain.ErrNoActiveAssignment):
		return "not_found"
	case errors.Is(err, authorization.ErrForbidden):
		return "forbidden"
	default:
		return "error"
	}
}
