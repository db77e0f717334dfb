package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	assignmentdomain "github.com/smallbiznis/carelog/internal/assignment/domain"
	auditdomain "github.com/smallbiznis/carelog/internal/audit/domain"
	"github.com/smallbiznis/carelog/internal/authorization"
	"github.com/smallbiznis/carelog/internal/clinicalentry/domain"
	"github.com/smallbiznis/carelog/internal/clock"
	identitydomain "github.com/smallbiznis/carelog/internal/identity/domain"
	"github.com/smallbiznis/carelog/internal/observability/metrics"
	patientdomain "github.com/smallbiznis/carelog/internal/patient/domain"
	"github.com/smallbiznis/carelog/pkg/sanitize"
	"github.com/smallbiznis/carelog/pkg/sealbox"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log          *zap.Logger
	GenID        *snowflake.Node
	Repo         domain.Repository
	Patients     patientdomain.Service
	Assignments  assignmentdomain.Service
	Sealer       *sealbox.Sealer
	AuditSvc     auditdomain.Service   `optional:"true"`
	Clock        clock.Clock           `optional:"true"`
	StoreMetrics *metrics.StoreMetrics `optional:"true"`
}

type Service struct {
	log          *zap.Logger
	genID        *snowflake.Node
	repo         domain.Repository
	patients     patientdomain.Service
	assignments  assignmentdomain.Service
	sealer       *sealbox.Sealer
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
		log:          p.Log.Named("clinicalentry.service"),
		genID:        p.GenID,
		repo:         p.Repo,
		patients:     p.Patients,
		assignments:  p.Assignments,
		sealer:       p.Sealer,
		auditSvc:     p.AuditSvc,
		clock:        clk,
		storeMetrics: p.StoreMetrics,
	}
}

func (s *Service) Create(ctx context.Context, principal identitydomain.Principal, patientID snowflake.ID, req domain.CreateRequest) (*domain.Entry, error) {
	kind, ok := domain.ParseKind(req.Kind)
	if !ok {
		return nil, domain.ErrInvalidKind
	}
	content := sanitize.Text(req.Content)
	if content == "" {
		return nil, domain.ErrContentRequired
	}

	patient, err := s.patients.Lookup(ctx, principal, patientID)
	if err != nil {
		return nil, err
	}
	self := principal.UserID == patient.ID
	if !self && !authorization.IsElevated(principal) && !principal.Roles.Has(identitydomain.RolePsychologist) {
		return nil, authorization.ErrForbidden
	}
	active, err := s.assignments.ActiveForPatient(ctx, patient.ID)
	if err != nil {
		return nil, err
	}
	if !self && !authorization.IsElevated(principal) && active.PsychologistID != principal.UserID {
		return nil, authorization.ErrForbidden
	}

	sealed, err := s.sealer.Seal(content)
	if err != nil {
		return nil, err
	}
	entry := &domain.ClinicalEntry{
		ID:           s.genID.Generate(),
		OrgID:        active.OrgID,
		AssignmentID: active.ID,
		PatientID:    patient.ID,
		AuthorID:     principal.UserID,
		Kind:         kind,
		Content:      sealed,
		CreatedAt:    s.clock.Now(),
	}
	if err := s.repo.Insert(ctx, entry); err != nil {
		s.storeMetrics.IncWriteError(metrics.ResourceClinicalEntry, err)
		return nil, err
	}
	s.storeMetrics.IncWrite(metrics.ResourceClinicalEntry, "create")

	if s.auditSvc != nil {
		targetID := entry.ID.String()
		orgID := entry.OrgID
		if err := s.auditSvc.AuditLog(ctx, &orgID, string(auditdomain.ActorTypeUser), principal.ActorID(),
			auditdomain.ActionClinicalEntryCreate, "clinical_entry", &targetID, "clinical entry created",
			map[string]any{
				"patient_id":    entry.PatientID.String(),
				"assignment_id": entry.AssignmentID.String(),
				"kind":          string(entry.Kind),
			},
		); err != nil {
			s.log.Warn("failed to write audit log", zap.Error(err))
		}
	}

	return view(entry, content), nil
}

func (s *Service) ListForPatient(ctx context.Context, principal identitydomain.Principal, patientID snowflake.ID) ([]domain.Entry, error) {
	patient, err := s.patients.Lookup(ctx, principal, patientID)
	if err != nil {
		return nil, err
	}

	var psychologistFilter *snowflake.ID
	switch {
	case principal.UserID == patient.ID:
	case authorization.IsElevated(principal):
	case principal.Roles.Has(identitydomain.RolePsychologist):
		assigned, err := s.assignments.IsAssignedTo(ctx, patient.ID, principal.UserID)
		if err != nil {
			return nil, err
		}
		if !assigned {
			return nil, authorization.ErrForbidden
		}
		id := principal.UserID
		psychologistFilter = &id
	default:
		return nil, authorization.ErrForbidden
	}

	rows, err := s.repo.ListForPatient(ctx, patient.ID, psychologistFilter)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Entry, 0, len(rows))
	for i := range rows {
		content, err := s.sealer.Open(rows[i].Content)
		if err != nil {
			return nil, err
		}
		out = append(out, *view(&rows[i], content))
	}
	return out, nil
}

func view(entry *domain.ClinicalEntry, content string) *domain.Entry {
	return &domain.Entry{
		ID:           entry.ID,
		AssignmentID: entry.AssignmentID,
		PatientID:    entry.PatientID,
		AuthorID:     entry.AuthorID,
		Kind:         entry.Kind,
		Content:      content,
		CreatedAt:    entry.CreatedAt,
	}
}
