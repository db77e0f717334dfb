package service

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/snowflake"
	assignmentdomain "github.com/smallbiznis/carelog/internal/assignment/domain"
	"github.com/smallbiznis/carelog/internal/authorization"
	"github.com/smallbiznis/carelog/internal/clock"
	"github.com/smallbiznis/carelog/internal/config"
	identitydomain "github.com/smallbiznis/carelog/internal/identity/domain"
	"github.com/smallbiznis/carelog/internal/mood/domain"
	"github.com/smallbiznis/carelog/internal/observability/metrics"
	patientdomain "github.com/smallbiznis/carelog/internal/patient/domain"
	"github.com/smallbiznis/carelog/pkg/sanitize"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log          *zap.Logger
	Cfg          config.Config
	GenID        *snowflake.Node
	Repo         domain.Repository
	Patients     patientdomain.Service
	Assignments  assignmentdomain.Service
	Clock        clock.Clock           `optional:"true"`
	Metrics      *metrics.Metrics      `optional:"true"`
	StoreMetrics *metrics.StoreMetrics `optional:"true"`
}

type Service struct {
	log          *zap.Logger
	genID        *snowflake.Node
	repo         domain.Repository
	patients     patientdomain.Service
	assignments  assignmentdomain.Service
	clock        clock.Clock
	metrics      *metrics.Metrics
	storeMetrics *metrics.StoreMetrics
	location     *time.Location
}

func NewService(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		log:          p.Log.Named("mood.service"),
		genID:        p.GenID,
		repo:         p.Repo,
		patients:     p.Patients,
		assignments:  p.Assignments,
		clock:        clk,
		metrics:      p.Metrics,
		storeMetrics: p.StoreMetrics,
		location:     p.Cfg.PracticeLocation(),
	}
}

func (s *Service) Record(ctx context.Context, principal identitydomain.Principal, score int, comment *string) (*domain.MoodEntry, bool, error) {
	if principal.IsZero() {
		return nil, false, authorization.ErrUnauthorized
	}
	if !principal.Roles.Has(identitydomain.RolePatient) {
		return nil, false, domain.ErrPatientOnly
	}
	if score < domain.MinScore || score > domain.MaxScore {
		s.metrics.RecordMoodEntry(ctx, "invalid")
		return nil, false, domain.ErrInvalidScore
	}

	var cleaned *string
	if comment != nil {
		text := sanitize.Text(*comment)
		if utf8.RuneCountInString(text) > domain.MaxCommentLength {
			s.metrics.RecordMoodEntry(ctx, "invalid")
			return nil, false, domain.ErrCommentTooLong
		}
		if text != "" {
			cleaned = &text
		}
	}

	patient, err := s.patients.Lookup(ctx, principal, principal.UserID)
	if err != nil {
		return nil, false, err
	}
	if patient.OrgID == nil {
		return nil, false, authorization.ErrForbiddenOrganization
	}

	now := s.clock.Now()
	entry := &domain.MoodEntry{
		ID:        s.genID.Generate(),
		OrgID:     *patient.OrgID,
		PatientID: patient.ID,
		EntryDate: clock.CalendarDay(now, s.location),
		Score:     score,
		Comment:   cleaned,
		CreatedAt: now,
		UpdatedAt: now,
	}
	stored, created, err := s.repo.Upsert(ctx, entry)
	if err != nil {
		s.storeMetrics.IncWriteError(metrics.ResourceMoodEntry, err)
		return nil, false, err
	}

	result := "updated"
	if created {
		result = "created"
	}
	s.storeMetrics.IncWrite(metrics.ResourceMoodEntry, result)
	s.metrics.RecordMoodEntry(ctx, result)
	return stored, created, nil
}

func (s *Service) ListForPatient(ctx context.Context, principal identitydomain.Principal, patientID snowflake.ID, from, to string) ([]domain.MoodEntry, error) {
	if err := validateRange(from, to); err != nil {
		return nil, err
	}
	patient, err := s.patients.Lookup(ctx, principal, patientID)
	if err != nil {
		return nil, err
	}

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
	default:
		return nil, authorization.ErrForbidden
	}

	return s.repo.ListForPatient(ctx, patient.ID, from, to)
}

func validateRange(from, to string) error {
	var start, end time.Time
	var err error
	if from != "" {
		if start, err = time.Parse(time.DateOnly, from); err != nil {
			return domain.ErrInvalidRange
		}
	}
	if to != "" {
		if end, err = time.Parse(time.DateOnly, to); err != nil {
			return domain.ErrInvalidRange
		}
	}
	if from != "" && to != "" && start.After(end) {
		return domain.ErrInvalidRange
	}
	return nil
}
