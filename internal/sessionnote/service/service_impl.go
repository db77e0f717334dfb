package service

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	assignmentdomain "github.com/smallbiznis/carelog/internal/assignment/domain"
	auditdomain "github.com/smallbiznis/carelog/internal/audit/domain"
	"github.com/smallbiznis/carelog/internal/authorization"
	"github.com/smallbiznis/carelog/internal/clock"
	"github.com/smallbiznis/carelog/internal/config"
	identitydomain "github.com/smallbiznis/carelog/internal/identity/domain"
	"github.com/smallbiznis/carelog/internal/observability/metrics"
	patientdomain "github.com/smallbiznis/carelog/internal/patient/domain"
	"github.com/smallbiznis/carelog/internal/sessionnote/domain"
	"github.com/smallbiznis/carelog/pkg/db"
	"github.com/smallbiznis/carelog/pkg/sanitize"
	"github.com/smallbiznis/carelog/pkg/sealbox"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultEditWindow = 24 * time.Hour

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	Cfg          config.Config
	GenID        *snowflake.Node
	Repo         domain.Repository
	Patients     patientdomain.Service
	Assignments  assignmentdomain.Service
	Sealer       *sealbox.Sealer
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
	patients     patientdomain.Service
	assignments  assignmentdomain.Service
	sealer       *sealbox.Sealer
	auditSvc     auditdomain.Service
	clock        clock.Clock
	metrics      *metrics.Metrics
	storeMetrics *metrics.StoreMetrics
	editWindow   time.Duration
	location     *time.Location
}

func NewService(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	window := p.Cfg.Clinical.NoteEditWindow
	if window <= 0 {
		window = defaultEditWindow
	}
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("sessionnote.service"),
		genID:        p.GenID,
		repo:         p.Repo,
		patients:     p.Patients,
		assignments:  p.Assignments,
		sealer:       p.Sealer,
		auditSvc:     p.AuditSvc,
		clock:        clk,
		metrics:      p.Metrics,
		storeMetrics: p.StoreMetrics,
		editWindow:   window,
		location:     p.Cfg.PracticeLocation(),
	}
}

func (s *Service) Create(ctx context.Context, principal identitydomain.Principal, patientID snowflake.ID, content string) (*domain.Note, error) {
	if err := authorization.RequireAnyRole(principal, identitydomain.RolePsychologist); err != nil {
		return nil, err
	}
	content = sanitize.Text(content)
	if content == "" {
		return nil, domain.ErrContentRequired
	}

	patient, err := s.patients.Lookup(ctx, principal, patientID)
	if err != nil {
		return nil, err
	}
	active, err := s.assignments.ActiveForPatient(ctx, patient.ID)
	if errors.Is(err, assignmentdomain.ErrNoActiveAssignment) {
		return nil, domain.ErrNotAssigned
	}
	if err != nil {
		return nil, err
	}
	if active.PsychologistID != principal.UserID {
		return nil, domain.ErrNotAssigned
	}

	sealed, err := s.sealer.Seal(content)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	note := &domain.SessionNote{
		ID:             s.genID.Generate(),
		OrgID:          active.OrgID,
		PatientID:      patient.ID,
		PsychologistID: principal.UserID,
		SessionDate:    clock.CalendarDay(now, s.location),
		AssignmentID:   active.ID,
		Content:        sealed,
		EditableUntil:  now.Add(s.editWindow),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	// The daily unique index decides; the existing row only shapes the error.
	if err := s.repo.Insert(ctx, note); err != nil {
		s.storeMetrics.IncWriteError(metrics.ResourceSessionNote, err)
		if !db.IsDuplicateKeyErr(err) {
			return nil, err
		}
		existing, getErr := s.repo.GetDaily(ctx, note.PatientID, note.PsychologistID, note.SessionDate)
		if getErr != nil {
			return nil, getErr
		}
		if existing.EditableAt(now) {
			s.metrics.RecordSessionNote(ctx, "create", "exists_today")
			return nil, &domain.ExistsTodayError{ExistingID: existing.ID}
		}
		s.metrics.RecordSessionNote(ctx, "create", "locked")
		return nil, domain.ErrSessionLocked
	}
	s.storeMetrics.IncWrite(metrics.ResourceSessionNote, "create")
	s.metrics.RecordSessionNote(ctx, "create", "success")

	s.audit(ctx, principal, note, auditdomain.ActionSessionNoteCreate, "session note created")
	return s.view(note, content, now), nil
}

func (s *Service) Update(ctx context.Context, principal identitydomain.Principal, noteID snowflake.ID, content string) (*domain.Note, error) {
	if err := authorization.RequireAnyRole(principal, identitydomain.RolePsychologist); err != nil {
		return nil, err
	}
	content = sanitize.Text(content)
	if content == "" {
		return nil, domain.ErrContentRequired
	}

	note, err := s.authorizedNote(ctx, principal, noteID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	if !note.EditableAt(now) {
		s.metrics.RecordSessionNote(ctx, "update", "locked")
		return nil, domain.ErrLocked
	}

	sealed, err := s.sealer.Seal(content)
	if err != nil {
		return nil, err
	}
	updated, err := s.repo.UpdateContent(ctx, note.ID, sealed, now, now)
	if err != nil {
		s.storeMetrics.IncWriteError(metrics.ResourceSessionNote, err)
		return nil, err
	}
	if !updated {
		s.metrics.RecordSessionNote(ctx, "update", "locked")
		return nil, domain.ErrLocked
	}
	note.Content = sealed
	note.UpdatedAt = now
	s.storeMetrics.IncWrite(metrics.ResourceSessionNote, "update")
	s.metrics.RecordSessionNote(ctx, "update", "success")

	s.audit(ctx, principal, note, auditdomain.ActionSessionNoteUpdate, "session note updated")
	return s.view(note, content, now), nil
}

func (s *Service) Get(ctx context.Context, principal identitydomain.Principal, noteID snowflake.ID) (*domain.Note, error) {
	if err := authorization.RequireAnyRole(principal, identitydomain.RolePsychologist); err != nil {
		return nil, err
	}
	note, err := s.authorizedNote(ctx, principal, noteID)
	if err != nil {
		return nil, err
	}
	content, err := s.sealer.Open(note.Content)
	if err != nil {
		return nil, err
	}
	return s.view(note, content, s.clock.Now()), nil
}

func (s *Service) ListForPatient(ctx context.Context, principal identitydomain.Principal, patientID snowflake.ID) ([]domain.Note, error) {
	if err := authorization.RequireAnyRole(principal, identitydomain.RolePsychologist); err != nil {
		return nil, err
	}
	patient, err := s.patients.Lookup(ctx, principal, patientID)
	if err != nil {
		return nil, err
	}
	assigned, err := s.assignments.IsAssignedTo(ctx, patient.ID, principal.UserID)
	if err != nil {
		return nil, err
	}
	if !assigned {
		return nil, domain.ErrNotAssigned
	}

	author := principal.UserID
	notes, err := s.repo.ListForPatient(ctx, patient.ID, &author)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	out := make([]domain.Note, 0, len(notes))
	for i := range notes {
		content, err := s.sealer.Open(notes[i].Content)
		if err != nil {
			return nil, err
		}
		out = append(out, *s.view(&notes[i], content, now))
	}
	return out, nil
}

// authorizedNote loads a note readable and writable only by its author
// while the author holds the ACTIVE assignment of the patient.
func (s *Service) authorizedNote(ctx context.Context, principal identitydomain.Principal, noteID snowflake.ID) (*domain.SessionNote, error) {
	note, err := s.repo.Get(ctx, noteID)
	if err != nil {
		return nil, err
	}
	if err := authorization.RequireOrg(principal, note.OrgID); err != nil {
		return nil, err
	}
	if note.PsychologistID != principal.UserID {
		return nil, domain.ErrNotAuthor
	}
	assigned, err := s.assignments.IsAssignedTo(ctx, note.PatientID, principal.UserID)
	if err != nil {
		return nil, err
	}
	if !assigned {
		return nil, domain.ErrNotAssigned
	}
	return note, nil
}

func (s *Service) view(note *domain.SessionNote, content string, now time.Time) *domain.Note {
	return &domain.Note{
		ID:             note.ID,
		PatientID:      note.PatientID,
		PsychologistID: note.PsychologistID,
		AssignmentID:   note.AssignmentID,
		SessionDate:    note.SessionDate,
		Content:        content,
		EditableUntil:  note.EditableUntil,
		Editable:       note.EditableAt(now),
		CreatedAt:      note.CreatedAt,
		UpdatedAt:      note.UpdatedAt,
	}
}

func (s *Service) audit(ctx context.Context, principal identitydomain.Principal, note *domain.SessionNote, action string, description string) {
	if s.auditSvc == nil {
		return
	}
	targetID := note.ID.String()
	orgID := note.OrgID
	if err := s.auditSvc.AuditLog(ctx, &orgID, string(auditdomain.ActorTypeUser), principal.ActorID(), action, "session_note", &targetID, description, map[string]any{
		"patient_id":   note.PatientID.String(),
		"session_date": note.SessionDate,
	}); err != nil {
		s.log.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
	}
}
