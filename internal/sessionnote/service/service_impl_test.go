package service

import (
	"context"
	"errors"
	"testing"
	"time"

	assignmentrepository "github.com/smallbiznis/carelog/internal/assignment/repository"
	assignmentservice "github.com/smallbiznis/carelog/internal/assignment/service"
	auditdomain "github.com/smallbiznis/carelog/internal/audit/domain"
	"github.com/smallbiznis/carelog/internal/authorization"
	"github.com/smallbiznis/carelog/internal/config"
	identitydomain "github.com/smallbiznis/carelog/internal/identity/domain"
	identityrepository "github.com/smallbiznis/carelog/internal/identity/repository"
	orgdomain "github.com/smallbiznis/carelog/internal/organization/domain"
	patientrepository "github.com/smallbiznis/carelog/internal/patient/repository"
	patientservice "github.com/smallbiznis/carelog/internal/patient/service"
	"github.com/smallbiznis/carelog/internal/sessionnote/domain"
	"github.com/smallbiznis/carelog/internal/sessionnote/repository"
	"github.com/smallbiznis/carelog/internal/testutil"
	"github.com/smallbiznis/carelog/pkg/sealbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type harness struct {
	f       *testutil.Fixtures
	svc     domain.Service
	psych   identitydomain.User
	other   identitydomain.User
	patient identitydomain.User
}

func setup(t *testing.T) *harness {
	t.Helper()
	return setupWithWindow(t, 24*time.Hour)
}

func setupWithWindow(t *testing.T, window time.Duration) *harness {
	t.Helper()
	f := testutil.NewFixtures(t)
	log := zaptest.NewLogger(t)
	users := identityrepository.NewRepository(f.DB)
	assignments := assignmentservice.NewService(assignmentservice.Params{
		DB:    f.DB,
		Log:   log,
		GenID: f.Node,
		Repo:  assignmentrepository.NewRepository(f.DB),
		Users: users,
		Clock: f.Clock,
	})
	patients := patientservice.NewService(patientservice.Params{
		Log:         log,
		Repo:        patientrepository.NewRepository(f.DB),
		Users:       users,
		Assignments: assignments,
	})
	key, err := sealbox.KeyFromString("test-seal-key")
	require.NoError(t, err)
	sealer, err := sealbox.New(key)
	require.NoError(t, err)

	svc := NewService(Params{
		DB: f.DB,
		Cfg: config.Config{Clinical: config.ClinicalConfig{
			PracticeTimezone: "UTC",
			NoteEditWindow:   window,
		}},
		Log:         log,
		GenID:       f.Node,
		Repo:        repository.NewRepository(f.DB),
		Patients:    patients,
		Assignments: assignments,
		Sealer:      sealer,
		AuditSvc:    f.Audit(),
		Clock:       f.Clock,
	})

	org := f.Org(orgdomain.PlanTeam)
	h := &harness{
		f:       f,
		svc:     svc,
		psych:   f.User(org.ID, "Quinn", identitydomain.RolePsychologist),
		other:   f.User(org.ID, "Reyes", identitydomain.RolePsychologist),
		patient: f.User(org.ID, "Park", identitydomain.RolePatient),
	}
	f.Assignment(org.ID, h.patient.ID, h.psych.ID)
	return h
}

func TestNoteEditWindowScenario(t *testing.T) {
	h := setup(t)
	ctx := context.Background()
	q := testutil.Principal(h.psych)

	note, err := h.svc.Create(ctx, q, h.patient.ID, "initial")
	require.NoError(t, err)
	assert.Equal(t, "initial", note.Content)
	assert.True(t, note.Editable)
	assert.Equal(t, h.f.Clock.Now().Add(24*time.Hour), note.EditableUntil)

	_, err = h.svc.Update(ctx, q, note.ID, "updated")
	require.NoError(t, err)

	got, err := h.svc.Get(ctx, q, note.ID)
	require.NoError(t, err)
	assert.Equal(t, "updated", got.Content)

	h.f.Clock.Advance(25 * time.Hour)
	_, err = h.svc.Update(ctx, q, note.ID, "too late")
	assert.ErrorIs(t, err, domain.ErrLocked)

	got, err = h.svc.Get(ctx, q, note.ID)
	require.NoError(t, err)
	assert.Equal(t, "updated", got.Content)
	assert.False(t, got.Editable)

	assert.Equal(t, int64(1), h.f.CountAudit(auditdomain.ActionSessionNoteCreate))
	assert.Equal(t, int64(1), h.f.CountAudit(auditdomain.ActionSessionNoteUpdate))
}

func TestNoteLocksAtExactBoundary(t *testing.T) {
	h := setup(t)
	ctx := context.Background()
	q := testutil.Principal(h.psych)

	note, err := h.svc.Create(ctx, q, h.patient.ID, "first")
	require.NoError(t, err)

	h.f.Clock.Advance(24*time.Hour - time.Second)
	_, err = h.svc.Update(ctx, q, note.ID, "still open")
	require.NoError(t, err)

	h.f.Clock.Advance(time.Second)
	_, err = h.svc.Update(ctx, q, note.ID, "closed")
	assert.ErrorIs(t, err, domain.ErrLocked)
}

func TestSecondNoteSameDayReturnsExistingID(t *testing.T) {
	h := setup(t)
	ctx := context.Background()
	q := testutil.Principal(h.psych)

	first, err := h.svc.Create(ctx, q, h.patient.ID, "first")
	require.NoError(t, err)

	h.f.Clock.Advance(2 * time.Hour)
	_, err = h.svc.Create(ctx, q, h.patient.ID, "second")
	require.ErrorIs(t, err, domain.ErrAlreadyExistsToday)

	var exists *domain.ExistsTodayError
	require.True(t, errors.As(err, &exists))
	assert.Equal(t, first.ID, exists.ExistingID)

	var count int64
	require.NoError(t, h.f.DB.Model(&domain.SessionNote{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestSecondNoteAfterLockIsSessionLocked(t *testing.T) {
	h := setupWithWindow(t, time.Hour)
	ctx := context.Background()
	q := testutil.Principal(h.psych)

	_, err := h.svc.Create(ctx, q, h.patient.ID, "first")
	require.NoError(t, err)

	h.f.Clock.Advance(30 * time.Minute)
	_, err = h.svc.Create(ctx, q, h.patient.ID, "second")
	assert.ErrorIs(t, err, domain.ErrAlreadyExistsToday)

	h.f.Clock.Advance(2 * time.Hour)
	_, err = h.svc.Create(ctx, q, h.patient.ID, "third")
	assert.ErrorIs(t, err, domain.ErrSessionLocked)

	var count int64
	require.NoError(t, h.f.DB.Model(&domain.SessionNote{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestNextDayAllowsNewNote(t *testing.T) {
	h := setup(t)
	ctx := context.Background()
	q := testutil.Principal(h.psych)

	_, err := h.svc.Create(ctx, q, h.patient.ID, "monday")
	require.NoError(t, err)

	h.f.Clock.Advance(24 * time.Hour)
	_, err = h.svc.Create(ctx, q, h.patient.ID, "tuesday")
	require.NoError(t, err)

	notes, err := h.svc.ListForPatient(ctx, q, h.patient.ID)
	require.NoError(t, err)
	require.Len(t, notes, 2)
	assert.Equal(t, "tuesday", notes[0].Content)
	assert.Equal(t, "monday", notes[1].Content)
}

func TestNoteRequiresActiveAssignment(t *testing.T) {
	h := setup(t)
	ctx := context.Background()

	_, err := h.svc.Create(ctx, testutil.Principal(h.other), h.patient.ID, "not mine")
	assert.ErrorIs(t, err, domain.ErrNotAssigned)

	note, err := h.svc.Create(ctx, testutil.Principal(h.psych), h.patient.ID, "mine")
	require.NoError(t, err)

	_, err = h.svc.Get(ctx, testutil.Principal(h.other), note.ID)
	assert.ErrorIs(t, err, domain.ErrNotAuthor)

	_, err = h.svc.Get(ctx, testutil.Principal(h.patient), note.ID)
	assert.ErrorIs(t, err, authorization.ErrForbidden)

	_, err = h.svc.Get(ctx, testutil.Principal(h.psych), h.f.Node.Generate())
	assert.ErrorIs(t, err, domain.ErrNoteNotFound)
}

func TestNoteContentIsSanitizedAndSealed(t *testing.T) {
	h := setup(t)
	ctx := context.Background()

	_, err := h.svc.Create(ctx, testutil.Principal(h.psych), h.patient.ID, "<script>x</script>   ")
	assert.ErrorIs(t, err, domain.ErrContentRequired)

	note, err := h.svc.Create(ctx, testutil.Principal(h.psych), h.patient.ID, "<b>calm</b> session")
	require.NoError(t, err)
	assert.Equal(t, "calm session", note.Content)

	var row domain.SessionNote
	require.NoError(t, h.f.DB.First(&row, "id = ?", note.ID).Error)
	assert.NotContains(t, row.Content, "calm")
}
