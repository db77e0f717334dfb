package service

import (
	"context"
	"testing"
	"time"

	assignmentdomain "github.com/smallbiznis/carelog/internal/assignment/domain"
	assignmentrepository "github.com/smallbiznis/carelog/internal/assignment/repository"
	assignmentservice "github.com/smallbiznis/carelog/internal/assignment/service"
	auditdomain "github.com/smallbiznis/carelog/internal/audit/domain"
	"github.com/smallbiznis/carelog/internal/authorization"
	"github.com/smallbiznis/carelog/internal/clinicalentry/domain"
	"github.com/smallbiznis/carelog/internal/clinicalentry/repository"
	identitydomain "github.com/smallbiznis/carelog/internal/identity/domain"
	identityrepository "github.com/smallbiznis/carelog/internal/identity/repository"
	orgdomain "github.com/smallbiznis/carelog/internal/organization/domain"
	patientrepository "github.com/smallbiznis/carelog/internal/patient/repository"
	patientservice "github.com/smallbiznis/carelog/internal/patient/service"
	"github.com/smallbiznis/carelog/internal/testutil"
	"github.com/smallbiznis/carelog/pkg/sealbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestService(t *testing.T, f *testutil.Fixtures) (domain.Service, assignmentdomain.Service) {
	t.Helper()
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
	key, err := sealbox.KeyFromString("clinical-test-key")
	require.NoError(t, err)
	sealer, err := sealbox.New(key)
	require.NoError(t, err)

	return NewService(Params{
		Log:         log,
		GenID:       f.Node,
		Repo:        repository.NewRepository(f.DB),
		Patients:    patients,
		Assignments: assignments,
		Sealer:      sealer,
		AuditSvc:    f.Audit(),
		Clock:       f.Clock,
	}), assignments
}

func TestCreateAndListEntries(t *testing.T) {
	f := testutil.NewFixtures(t)
	svc, _ := newTestService(t, f)
	ctx := context.Background()

	org := f.Org(orgdomain.PlanTeam)
	psych := f.User(org.ID, "Quinn", identitydomain.RolePsychologist)
	patient := f.User(org.ID, "Park", identitydomain.RolePatient)
	owner := f.User(org.ID, "Owner", identitydomain.RoleOwner)
	f.Assignment(org.ID, patient.ID, psych.ID)

	first, err := svc.Create(ctx, testutil.Principal(psych), patient.ID, domain.CreateRequest{Kind: "assessment", Content: "PHQ-9 score 12"})
	require.NoError(t, err)
	assert.Equal(t, domain.KindAssessment, first.Kind)

	f.Clock.Advance(time.Minute)
	_, err = svc.Create(ctx, testutil.Principal(patient), patient.ID, domain.CreateRequest{Kind: "JOURNAL", Content: "Felt rested"})
	require.NoError(t, err)

	f.Clock.Advance(time.Minute)
	_, err = svc.Create(ctx, testutil.Principal(owner), patient.ID, domain.CreateRequest{Kind: "OBSERVATION", Content: "Intake reviewed"})
	require.NoError(t, err)

	entries, err := svc.ListForPatient(ctx, testutil.Principal(psych), patient.ID)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "PHQ-9 score 12", entries[0].Content)
	assert.Equal(t, "Felt rested", entries[1].Content)
	assert.Equal(t, "Intake reviewed", entries[2].Content)

	assert.Equal(t, int64(3), f.CountAudit(auditdomain.ActionClinicalEntryCreate))
}

func TestEntriesOfPreviousPsychologistStayHidden(t *testing.T) {
	f := testutil.NewFixtures(t)
	svc, assignments := newTestService(t, f)
	ctx := context.Background()

	org := f.Org(orgdomain.PlanTeam)
	admin := f.User(org.ID, "Admin", identitydomain.RoleAdmin)
	q := f.User(org.ID, "Quinn", identitydomain.RolePsychologist)
	r := f.User(org.ID, "Reyes", identitydomain.RolePsychologist)
	patient := f.User(org.ID, "Park", identitydomain.RolePatient)

	_, err := assignments.Assign(ctx, testutil.Principal(admin), patient.ID, q.ID)
	require.NoError(t, err)
	_, err = svc.Create(ctx, testutil.Principal(q), patient.ID, domain.CreateRequest{Kind: "OBSERVATION", Content: "by quinn"})
	require.NoError(t, err)

	_, err = assignments.Unassign(ctx, testutil.Principal(admin), patient.ID)
	require.NoError(t, err)
	_, err = assignments.Assign(ctx, testutil.Principal(admin), patient.ID, r.ID)
	require.NoError(t, err)
	_, err = svc.Create(ctx, testutil.Principal(r), patient.ID, domain.CreateRequest{Kind: "OBSERVATION", Content: "by reyes"})
	require.NoError(t, err)

	entries, err := svc.ListForPatient(ctx, testutil.Principal(r), patient.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "by reyes", entries[0].Content)

	_, err = svc.ListForPatient(ctx, testutil.Principal(q), patient.ID)
	assert.ErrorIs(t, err, authorization.ErrForbidden)

	all, err := svc.ListForPatient(ctx, testutil.Principal(admin), patient.ID)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestCreateEntryRejections(t *testing.T) {
	f := testutil.NewFixtures(t)
	svc, _ := newTestService(t, f)
	ctx := context.Background()

	org := f.Org(orgdomain.PlanTeam)
	psych := f.User(org.ID, "Quinn", identitydomain.RolePsychologist)
	assistant := f.User(org.ID, "Assistant", identitydomain.RoleAssistant)
	patient := f.User(org.ID, "Park", identitydomain.RolePatient)

	_, err := svc.Create(ctx, testutil.Principal(psych), patient.ID, domain.CreateRequest{Kind: "DIARY", Content: "x"})
	assert.ErrorIs(t, err, domain.ErrInvalidKind)

	_, err = svc.Create(ctx, testutil.Principal(psych), patient.ID, domain.CreateRequest{Kind: "JOURNAL", Content: " "})
	assert.ErrorIs(t, err, domain.ErrContentRequired)

	_, err = svc.Create(ctx, testutil.Principal(psych), patient.ID, domain.CreateRequest{Kind: "JOURNAL", Content: "no assignment"})
	assert.ErrorIs(t, err, assignmentdomain.ErrNoActiveAssignment)

	// Callers without write access learn nothing about the assignment.
	_, err = svc.Create(ctx, testutil.Principal(assistant), patient.ID, domain.CreateRequest{Kind: "JOURNAL", Content: "unassigned"})
	assert.ErrorIs(t, err, authorization.ErrForbidden)
	assert.NotErrorIs(t, err, assignmentdomain.ErrNoActiveAssignment)

	f.Assignment(org.ID, patient.ID, psych.ID)
	_, err = svc.Create(ctx, testutil.Principal(assistant), patient.ID, domain.CreateRequest{Kind: "JOURNAL", Content: "assistant"})
	assert.ErrorIs(t, err, authorization.ErrForbidden)
}
