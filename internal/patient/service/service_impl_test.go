package service

import (
	"context"
	"testing"

	assignmentrepository "github.com/smallbiznis/carelog/internal/assignment/repository"
	assignmentservice "github.com/smallbiznis/carelog/internal/assignment/service"
	"github.com/smallbiznis/carelog/internal/authorization"
	identitydomain "github.com/smallbiznis/carelog/internal/identity/domain"
	identityrepository "github.com/smallbiznis/carelog/internal/identity/repository"
	orgdomain "github.com/smallbiznis/carelog/internal/organization/domain"
	"github.com/smallbiznis/carelog/internal/patient/domain"
	"github.com/smallbiznis/carelog/internal/patient/repository"
	"github.com/smallbiznis/carelog/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestService(t *testing.T, f *testutil.Fixtures) domain.Service {
	t.Helper()
	users := identityrepository.NewRepository(f.DB)
	return NewService(Params{
		Log:   zaptest.NewLogger(t),
		Repo:  repository.NewRepository(f.DB),
		Users: users,
		Assignments: assignmentservice.NewService(assignmentservice.Params{
			DB:    f.DB,
			Log:   zaptest.NewLogger(t),
			GenID: f.Node,
			Repo:  assignmentrepository.NewRepository(f.DB),
			Users: users,
			Clock: f.Clock,
		}),
	})
}

func TestPsychologistReadsOnlyAssignedPatients(t *testing.T) {
	f := testutil.NewFixtures(t)
	svc := newTestService(t, f)
	ctx := context.Background()

	org := f.Org(orgdomain.PlanTeam)
	q := f.User(org.ID, "Quinn", identitydomain.RolePsychologist)
	r := f.User(org.ID, "Reyes", identitydomain.RolePsychologist)
	mine := f.User(org.ID, "Mine", identitydomain.RolePatient)
	theirs := f.User(org.ID, "Theirs", identitydomain.RolePatient)
	f.Assignment(org.ID, mine.ID, q.ID)
	f.Assignment(org.ID, theirs.ID, r.ID)

	got, err := svc.Get(ctx, testutil.Principal(q), mine.ID)
	require.NoError(t, err)
	assert.Equal(t, mine.ID, got.ID)

	_, err = svc.Get(ctx, testutil.Principal(q), theirs.ID)
	assert.ErrorIs(t, err, authorization.ErrForbidden)

	list, err := svc.List(ctx, testutil.Principal(q))
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, mine.ID, list[0].ID)
}

func TestStaffReadsWholeOrganization(t *testing.T) {
	f := testutil.NewFixtures(t)
	svc := newTestService(t, f)
	ctx := context.Background()

	org := f.Org(orgdomain.PlanTeam)
	assistant := f.User(org.ID, "Assistant", identitydomain.RoleAssistant)
	p1 := f.User(org.ID, "Brown", identitydomain.RolePatient)
	p2 := f.User(org.ID, "Adams", identitydomain.RolePatient)
	f.UserWithStatus(org.ID, "Gone", identitydomain.UserStatusDeleted, identitydomain.RolePatient)

	list, err := svc.List(ctx, testutil.Principal(assistant))
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, p2.ID, list[0].ID)
	assert.Equal(t, p1.ID, list[1].ID)

	_, err = svc.Get(ctx, testutil.Principal(assistant), p1.ID)
	require.NoError(t, err)
}

func TestPatientReadsOnlySelf(t *testing.T) {
	f := testutil.NewFixtures(t)
	svc := newTestService(t, f)
	ctx := context.Background()

	org := f.Org(orgdomain.PlanSolo)
	me := f.User(org.ID, "Me", identitydomain.RolePatient)
	other := f.User(org.ID, "Other", identitydomain.RolePatient)

	_, err := svc.Get(ctx, testutil.Principal(me), me.ID)
	require.NoError(t, err)

	_, err = svc.Get(ctx, testutil.Principal(me), other.ID)
	assert.ErrorIs(t, err, authorization.ErrForbidden)

	_, err = svc.List(ctx, testutil.Principal(me))
	assert.ErrorIs(t, err, authorization.ErrForbidden)
}

func TestLookupScopesOrganization(t *testing.T) {
	f := testutil.NewFixtures(t)
	svc := newTestService(t, f)
	ctx := context.Background()

	org := f.Org(orgdomain.PlanTeam)
	other := f.Org(orgdomain.PlanTeam)
	admin := f.User(other.ID, "Admin", identitydomain.RoleAdmin)
	patient := f.User(org.ID, "Patient", identitydomain.RolePatient)

	_, err := svc.Lookup(ctx, testutil.Principal(admin), patient.ID)
	assert.ErrorIs(t, err, authorization.ErrForbiddenOrganization)

	_, err = svc.Lookup(ctx, testutil.Principal(admin), f.Node.Generate())
	assert.ErrorIs(t, err, domain.ErrPatientNotFound)

	_, err = svc.Lookup(ctx, testutil.Principal(admin), admin.ID)
	assert.ErrorIs(t, err, domain.ErrPatientNotFound)
}
