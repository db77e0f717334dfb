package service

import (
	"context"
	"sync"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/smallbiznis/carelog/internal/assignment/domain"
	"github.com/smallbiznis/carelog/internal/assignment/repository"
	auditdomain "github.com/smallbiznis/carelog/internal/audit/domain"
	"github.com/smallbiznis/carelog/internal/authorization"
	identitydomain "github.com/smallbiznis/carelog/internal/identity/domain"
	identityrepository "github.com/smallbiznis/carelog/internal/identity/repository"
	"github.com/smallbiznis/carelog/internal/observability/metrics"
	orgdomain "github.com/smallbiznis/carelog/internal/organization/domain"
	"github.com/smallbiznis/carelog/internal/orgcontext"
	"github.com/smallbiznis/carelog/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type harness struct {
	f       *testutil.Fixtures
	svc     domain.Service
	org     orgdomain.Organization
	admin   identitydomain.User
	psychQ  identitydomain.User
	psychR  identitydomain.User
	patient identitydomain.User
}

func setup(t *testing.T) *harness {
	t.Helper()
	f := testutil.NewFixtures(t)
	svc := NewService(Params{
		DB:       f.DB,
		Log:      zaptest.NewLogger(t),
		GenID:    f.Node,
		Repo:     repository.NewRepository(f.DB),
		Users:    identityrepository.NewRepository(f.DB),
		AuditSvc: f.Audit(),
		Clock:    f.Clock,
	})
	org := f.Org(orgdomain.PlanTeam)
	return &harness{
		f:       f,
		svc:     svc,
		org:     org,
		admin:   f.User(org.ID, "Admin", identitydomain.RoleAdmin),
		psychQ:  f.User(org.ID, "Quinn", identitydomain.RolePsychologist),
		psychR:  f.User(org.ID, "Reyes", identitydomain.RolePsychologist),
		patient: f.User(org.ID, "Park", identitydomain.RolePatient),
	}
}

func poolIDs(t *testing.T, h *harness) []snowflake.ID {
	t.Helper()
	pool, err := h.svc.ListPool(context.Background(), testutil.Principal(h.admin))
	require.NoError(t, err)
	ids := make([]snowflake.ID, 0, len(pool))
	for _, p := range pool {
		ids = append(ids, p.ID)
	}
	return ids
}

func TestAssignUnassignScenario(t *testing.T) {
	h := setup(t)
	ctx := context.Background()

	assert.Contains(t, poolIDs(t, h), h.patient.ID)

	row, err := h.svc.Assign(ctx, testutil.Principal(h.admin), h.patient.ID, h.psychQ.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, row.Status)

	assert.NotContains(t, poolIDs(t, h), h.patient.ID)

	mine, err := h.svc.ListMine(ctx, testutil.Principal(h.psychQ), 0)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, h.patient.ID, mine[0].ID)
	require.NotNil(t, mine[0].AssignedPsychologistID)
	assert.Equal(t, h.psychQ.ID, *mine[0].AssignedPsychologistID)

	ended, err := h.svc.Unassign(ctx, testutil.Principal(h.admin), h.patient.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusEnded, ended.Status)
	require.NotNil(t, ended.EndedAt)

	assert.Contains(t, poolIDs(t, h), h.patient.ID)

	var pointer identitydomain.User
	require.NoError(t, h.f.DB.First(&pointer, "id = ?", h.patient.ID).Error)
	assert.Nil(t, pointer.AssignedPsychologistID)

	history, err := h.svc.History(ctx, testutil.Principal(h.admin), h.patient.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, domain.StatusEnded, history[0].Status)

	assert.Equal(t, int64(1), h.f.CountAudit(auditdomain.ActionAssignmentAssign))
	assert.Equal(t, int64(1), h.f.CountAudit(auditdomain.ActionAssignmentUnassign))
}

func TestAssignRejectsAlreadyAssigned(t *testing.T) {
	h := setup(t)
	ctx := context.Background()

	_, err := h.svc.Assign(ctx, testutil.Principal(h.admin), h.patient.ID, h.psychQ.ID)
	require.NoError(t, err)

	_, err = h.svc.Assign(ctx, testutil.Principal(h.admin), h.patient.ID, h.psychR.ID)
	assert.ErrorIs(t, err, domain.ErrAlreadyAssigned)

	active, err := h.svc.ActiveForPatient(ctx, h.patient.ID)
	require.NoError(t, err)
	assert.Equal(t, h.psychQ.ID, active.PsychologistID)
}

func TestAssignConcurrentKeepsSingleActiveRow(t *testing.T) {
	h := setup(t)
	ctx := context.Background()

	psychologists := []identitydomain.User{h.psychQ, h.psychR}
	for i := 0; i < 4; i++ {
		psychologists = append(psychologists, h.f.User(h.org.ID, "Extra", identitydomain.RolePsychologist))
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for _, psych := range psychologists {
		wg.Add(1)
		go func(psychID snowflake.ID) {
			defer wg.Done()
			_, err := h.svc.Assign(ctx, testutil.Principal(h.admin), h.patient.ID, psychID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case assert.ErrorIs(t, err, domain.ErrAlreadyAssigned):
				conflicts++
			}
		}(psych.ID)
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, len(psychologists)-1, conflicts)

	var active int64
	require.NoError(t, h.f.DB.Model(&domain.PatientAssignment{}).
		Where("patient_id = ? AND status = ?", h.patient.ID, domain.StatusActive).
		Count(&active).Error)
	assert.Equal(t, int64(1), active)
}

func TestAssignValidation(t *testing.T) {
	h := setup(t)
	ctx := context.Background()
	admin := testutil.Principal(h.admin)

	_, err := h.svc.Assign(ctx, admin, 0, h.psychQ.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidPatient)

	_, err = h.svc.Assign(ctx, admin, h.patient.ID, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidPsychologist)

	_, err = h.svc.Assign(ctx, admin, h.f.Node.Generate(), h.psychQ.ID)
	assert.ErrorIs(t, err, domain.ErrPatientNotFound)

	_, err = h.svc.Assign(ctx, admin, h.patient.ID, h.f.Node.Generate())
	assert.ErrorIs(t, err, domain.ErrPsychologistNotFound)

	// target lacks the psychologist role
	_, err = h.svc.Assign(ctx, admin, h.patient.ID, h.admin.ID)
	assert.ErrorIs(t, err, domain.ErrNotInScope)

	other := h.f.Org(orgdomain.PlanTeam)
	outsider := h.f.User(other.ID, "Outsider", identitydomain.RolePsychologist)
	_, err = h.svc.Assign(ctx, admin, h.patient.ID, outsider.ID)
	assert.ErrorIs(t, err, domain.ErrNotInScope)

	inactive := h.f.UserWithStatus(h.org.ID, "Idle", identitydomain.UserStatusInactive, identitydomain.RolePatient)
	_, err = h.svc.Assign(ctx, admin, inactive.ID, h.psychQ.ID)
	assert.ErrorIs(t, err, domain.ErrPatientInactive)
}

func TestPsychologistAssignsOnlyThemself(t *testing.T) {
	h := setup(t)
	ctx := context.Background()
	q := testutil.Principal(h.psychQ)

	_, err := h.svc.Assign(ctx, q, h.patient.ID, h.psychR.ID)
	assert.ErrorIs(t, err, domain.ErrSelfAssignOnly)

	_, err = h.svc.Assign(ctx, q, h.patient.ID, h.psychQ.ID)
	require.NoError(t, err)

	_, err = h.svc.Unassign(ctx, testutil.Principal(h.psychR), h.patient.ID)
	assert.ErrorIs(t, err, authorization.ErrForbidden)

	_, err = h.svc.Unassign(ctx, q, h.patient.ID)
	require.NoError(t, err)

	_, err = h.svc.Unassign(ctx, q, h.patient.ID)
	assert.ErrorIs(t, err, domain.ErrNoActiveAssignment)
}

func TestPatientCannotAssign(t *testing.T) {
	h := setup(t)
	_, err := h.svc.Assign(context.Background(), testutil.Principal(h.patient), h.patient.ID, h.psychQ.ID)
	assert.ErrorIs(t, err, authorization.ErrForbidden)

	_, err = h.svc.Assign(context.Background(), identitydomain.Principal{}, h.patient.ID, h.psychQ.ID)
	assert.ErrorIs(t, err, authorization.ErrUnauthorized)
}

func TestListMineForOtherPsychologist(t *testing.T) {
	h := setup(t)
	ctx := context.Background()
	h.f.Assignment(h.org.ID, h.patient.ID, h.psychR.ID)

	_, err := h.svc.ListMine(ctx, testutil.Principal(h.psychQ), h.psychR.ID)
	assert.ErrorIs(t, err, authorization.ErrForbidden)

	list, err := h.svc.ListMine(ctx, testutil.Principal(h.admin), h.psychR.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, h.patient.ID, list[0].ID)
}

func TestListMineOrdersByName(t *testing.T) {
	h := setup(t)
	ctx := context.Background()
	b := h.f.User(h.org.ID, "Baker", identitydomain.RolePatient)
	a := h.f.User(h.org.ID, "Adams", identitydomain.RolePatient)
	for _, p := range []identitydomain.User{h.patient, b, a} {
		h.f.Assignment(h.org.ID, p.ID, h.psychQ.ID)
	}

	list, err := h.svc.ListMine(ctx, testutil.Principal(h.psychQ), 0)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{"Adams", "Baker", "Park"}, []string{list[0].LastName, list[1].LastName, list[2].LastName})
}

func TestSuperadminSelectsOrganization(t *testing.T) {
	h := setup(t)
	root := h.f.User(0, "Root", identitydomain.RoleSuperadmin)

	_, err := h.svc.ListPool(context.Background(), testutil.Principal(root))
	assert.ErrorIs(t, err, authorization.ErrForbiddenOrganization)

	ctx := orgcontext.WithOrgID(context.Background(), h.org.ID)
	pool, err := h.svc.ListPool(ctx, testutil.Principal(root))
	require.NoError(t, err)
	assert.Len(t, pool, 1)

	_, err = h.svc.Assign(ctx, testutil.Principal(root), h.patient.ID, h.psychQ.ID)
	require.NoError(t, err)
}

func TestHistoryVisibility(t *testing.T) {
	h := setup(t)
	ctx := context.Background()
	h.f.Assignment(h.org.ID, h.patient.ID, h.psychQ.ID)

	_, err := h.svc.History(ctx, testutil.Principal(h.psychQ), h.patient.ID)
	require.NoError(t, err)

	_, err = h.svc.History(ctx, testutil.Principal(h.psychR), h.patient.ID)
	assert.ErrorIs(t, err, authorization.ErrForbidden)

	_, err = h.svc.History(ctx, testutil.Principal(h.patient), h.patient.ID)
	require.NoError(t, err)

	other := h.f.Org(orgdomain.PlanTeam)
	foreignAdmin := h.f.User(other.ID, "Foreign", identitydomain.RoleAdmin)
	_, err = h.svc.History(ctx, testutil.Principal(foreignAdmin), h.patient.ID)
	assert.ErrorIs(t, err, authorization.ErrForbiddenOrganization)
}

func TestFailedWritesAreCounted(t *testing.T) {
	h := setup(t)
	ctx := context.Background()
	registry := prometheus.NewRegistry()
	svc := NewService(Params{
		DB:           h.f.DB,
		Log:          zaptest.NewLogger(t),
		GenID:        h.f.Node,
		Repo:         repository.NewRepository(h.f.DB),
		Users:        identityrepository.NewRepository(h.f.DB),
		Clock:        h.f.Clock,
		StoreMetrics: metrics.NewStoreMetrics(registry, metrics.Config{ServiceName: "carelog", Environment: "test"}),
	})
	admin := testutil.Principal(h.admin)

	_, err := svc.Unassign(ctx, admin, h.patient.ID)
	require.ErrorIs(t, err, domain.ErrNoActiveAssignment)

	count, err := promtestutil.GatherAndCount(registry, "carelog_store_write_errors_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	_, err = svc.Assign(ctx, admin, h.patient.ID, h.psychQ.ID)
	require.NoError(t, err)
	count, err = promtestutil.GatherAndCount(registry, "carelog_store_writes_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
