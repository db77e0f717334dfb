package service

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/carelog/internal/audit/domain"
	"github.com/smallbiznis/carelog/internal/authorization"
	"github.com/smallbiznis/carelog/internal/config"
	identitydomain "github.com/smallbiznis/carelog/internal/identity/domain"
	identityrepository "github.com/smallbiznis/carelog/internal/identity/repository"
	"github.com/smallbiznis/carelog/internal/organization/domain"
	"github.com/smallbiznis/carelog/internal/organization/repository"
	"github.com/smallbiznis/carelog/internal/planlimit"
	"github.com/smallbiznis/carelog/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestService(t *testing.T, f *testutil.Fixtures) domain.Service {
	t.Helper()
	return newTestServiceWithPlans(t, f, config.DefaultPlansConfig())
}

func newTestServiceWithPlans(t *testing.T, f *testutil.Fixtures, plans config.PlansConfig) domain.Service {
	t.Helper()
	log := zaptest.NewLogger(t)
	return NewService(Params{
		DB:    f.DB,
		Log:   log,
		GenID: f.Node,
		Repo:  repository.NewRepository(f.DB),
		Users: identityrepository.NewRepository(f.DB),
		Limits: planlimit.NewEnforcer(planlimit.Params{
			Log:   log,
			Plans: config.NewStaticPlanConfigHolder(plans),
		}),
		AuditSvc: f.Audit(),
		Clock:    f.Clock,
	})
}

func countStaff(t *testing.T, f *testutil.Fixtures, orgID snowflake.ID, role identitydomain.Role) int64 {
	t.Helper()
	var count int64
	require.NoError(t, f.DB.Table("users").
		Joins("JOIN user_roles ON user_roles.user_id = users.id").
		Where("users.org_id = ? AND user_roles.role = ?", orgID, role).
		Where("users.status IN ?", []identitydomain.UserStatus{identitydomain.UserStatusActive, identitydomain.UserStatusPending}).
		Count(&count).Error)
	return count
}

func TestRegisterSoloAndTeam(t *testing.T) {
	f := testutil.NewFixtures(t)
	svc := newTestService(t, f)
	ctx := context.Background()

	solo, err := svc.Register(ctx, identitydomain.Claims{Subject: "idp|solo", Email: "Solo@Example.com"}, domain.RegisterRequest{
		OrganizationName: "Calm Minds Clinic",
		Plan:             "solo",
		FirstName:        "Ana",
		LastName:         "Ruiz",
	})
	require.NoError(t, err)
	assert.Equal(t, "calm-minds-clinic", solo.Organization.Slug)
	assert.Equal(t, domain.PlanSolo, solo.Organization.Plan)
	assert.Equal(t, "solo@example.com", solo.User.Email)
	assert.True(t, solo.User.Roles.Has(identitydomain.RolePsychologist))
	assert.True(t, solo.User.Roles.Has(identitydomain.RoleOwner))

	team, err := svc.Register(ctx, identitydomain.Claims{Subject: "idp|team"}, domain.RegisterRequest{
		OrganizationName: "Calm Minds Clinic",
		Plan:             "TEAM",
		FirstName:        "Bo",
		LastName:         "Lind",
		Email:            "bo@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, "calm-minds-clinic-2", team.Organization.Slug)
	assert.False(t, team.User.Roles.Has(identitydomain.RolePsychologist))
	assert.True(t, team.User.Roles.Has(identitydomain.RoleAdmin))

	_, err = svc.Register(ctx, identitydomain.Claims{Subject: "idp|team"}, domain.RegisterRequest{
		OrganizationName: "Another",
		Plan:             "TEAM",
		FirstName:        "Bo",
		LastName:         "Lind",
	})
	assert.ErrorIs(t, err, domain.ErrAlreadyRegistered)

	_, err = svc.Register(ctx, identitydomain.Claims{Subject: "idp|x"}, domain.RegisterRequest{
		OrganizationName: "X",
		Plan:             "GOLD",
		FirstName:        "X",
		LastName:         "Y",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidPlan)

	assert.EqualValues(t, 2, f.CountAudit(auditdomain.ActionOrganizationRegister))
}

func TestGetAndList(t *testing.T) {
	f := testutil.NewFixtures(t)
	svc := newTestService(t, f)
	ctx := context.Background()

	org := f.Org(domain.PlanTeam)
	other := f.Org(domain.PlanTrial)
	admin := f.User(org.ID, "Admin", identitydomain.RoleAdmin)
	root := f.User(0, "Root", identitydomain.RoleSuperadmin)

	got, err := svc.Get(ctx, testutil.Principal(admin), org.ID)
	require.NoError(t, err)
	assert.Equal(t, org.Name, got.Name)

	_, err = svc.Get(ctx, testutil.Principal(admin), other.ID)
	assert.ErrorIs(t, err, authorization.ErrForbiddenOrganization)

	_, err = svc.List(ctx, testutil.Principal(admin))
	assert.ErrorIs(t, err, authorization.ErrForbidden)

	all, err := svc.List(ctx, testutil.Principal(root))
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestMembers(t *testing.T) {
	f := testutil.NewFixtures(t)
	svc := newTestService(t, f)
	ctx := context.Background()

	org := f.Org(domain.PlanTeam)
	owner := f.User(org.ID, "Owner", identitydomain.RoleOwner, identitydomain.RoleAdmin)
	admin := f.User(org.ID, "Admin", identitydomain.RoleAdmin)
	psych := f.User(org.ID, "Quinn", identitydomain.RolePsychologist)
	patient := f.User(org.ID, "Park", identitydomain.RolePatient)
	f.UserWithStatus(org.ID, "Gone", identitydomain.UserStatusDeleted, identitydomain.RolePatient)

	members, err := svc.ListMembers(ctx, testutil.Principal(admin), org.ID, domain.MemberFilter{})
	require.NoError(t, err)
	require.Len(t, members, 4)
	assert.Equal(t, "Admin", members[0].LastName)
	assert.Equal(t, "Quinn", members[3].LastName)

	members, err = svc.ListMembers(ctx, testutil.Principal(admin), org.ID, domain.MemberFilter{Role: identitydomain.RolePatient})
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, patient.ID, members[0].ID)

	_, err = svc.ListMembers(ctx, testutil.Principal(psych), org.ID, domain.MemberFilter{})
	assert.ErrorIs(t, err, authorization.ErrForbidden)

	member, err := svc.SetMemberStatus(ctx, testutil.Principal(admin), org.ID, psych.ID, identitydomain.UserStatusInactive)
	require.NoError(t, err)
	assert.Equal(t, identitydomain.UserStatusInactive, member.Status)

	_, err = svc.SetMemberStatus(ctx, testutil.Principal(admin), org.ID, admin.ID, identitydomain.UserStatusInactive)
	assert.ErrorIs(t, err, domain.ErrCannotModifySelf)
	_, err = svc.SetMemberStatus(ctx, testutil.Principal(admin), org.ID, owner.ID, identitydomain.UserStatusInactive)
	assert.ErrorIs(t, err, domain.ErrCannotModifyOwner)
	_, err = svc.SetMemberStatus(ctx, testutil.Principal(owner), org.ID, admin.ID, identitydomain.UserStatusDeleted)
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)

	assert.EqualValues(t, 1, f.CountAudit(auditdomain.ActionMemberStatus))
}

func TestRemoveMemberEndsAssignments(t *testing.T) {
	f := testutil.NewFixtures(t)
	svc := newTestService(t, f)
	ctx := context.Background()

	org := f.Org(domain.PlanTeam)
	owner := f.User(org.ID, "Owner", identitydomain.RoleOwner, identitydomain.RoleAdmin)
	psych := f.User(org.ID, "Quinn", identitydomain.RolePsychologist)
	first := f.User(org.ID, "Park", identitydomain.RolePatient)
	second := f.User(org.ID, "Lee", identitydomain.RolePatient)
	f.Assignment(org.ID, first.ID, psych.ID)
	f.Assignment(org.ID, second.ID, psych.ID)

	require.NoError(t, svc.RemoveMember(ctx, testutil.Principal(owner), org.ID, psych.ID))

	var removed identitydomain.User
	require.NoError(t, f.DB.First(&removed, "id = ?", psych.ID).Error)
	assert.Equal(t, identitydomain.UserStatusDeleted, removed.Status)

	var active int64
	require.NoError(t, f.DB.Table("patient_assignments").Where("status = ?", "ACTIVE").Count(&active).Error)
	assert.Zero(t, active)

	var patient identitydomain.User
	require.NoError(t, f.DB.First(&patient, "id = ?", first.ID).Error)
	assert.Nil(t, patient.AssignedPsychologistID)

	err := svc.RemoveMember(ctx, testutil.Principal(owner), org.ID, psych.ID)
	assert.ErrorIs(t, err, domain.ErrMemberNotFound)
	assert.EqualValues(t, 1, f.CountAudit(auditdomain.ActionMemberRemove))
}

func TestReactivationRespectsSoloQuota(t *testing.T) {
	f := testutil.NewFixtures(t)
	svc := newTestService(t, f)
	ctx := context.Background()

	org := f.Org(domain.PlanSolo)
	owner := f.User(org.ID, "Owner", identitydomain.RoleOwner, identitydomain.RoleAdmin, identitydomain.RolePsychologist)
	first := f.User(org.ID, "First", identitydomain.RoleAssistant)

	_, err := svc.SetMemberStatus(ctx, testutil.Principal(owner), org.ID, first.ID, identitydomain.UserStatusInactive)
	require.NoError(t, err)

	// the freed seat goes to a new invitee
	f.UserWithStatus(org.ID, "Second", identitydomain.UserStatusPending, identitydomain.RoleAssistant)

	_, err = svc.SetMemberStatus(ctx, testutil.Principal(owner), org.ID, first.ID, identitydomain.UserStatusActive)
	assert.ErrorIs(t, err, planlimit.ErrPlanLimitReached)
	assert.EqualValues(t, 1, countStaff(t, f, org.ID, identitydomain.RoleAssistant))

	var stored identitydomain.User
	require.NoError(t, f.DB.First(&stored, "id = ?", first.ID).Error)
	assert.Equal(t, identitydomain.UserStatusInactive, stored.Status)
	assert.EqualValues(t, 1, f.CountAudit(auditdomain.ActionMemberStatus))
}

func TestReactivationAfterSeatFreed(t *testing.T) {
	f := testutil.NewFixtures(t)
	svc := newTestService(t, f)
	ctx := context.Background()

	org := f.Org(domain.PlanSolo)
	owner := f.User(org.ID, "Owner", identitydomain.RoleOwner, identitydomain.RoleAdmin, identitydomain.RolePsychologist)
	first := f.User(org.ID, "First", identitydomain.RoleAssistant)
	second := f.User(org.ID, "Second", identitydomain.RoleAssistant)

	_, err := svc.SetMemberStatus(ctx, testutil.Principal(owner), org.ID, first.ID, identitydomain.UserStatusInactive)
	require.NoError(t, err)
	require.NoError(t, svc.RemoveMember(ctx, testutil.Principal(owner), org.ID, second.ID))
	assert.Zero(t, countStaff(t, f, org.ID, identitydomain.RoleAssistant))

	member, err := svc.SetMemberStatus(ctx, testutil.Principal(owner), org.ID, first.ID, identitydomain.UserStatusActive)
	require.NoError(t, err)
	assert.Equal(t, identitydomain.UserStatusActive, member.Status)
	assert.EqualValues(t, 1, countStaff(t, f, org.ID, identitydomain.RoleAssistant))
}

func TestReactivationUsesFixedSoloCap(t *testing.T) {
	f := testutil.NewFixtures(t)
	plans := config.DefaultPlansConfig()
	plans.Solo.AssistantsMax = 5
	svc := newTestServiceWithPlans(t, f, plans)
	ctx := context.Background()

	org := f.Org(domain.PlanSolo)
	owner := f.User(org.ID, "Owner", identitydomain.RoleOwner, identitydomain.RoleAdmin, identitydomain.RolePsychologist)
	f.User(org.ID, "Active", identitydomain.RoleAssistant)
	off := f.UserWithStatus(org.ID, "Off", identitydomain.UserStatusInactive, identitydomain.RoleAssistant)

	_, err := svc.SetMemberStatus(ctx, testutil.Principal(owner), org.ID, off.ID, identitydomain.UserStatusActive)
	assert.ErrorIs(t, err, planlimit.ErrPlanLimitReached)
	assert.EqualValues(t, 1, countStaff(t, f, org.ID, identitydomain.RoleAssistant))
}

func TestReactivationOnTeamPlan(t *testing.T) {
	f := testutil.NewFixtures(t)
	svc := newTestService(t, f)
	ctx := context.Background()

	org := f.Org(domain.PlanTeam)
	owner := f.User(org.ID, "Owner", identitydomain.RoleOwner, identitydomain.RoleAdmin)
	off := f.UserWithStatus(org.ID, "Off", identitydomain.UserStatusInactive, identitydomain.RoleAssistant)
	psych := f.UserWithStatus(org.ID, "Psych", identitydomain.UserStatusInactive, identitydomain.RolePsychologist)
	f.User(org.ID, "One", identitydomain.RoleAssistant)

	_, err := svc.SetMemberStatus(ctx, testutil.Principal(owner), org.ID, off.ID, identitydomain.UserStatusActive)
	require.NoError(t, err)
	_, err = svc.SetMemberStatus(ctx, testutil.Principal(owner), org.ID, psych.ID, identitydomain.UserStatusActive)
	require.NoError(t, err)

	f.User(org.ID, "Three", identitydomain.RoleAssistant)
	_, err = svc.SetMemberStatus(ctx, testutil.Principal(owner), org.ID, off.ID, identitydomain.UserStatusInactive)
	require.NoError(t, err)
	_, err = svc.SetMemberStatus(ctx, testutil.Principal(owner), org.ID, off.ID, identitydomain.UserStatusActive)
	assert.ErrorIs(t, err, planlimit.ErrPlanLimitReached)
}
