package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	assignmentrepository "github.com/smallbiznis/carelog/internal/assignment/repository"
	assignmentservice "github.com/smallbiznis/carelog/internal/assignment/service"
	auditrepository "github.com/smallbiznis/carelog/internal/audit/repository"
	auditservice "github.com/smallbiznis/carelog/internal/audit/service"
	"github.com/smallbiznis/carelog/internal/authorization"
	clinicalentryrepository "github.com/smallbiznis/carelog/internal/clinicalentry/repository"
	clinicalentryservice "github.com/smallbiznis/carelog/internal/clinicalentry/service"
	"github.com/smallbiznis/carelog/internal/config"
	identitydomain "github.com/smallbiznis/carelog/internal/identity/domain"
	identityrepository "github.com/smallbiznis/carelog/internal/identity/repository"
	identityservice "github.com/smallbiznis/carelog/internal/identity/service"
	invitationrepository "github.com/smallbiznis/carelog/internal/invitation/repository"
	invitationservice "github.com/smallbiznis/carelog/internal/invitation/service"
	moodrepository "github.com/smallbiznis/carelog/internal/mood/repository"
	moodservice "github.com/smallbiznis/carelog/internal/mood/service"
	"github.com/smallbiznis/carelog/internal/observability"
	orgdomain "github.com/smallbiznis/carelog/internal/organization/domain"
	orgrepository "github.com/smallbiznis/carelog/internal/organization/repository"
	orgservice "github.com/smallbiznis/carelog/internal/organization/service"
	patientrepository "github.com/smallbiznis/carelog/internal/patient/repository"
	patientservice "github.com/smallbiznis/carelog/internal/patient/service"
	planchangerepository "github.com/smallbiznis/carelog/internal/planchange/repository"
	planchangeservice "github.com/smallbiznis/carelog/internal/planchange/service"
	"github.com/smallbiznis/carelog/internal/planlimit"
	sessionnoterepository "github.com/smallbiznis/carelog/internal/sessionnote/repository"
	sessionnoteservice "github.com/smallbiznis/carelog/internal/sessionnote/service"
	"github.com/smallbiznis/carelog/internal/testutil"
	"github.com/smallbiznis/carelog/pkg/sealbox"
	"github.com/smallbiznis/carelog/pkg/validate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// subjectVerifier treats every non-empty token other than "bad" as the
// identity-provider subject it names.
type subjectVerifier struct{}

func (subjectVerifier) Verify(_ context.Context, credential string) (identitydomain.Claims, error) {
	if credential == "bad" {
		return identitydomain.Claims{}, identitydomain.ErrInvalidCredential
	}
	return identitydomain.Claims{Subject: credential, Email: "owner@example.com"}, nil
}

type testServer struct {
	f      *testutil.Fixtures
	server *Server
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := testutil.NewFixtures(t)
	log := zaptest.NewLogger(t)
	cfg := config.Config{
		Auth: config.AuthConfig{CookieName: "_sid"},
		Clinical: config.ClinicalConfig{
			PracticeTimezone: "UTC",
			NoteEditWindow:   24 * time.Hour,
		},
	}

	auditSvc := auditservice.NewService(auditservice.Params{
		DB: f.DB, Log: log, GenID: f.Node, Repo: auditrepository.Provide(), Clock: f.Clock,
	})
	enforcer, err := authorization.NewEnforcer(f.DB)
	require.NoError(t, err)
	authzSvc := authorization.NewService(authorization.Params{Log: log, Enforcer: enforcer, AuditSvc: auditSvc})

	users := identityrepository.NewRepository(f.DB)
	identitySvc := identityservice.NewService(identityservice.Params{
		DB: f.DB, Log: log, Repo: users, Bearer: subjectVerifier{}, Cookie: subjectVerifier{},
	})
	assignments := assignmentservice.NewService(assignmentservice.Params{
		DB: f.DB, Log: log, GenID: f.Node, Repo: assignmentrepository.NewRepository(f.DB),
		Users: users, AuditSvc: auditSvc, Clock: f.Clock,
	})
	patients := patientservice.NewService(patientservice.Params{
		Log: log, Repo: patientrepository.NewRepository(f.DB), Users: users, Assignments: assignments,
	})
	key, err := sealbox.KeyFromString("test-seal-key")
	require.NoError(t, err)
	sealer, err := sealbox.New(key)
	require.NoError(t, err)
	limits := planlimit.NewEnforcer(planlimit.Params{
		Log:   log,
		Plans: config.NewStaticPlanConfigHolder(config.DefaultPlansConfig()),
	})
	orgs := orgrepository.NewRepository(f.DB)

	engine := NewEngine(observability.Config{}, nil)
	srv := NewServer(ServerParams{
		Gin:           engine,
		Cfg:           cfg,
		Log:           log,
		Validator:     validate.New(),
		IdentitySvc:   identitySvc,
		AuthzSvc:      authzSvc,
		AuditSvc:      auditSvc,
		AssignmentSvc: assignments,
		PatientSvc:    patients,
		SessionNoteSvc: sessionnoteservice.NewService(sessionnoteservice.Params{
			DB: f.DB, Log: log, Cfg: cfg, GenID: f.Node, Repo: sessionnoterepository.NewRepository(f.DB),
			Patients: patients, Assignments: assignments, Sealer: sealer, AuditSvc: auditSvc, Clock: f.Clock,
		}),
		ClinicalEntrySvc: clinicalentryservice.NewService(clinicalentryservice.Params{
			Log: log, GenID: f.Node, Repo: clinicalentryrepository.NewRepository(f.DB),
			Patients: patients, Assignments: assignments, Sealer: sealer, AuditSvc: auditSvc, Clock: f.Clock,
		}),
		MoodSvc: moodservice.NewService(moodservice.Params{
			Log: log, Cfg: cfg, GenID: f.Node, Repo: moodrepository.NewRepository(f.DB),
			Patients: patients, Assignments: assignments, Clock: f.Clock,
		}),
		OrganizationSvc: orgservice.NewService(orgservice.Params{
			DB: f.DB, Log: log, GenID: f.Node, Repo: orgs, Users: users, Limits: limits, AuditSvc: auditSvc, Clock: f.Clock,
		}),
		InvitationSvc: invitationservice.NewService(invitationservice.Params{
			DB: f.DB, Log: log, GenID: f.Node, Repo: invitationrepository.NewRepository(f.DB),
			Orgs: orgs, Users: users, Limits: limits, AuditSvc: auditSvc, Clock: f.Clock,
		}),
		PlanChangeSvc: planchangeservice.NewService(planchangeservice.Params{
			DB: f.DB, Log: log, GenID: f.Node, Repo: planchangerepository.NewRepository(f.DB),
			Orgs: orgs, Limits: limits, AuditSvc: auditSvc, Clock: f.Clock,
		}),
	})

	return &testServer{f: f, server: srv}
}

type response struct {
	Status int
	Header http.Header
	Body   struct {
		OK         bool                  `json:"ok"`
		Data       json.RawMessage       `json:"data"`
		Error      string                `json:"error"`
		Message    string                `json:"message"`
		Issues     []validate.FieldIssue `json:"issues"`
		ExistingID string                `json:"existing_id"`
	}
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any, headers ...string) response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	rec := httptest.NewRecorder()
	ts.server.Engine().ServeHTTP(rec, req)

	var out response
	out.Status = rec.Code
	out.Header = rec.Header()
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out.Body), rec.Body.String())
	}
	return out
}

func tokenOf(u identitydomain.User) string {
	return *u.ExternalSubject
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	ts.server.Engine().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthentication(t *testing.T) {
	ts := newTestServer(t)
	org := ts.f.Org(orgdomain.PlanTeam)
	psych := ts.f.User(org.ID, "Psych", identitydomain.RolePsychologist)
	disabled := ts.f.UserWithStatus(org.ID, "Gone", identitydomain.UserStatusInactive, identitydomain.RolePsychologist)

	resp := ts.do(t, http.MethodGet, "/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.Status)
	assert.False(t, resp.Body.OK)
	assert.Equal(t, ClassUnauthorized, resp.Body.Error)

	resp = ts.do(t, http.MethodGet, "/me", "bad", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.Status)

	resp = ts.do(t, http.MethodGet, "/me", "idp|stranger", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.Status)
	assert.Equal(t, "user_not_registered", resp.Body.Error)

	resp = ts.do(t, http.MethodGet, "/me", tokenOf(disabled), nil)
	assert.Equal(t, http.StatusForbidden, resp.Status)
	assert.Equal(t, "account_disabled", resp.Body.Error)

	resp = ts.do(t, http.MethodGet, "/me", tokenOf(psych), nil)
	require.Equal(t, http.StatusOK, resp.Status)
	assert.True(t, resp.Body.OK)
	var profile struct {
		ID         string   `json:"id"`
		Roles      []string `json:"roles"`
		ActiveRole string   `json:"active_role"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Data, &profile))
	assert.Equal(t, psych.ID.String(), profile.ID)
	assert.Equal(t, []string{"PSYCHOLOGIST"}, profile.Roles)

	// session cookie
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.AddCookie(&http.Cookie{Name: "_sid", Value: tokenOf(psych)})
	rec := httptest.NewRecorder()
	ts.server.Engine().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestOrgHeader(t *testing.T) {
	ts := newTestServer(t)
	org := ts.f.Org(orgdomain.PlanTeam)
	other := ts.f.Org(orgdomain.PlanTeam)
	admin := ts.f.User(org.ID, "Admin", identitydomain.RoleAdmin)
	root := ts.f.User(0, "Root", identitydomain.RoleSuperadmin)

	resp := ts.do(t, http.MethodGet, "/organization", tokenOf(admin), nil, HeaderOrg, other.ID.String())
	assert.Equal(t, http.StatusForbidden, resp.Status)
	assert.Equal(t, "forbidden_organization", resp.Body.Error)

	resp = ts.do(t, http.MethodGet, "/organization", tokenOf(admin), nil, HeaderOrg, "not-an-id")
	assert.Equal(t, http.StatusBadRequest, resp.Status)
	require.Len(t, resp.Body.Issues, 1)
	assert.Equal(t, HeaderOrg, resp.Body.Issues[0].Field)

	resp = ts.do(t, http.MethodGet, "/organization", tokenOf(admin), nil)
	require.Equal(t, http.StatusOK, resp.Status)
	assert.Contains(t, string(resp.Body.Data), org.ID.String())

	resp = ts.do(t, http.MethodGet, "/organization", tokenOf(root), nil, HeaderOrg, other.ID.String())
	require.Equal(t, http.StatusOK, resp.Status)
	assert.Contains(t, string(resp.Body.Data), other.ID.String())

	resp = ts.do(t, http.MethodGet, "/admin/organizations", tokenOf(admin), nil)
	assert.Equal(t, http.StatusForbidden, resp.Status)
	resp = ts.do(t, http.MethodGet, "/admin/organizations", tokenOf(root), nil)
	assert.Equal(t, http.StatusOK, resp.Status)
}

func TestAssignPatientEndpoints(t *testing.T) {
	ts := newTestServer(t)
	org := ts.f.Org(orgdomain.PlanTeam)
	psych := ts.f.User(org.ID, "Psych", identitydomain.RolePsychologist)
	other := ts.f.User(org.ID, "Other", identitydomain.RolePsychologist)
	patient := ts.f.User(org.ID, "Patient", identitydomain.RolePatient)

	resp := ts.do(t, http.MethodPost, "/assignPatient", tokenOf(psych), map[string]any{"patient_id": patient.ID.String()})
	assert.Equal(t, http.StatusBadRequest, resp.Status)
	assert.Equal(t, ClassValidation, resp.Body.Error)
	require.NotEmpty(t, resp.Body.Issues)
	assert.Equal(t, "psychologist_id", resp.Body.Issues[0].Field)

	resp = ts.do(t, http.MethodGet, "/poolPatients", tokenOf(psych), nil)
	require.Equal(t, http.StatusOK, resp.Status)
	assert.Contains(t, string(resp.Body.Data), patient.ID.String())

	resp = ts.do(t, http.MethodPost, "/assignPatient", tokenOf(psych), map[string]any{
		"patient_id": patient.ID.String(), "psychologist_id": psych.ID.String(),
	})
	require.Equal(t, http.StatusOK, resp.Status)
	assert.True(t, resp.Body.OK)

	resp = ts.do(t, http.MethodPost, "/assignPatient", tokenOf(other), map[string]any{
		"patient_id": patient.ID.String(), "psychologist_id": other.ID.String(),
	})
	assert.Equal(t, http.StatusConflict, resp.Status)
	assert.Equal(t, "ALREADY_ASSIGNED", resp.Body.Error)

	resp = ts.do(t, http.MethodGet, "/myPatients", tokenOf(psych), nil)
	require.Equal(t, http.StatusOK, resp.Status)
	assert.Contains(t, string(resp.Body.Data), patient.ID.String())

	resp = ts.do(t, http.MethodGet, "/poolPatients", tokenOf(psych), nil)
	require.Equal(t, http.StatusOK, resp.Status)
	assert.JSONEq(t, `[]`, string(resp.Body.Data))

	resp = ts.do(t, http.MethodPost, "/assignPatient", tokenOf(patient), map[string]any{
		"patient_id": patient.ID.String(), "psychologist_id": psych.ID.String(),
	})
	assert.Equal(t, http.StatusForbidden, resp.Status)

	resp = ts.do(t, http.MethodPost, "/unassignPatient", tokenOf(psych), map[string]any{"patient_id": patient.ID.String()})
	require.Equal(t, http.StatusOK, resp.Status)

	resp = ts.do(t, http.MethodPost, "/unassignPatient", tokenOf(psych), map[string]any{"patient_id": patient.ID.String()})
	assert.Equal(t, http.StatusNotFound, resp.Status)

	resp = ts.do(t, http.MethodGet, "/patients/"+patient.ID.String()+"/assignments", tokenOf(psych), nil)
	require.Equal(t, http.StatusOK, resp.Status)
	var history []map[string]any
	require.NoError(t, json.Unmarshal(resp.Body.Data, &history))
	assert.Len(t, history, 1)
}

func TestSessionNoteEndpoints(t *testing.T) {
	ts := newTestServer(t)
	org := ts.f.Org(orgdomain.PlanTeam)
	psych := ts.f.User(org.ID, "Psych", identitydomain.RolePsychologist)
	other := ts.f.User(org.ID, "Other", identitydomain.RolePsychologist)
	patient := ts.f.User(org.ID, "Patient", identitydomain.RolePatient)
	ts.f.Assignment(org.ID, patient.ID, psych.ID)

	path := "/session/new/" + patient.ID.String()
	resp := ts.do(t, http.MethodPost, path, tokenOf(other), map[string]any{"content": "notes"})
	assert.Equal(t, http.StatusForbidden, resp.Status)
	assert.Equal(t, "not_assigned", resp.Body.Error)

	resp = ts.do(t, http.MethodPost, path, tokenOf(psych), map[string]any{"content": "first session"})
	require.Equal(t, http.StatusCreated, resp.Status)
	var note struct {
		ID      string `json:"id"`
		Content string `json:"content"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Data, &note))
	assert.Equal(t, "first session", note.Content)

	resp = ts.do(t, http.MethodPost, path, tokenOf(psych), map[string]any{"content": "again"})
	assert.Equal(t, http.StatusConflict, resp.Status)
	assert.Equal(t, "ALREADY_EXISTS_TODAY", resp.Body.Error)
	assert.Equal(t, note.ID, resp.Body.ExistingID)

	resp = ts.do(t, http.MethodPut, "/session/"+note.ID, tokenOf(psych), map[string]any{"content": "edited"})
	require.Equal(t, http.StatusOK, resp.Status)
	assert.Contains(t, string(resp.Body.Data), "edited")

	resp = ts.do(t, http.MethodGet, "/session/"+note.ID, tokenOf(psych), nil)
	require.Equal(t, http.StatusOK, resp.Status)

	resp = ts.do(t, http.MethodGet, "/patients/"+patient.ID.String()+"/sessions", tokenOf(psych), nil)
	require.Equal(t, http.StatusOK, resp.Status)

	resp = ts.do(t, http.MethodGet, "/session/"+note.ID, tokenOf(patient), nil)
	assert.Equal(t, http.StatusForbidden, resp.Status)

	ts.f.Clock.Advance(25 * time.Hour)
	resp = ts.do(t, http.MethodPut, "/session/"+note.ID, tokenOf(psych), map[string]any{"content": "late"})
	assert.Equal(t, http.StatusForbidden, resp.Status)
	assert.Equal(t, "LOCKED", resp.Body.Error)

	resp = ts.do(t, http.MethodGet, "/session/not-a-number", tokenOf(psych), nil)
	assert.Equal(t, http.StatusBadRequest, resp.Status)
}

func TestMoodEntryEndpoints(t *testing.T) {
	ts := newTestServer(t)
	org := ts.f.Org(orgdomain.PlanTeam)
	psych := ts.f.User(org.ID, "Psych", identitydomain.RolePsychologist)
	patient := ts.f.User(org.ID, "Patient", identitydomain.RolePatient)
	ts.f.Assignment(org.ID, patient.ID, psych.ID)

	resp := ts.do(t, http.MethodPost, "/mood-entries", tokenOf(patient), map[string]any{"score": 7})
	assert.Equal(t, http.StatusCreated, resp.Status)

	resp = ts.do(t, http.MethodPost, "/mood-entries", tokenOf(patient), map[string]any{"score": 4, "comment": "tired"})
	assert.Equal(t, http.StatusOK, resp.Status)

	resp = ts.do(t, http.MethodPost, "/mood-entries", tokenOf(patient), map[string]any{"score": 11})
	assert.Equal(t, http.StatusBadRequest, resp.Status)
	require.Len(t, resp.Body.Issues, 1)
	assert.Equal(t, "score", resp.Body.Issues[0].Field)

	resp = ts.do(t, http.MethodPost, "/mood-entries", tokenOf(psych), map[string]any{"score": 5})
	assert.Equal(t, http.StatusForbidden, resp.Status)

	resp = ts.do(t, http.MethodGet, "/patients/"+patient.ID.String()+"/mood-entries?from=2025-03-01&to=2025-03-31", tokenOf(psych), nil)
	require.Equal(t, http.StatusOK, resp.Status)
	var entries []struct {
		Score int `json:"score"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Data, &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, 4, entries[0].Score)

	resp = ts.do(t, http.MethodGet, "/patients/"+patient.ID.String()+"/mood-entries?from=03-01-2025", tokenOf(psych), nil)
	assert.Equal(t, http.StatusBadRequest, resp.Status)
}

func TestInvitationPlanLimit(t *testing.T) {
	ts := newTestServer(t)
	org := ts.f.Org(orgdomain.PlanSolo)
	owner := ts.f.User(org.ID, "Owner", identitydomain.RoleOwner, identitydomain.RoleAdmin, identitydomain.RolePsychologist)

	resp := ts.do(t, http.MethodPost, "/invitations", tokenOf(owner), map[string]any{
		"email": "psy@example.com", "first_name": "New", "last_name": "Psych", "role": "PSYCHOLOGIST",
	})
	assert.Equal(t, http.StatusForbidden, resp.Status)
	assert.Equal(t, "PLAN_LIMIT_REACHED", resp.Body.Error)

	resp = ts.do(t, http.MethodPost, "/invitations", tokenOf(owner), map[string]any{
		"email": "pat@example.com", "first_name": "New", "last_name": "Patient", "role": "PATIENT",
	})
	require.Equal(t, http.StatusCreated, resp.Status)
	var inv struct {
		ID   string `json:"id"`
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Data, &inv))

	resp = ts.do(t, http.MethodPost, "/invitations", tokenOf(owner), map[string]any{
		"email": "pat@example.com", "first_name": "New", "last_name": "Patient", "role": "PATIENT",
	})
	assert.Equal(t, http.StatusConflict, resp.Status)

	resp = ts.do(t, http.MethodPost, "/invitations/accept", "idp|new-patient", map[string]any{"code": inv.Code})
	require.Equal(t, http.StatusOK, resp.Status)

	resp = ts.do(t, http.MethodGet, "/me", "idp|new-patient", nil)
	require.Equal(t, http.StatusOK, resp.Status)
	assert.Contains(t, string(resp.Body.Data), "PATIENT")
}

func TestRegisterOrganization(t *testing.T) {
	ts := newTestServer(t)
	body := map[string]any{
		"organization_name": "Calm Minds",
		"plan":              "TEAM",
		"first_name":        "Olive",
		"last_name":         "Owner",
	}

	resp := ts.do(t, http.MethodPost, "/organizations/register", "idp|olive", body)
	require.Equal(t, http.StatusCreated, resp.Status, resp.Body.Message)

	resp = ts.do(t, http.MethodPost, "/organizations/register", "idp|olive", body)
	assert.Equal(t, http.StatusConflict, resp.Status)

	resp = ts.do(t, http.MethodPost, "/organizations/register", "idp|other", map[string]any{"plan": "TEAM"})
	assert.Equal(t, http.StatusBadRequest, resp.Status)
	assert.NotEmpty(t, resp.Body.Issues)

	resp = ts.do(t, http.MethodGet, "/organization", "idp|olive", nil)
	require.Equal(t, http.StatusOK, resp.Status)
	assert.Contains(t, string(resp.Body.Data), "calm-minds")
}

func TestPlanChangeEndpoints(t *testing.T) {
	ts := newTestServer(t)
	org := ts.f.Org(orgdomain.PlanSolo)
	owner := ts.f.User(org.ID, "Owner", identitydomain.RoleOwner, identitydomain.RoleAdmin, identitydomain.RolePsychologist)
	root := ts.f.User(0, "Root", identitydomain.RoleSuperadmin)

	resp := ts.do(t, http.MethodPost, "/plan-change-requests", tokenOf(owner), map[string]any{"plan": "TEAM"})
	require.Equal(t, http.StatusCreated, resp.Status)
	var req struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Data, &req))

	resp = ts.do(t, http.MethodPost, "/plan-change-requests", tokenOf(owner), map[string]any{"plan": "TEAM"})
	assert.Equal(t, http.StatusConflict, resp.Status)

	resp = ts.do(t, http.MethodPost, "/plan-change-requests/"+req.ID+"/approve", tokenOf(owner), nil)
	assert.Equal(t, http.StatusForbidden, resp.Status)

	resp = ts.do(t, http.MethodPost, "/plan-change-requests/"+req.ID+"/approve", tokenOf(root), map[string]any{"note": "ok"})
	require.Equal(t, http.StatusOK, resp.Status)
	assert.Contains(t, string(resp.Body.Data), "APPROVED")

	resp = ts.do(t, http.MethodPost, "/plan-change-requests/"+req.ID+"/deny", tokenOf(root), nil)
	assert.Equal(t, http.StatusConflict, resp.Status)

	resp = ts.do(t, http.MethodGet, "/plan-change-requests?status=APPROVED", tokenOf(owner), nil)
	require.Equal(t, http.StatusOK, resp.Status)
	assert.Contains(t, string(resp.Body.Data), req.ID)
}

func TestAuditLogScopes(t *testing.T) {
	ts := newTestServer(t)
	org := ts.f.Org(orgdomain.PlanTeam)
	admin := ts.f.User(org.ID, "Admin", identitydomain.RoleAdmin)
	psych := ts.f.User(org.ID, "Psych", identitydomain.RolePsychologist)
	root := ts.f.User(0, "Root", identitydomain.RoleSuperadmin)

	resp := ts.do(t, http.MethodGet, "/audit-logs", tokenOf(psych), nil)
	assert.Equal(t, http.StatusForbidden, resp.Status)

	resp = ts.do(t, http.MethodGet, "/audit-logs", tokenOf(admin), nil)
	require.Equal(t, http.StatusOK, resp.Status)

	resp = ts.do(t, http.MethodGet, "/audit-logs", tokenOf(root), nil)
	require.Equal(t, http.StatusOK, resp.Status)
	assert.Contains(t, string(resp.Body.Data), "authorization")

	resp = ts.do(t, http.MethodGet, "/audit-logs?start_at=yesterday", tokenOf(admin), nil)
	assert.Equal(t, http.StatusBadRequest, resp.Status)
}

func TestMembersEndpoints(t *testing.T) {
	ts := newTestServer(t)
	org := ts.f.Org(orgdomain.PlanTeam)
	owner := ts.f.User(org.ID, "Owner", identitydomain.RoleOwner, identitydomain.RoleAdmin)
	psych := ts.f.User(org.ID, "Psych", identitydomain.RolePsychologist)

	resp := ts.do(t, http.MethodGet, "/members?role=psychologist", tokenOf(owner), nil)
	require.Equal(t, http.StatusOK, resp.Status)
	assert.Contains(t, string(resp.Body.Data), psych.ID.String())

	resp = ts.do(t, http.MethodPatch, "/members/"+psych.ID.String()+"/status", tokenOf(owner), map[string]any{"status": "INACTIVE"})
	require.Equal(t, http.StatusOK, resp.Status)
	assert.Contains(t, string(resp.Body.Data), "INACTIVE")

	resp = ts.do(t, http.MethodPatch, "/members/"+owner.ID.String()+"/status", tokenOf(owner), map[string]any{"status": "INACTIVE"})
	assert.Equal(t, http.StatusForbidden, resp.Status)

	resp = ts.do(t, http.MethodDelete, "/members/"+psych.ID.String(), tokenOf(owner), nil)
	require.Equal(t, http.StatusOK, resp.Status)

	resp = ts.do(t, http.MethodDelete, "/members/"+psych.ID.String(), tokenOf(owner), nil)
	assert.Equal(t, http.StatusNotFound, resp.Status)
}

func TestUnknownRouteAndPanic(t *testing.T) {
	ts := newTestServer(t)
	ts.server.Engine().GET("/boom", func(c *gin.Context) { panic("boom") })

	resp := ts.do(t, http.MethodGet, "/nowhere", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.Status)
	assert.Equal(t, ClassNotFound, resp.Body.Error)

	resp = ts.do(t, http.MethodGet, "/boom", "", nil)
	assert.Equal(t, http.StatusInternalServerError, resp.Status)
	assert.Equal(t, ClassInternal, resp.Body.Error)
	assert.Equal(t, "internal server error", resp.Body.Message)
}
