package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	auditdomain "github.com/smallbiznis/carelog/internal/audit/domain"
	identitydomain "github.com/smallbiznis/carelog/internal/identity/domain"
	"github.com/smallbiznis/carelog/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectAssignment    = "assignment"
	ObjectPatient       = "patient"
	ObjectSessionNote   = "session_note"
	ObjectClinicalEntry = "clinical_entry"
	ObjectMoodEntry     = "mood_entry"
	ObjectMember        = "member"
	ObjectInvitation    = "invitation"
	ObjectOrganization  = "organization"
	ObjectPlanChange    = "plan_change"
	ObjectAuditLog      = "audit_log"
)

const (
	ActionAssignmentAssign   = "assignment.assign"
	ActionAssignmentUnassign = "assignment.unassign"
	ActionAssignmentListMine = "assignment.list_mine"
	ActionAssignmentListPool = "assignment.list_pool"
	ActionAssignmentHistory  = "assignment.history"

	ActionPatientView = "patient.view"
	ActionPatientList = "patient.list"

	ActionSessionNoteCreate = "session_note.create"
	ActionSessionNoteUpdate = "session_note.update"
	ActionSessionNoteView   = "session_note.view"

	ActionClinicalEntryCreate = "clinical_entry.create"
	ActionClinicalEntryView   = "clinical_entry.view"

	ActionMoodEntryRecord = "mood_entry.record"
	ActionMoodEntryView   = "mood_entry.view"

	ActionMemberView   = "member.view"
	ActionMemberUpdate = "member.update"
	ActionMemberRemove = "member.remove"

	ActionInvitationCreate = "invitation.create"
	ActionInvitationView   = "invitation.view"
	ActionInvitationRevoke = "invitation.revoke"

	ActionOrganizationView = "organization.view"
	ActionOrganizationList = "organization.list"

	ActionPlanChangeRequest = "plan_change.request"
	ActionPlanChangeView    = "plan_change.view"
	ActionPlanChangeDecide  = "plan_change.decide"

	ActionAuditLogView = "audit_log.view"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	AuditSvc auditdomain.Service `optional:"true"`
	Metrics  *metrics.Metrics    `optional:"true"`
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	auditSvc auditdomain.Service
	metrics  *metrics.Metrics
}

// NewEnforcer loads the embedded model, persists policies through the gorm
// adapter and seeds the built-in role policies.
func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	if err := enforcer.BuildRoleLinks(); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		auditSvc: p.AuditSvc,
		metrics:  p.Metrics,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, principal identitydomain.Principal, object string, action string) error {
	if principal.IsZero() {
		return ErrUnauthorized
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	for _, role := range principal.Roles.Roles() {
		allowed, err := s.enforcer.Enforce(subjectOf(role), object, action)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}
	}

	s.auditDenied(ctx, principal, object, action)
	return ErrForbidden
}

func (s *ServiceImpl) PermittedRoles(object string, action string) ([]identitydomain.Role, error) {
	out := make([]identitydomain.Role, 0, len(identitydomain.AllRoles))
	for _, role := range identitydomain.AllRoles {
		allowed, err := s.enforcer.Enforce(subjectOf(role), object, action)
		if err != nil {
			return nil, err
		}
		if allowed {
			out = append(out, role)
		}
	}
	return out, nil
}

func (s *ServiceImpl) auditDenied(ctx context.Context, principal identitydomain.Principal, object string, action string) {
	s.metrics.RecordAccessDenied(ctx, "capability")
	s.log.Debug("capability denied",
		zap.String("user_id", principal.UserID.String()),
		zap.String("object", object),
		zap.String("action", action),
	)
	if s.auditSvc == nil {
		return
	}
	targetID := "capability"
	if err := s.auditSvc.AuditLog(ctx, principal.OrgPtr(), string(auditdomain.ActorTypeUser), principal.ActorID(),
		auditdomain.ActionAuthorizationDenied, "authorization", &targetID,
		fmt.Sprintf("denied %s on %s", action, object),
		map[string]any{
			"object": object,
			"action": action,
			"roles":  principal.Roles.Strings(),
		},
	); err != nil {
		s.log.Warn("failed to audit denial", zap.Error(err))
	}
}

func subjectOf(role identitydomain.Role) string {
	return "role:" + strings.ToLower(string(role))
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		// Patient permissions
		{"role:patient", ObjectPatient, ActionPatientView},
		{"role:patient", ObjectClinicalEntry, ActionClinicalEntryCreate},
		{"role:patient", ObjectClinicalEntry, ActionClinicalEntryView},
		{"role:patient", ObjectMoodEntry, ActionMoodEntryRecord},
		{"role:patient", ObjectMoodEntry, ActionMoodEntryView},
		{"role:patient", ObjectOrganization, ActionOrganizationView},

		// Psychologist permissions
		{"role:psychologist", ObjectAssignment, ActionAssignmentAssign},
		{"role:psychologist", ObjectAssignment, ActionAssignmentUnassign},
		{"role:psychologist", ObjectAssignment, ActionAssignmentListMine},
		{"role:psychologist", ObjectAssignment, ActionAssignmentListPool},
		{"role:psychologist", ObjectAssignment, ActionAssignmentHistory},
		{"role:psychologist", ObjectPatient, ActionPatientView},
		{"role:psychologist", ObjectPatient, ActionPatientList},
		{"role:psychologist", ObjectSessionNote, ActionSessionNoteCreate},
		{"role:psychologist", ObjectSessionNote, ActionSessionNoteUpdate},
		{"role:psychologist", ObjectSessionNote, ActionSessionNoteView},
		{"role:psychologist", ObjectClinicalEntry, ActionClinicalEntryCreate},
		{"role:psychologist", ObjectClinicalEntry, ActionClinicalEntryView},
		{"role:psychologist", ObjectMoodEntry, ActionMoodEntryView},
		{"role:psychologist", ObjectInvitation, ActionInvitationCreate},
		{"role:psychologist", ObjectInvitation, ActionInvitationView},
		{"role:psychologist", ObjectOrganization, ActionOrganizationView},

		// Assistant permissions
		{"role:assistant", ObjectAssignment, ActionAssignmentAssign},
		{"role:assistant", ObjectAssignment, ActionAssignmentUnassign},
		{"role:assistant", ObjectAssignment, ActionAssignmentListPool},
		{"role:assistant", ObjectAssignment, ActionAssignmentHistory},
		{"role:assistant", ObjectPatient, ActionPatientView},
		{"role:assistant", ObjectPatient, ActionPatientList},
		{"role:assistant", ObjectMember, ActionMemberView},
		{"role:assistant", ObjectInvitation, ActionInvitationCreate},
		{"role:assistant", ObjectInvitation, ActionInvitationView},
		{"role:assistant", ObjectOrganization, ActionOrganizationView},

		// Admin permissions
		{"role:admin", ObjectAssignment, ActionAssignmentAssign},
		{"role:admin", ObjectAssignment, ActionAssignmentUnassign},
		{"role:admin", ObjectAssignment, ActionAssignmentListMine},
		{"role:admin", ObjectAssignment, ActionAssignmentListPool},
		{"role:admin", ObjectAssignment, ActionAssignmentHistory},
		{"role:admin", ObjectPatient, ActionPatientView},
		{"role:admin", ObjectPatient, ActionPatientList},
		{"role:admin", ObjectClinicalEntry, ActionClinicalEntryCreate},
		{"role:admin", ObjectClinicalEntry, ActionClinicalEntryView},
		{"role:admin", ObjectMoodEntry, ActionMoodEntryView},
		{"role:admin", ObjectMember, ActionMemberView},
		{"role:admin", ObjectMember, ActionMemberUpdate},
		{"role:admin", ObjectMember, ActionMemberRemove},
		{"role:admin", ObjectInvitation, ActionInvitationCreate},
		{"role:admin", ObjectInvitation, ActionInvitationView},
		{"role:admin", ObjectInvitation, ActionInvitationRevoke},
		{"role:admin", ObjectOrganization, ActionOrganizationView},
		{"role:admin", ObjectAuditLog, ActionAuditLogView},

		// Owner permissions, on top of admin
		{"role:owner", ObjectPlanChange, ActionPlanChangeRequest},
		{"role:owner", ObjectPlanChange, ActionPlanChangeView},

		// Superadmin permissions, on top of owner
		{"role:superadmin", ObjectOrganization, ActionOrganizationList},
		{"role:superadmin", ObjectPlanChange, ActionPlanChangeDecide},
	}

	for _, policy := range policies {
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}

	groupings := [][]string{
		{"role:owner", "role:admin"},
		{"role:superadmin", "role:owner"},
	}
	for _, grouping := range groupings {
		if _, err := enforcer.AddGroupingPolicy(grouping); err != nil {
			return err
		}
	}
	return nil
}
