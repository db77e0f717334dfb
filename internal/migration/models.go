package migration

import (
	assignmentdomain "github.com/smallbiznis/carelog/internal/assignment/domain"
	auditdomain "github.com/smallbiznis/carelog/internal/audit/domain"
	clinicalentrydomain "github.com/smallbiznis/carelog/internal/clinicalentry/domain"
	identitydomain "github.com/smallbiznis/carelog/internal/identity/domain"
	invitationdomain "github.com/smallbiznis/carelog/internal/invitation/domain"
	mooddomain "github.com/smallbiznis/carelog/internal/mood/domain"
	orgdomain "github.com/smallbiznis/carelog/internal/organization/domain"
	planchangedomain "github.com/smallbiznis/carelog/internal/planchange/domain"
	sessionnotedomain "github.com/smallbiznis/carelog/internal/sessionnote/domain"
	"gorm.io/gorm"
)

// Models lists every table owned by the service, in dependency order.
func Models() []any {
	return []any{
		&orgdomain.Organization{},
		&orgdomain.PlanLimit{},
		&identitydomain.User{},
		&identitydomain.UserRole{},
		&assignmentdomain.PatientAssignment{},
		&sessionnotedomain.SessionNote{},
		&clinicalentrydomain.ClinicalEntry{},
		&mooddomain.MoodEntry{},
		&invitationdomain.Invitation{},
		&planchangedomain.Request{},
		&auditdomain.AuditLog{},
	}
}

// AutoMigrate creates the schema from the gorm models. Used for sqlite and
// mysql, where the embedded SQL migrations do not apply.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}
