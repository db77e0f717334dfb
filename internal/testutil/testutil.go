// Package testutil opens in-memory databases and builds fixtures for
// service tests.
package testutil

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	assignmentdomain "github.com/smallbiznis/carelog/internal/assignment/domain"
	auditdomain "github.com/smallbiznis/carelog/internal/audit/domain"
	auditrepository "github.com/smallbiznis/carelog/internal/audit/repository"
	auditservice "github.com/smallbiznis/carelog/internal/audit/service"
	"github.com/smallbiznis/carelog/internal/clock"
	identitydomain "github.com/smallbiznis/carelog/internal/identity/domain"
	"github.com/smallbiznis/carelog/internal/migration"
	orgdomain "github.com/smallbiznis/carelog/internal/organization/domain"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var dbSeq atomic.Int64

// OpenDB returns a migrated private in-memory sqlite database. The pool is
// capped at one connection, so code under test must not open a second
// connection while holding a transaction.
func OpenDB(t testing.TB) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, dbSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	_ = db.Exec("PRAGMA busy_timeout = 5000").Error
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := migration.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func Node(t testing.TB) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	return node
}

// Fixtures builds rows directly through gorm.
type Fixtures struct {
	T     testing.TB
	DB    *gorm.DB
	Node  *snowflake.Node
	Clock *clock.FakeClock
	seq   int
}

func NewFixtures(t testing.TB) *Fixtures {
	t.Helper()
	return &Fixtures{
		T:     t,
		DB:    OpenDB(t),
		Node:  Node(t),
		Clock: clock.NewFakeClock(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)),
	}
}

// Audit returns an audit service writing to the fixture database.
func (f *Fixtures) Audit() auditdomain.Service {
	return auditservice.NewService(auditservice.Params{
		DB:    f.DB,
		Log:   zaptest.NewLogger(f.T),
		GenID: f.Node,
		Repo:  auditrepository.Provide(),
		Clock: f.Clock,
	})
}

func (f *Fixtures) Org(plan orgdomain.Plan) orgdomain.Organization {
	f.T.Helper()
	f.seq++
	now := f.Clock.Now()
	org := orgdomain.Organization{
		ID:        f.Node.Generate(),
		Name:      fmt.Sprintf("Practice %d", f.seq),
		Slug:      fmt.Sprintf("practice-%d", f.seq),
		Plan:      plan,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := f.DB.Create(&org).Error; err != nil {
		f.T.Fatalf("create org: %v", err)
	}
	return org
}

// User creates an ACTIVE user bound to subject "sub-<id>".
func (f *Fixtures) User(orgID snowflake.ID, lastName string, roles ...identitydomain.Role) identitydomain.User {
	return f.UserWithStatus(orgID, lastName, identitydomain.UserStatusActive, roles...)
}

func (f *Fixtures) UserWithStatus(orgID snowflake.ID, lastName string, status identitydomain.UserStatus, roles ...identitydomain.Role) identitydomain.User {
	f.T.Helper()
	f.seq++
	now := f.Clock.Now()
	id := f.Node.Generate()
	subject := "sub-" + id.String()
	user := identitydomain.User{
		ID:              id,
		ExternalSubject: &subject,
		Email:           fmt.Sprintf("user%d@example.com", f.seq),
		FirstName:       fmt.Sprintf("First%d", f.seq),
		LastName:        lastName,
		Status:          status,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if orgID != 0 {
		org := orgID
		user.OrgID = &org
	}
	if err := f.DB.Create(&user).Error; err != nil {
		f.T.Fatalf("create user: %v", err)
	}
	for _, role := range roles {
		row := identitydomain.UserRole{UserID: user.ID, Role: role, CreatedAt: now}
		if err := f.DB.Create(&row).Error; err != nil {
			f.T.Fatalf("create role: %v", err)
		}
		user.Roles = append(user.Roles, row)
	}
	return user
}

// Principal resolves u the way the identity resolver does.
func Principal(u identitydomain.User) identitydomain.Principal {
	return identitydomain.PrincipalFromUser(u)
}

// Assignment inserts an ACTIVE ledger row and sets the patient pointer.
func (f *Fixtures) Assignment(orgID, patientID, psychologistID snowflake.ID) assignmentdomain.PatientAssignment {
	f.T.Helper()
	active := patientID
	row := assignmentdomain.PatientAssignment{
		ID:              f.Node.Generate(),
		OrgID:           orgID,
		PatientID:       patientID,
		PsychologistID:  psychologistID,
		Status:          assignmentdomain.StatusActive,
		ActivePatientID: &active,
		StartedAt:       f.Clock.Now(),
		AssignedBy:      psychologistID,
	}
	if err := f.DB.Create(&row).Error; err != nil {
		f.T.Fatalf("create assignment: %v", err)
	}
	if err := f.DB.Model(&identitydomain.User{}).
		Where("id = ?", patientID).
		Update("assigned_psychologist_id", psychologistID).Error; err != nil {
		f.T.Fatalf("set pointer: %v", err)
	}
	return row
}

// CountAudit counts audit rows with the given action.
func (f *Fixtures) CountAudit(action string) int64 {
	f.T.Helper()
	var count int64
	if err := f.DB.Model(&auditdomain.AuditLog{}).Where("action = ?", action).Count(&count).Error; err != nil {
		f.T.Fatalf("count audit: %v", err)
	}
	return count
}
