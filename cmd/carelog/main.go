package main

import (
	"github.com/smallbiznis/carelog/internal/assignment"
	"github.com/smallbiznis/carelog/internal/audit"
	"github.com/smallbiznis/carelog/internal/authorization"
	"github.com/smallbiznis/carelog/internal/clinicalentry"
	"github.com/smallbiznis/carelog/internal/clock"
	"github.com/smallbiznis/carelog/internal/config"
	"github.com/smallbiznis/carelog/internal/identity"
	"github.com/smallbiznis/carelog/internal/invitation"
	"github.com/smallbiznis/carelog/internal/migration"
	"github.com/smallbiznis/carelog/internal/mood"
	"github.com/smallbiznis/carelog/internal/observability"
	"github.com/smallbiznis/carelog/internal/organization"
	"github.com/smallbiznis/carelog/internal/patient"
	"github.com/smallbiznis/carelog/internal/planchange"
	"github.com/smallbiznis/carelog/internal/planlimit"
	"github.com/smallbiznis/carelog/internal/ratelimit"
	"github.com/smallbiznis/carelog/internal/server"
	"github.com/smallbiznis/carelog/internal/sessionnote"
	"github.com/smallbiznis/carelog/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		db.Module,
		clock.Module,
		migration.Module,

		// Access
		identity.Module,
		authorization.Module,
		audit.Module,
		planlimit.Module,
		ratelimit.Module,

		// Practice
		organization.Module,
		invitation.Module,
		planchange.Module,
		assignment.Module,
		patient.Module,
		sessionnote.Module,
		clinicalentry.Module,
		mood.Module,

		server.Module,
	)
	app.Run()
}
