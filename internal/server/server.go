package server

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	assignmentdomain "github.com/smallbiznis/carelog/internal/assignment/domain"
	auditdomain "github.com/smallbiznis/carelog/internal/audit/domain"
	"github.com/smallbiznis/carelog/internal/authorization"
	clinicalentrydomain "github.com/smallbiznis/carelog/internal/clinicalentry/domain"
	"github.com/smallbiznis/carelog/internal/config"
	identitydomain "github.com/smallbiznis/carelog/internal/identity/domain"
	invitationdomain "github.com/smallbiznis/carelog/internal/invitation/domain"
	mooddomain "github.com/smallbiznis/carelog/internal/mood/domain"
	"github.com/smallbiznis/carelog/internal/observability"
	obsmiddleware "github.com/smallbiznis/carelog/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/carelog/internal/observability/metrics"
	obstracing "github.com/smallbiznis/carelog/internal/observability/tracing"
	organizationdomain "github.com/smallbiznis/carelog/internal/organization/domain"
	patientdomain "github.com/smallbiznis/carelog/internal/patient/domain"
	planchangedomain "github.com/smallbiznis/carelog/internal/planchange/domain"
	sessionnotedomain "github.com/smallbiznis/carelog/internal/sessionnote/domain"
	"github.com/smallbiznis/carelog/pkg/validate"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Provide(validate.New),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()

	// Panic stacks are only written when debugging.
	recoveryOut := io.Discard
	if obsCfg.Debug() {
		recoveryOut = gin.DefaultErrorWriter
	}
	r.Use(gin.CustomRecoveryWithWriter(recoveryOut, recoverInternal))
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(httpMetrics.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(cfg config.Config, obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine           *gin.Engine
	cfg              config.Config
	log              *zap.Logger
	validator        *validate.Validator
	identitySvc      identitydomain.Service
	authzSvc         authorization.Service
	auditSvc         auditdomain.Service
	assignmentSvc    assignmentdomain.Service
	patientSvc       patientdomain.Service
	sessionNoteSvc   sessionnotedomain.Service
	clinicalEntrySvc clinicalentrydomain.Service
	moodSvc          mooddomain.Service
	organizationSvc  organizationdomain.Service
	invitationSvc    invitationdomain.Service
	planChangeSvc    planchangedomain.Service
}

type ServerParams struct {
	fx.In

	Gin              *gin.Engine
	Cfg              config.Config
	Log              *zap.Logger
	Validator        *validate.Validator
	IdentitySvc      identitydomain.Service
	AuthzSvc         authorization.Service
	AuditSvc         auditdomain.Service
	AssignmentSvc    assignmentdomain.Service
	PatientSvc       patientdomain.Service
	SessionNoteSvc   sessionnotedomain.Service
	ClinicalEntrySvc clinicalentrydomain.Service
	MoodSvc          mooddomain.Service
	OrganizationSvc  organizationdomain.Service
	InvitationSvc    invitationdomain.Service
	PlanChangeSvc    planchangedomain.Service
}

func NewServer(p ServerParams) *Server {
	validator := p.Validator
	if validator == nil {
		validator = validate.New()
	}
	svc := &Server{
		engine:           p.Gin,
		cfg:              p.Cfg,
		log:              p.Log.Named("http.server"),
		validator:        validator,
		identitySvc:      p.IdentitySvc,
		authzSvc:         p.AuthzSvc,
		auditSvc:         p.AuditSvc,
		assignmentSvc:    p.AssignmentSvc,
		patientSvc:       p.PatientSvc,
		sessionNoteSvc:   p.SessionNoteSvc,
		clinicalEntrySvc: p.ClinicalEntrySvc,
		moodSvc:          p.MoodSvc,
		organizationSvc:  p.OrganizationSvc,
		invitationSvc:    p.InvitationSvc,
		planChangeSvc:    p.PlanChangeSvc,
	}

	svc.registerOnboardingRoutes()
	svc.registerAPIRoutes()
	svc.registerAdminRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// registerOnboardingRoutes serves callers the identity provider knows but
// who may not have a local account yet.
func (s *Server) registerOnboardingRoutes() {
	s.engine.POST("/organizations/register", s.ClaimsRequired(), s.RegisterOrganization)
	s.engine.POST("/invitations/accept", s.ClaimsRequired(), s.AcceptInvitation)
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("")
	api.Use(s.AuthRequired())
	api.Use(s.OrgContext())

	api.GET("/me", s.Me)
	api.PUT("/me/active-role", s.SetActiveRole)

	// -------- Assignments --------
	api.POST("/assignPatient", s.authorize(authorization.ObjectAssignment, authorization.ActionAssignmentAssign), s.AssignPatient)
	api.POST("/unassignPatient", s.authorize(authorization.ObjectAssignment, authorization.ActionAssignmentUnassign), s.UnassignPatient)
	api.GET("/poolPatients", s.authorize(authorization.ObjectAssignment, authorization.ActionAssignmentListPool), s.ListPoolPatients)
	api.GET("/myPatients", s.authorize(authorization.ObjectAssignment, authorization.ActionAssignmentListMine), s.ListMyPatients)

	// -------- Patients --------
	api.GET("/patients", s.authorize(authorization.ObjectPatient, authorization.ActionPatientList), s.ListPatients)
	api.GET("/patients/:id", s.authorize(authorization.ObjectPatient, authorization.ActionPatientView), s.GetPatient)
	api.GET("/patients/:id/assignments", s.authorize(authorization.ObjectAssignment, authorization.ActionAssignmentHistory), s.ListAssignmentHistory)
	api.GET("/patients/:id/sessions", s.authorize(authorization.ObjectSessionNote, authorization.ActionSessionNoteView), s.ListSessionNotes)
	api.POST("/patients/:id/clinical-entries", s.authorize(authorization.ObjectClinicalEntry, authorization.ActionClinicalEntryCreate), s.CreateClinicalEntry)
	api.GET("/patients/:id/clinical-entries", s.authorize(authorization.ObjectClinicalEntry, authorization.ActionClinicalEntryView), s.ListClinicalEntries)
	api.GET("/patients/:id/mood-entries", s.authorize(authorization.ObjectMoodEntry, authorization.ActionMoodEntryView), s.ListMoodEntries)

	// -------- Session notes --------
	api.POST("/session/new/:patientId", s.authorize(authorization.ObjectSessionNote, authorization.ActionSessionNoteCreate), s.CreateSessionNote)
	api.GET("/session/:sessionId", s.authorize(authorization.ObjectSessionNote, authorization.ActionSessionNoteView), s.GetSessionNote)
	api.PUT("/session/:sessionId", s.authorize(authorization.ObjectSessionNote, authorization.ActionSessionNoteUpdate), s.UpdateSessionNote)

	// -------- Mood --------
	api.POST("/mood-entries", s.authorize(authorization.ObjectMoodEntry, authorization.ActionMoodEntryRecord), s.RecordMoodEntry)

	// -------- Organization --------
	api.GET("/organization", s.authorize(authorization.ObjectOrganization, authorization.ActionOrganizationView), s.GetCurrentOrganization)
	api.GET("/members", s.authorize(authorization.ObjectMember, authorization.ActionMemberView), s.ListMembers)
	api.PATCH("/members/:id/status", s.authorize(authorization.ObjectMember, authorization.ActionMemberUpdate), s.SetMemberStatus)
	api.DELETE("/members/:id", s.authorize(authorization.ObjectMember, authorization.ActionMemberRemove), s.RemoveMember)

	// -------- Invitations --------
	api.POST("/invitations", s.authorize(authorization.ObjectInvitation, authorization.ActionInvitationCreate), s.CreateInvitation)
	api.GET("/invitations", s.authorize(authorization.ObjectInvitation, authorization.ActionInvitationView), s.ListInvitations)
	api.DELETE("/invitations/:id", s.authorize(authorization.ObjectInvitation, authorization.ActionInvitationRevoke), s.RevokeInvitation)

	// -------- Plan changes --------
	api.POST("/plan-change-requests", s.authorize(authorization.ObjectPlanChange, authorization.ActionPlanChangeRequest), s.CreatePlanChangeRequest)
	api.GET("/plan-change-requests", s.authorize(authorization.ObjectPlanChange, authorization.ActionPlanChangeView), s.ListPlanChangeRequests)

	api.GET("/audit-logs", s.authorize(authorization.ObjectAuditLog, authorization.ActionAuditLogView), s.ListAuditLogs)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/admin")
	admin.Use(s.AuthRequired())
	admin.Use(s.OrgContext())

	admin.GET("/organizations", s.authorize(authorization.ObjectOrganization, authorization.ActionOrganizationList), s.ListOrganizations)

	s.engine.POST("/plan-change-requests/:id/approve", s.AuthRequired(), s.OrgContext(), s.authorize(authorization.ObjectPlanChange, authorization.ActionPlanChangeDecide), s.ApprovePlanChangeRequest)
	s.engine.POST("/plan-change-requests/:id/deny", s.AuthRequired(), s.OrgContext(), s.authorize(authorization.ObjectPlanChange, authorization.ActionPlanChangeDecide), s.DenyPlanChangeRequest)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
	s.engine.NoMethod(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
