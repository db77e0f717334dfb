package server

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	assignmentdomain "github.com/smallbiznis/carelog/internal/assignment/domain"
	auditdomain "github.com/smallbiznis/carelog/internal/audit/domain"
	"github.com/smallbiznis/carelog/internal/authorization"
	clinicalentrydomain "github.com/smallbiznis/carelog/internal/clinicalentry/domain"
	identitydomain "github.com/smallbiznis/carelog/internal/identity/domain"
	invitationdomain "github.com/smallbiznis/carelog/internal/invitation/domain"
	mooddomain "github.com/smallbiznis/carelog/internal/mood/domain"
	obslogger "github.com/smallbiznis/carelog/internal/observability/logger"
	organizationdomain "github.com/smallbiznis/carelog/internal/organization/domain"
	patientdomain "github.com/smallbiznis/carelog/internal/patient/domain"
	planchangedomain "github.com/smallbiznis/carelog/internal/planchange/domain"
	"github.com/smallbiznis/carelog/internal/planlimit"
	sessionnotedomain "github.com/smallbiznis/carelog/internal/sessionnote/domain"
	"github.com/smallbiznis/carelog/pkg/validate"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Error classes returned in the envelope when no narrower code applies.
const (
	ClassValidation   = "VALIDATION"
	ClassUnauthorized = "UNAUTHORIZED"
	ClassForbidden    = "FORBIDDEN"
	ClassNotFound     = "NOT_FOUND"
	ClassConflict     = "CONFLICT"
	ClassRateLimited  = "RATE_LIMITED"
	ClassUnavailable  = "SERVICE_UNAVAILABLE"
	ClassInternal     = "INTERNAL"
)

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
)

// envelope is the body of every JSON response.
type envelope struct {
	OK         bool                  `json:"ok"`
	Data       any                   `json:"data,omitempty"`
	Error      string                `json:"error,omitempty"`
	Message    string                `json:"message,omitempty"`
	Issues     []validate.FieldIssue `json:"issues,omitempty"`
	ExistingID string                `json:"existing_id,omitempty"`
}

type errorRule struct {
	target  error
	status  int
	class   string
	code    string
	message string
}

var errorRules = []errorRule{
	// validation
	{ErrInvalidRequest, http.StatusBadRequest, ClassValidation, ClassValidation, "invalid request"},
	{assignmentdomain.ErrInvalidPatient, http.StatusBadRequest, ClassValidation, ClassValidation, "patient_id is required"},
	{assignmentdomain.ErrInvalidPsychologist, http.StatusBadRequest, ClassValidation, ClassValidation, "psychologist_id is required"},
	{sessionnotedomain.ErrContentRequired, http.StatusBadRequest, ClassValidation, ClassValidation, "content is required"},
	{clinicalentrydomain.ErrContentRequired, http.StatusBadRequest, ClassValidation, ClassValidation, "content is required"},
	{clinicalentrydomain.ErrInvalidKind, http.StatusBadRequest, ClassValidation, ClassValidation, "invalid entry kind"},
	{mooddomain.ErrInvalidScore, http.StatusBadRequest, ClassValidation, ClassValidation, "score must be between 1 and 10"},
	{mooddomain.ErrCommentTooLong, http.StatusBadRequest, ClassValidation, ClassValidation, "comment is too long"},
	{mooddomain.ErrInvalidRange, http.StatusBadRequest, ClassValidation, ClassValidation, "invalid date range"},
	{identitydomain.ErrInvalidRole, http.StatusBadRequest, ClassValidation, ClassValidation, "invalid role"},
	{identitydomain.ErrRoleNotHeld, http.StatusBadRequest, ClassValidation, "role_not_held", "role is not held by the user"},
	{organizationdomain.ErrInvalidName, http.StatusBadRequest, ClassValidation, ClassValidation, "invalid organization name"},
	{organizationdomain.ErrInvalidPlan, http.StatusBadRequest, ClassValidation, ClassValidation, "invalid plan"},
	{organizationdomain.ErrInvalidStatus, http.StatusBadRequest, ClassValidation, ClassValidation, "invalid status"},
	{invitationdomain.ErrInvalidRole, http.StatusBadRequest, ClassValidation, ClassValidation, "invalid role"},
	{invitationdomain.ErrInvalidEmail, http.StatusBadRequest, ClassValidation, ClassValidation, "invalid email"},
	{planchangedomain.ErrInvalidStatus, http.StatusBadRequest, ClassValidation, ClassValidation, "invalid status"},
	{auditdomain.ErrInvalidOrganization, http.StatusBadRequest, ClassValidation, ClassValidation, "organization is required"},
	{auditdomain.ErrInvalidPageToken, http.StatusBadRequest, ClassValidation, ClassValidation, "invalid page token"},
	{auditdomain.ErrInvalidTimeRange, http.StatusBadRequest, ClassValidation, ClassValidation, "invalid time range"},

	// unauthorized
	{ErrUnauthorized, http.StatusUnauthorized, ClassUnauthorized, ClassUnauthorized, "unauthorized"},
	{authorization.ErrUnauthorized, http.StatusUnauthorized, ClassUnauthorized, ClassUnauthorized, "unauthorized"},
	{identitydomain.ErrMissingCredential, http.StatusUnauthorized, ClassUnauthorized, ClassUnauthorized, "missing credential"},
	{identitydomain.ErrInvalidCredential, http.StatusUnauthorized, ClassUnauthorized, ClassUnauthorized, "invalid credential"},
	{identitydomain.ErrUserNotRegistered, http.StatusUnauthorized, ClassUnauthorized, "user_not_registered", "user is not registered"},

	// forbidden
	{authorization.ErrForbiddenOrganization, http.StatusForbidden, ClassForbidden, "forbidden_organization", "organization is outside your scope"},
	{authorization.ErrForbidden, http.StatusForbidden, ClassForbidden, ClassForbidden, "forbidden"},
	{identitydomain.ErrAccountDisabled, http.StatusForbidden, ClassForbidden, "account_disabled", "account is disabled"},
	{assignmentdomain.ErrNotInScope, http.StatusForbidden, ClassForbidden, "not_in_scope", "user is outside your organization"},
	{assignmentdomain.ErrPatientInactive, http.StatusForbidden, ClassForbidden, "not_in_scope", "patient is not active"},
	{assignmentdomain.ErrPsychologistInactive, http.StatusForbidden, ClassForbidden, "not_in_scope", "psychologist is not active"},
	{assignmentdomain.ErrSelfAssignOnly, http.StatusForbidden, ClassForbidden, "self_assign_only", "psychologists may only assign themselves"},
	{sessionnotedomain.ErrNotAssigned, http.StatusForbidden, ClassForbidden, "not_assigned", "patient is not assigned to you"},
	{sessionnotedomain.ErrNotAuthor, http.StatusForbidden, ClassForbidden, ClassForbidden, "only the author may edit this note"},
	{sessionnotedomain.ErrSessionLocked, http.StatusForbidden, ClassForbidden, "SESSION_LOCKED", "today's session note is locked"},
	{sessionnotedomain.ErrLocked, http.StatusForbidden, ClassForbidden, "LOCKED", "session note is locked"},
	{mooddomain.ErrPatientOnly, http.StatusForbidden, ClassForbidden, ClassForbidden, "only patients record mood entries"},
	{planlimit.ErrPlanLimitReached, http.StatusForbidden, ClassForbidden, "PLAN_LIMIT_REACHED", "plan limit reached"},
	{organizationdomain.ErrCannotModifySelf, http.StatusForbidden, ClassForbidden, ClassForbidden, "you cannot modify your own membership"},
	{organizationdomain.ErrCannotModifyOwner, http.StatusForbidden, ClassForbidden, ClassForbidden, "only owners may modify an owner"},
	{invitationdomain.ErrRoleNotInvitable, http.StatusForbidden, ClassForbidden, ClassForbidden, "you may not invite this role"},

	// not found
	{ErrNotFound, http.StatusNotFound, ClassNotFound, ClassNotFound, "not found"},
	{assignmentdomain.ErrPatientNotFound, http.StatusNotFound, ClassNotFound, ClassNotFound, "patient not found"},
	{assignmentdomain.ErrPsychologistNotFound, http.StatusNotFound, ClassNotFound, ClassNotFound, "psychologist not found"},
	{assignmentdomain.ErrNoActiveAssignment, http.StatusNotFound, ClassNotFound, ClassNotFound, "patient has no active assignment"},
	{patientdomain.ErrPatientNotFound, http.StatusNotFound, ClassNotFound, ClassNotFound, "patient not found"},
	{sessionnotedomain.ErrNoteNotFound, http.StatusNotFound, ClassNotFound, ClassNotFound, "session note not found"},
	{organizationdomain.ErrOrganizationNotFound, http.StatusNotFound, ClassNotFound, ClassNotFound, "organization not found"},
	{organizationdomain.ErrMemberNotFound, http.StatusNotFound, ClassNotFound, ClassNotFound, "member not found"},
	{invitationdomain.ErrInvitationNotFound, http.StatusNotFound, ClassNotFound, ClassNotFound, "invitation not found"},
	{planchangedomain.ErrNotFound, http.StatusNotFound, ClassNotFound, ClassNotFound, "plan change request not found"},
	{identitydomain.ErrUserNotFound, http.StatusNotFound, ClassNotFound, ClassNotFound, "user not found"},
	{gorm.ErrRecordNotFound, http.StatusNotFound, ClassNotFound, ClassNotFound, "not found"},

	// conflict
	{assignmentdomain.ErrAlreadyAssigned, http.StatusConflict, ClassConflict, "ALREADY_ASSIGNED", "patient is already assigned"},
	{sessionnotedomain.ErrAlreadyExistsToday, http.StatusConflict, ClassConflict, "ALREADY_EXISTS_TODAY", "a session note already exists today"},
	{planchangedomain.ErrDowngradeBlocked, http.StatusConflict, ClassConflict, "PLAN_DOWNGRADE_BLOCKED", "current staff does not fit the requested plan"},
	{planchangedomain.ErrSamePlan, http.StatusConflict, ClassConflict, ClassConflict, "organization is already on this plan"},
	{planchangedomain.ErrPendingExists, http.StatusConflict, ClassConflict, ClassConflict, "a plan change request is already pending"},
	{planchangedomain.ErrNotPending, http.StatusConflict, ClassConflict, ClassConflict, "plan change request was already decided"},
	{organizationdomain.ErrAlreadyRegistered, http.StatusConflict, ClassConflict, ClassConflict, "already registered"},
	{invitationdomain.ErrDuplicateInvitation, http.StatusConflict, ClassConflict, ClassConflict, "email is already invited or a member"},
	{invitationdomain.ErrInvitationNotPending, http.StatusConflict, ClassConflict, ClassConflict, "invitation is no longer pending"},
	{invitationdomain.ErrSubjectAlreadyBound, http.StatusConflict, ClassConflict, ClassConflict, "identity is already bound to an account"},
	{gorm.ErrDuplicatedKey, http.StatusConflict, ClassConflict, ClassConflict, "conflict"},

	// throttling
	{invitationdomain.ErrRateLimited, http.StatusTooManyRequests, ClassRateLimited, ClassRateLimited, "too many requests"},
	{invitationdomain.ErrLimiterUnavailable, http.StatusServiceUnavailable, ClassUnavailable, ClassUnavailable, "service unavailable"},
}

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, body := mapError(lastErr.Err)
		if status >= http.StatusInternalServerError {
			obslogger.FromContext(c.Request.Context()).Error("request failed", zap.Error(lastErr.Err))
		}
		var rateErr *invitationdomain.RateLimitError
		if errors.As(lastErr.Err, &rateErr) && rateErr.RetryAfter > 0 {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(rateErr.RetryAfter.Seconds()))))
		}
		c.AbortWithStatusJSON(status, body)
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func recoverInternal(c *gin.Context, _ any) {
	c.AbortWithStatusJSON(http.StatusInternalServerError, envelope{
		Error:   ClassInternal,
		Message: "internal server error",
	})
}

func invalidRequestError(field, message string) error {
	return &validate.Error{Issues: []validate.FieldIssue{{Field: field, Message: message}}}
}

func mapError(err error) (int, envelope) {
	if issues := validate.Issues(err); len(issues) > 0 {
		return http.StatusBadRequest, envelope{
			Error:   ClassValidation,
			Message: "validation failed",
			Issues:  issues,
		}
	}

	rule, ok := matchRule(err)
	if !ok {
		return http.StatusInternalServerError, envelope{
			Error:   ClassInternal,
			Message: "internal server error",
		}
	}

	body := envelope{Error: rule.code, Message: rule.message}
	var existsErr *sessionnotedomain.ExistsTodayError
	if errors.As(err, &existsErr) {
		body.ExistingID = existsErr.ExistingID.String()
	}
	return rule.status, body
}

func matchRule(err error) (errorRule, bool) {
	if err == nil {
		return errorRule{}, false
	}
	for _, rule := range errorRules {
		if errors.Is(err, rule.target) {
			return rule, true
		}
	}
	return errorRule{}, false
}

// classifyErrorForLog reports the class and code logged with a failed request.
func classifyErrorForLog(err error) (string, string) {
	if len(validate.Issues(err)) > 0 {
		return ClassValidation, ClassValidation
	}
	if rule, ok := matchRule(err); ok {
		return rule.class, rule.code
	}
	return ClassInternal, ClassInternal
}
