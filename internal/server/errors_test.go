package server

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	assignmentdomain "github.com/smallbiznis/carelog/internal/assignment/domain"
	"github.com/smallbiznis/carelog/internal/authorization"
	invitationdomain "github.com/smallbiznis/carelog/internal/invitation/domain"
	"github.com/smallbiznis/carelog/internal/planlimit"
	sessionnotedomain "github.com/smallbiznis/carelog/internal/sessionnote/domain"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestMapError(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"wrapped conflict", fmt.Errorf("assign: %w", assignmentdomain.ErrAlreadyAssigned), http.StatusConflict, "ALREADY_ASSIGNED"},
		{"forbidden org", authorization.ErrForbiddenOrganization, http.StatusForbidden, "forbidden_organization"},
		{"inactive patient", fmt.Errorf("assign: %w", assignmentdomain.ErrPatientInactive), http.StatusForbidden, "not_in_scope"},
		{"inactive psychologist", assignmentdomain.ErrPsychologistInactive, http.StatusForbidden, "not_in_scope"},
		{"plan limit", planlimit.ErrPlanLimitReached, http.StatusForbidden, "PLAN_LIMIT_REACHED"},
		{"locked", sessionnotedomain.ErrLocked, http.StatusForbidden, "LOCKED"},
		{"record not found", gorm.ErrRecordNotFound, http.StatusNotFound, ClassNotFound},
		{"duplicate key", gorm.ErrDuplicatedKey, http.StatusConflict, ClassConflict},
		{"rate limited", &invitationdomain.RateLimitError{RetryAfter: time.Second}, http.StatusTooManyRequests, ClassRateLimited},
		{"limiter down", invitationdomain.ErrLimiterUnavailable, http.StatusServiceUnavailable, ClassUnavailable},
		{"unknown", errors.New("db exploded"), http.StatusInternalServerError, ClassInternal},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, body := mapError(tc.err)
			assert.Equal(t, tc.status, status)
			assert.Equal(t, tc.code, body.Error)
			assert.False(t, body.OK)
			assert.NotEmpty(t, body.Message)
		})
	}
}

func TestMapErrorHidesInternalDetail(t *testing.T) {
	_, body := mapError(errors.New("pq: password authentication failed"))
	assert.Equal(t, "internal server error", body.Message)
}

func TestRetryAfterHeader(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(ErrorHandlingMiddleware())
	r.GET("/throttled", func(c *gin.Context) {
		AbortWithError(c, &invitationdomain.RateLimitError{RetryAfter: 1500 * time.Millisecond})
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/throttled", nil))

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"ok":false,"error":"RATE_LIMITED","message":"too many requests"}`, rec.Body.String())
}
