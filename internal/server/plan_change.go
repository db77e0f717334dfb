package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	organizationdomain "github.com/smallbiznis/carelog/internal/organization/domain"
	planchangedomain "github.com/smallbiznis/carelog/internal/planchange/domain"
)

func (s *Server) CreatePlanChangeRequest(c *gin.Context) {
	principal, _ := principalFromContext(c)

	var req planchangedomain.CreateRequest
	if err := s.bindJSON(c, &req); err != nil {
		AbortWithError(c, err)
		return
	}

	plan, ok := organizationdomain.ParsePlan(req.Plan)
	if !ok {
		AbortWithError(c, organizationdomain.ErrInvalidPlan)
		return
	}

	request, err := s.planChangeSvc.Request(c.Request.Context(), principal, plan, req.Reason)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusCreated, request)
}

func (s *Server) ListPlanChangeRequests(c *gin.Context) {
	principal, _ := principalFromContext(c)

	status := planchangedomain.Status(strings.ToUpper(strings.TrimSpace(c.Query("status"))))
	requests, err := s.planChangeSvc.List(c.Request.Context(), principal, status)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondList(c, requests)
}

func (s *Server) ApprovePlanChangeRequest(c *gin.Context) {
	s.decidePlanChangeRequest(c, true)
}

func (s *Server) DenyPlanChangeRequest(c *gin.Context) {
	s.decidePlanChangeRequest(c, false)
}

func (s *Server) decidePlanChangeRequest(c *gin.Context, approve bool) {
	principal, _ := principalFromContext(c)

	requestID, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	// The decision note is optional, so is the body.
	var req planchangedomain.DecideRequest
	if c.Request.ContentLength > 0 {
		if err := s.bindJSON(c, &req); err != nil {
			AbortWithError(c, err)
			return
		}
	}

	request, err := s.planChangeSvc.Decide(c.Request.Context(), principal, requestID, approve, req.Note)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondOK(c, request)
}
