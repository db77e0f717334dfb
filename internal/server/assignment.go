package server

import (
	"github.com/gin-gonic/gin"
	assignmentdomain "github.com/smallbiznis/carelog/internal/assignment/domain"
)

func (s *Server) AssignPatient(c *gin.Context) {
	principal, _ := principalFromContext(c)

	var req assignmentdomain.AssignRequest
	if err := s.bindJSON(c, &req); err != nil {
		AbortWithError(c, err)
		return
	}

	assignment, err := s.assignmentSvc.Assign(c.Request.Context(), principal, req.PatientID, req.PsychologistID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondOK(c, assignment)
}

func (s *Server) UnassignPatient(c *gin.Context) {
	principal, _ := principalFromContext(c)

	var req assignmentdomain.UnassignRequest
	if err := s.bindJSON(c, &req); err != nil {
		AbortWithError(c, err)
		return
	}

	assignment, err := s.assignmentSvc.Unassign(c.Request.Context(), principal, req.PatientID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondOK(c, assignment)
}

func (s *Server) ListPoolPatients(c *gin.Context) {
	principal, _ := principalFromContext(c)

	patients, err := s.assignmentSvc.ListPool(c.Request.Context(), principal)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondList(c, patients)
}

// ListMyPatients lists the caller's patients, or another psychologist's
// when an elevated caller passes psychologist_id.
func (s *Server) ListMyPatients(c *gin.Context) {
	principal, _ := principalFromContext(c)

	psychologistID, err := parseOptionalSnowflakeID(c.Query("psychologist_id"))
	if err != nil {
		AbortWithError(c, invalidRequestError("psychologist_id", "must be a valid id"))
		return
	}

	patients, err := s.assignmentSvc.ListMine(c.Request.Context(), principal, psychologistID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondList(c, patients)
}

func (s *Server) ListAssignmentHistory(c *gin.Context) {
	principal, _ := principalFromContext(c)

	patientID, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	history, err := s.assignmentSvc.History(c.Request.Context(), principal, patientID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondList(c, history)
}
