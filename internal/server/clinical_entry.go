package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	clinicalentrydomain "github.com/smallbiznis/carelog/internal/clinicalentry/domain"
)

func (s *Server) CreateClinicalEntry(c *gin.Context) {
	principal, _ := principalFromContext(c)

	patientID, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req clinicalentrydomain.CreateRequest
	if err := s.bindJSON(c, &req); err != nil {
		AbortWithError(c, err)
		return
	}

	entry, err := s.clinicalEntrySvc.Create(c.Request.Context(), principal, patientID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusCreated, entry)
}

func (s *Server) ListClinicalEntries(c *gin.Context) {
	principal, _ := principalFromContext(c)

	patientID, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	entries, err := s.clinicalEntrySvc.ListForPatient(c.Request.Context(), principal, patientID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondList(c, entries)
}
