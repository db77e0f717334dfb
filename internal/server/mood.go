package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	mooddomain "github.com/smallbiznis/carelog/internal/mood/domain"
)

// RecordMoodEntry answers 201 for the first entry of the day and 200 when
// it replaced an earlier one.
func (s *Server) RecordMoodEntry(c *gin.Context) {
	principal, _ := principalFromContext(c)

	var req mooddomain.RecordRequest
	if err := s.bindJSON(c, &req); err != nil {
		AbortWithError(c, err)
		return
	}

	entry, created, err := s.moodSvc.Record(c.Request.Context(), principal, *req.Score, req.Comment)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	respond(c, status, entry)
}

func (s *Server) ListMoodEntries(c *gin.Context) {
	principal, _ := principalFromContext(c)

	patientID, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var query mooddomain.ListRequest
	if err := s.bindQuery(c, &query); err != nil {
		AbortWithError(c, err)
		return
	}

	entries, err := s.moodSvc.ListForPatient(c.Request.Context(), principal, patientID, query.From, query.To)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondList(c, entries)
}
