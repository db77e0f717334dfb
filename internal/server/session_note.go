package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	sessionnotedomain "github.com/smallbiznis/carelog/internal/sessionnote/domain"
)

func (s *Server) CreateSessionNote(c *gin.Context) {
	principal, _ := principalFromContext(c)

	patientID, err := pathID(c, "patientId")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req sessionnotedomain.ContentRequest
	if err := s.bindJSON(c, &req); err != nil {
		AbortWithError(c, err)
		return
	}

	note, err := s.sessionNoteSvc.Create(c.Request.Context(), principal, patientID, req.Content)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusCreated, note)
}

func (s *Server) UpdateSessionNote(c *gin.Context) {
	principal, _ := principalFromContext(c)

	noteID, err := pathID(c, "sessionId")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req sessionnotedomain.ContentRequest
	if err := s.bindJSON(c, &req); err != nil {
		AbortWithError(c, err)
		return
	}

	note, err := s.sessionNoteSvc.Update(c.Request.Context(), principal, noteID, req.Content)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondOK(c, note)
}

func (s *Server) GetSessionNote(c *gin.Context) {
	principal, _ := principalFromContext(c)

	noteID, err := pathID(c, "sessionId")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	note, err := s.sessionNoteSvc.Get(c.Request.Context(), principal, noteID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondOK(c, note)
}

func (s *Server) ListSessionNotes(c *gin.Context) {
	principal, _ := principalFromContext(c)

	patientID, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	notes, err := s.sessionNoteSvc.ListForPatient(c.Request.Context(), principal, patientID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondList(c, notes)
}
