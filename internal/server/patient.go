package server

import "github.com/gin-gonic/gin"

func (s *Server) ListPatients(c *gin.Context) {
	principal, _ := principalFromContext(c)

	patients, err := s.patientSvc.List(c.Request.Context(), principal)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondList(c, patients)
}

func (s *Server) GetPatient(c *gin.Context) {
	principal, _ := principalFromContext(c)

	patientID, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	patient, err := s.patientSvc.Get(c.Request.Context(), principal, patientID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondOK(c, patient)
}
