package server

import (
	"github.com/gin-gonic/gin"
	identitydomain "github.com/smallbiznis/carelog/internal/identity/domain"
)

type setActiveRoleRequest struct {
	Role string `json:"role" validate:"required"`
}

func (s *Server) Me(c *gin.Context) {
	principal, _ := principalFromContext(c)

	profile, err := s.identitySvc.Me(c.Request.Context(), principal)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondOK(c, profile)
}

func (s *Server) SetActiveRole(c *gin.Context) {
	principal, _ := principalFromContext(c)

	var req setActiveRoleRequest
	if err := s.bindJSON(c, &req); err != nil {
		AbortWithError(c, err)
		return
	}

	role, ok := identitydomain.ParseRole(req.Role)
	if !ok {
		AbortWithError(c, identitydomain.ErrInvalidRole)
		return
	}

	updated, err := s.identitySvc.SetActiveRole(c.Request.Context(), principal, role)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	profile, err := s.identitySvc.Me(c.Request.Context(), updated)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondOK(c, profile)
}
