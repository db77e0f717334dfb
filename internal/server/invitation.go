package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	invitationdomain "github.com/smallbiznis/carelog/internal/invitation/domain"
)

func (s *Server) CreateInvitation(c *gin.Context) {
	principal, _ := principalFromContext(c)

	var req invitationdomain.InviteRequest
	if err := s.bindJSON(c, &req); err != nil {
		AbortWithError(c, err)
		return
	}

	invitation, err := s.invitationSvc.Invite(c.Request.Context(), principal, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusCreated, invitation)
}

func (s *Server) ListInvitations(c *gin.Context) {
	principal, _ := principalFromContext(c)

	invitations, err := s.invitationSvc.ListPending(c.Request.Context(), principal)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondList(c, invitations)
}

func (s *Server) RevokeInvitation(c *gin.Context) {
	principal, _ := principalFromContext(c)

	invitationID, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.invitationSvc.Revoke(c.Request.Context(), principal, invitationID); err != nil {
		AbortWithError(c, err)
		return
	}

	respondOK(c, nil)
}

// AcceptInvitation binds the verified identity to the invited account.
func (s *Server) AcceptInvitation(c *gin.Context) {
	claims, ok := claimsFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req invitationdomain.AcceptRequest
	if err := s.bindJSON(c, &req); err != nil {
		AbortWithError(c, err)
		return
	}

	invitation, err := s.invitationSvc.Accept(c.Request.Context(), claims, req.Code)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondOK(c, invitation)
}
