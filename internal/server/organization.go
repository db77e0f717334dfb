package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/carelog/internal/authorization"
	identitydomain "github.com/smallbiznis/carelog/internal/identity/domain"
	organizationdomain "github.com/smallbiznis/carelog/internal/organization/domain"
)

type listMembersQuery struct {
	Role   string `form:"role"`
	Status string `form:"status"`
}

type setMemberStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=ACTIVE INACTIVE active inactive"`
}

// RegisterOrganization creates an organization and its owner for a caller
// verified by the identity provider.
func (s *Server) RegisterOrganization(c *gin.Context) {
	claims, ok := claimsFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req organizationdomain.RegisterRequest
	if err := s.bindJSON(c, &req); err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.organizationSvc.Register(c.Request.Context(), claims, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusCreated, resp)
}

func (s *Server) GetCurrentOrganization(c *gin.Context) {
	principal, _ := principalFromContext(c)

	orgID, err := authorization.OrgScope(c.Request.Context(), principal)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	org, err := s.organizationSvc.Get(c.Request.Context(), principal, orgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondOK(c, org)
}

func (s *Server) ListOrganizations(c *gin.Context) {
	principal, _ := principalFromContext(c)

	orgs, err := s.organizationSvc.List(c.Request.Context(), principal)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondList(c, orgs)
}

func (s *Server) ListMembers(c *gin.Context) {
	principal, _ := principalFromContext(c)

	var query listMembersQuery
	if err := s.bindQuery(c, &query); err != nil {
		AbortWithError(c, err)
		return
	}

	orgID, err := authorization.OrgScope(c.Request.Context(), principal)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	members, err := s.organizationSvc.ListMembers(c.Request.Context(), principal, orgID, organizationdomain.MemberFilter{
		Role:   identitydomain.Role(strings.ToUpper(strings.TrimSpace(query.Role))),
		Status: identitydomain.UserStatus(strings.ToUpper(strings.TrimSpace(query.Status))),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondList(c, members)
}

func (s *Server) SetMemberStatus(c *gin.Context) {
	principal, _ := principalFromContext(c)

	userID, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req setMemberStatusRequest
	if err := s.bindJSON(c, &req); err != nil {
		AbortWithError(c, err)
		return
	}

	orgID, err := authorization.OrgScope(c.Request.Context(), principal)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	member, err := s.organizationSvc.SetMemberStatus(c.Request.Context(), principal, orgID, userID,
		identitydomain.UserStatus(strings.ToUpper(strings.TrimSpace(req.Status))))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondOK(c, member)
}

// RemoveMember soft-deletes the member; the row is kept with status DELETED.
func (s *Server) RemoveMember(c *gin.Context) {
	principal, _ := principalFromContext(c)

	userID, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	orgID, err := authorization.OrgScope(c.Request.Context(), principal)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.organizationSvc.RemoveMember(c.Request.Context(), principal, orgID, userID); err != nil {
		AbortWithError(c, err)
		return
	}

	respondOK(c, nil)
}
