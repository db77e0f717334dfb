package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/carelog/internal/auditcontext"
	"github.com/smallbiznis/carelog/internal/authorization"
	identitydomain "github.com/smallbiznis/carelog/internal/identity/domain"
	obscontext "github.com/smallbiznis/carelog/internal/observability/context"
	"github.com/smallbiznis/carelog/internal/orgcontext"
)

const (
	HeaderOrg           = "X-Org-ID"
	contextPrincipalKey = "principal"
	contextClaimsKey    = "claims"
	actorTypeUser       = "user"
)

// credentialFromRequest prefers a bearer token over the session cookie.
func (s *Server) credentialFromRequest(c *gin.Context) (identitydomain.Credential, bool) {
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if len(header) > len("bearer ") && strings.EqualFold(header[:len("bearer ")], "bearer ") {
		token := strings.TrimSpace(header[len("bearer "):])
		if token != "" {
			return identitydomain.Credential{Kind: identitydomain.CredentialBearer, Value: token}, true
		}
	}

	name := s.cfg.Auth.CookieName
	if name == "" {
		name = "_sid"
	}
	if value, err := c.Cookie(name); err == nil && strings.TrimSpace(value) != "" {
		return identitydomain.Credential{Kind: identitydomain.CredentialCookie, Value: strings.TrimSpace(value)}, true
	}
	return identitydomain.Credential{}, false
}

// AuthRequired resolves the caller into a principal.
func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		credential, ok := s.credentialFromRequest(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		principal, _, err := s.identitySvc.Authenticate(c.Request.Context(), credential)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		ctx := c.Request.Context()
		actorID := principal.UserID.String()
		ctx = auditcontext.WithActor(ctx, actorTypeUser, actorID)
		ctx = obscontext.WithActor(ctx, actorTypeUser, actorID)
		c.Request = c.Request.WithContext(ctx)
		c.Set(contextPrincipalKey, principal)
		c.Next()
	}
}

// ClaimsRequired only verifies the credential; the caller may have no
// local account yet.
func (s *Server) ClaimsRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		credential, ok := s.credentialFromRequest(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		claims, err := s.identitySvc.Verify(c.Request.Context(), credential)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.Set(contextClaimsKey, claims)
		c.Next()
	}
}

// OrgContext scopes the request to the organization named by X-Org-ID.
// Only superadmins may name an organization other than their own.
func (s *Server) OrgContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(HeaderOrg))
		if raw == "" {
			c.Next()
			return
		}

		orgID, err := snowflake.ParseString(raw)
		if err != nil || orgID <= 0 {
			AbortWithError(c, invalidRequestError(HeaderOrg, "must be a valid id"))
			return
		}

		principal, ok := principalFromContext(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if err := authorization.RequireOrg(principal, orgID); err != nil {
			AbortWithError(c, err)
			return
		}

		ctx := orgcontext.WithOrgID(c.Request.Context(), orgID)
		ctx = obscontext.WithOrgID(ctx, orgID.String())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// authorize checks the route capability against the casbin policy.
func (s *Server) authorize(object string, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := principalFromContext(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if err := s.authzSvc.Authorize(c.Request.Context(), principal, object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

func principalFromContext(c *gin.Context) (identitydomain.Principal, bool) {
	value, ok := c.Get(contextPrincipalKey)
	if !ok {
		return identitydomain.Principal{}, false
	}
	principal, ok := value.(identitydomain.Principal)
	if !ok || principal.IsZero() {
		return identitydomain.Principal{}, false
	}
	return principal, true
}

func claimsFromContext(c *gin.Context) (identitydomain.Claims, bool) {
	value, ok := c.Get(contextClaimsKey)
	if !ok {
		return identitydomain.Claims{}, false
	}
	claims, ok := value.(identitydomain.Claims)
	if !ok || claims.Subject == "" {
		return identitydomain.Claims{}, false
	}
	return claims, true
}
