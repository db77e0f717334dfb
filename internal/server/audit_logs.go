package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/carelog/internal/audit/domain"
	"github.com/smallbiznis/carelog/internal/authorization"
	"github.com/smallbiznis/carelog/internal/orgcontext"
	"github.com/smallbiznis/carelog/pkg/db/pagination"
)

type listAuditLogsQuery struct {
	PageToken  string `form:"page_token"`
	PageSize   int    `form:"page_size" validate:"gte=0,lte=250"`
	Action     string `form:"action"`
	TargetType string `form:"target_type"`
	TargetID   string `form:"target_id"`
	ActorType  string `form:"actor_type"`
	StartAt    string `form:"start_at"`
	EndAt      string `form:"end_at"`
}

type auditLogPage struct {
	AuditLogs []auditdomain.AuditLog `json:"audit_logs"`
	PageInfo  pagination.PageInfo    `json:"page_info"`
}

// ListAuditLogs lists the caller's organization. Superadmins without an
// X-Org-ID header see every organization.
func (s *Server) ListAuditLogs(c *gin.Context) {
	principal, _ := principalFromContext(c)

	var query listAuditLogsQuery
	if err := s.bindQuery(c, &query); err != nil {
		AbortWithError(c, err)
		return
	}

	startAt, err := parseOptionalTime(query.StartAt, false)
	if err != nil {
		AbortWithError(c, invalidRequestError("start_at", "must be RFC 3339 or YYYY-MM-DD"))
		return
	}
	endAt, err := parseOptionalTime(query.EndAt, true)
	if err != nil {
		AbortWithError(c, invalidRequestError("end_at", "must be RFC 3339 or YYYY-MM-DD"))
		return
	}

	ctx := c.Request.Context()
	req := auditdomain.ListAuditLogRequest{
		Pagination: pagination.Pagination{
			PageToken: strings.TrimSpace(query.PageToken),
			PageSize:  query.PageSize,
		},
		Action:     strings.TrimSpace(query.Action),
		TargetType: strings.TrimSpace(query.TargetType),
		TargetID:   strings.TrimSpace(query.TargetID),
		ActorType:  strings.TrimSpace(query.ActorType),
		StartAt:    startAt,
		EndAt:      endAt,
	}

	if _, scoped := orgcontext.OrgIDFromContext(ctx); !scoped && authorization.IsSuperadmin(principal) {
		req.AllOrganizations = true
	} else {
		orgID, err := authorization.OrgScope(ctx, principal)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		ctx = orgcontext.WithOrgID(ctx, orgID)
	}

	resp, err := s.auditSvc.List(ctx, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	logs := resp.AuditLogs
	if logs == nil {
		logs = []auditdomain.AuditLog{}
	}
	respondOK(c, auditLogPage{AuditLogs: logs, PageInfo: resp.PageInfo})
}
