package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

func respond(c *gin.Context, status int, data any) {
	c.JSON(status, envelope{OK: true, Data: data})
}

func respondOK(c *gin.Context, data any) {
	respond(c, http.StatusOK, data)
}

// respondList never renders a nil slice as null.
func respondList[T any](c *gin.Context, items []T) {
	if items == nil {
		items = []T{}
	}
	respond(c, http.StatusOK, items)
}

// bindJSON decodes the body into req and runs its validate tags.
func (s *Server) bindJSON(c *gin.Context, req any) error {
	if err := c.ShouldBindJSON(req); err != nil {
		return invalidRequestError("body", "must be a valid JSON object")
	}
	return s.validator.Struct(req)
}

func (s *Server) bindQuery(c *gin.Context, req any) error {
	if err := c.ShouldBindQuery(req); err != nil {
		return invalidRequestError("query", "invalid query parameters")
	}
	return s.validator.Struct(req)
}

// pathID parses the snowflake id held by the named path parameter.
func pathID(c *gin.Context, name string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(c.Param(name)))
	if err != nil || id <= 0 {
		return 0, invalidRequestError(name, "must be a valid id")
	}
	return id, nil
}
