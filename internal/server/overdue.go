package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	overduedomain "github.com/smallbiznis/duesledger/internal/overdue/domain"
)

func (s *Server) OverdueReport(c *gin.Context) {
	principal, err := principalFrom(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ctx := c.Request.Context()
	buildings, err := s.scope.Buildings(ctx, principal)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	report, err := s.overdueSvc.Report(ctx, overduedomain.ReportRequest{
		Building:  strings.TrimSpace(c.Query("building")),
		Buildings: buildings,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": report})
}
