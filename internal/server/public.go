package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// PublicUnitsStatus lists every unit of a building with its invoice status
// for one month.
func (s *Server) PublicUnitsStatus(c *gin.Context) {
	building := strings.TrimSpace(c.Param("building"))
	if building == "" {
		AbortWithError(c, newValidationError("building", "invalid_building", "invalid building"))
		return
	}
	year, month, err := parsePeriod(c, s.clock.Now())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	units, err := s.invoiceSvc.UnitsStatus(c.Request.Context(), building, year, month)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"building": building,
		"year":     year,
		"month":    month,
		"units":    units,
	}})
}
