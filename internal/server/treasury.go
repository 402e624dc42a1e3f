package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/duesledger/internal/clock"
	settlementdomain "github.com/smallbiznis/duesledger/internal/settlement/domain"
)

func (s *Server) ListCollectors(c *gin.Context) {
	collectors, err := s.settlementSvc.ListCollectors(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": collectors})
}

func (s *Server) GetCollector(c *gin.Context) {
	collectorID, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	detail, err := s.settlementSvc.CollectorDetail(c.Request.Context(), collectorID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": detail})
}

type recordSettlementRequest struct {
	CollectorID string          `json:"collector_id"`
	Amount      decimal.Decimal `json:"amount"`
	Notes       *string         `json:"notes"`
}

func (s *Server) RecordSettlement(c *gin.Context) {
	principal, err := principalFrom(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req recordSettlementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	collectorID, err := snowflake.ParseString(strings.TrimSpace(req.CollectorID))
	if err != nil || collectorID == 0 {
		AbortWithError(c, newValidationError("collector_id", "invalid_collector_id", "invalid collector_id"))
		return
	}

	result, err := s.settlementSvc.RecordSettlement(c.Request.Context(), settlementdomain.RecordSettlementRequest{
		CollectorID: collectorID,
		TreasurerID: principal.ID,
		Amount:      req.Amount,
		Notes:       req.Notes,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": result})
}

func (s *Server) TreasurySummary(c *gin.Context) {
	summary, err := s.settlementSvc.TreasurySummary(c.Request.Context(), clock.Today(s.clock))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": summary})
}
