package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	fundraiserdomain "github.com/smallbiznis/duesledger/internal/fundraiser/domain"
)

type createFundraiserRequest struct {
	Name   string          `json:"name"`
	Amount decimal.Decimal `json:"amount"`
	Year   int             `json:"year"`
	Month  int             `json:"month"`
	Notes  *string         `json:"notes"`
}

func (s *Server) CreateFundraiser(c *gin.Context) {
	principal, err := principalFrom(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req createFundraiserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.fundraiserSvc.Create(c.Request.Context(), fundraiserdomain.CreateFundraiserRequest{
		Name:     req.Name,
		Amount:   req.Amount,
		Year:     req.Year,
		Month:    req.Month,
		Notes:    req.Notes,
		AuthorID: principal.ID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": result})
}

type updateFundraiserRequest struct {
	Name   *string          `json:"name"`
	Amount *decimal.Decimal `json:"amount"`
	Notes  *string          `json:"notes"`
}

func (s *Server) UpdateFundraiser(c *gin.Context) {
	principal, err := principalFrom(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	fundraiserID, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req updateFundraiserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.fundraiserSvc.Update(c.Request.Context(), fundraiserdomain.UpdateFundraiserRequest{
		ID:       fundraiserID,
		Name:     req.Name,
		Amount:   req.Amount,
		Notes:    req.Notes,
		AuthorID: principal.ID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

// ListFundraisers is public. Without year and month every fundraiser is listed.
func (s *Server) ListFundraisers(c *gin.Context) {
	year, err := parseOptionalInt(c.Query("year"), "year")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	month, err := parseOptionalInt(c.Query("month"), "month")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	items, err := s.fundraiserSvc.List(c.Request.Context(), year, month)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}
