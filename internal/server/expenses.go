package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	expensedomain "github.com/smallbiznis/duesledger/internal/expense/domain"
)

type createExpenseRequest struct {
	Title    string          `json:"title"`
	Category string          `json:"category"`
	Amount   decimal.Decimal `json:"amount"`
	SpentOn  string          `json:"spent_on"`
	Notes    *string         `json:"notes"`
}

func (s *Server) CreateExpense(c *gin.Context) {
	principal, err := principalFrom(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req createExpenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	spentOn, err := parseOptionalDate(req.SpentOn, "spent_on")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	result, err := s.expenseSvc.Create(c.Request.Context(), expensedomain.CreateExpenseRequest{
		Title:    req.Title,
		Category: req.Category,
		Amount:   req.Amount,
		SpentOn:  spentOn,
		Notes:    req.Notes,
		AuthorID: principal.ID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": result})
}

func (s *Server) ListExpenses(c *gin.Context) {
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
	limit, err := parseOptionalInt(c.Query("limit"), "limit")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	expenses, err := s.expenseSvc.List(c.Request.Context(), expensedomain.ListExpensesRequest{
		Year:  year,
		Month: month,
		Limit: limit,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": expenses})
}
