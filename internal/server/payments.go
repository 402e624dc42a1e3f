package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	paymentdomain "github.com/smallbiznis/duesledger/internal/payment/domain"
)

type collectPaymentRequest struct {
	UserID    string          `json:"user_id"`
	InvoiceID string          `json:"invoice_id"`
	Amount    decimal.Decimal `json:"amount"`
	Method    string          `json:"method"`
	Notes     *string         `json:"notes"`
}

func (s *Server) CollectPayment(c *gin.Context) {
	principal, err := principalFrom(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req collectPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	userID, err := snowflake.ParseString(strings.TrimSpace(req.UserID))
	if err != nil || userID == 0 {
		AbortWithError(c, newValidationError("user_id", "invalid_user_id", "invalid user_id"))
		return
	}
	invoiceID, err := snowflake.ParseString(strings.TrimSpace(req.InvoiceID))
	if err != nil || invoiceID == 0 {
		AbortWithError(c, newValidationError("invoice_id", "invalid_invoice_id", "invalid invoice_id"))
		return
	}
	method := paymentdomain.Method(strings.ToUpper(strings.TrimSpace(req.Method)))
	if method == "" {
		method = paymentdomain.MethodCash
	}

	ctx := c.Request.Context()
	if err := s.requireResidentScope(ctx, principal, userID); err != nil {
		AbortWithError(c, err)
		return
	}

	result, err := s.paymentSvc.Collect(ctx, paymentdomain.CollectRequest{
		UserID:      userID,
		InvoiceID:   invoiceID,
		Amount:      req.Amount,
		Method:      method,
		Notes:       req.Notes,
		CollectorID: principal.ID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": result})
}

func (s *Server) ListMyPayments(c *gin.Context) {
	principal, err := principalFrom(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	limit, err := parseOptionalInt(c.Query("limit"), "limit")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	items, err := s.paymentSvc.ListByCollector(c.Request.Context(), principal.ID, limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}
