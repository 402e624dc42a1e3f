package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/duesledger/internal/auth"
	invoicedomain "github.com/smallbiznis/duesledger/internal/invoice/domain"
)

func (s *Server) ListMyInvoices(c *gin.Context) {
	principal, err := principalFrom(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	items, err := s.invoiceSvc.ListByUser(c.Request.Context(), principal.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) ListResidentInvoices(c *gin.Context) {
	principal, err := principalFrom(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	residentID, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ctx := c.Request.Context()
	if err := s.requireResidentScope(ctx, principal, residentID); err != nil {
		AbortWithError(c, err)
		return
	}

	items, err := s.invoiceSvc.ListByUser(ctx, residentID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}

type createInvoiceRequest struct {
	UserID  string           `json:"user_id"`
	Year    int              `json:"year"`
	Month   int              `json:"month"`
	Amount  *decimal.Decimal `json:"amount"`
	DueDate string           `json:"due_date"`
	Notes   *string          `json:"notes"`
}

func (s *Server) CreateInvoice(c *gin.Context) {
	principal, err := principalFrom(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req createInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	userID, err := snowflake.ParseString(strings.TrimSpace(req.UserID))
	if err != nil || userID == 0 {
		AbortWithError(c, newValidationError("user_id", "invalid_user_id", "invalid user_id"))
		return
	}
	dueDate, err := parseOptionalDate(req.DueDate, "due_date")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ctx := c.Request.Context()
	if err := s.requireResidentScope(ctx, principal, userID); err != nil {
		AbortWithError(c, err)
		return
	}

	invoice, err := s.invoiceSvc.Create(ctx, invoicedomain.CreateInvoiceRequest{
		UserID:  userID,
		Year:    req.Year,
		Month:   req.Month,
		Amount:  req.Amount,
		DueDate: dueDate,
		Notes:   req.Notes,
		ActorID: principal.ID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": invoice})
}

func (s *Server) DeleteInvoice(c *gin.Context) {
	principal, err := principalFrom(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	invoiceID, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ctx := c.Request.Context()
	if _, err := s.requireInvoiceScope(ctx, principal, invoiceID); err != nil {
		AbortWithError(c, err)
		return
	}
	if err := s.invoiceSvc.Delete(ctx, invoiceID, principal.ID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

type overrideInvoiceRequest struct {
	Status string  `json:"status"`
	Notes  *string `json:"notes"`
}

func (s *Server) OverrideInvoice(c *gin.Context) {
	principal, err := principalFrom(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	invoiceID, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req overrideInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.invoiceSvc.Override(c.Request.Context(), invoicedomain.OverrideRequest{
		InvoiceID: invoiceID,
		Status:    invoicedomain.InvoiceStatus(strings.ToUpper(strings.TrimSpace(req.Status))),
		ActorID:   principal.ID,
		Notes:     req.Notes,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

// requireResidentScope admits staff to a resident only within their buildings.
func (s *Server) requireResidentScope(ctx context.Context, principal auth.Principal, residentID snowflake.ID) error {
	resident, err := s.userSvc.GetResident(ctx, residentID)
	if err != nil {
		return err
	}
	return s.scope.Require(ctx, principal, resident.Building)
}

func (s *Server) requireInvoiceScope(ctx context.Context, principal auth.Principal, invoiceID snowflake.ID) (invoicedomain.Invoice, error) {
	invoice, err := s.invoiceSvc.Get(ctx, invoiceID)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}
	if err := s.requireResidentScope(ctx, principal, invoice.UserID); err != nil {
		return invoicedomain.Invoice{}, err
	}
	return invoice, nil
}
