package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	onlinepaymentdomain "github.com/smallbiznis/duesledger/internal/onlinepayment/domain"
)

type submitClaimRequest struct {
	InvoiceID            string          `json:"invoice_id"`
	Amount               decimal.Decimal `json:"amount"`
	SenderReference      string          `json:"sender_reference"`
	TransactionReference string          `json:"transaction_reference"`
}

func (s *Server) SubmitClaim(c *gin.Context) {
	principal, err := principalFrom(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req submitClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	invoiceID, err := snowflake.ParseString(strings.TrimSpace(req.InvoiceID))
	if err != nil || invoiceID == 0 {
		AbortWithError(c, newValidationError("invoice_id", "invalid_invoice_id", "invalid invoice_id"))
		return
	}

	claim, err := s.claimSvc.SubmitClaim(c.Request.Context(), onlinepaymentdomain.SubmitClaimRequest{
		UserID:               principal.ID,
		InvoiceID:            invoiceID,
		Amount:               req.Amount,
		SenderReference:      req.SenderReference,
		TransactionReference: req.TransactionReference,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": claim})
}

func (s *Server) ListMyClaims(c *gin.Context) {
	principal, err := principalFrom(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	claims, err := s.claimSvc.ListByUser(c.Request.Context(), principal.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": claims})
}

func (s *Server) ListPendingClaims(c *gin.Context) {
	claims, err := s.claimSvc.ListPending(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": claims})
}

type reviewClaimRequest struct {
	Notes *string `json:"notes"`
}

func (s *Server) ApproveClaim(c *gin.Context) {
	s.reviewClaim(c, s.claimSvc.Approve)
}

func (s *Server) RejectClaim(c *gin.Context) {
	s.reviewClaim(c, s.claimSvc.Reject)
}

type reviewFunc func(ctx context.Context, req onlinepaymentdomain.ReviewRequest) (onlinepaymentdomain.ReviewResult, error)

func (s *Server) reviewClaim(c *gin.Context, review reviewFunc) {
	principal, err := principalFrom(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	claimID, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req reviewClaimRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	result, err := review(c.Request.Context(), onlinepaymentdomain.ReviewRequest{
		ClaimID:    claimID,
		ReviewerID: principal.ID,
		Notes:      req.Notes,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}
